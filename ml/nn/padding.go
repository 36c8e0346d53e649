// Package nn implements the CPU kernels used to execute a built network.
// Kernels work on NCHW float32 slices and never allocate their outputs.
package nn

import (
	"fmt"
	"strings"
)

// Padding selects how convolutions and pools treat the image border.
type Padding string

const (
	// Same pads so that the output is ceil(in/stride).
	Same Padding = "SAME"
	// Valid uses only positions where the window fits entirely.
	Valid Padding = "VALID"
)

func ParsePadding(s string) (Padding, error) {
	switch p := Padding(strings.ToUpper(s)); p {
	case Same, Valid:
		return p, nil
	default:
		return "", fmt.Errorf("nn: unknown padding %q", s)
	}
}

// OutputSize returns the length of one spatial axis after a window of size k
// slides over in positions. It may return a value <= 0 for VALID windows
// larger than the input.
func OutputSize(in, k, stride int, p Padding) int {
	if p == Same {
		return (in + stride - 1) / stride
	}
	return (in - k + stride) / stride
}

// padBefore returns the number of padding positions added in front of an
// axis. Odd totals put the extra position at the end.
func padBefore(in, k, stride int, p Padding) int {
	if p != Same {
		return 0
	}
	out := OutputSize(in, k, stride, p)
	total := max((out-1)*stride+k-in, 0)
	return total / 2
}

// Activation is applied after a convolution or affine layer.
type Activation string

const (
	ActivationRelu   Activation = "relu"
	ActivationLinear Activation = "linear"
)

func ParseActivation(s string) (Activation, error) {
	switch a := Activation(strings.ToLower(s)); a {
	case ActivationRelu, ActivationLinear:
		return a, nil
	case "":
		return ActivationLinear, nil
	default:
		return "", fmt.Errorf("nn: unknown activation %q", s)
	}
}

// Apply runs the activation over x in place.
func (a Activation) Apply(x []float32) {
	if a == ActivationRelu {
		ReLU(x)
	}
}
