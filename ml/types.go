// Package ml holds the tensor, shape and dtype types shared by the network
// builder, the CPU kernels and the benchmark.
package ml

import (
	"fmt"
	"strings"
)

// DType represents the storage type of tensor elements. Computation always
// happens in float32; narrower types only affect how parameters are stored.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
	DTypeBF16
)

// Size returns the number of bytes one element occupies.
func (t DType) Size() int {
	switch t {
	case DTypeF32:
		return 4
	case DTypeF16, DTypeBF16:
		return 2
	default:
		return 0
	}
}

func (t DType) String() string {
	switch t {
	case DTypeF32:
		return "f32"
	case DTypeF16:
		return "f16"
	case DTypeBF16:
		return "bf16"
	default:
		return "other"
	}
}

// ParseDType accepts f32, f16 and bf16 (and their long spellings).
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(s) {
	case "f32", "float32", "fp32":
		return DTypeF32, nil
	case "f16", "float16", "fp16":
		return DTypeF16, nil
	case "bf16", "bfloat16":
		return DTypeBF16, nil
	default:
		return DTypeOther, fmt.Errorf("ml: unknown dtype %q", s)
	}
}

// DataFormat is the memory layout of 4-D activations.
type DataFormat string

const (
	NCHW DataFormat = "NCHW"
	NHWC DataFormat = "NHWC"
)

// ParseDataFormat accepts NCHW or NHWC in any case.
func ParseDataFormat(s string) (DataFormat, error) {
	switch f := DataFormat(strings.ToUpper(s)); f {
	case NCHW, NHWC:
		return f, nil
	default:
		return "", fmt.Errorf("ml: unknown data format %q", s)
	}
}

// ChannelAxis returns the index of the channel dimension in a 4-D shape.
func (f DataFormat) ChannelAxis() int {
	if f == NHWC {
		return 3
	}
	return 1
}

// Shape4 builds a 4-D activation shape in this layout.
func (f DataFormat) Shape4(n, c, h, w int) Shape {
	if f == NHWC {
		return Shape{n, h, w, c}
	}
	return Shape{n, c, h, w}
}

// Dims splits a 4-D shape in this layout into batch, channels, height and
// width.
func (f DataFormat) Dims(s Shape) (n, c, h, w int) {
	if f == NHWC {
		return s[0], s[3], s[1], s[2]
	}
	return s[0], s[1], s[2], s[3]
}
