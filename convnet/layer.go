// Package convnet builds feed-forward convolutional networks layer by layer
// and tracks their shapes, parameter counts and FLOPs.
package convnet

import (
	"fmt"

	"github.com/cnnbench/cnnbench/ml"
	"github.com/cnnbench/cnnbench/ml/nn"
)

type Kind string

const (
	KindConv    Kind = "conv"
	KindMPool   Kind = "mpool"
	KindAffine  Kind = "affine"
	KindDropout Kind = "dropout"
	KindReshape Kind = "reshape"
)

// Layer is one resolved step of a network: the LayerSpec it was built from plus
// the shapes it consumes and produces.
type Layer struct {
	Name string
	Spec LayerSpec

	In  ml.Shape
	Out ml.Shape

	// InChannels is the channel count for conv layers and the input width
	// for affine layers.
	InChannels int
}

// Params returns the number of trainable parameters.
func (l *Layer) Params() int64 {
	switch l.Spec.Kind {
	case KindConv:
		kh, kw := l.Spec.kernel()
		return int64(kh*kw*l.InChannels*l.Spec.Units) + int64(l.Spec.Units)
	case KindAffine:
		return int64(l.InChannels*l.Spec.Units) + int64(l.Spec.Units)
	default:
		return 0
	}
}

// FLOPs counts multiply and add as two operations. Pools count one
// comparison per window element.
func (l *Layer) FLOPs(format ml.DataFormat) int64 {
	switch l.Spec.Kind {
	case KindConv:
		kh, kw := l.Spec.kernel()
		n, c, h, w := format.Dims(l.Out)
		return 2 * int64(kh*kw*l.InChannels) * int64(c) * int64(h*w) * int64(n)
	case KindMPool:
		kh, kw := l.Spec.kernel()
		return int64(kh*kw) * int64(l.Out.Size())
	case KindAffine:
		return 2 * int64(l.InChannels) * int64(l.Out.Size())
	default:
		return 0
	}
}

func (l *Layer) String() string {
	return fmt.Sprintf("%s %v -> %v", l.Name, l.In, l.Out)
}

// LayerSpec is the serialisable description of one builder call.
type LayerSpec struct {
	Kind Kind `json:"kind" yaml:"kind"`

	// Units is the number of filters of a conv layer or outputs of an
	// affine layer.
	Units      int           `json:"units,omitempty" yaml:"units,omitempty"`
	Kernel     []int         `json:"kernel,omitempty" yaml:"kernel,omitempty,flow"`
	Stride     []int         `json:"stride,omitempty" yaml:"stride,omitempty,flow"`
	Padding    nn.Padding    `json:"padding,omitempty" yaml:"padding,omitempty"`
	Activation nn.Activation `json:"activation,omitempty" yaml:"activation,omitempty"`
	Bias       float32       `json:"bias,omitempty" yaml:"bias,omitempty"`
	KeepProb   float32       `json:"keep_prob,omitempty" yaml:"keep_prob,omitempty"`
	Shape      []int         `json:"shape,omitempty" yaml:"shape,omitempty,flow"`
}

func (s LayerSpec) kernel() (int, int) {
	if len(s.Kernel) != 2 {
		return 0, 0
	}
	return s.Kernel[0], s.Kernel[1]
}

func (s LayerSpec) stride() (int, int) {
	if len(s.Stride) != 2 {
		return 0, 0
	}
	return s.Stride[0], s.Stride[1]
}

// withDefaults fills the fields a definition left out with the values the
// Builder methods use.
func (s LayerSpec) withDefaults() LayerSpec {
	switch s.Kind {
	case KindConv:
		if s.Stride == nil {
			s.Stride = []int{1, 1}
		}
		if s.Padding == "" {
			s.Padding = nn.Same
		}
		if s.Activation == "" {
			s.Activation = nn.ActivationRelu
		}
	case KindMPool:
		if s.Stride == nil {
			s.Stride = []int{2, 2}
		}
		if s.Padding == "" {
			s.Padding = nn.Valid
		}
	case KindAffine:
		if s.Activation == "" {
			s.Activation = nn.ActivationRelu
		}
	case KindDropout:
		if s.KeepProb == 0 {
			s.KeepProb = 0.5
		}
	}
	return s
}

// Option adjusts a layer away from its defaults. Options that do not apply
// to a layer kind are ignored.
type Option func(*LayerSpec)

func WithStride(h, w int) Option {
	return func(s *LayerSpec) { s.Stride = []int{h, w} }
}

func WithPadding(p nn.Padding) Option {
	return func(s *LayerSpec) { s.Padding = p }
}

func WithActivation(a nn.Activation) Option {
	return func(s *LayerSpec) { s.Activation = a }
}

// WithBias sets the constant the bias vector is initialised to.
func WithBias(b float32) Option {
	return func(s *LayerSpec) { s.Bias = b }
}

// WithKeepProb sets the dropout keep probability used in training.
func WithKeepProb(p float32) Option {
	return func(s *LayerSpec) { s.KeepProb = p }
}
