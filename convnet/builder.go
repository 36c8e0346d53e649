package convnet

import (
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/cnnbench/cnnbench/ml"
	"github.com/cnnbench/cnnbench/ml/nn"
)

var ErrInvalidLayer = errors.New("convnet: invalid layer")

// Builder appends layers to a network. The first failing call records an
// error; every later call is a no-op and Network returns that error.
type Builder struct {
	input      ml.Shape
	format     ml.DataFormat
	phaseTrain bool

	top      ml.Shape
	layers   []*Layer
	calls    []LayerSpec
	counters *orderedmap.OrderedMap[Kind, int]
	err      error
}

// NewBuilder starts a network on a 4-D input in the given layout.
func NewBuilder(input ml.Shape, format ml.DataFormat, phaseTrain bool) *Builder {
	b := &Builder{
		input:      input.Clone(),
		format:     format,
		phaseTrain: phaseTrain,
		top:        input.Clone(),
		counters:   orderedmap.New[Kind, int](),
	}

	if format != ml.NCHW && format != ml.NHWC {
		b.err = fmt.Errorf("%w: data format %q", ErrInvalidLayer, format)
	} else if len(input) != 4 {
		b.err = fmt.Errorf("%w: input must be rank 4, got %v", ErrInvalidLayer, input)
	} else if err := input.Validate(); err != nil {
		b.err = err
	}
	return b
}

func (b *Builder) Err() error { return b.err }

// Top returns the shape of the most recent layer's output.
func (b *Builder) Top() ml.Shape { return b.top.Clone() }

func (b *Builder) Format() ml.DataFormat { return b.format }

func (b *Builder) PhaseTrain() bool { return b.phaseTrain }

// Conv adds a convolution with outChannels filters of size kH×kW. It
// defaults to stride 1, SAME padding, relu and a zero bias.
func (b *Builder) Conv(outChannels, kH, kW int, opts ...Option) {
	spec := LayerSpec{
		Kind:       KindConv,
		Units:      outChannels,
		Kernel:     []int{kH, kW},
		Stride:     []int{1, 1},
		Padding:    nn.Same,
		Activation: nn.ActivationRelu,
	}
	b.add(spec, opts)
}

// MPool adds a max pool over kH×kW windows with stride 2 and VALID padding
// unless overridden.
func (b *Builder) MPool(kH, kW int, opts ...Option) {
	spec := LayerSpec{
		Kind:    KindMPool,
		Kernel:  []int{kH, kW},
		Stride:  []int{2, 2},
		Padding: nn.Valid,
	}
	b.add(spec, opts)
}

// Reshape changes the top shape without moving data. One dimension may be
// -1.
func (b *Builder) Reshape(shape []int) {
	b.add(LayerSpec{Kind: KindReshape, Shape: append([]int(nil), shape...)}, nil)
}

// Affine adds a fully connected layer on a rank 2 top. It defaults to relu.
func (b *Builder) Affine(outputs int, opts ...Option) {
	spec := LayerSpec{
		Kind:       KindAffine,
		Units:      outputs,
		Activation: nn.ActivationRelu,
	}
	b.add(spec, opts)
}

// Dropout keeps each activation with probability 0.5 during training. At
// inference the layer is the identity.
func (b *Builder) Dropout(opts ...Option) {
	b.add(LayerSpec{Kind: KindDropout, KeepProb: 0.5}, opts)
}

func (b *Builder) add(spec LayerSpec, opts []Option) {
	if b.err != nil {
		return
	}
	for _, opt := range opts {
		opt(&spec)
	}

	n, _ := b.counters.Get(spec.Kind)
	name := fmt.Sprintf("%s%d", spec.Kind, n)

	layer, err := b.resolve(name, spec)
	if err != nil {
		b.err = fmt.Errorf("%w: %s: %w", ErrInvalidLayer, name, err)
		return
	}

	b.counters.Set(spec.Kind, n+1)
	b.layers = append(b.layers, layer)
	b.calls = append(b.calls, spec)
	b.top = layer.Out
}

func (b *Builder) resolve(name string, spec LayerSpec) (*Layer, error) {
	l := &Layer{Name: name, Spec: spec, In: b.top.Clone()}

	switch spec.Kind {
	case KindConv, KindMPool:
		if len(b.top) != 4 {
			return nil, fmt.Errorf("needs a rank 4 input, got %v", b.top)
		}
		kh, kw := spec.kernel()
		sh, sw := spec.stride()
		if kh <= 0 || kw <= 0 || sh <= 0 || sw <= 0 {
			return nil, fmt.Errorf("kernel %v and stride %v must be positive", spec.Kernel, spec.Stride)
		}
		if spec.Padding != nn.Same && spec.Padding != nn.Valid {
			return nil, fmt.Errorf("unknown padding %q", spec.Padding)
		}

		n, c, h, w := b.format.Dims(b.top)
		oh := nn.OutputSize(h, kh, sh, spec.Padding)
		ow := nn.OutputSize(w, kw, sw, spec.Padding)
		if oh <= 0 || ow <= 0 {
			return nil, fmt.Errorf("window %dx%d does not fit input %dx%d", kh, kw, h, w)
		}

		outC := c
		if spec.Kind == KindConv {
			if spec.Units <= 0 {
				return nil, fmt.Errorf("filter count must be positive, got %d", spec.Units)
			}
			if err := validActivation(spec.Activation); err != nil {
				return nil, err
			}
			outC = spec.Units
			l.InChannels = c
		}
		l.Out = b.format.Shape4(n, outC, oh, ow)

	case KindAffine:
		if len(b.top) != 2 {
			return nil, fmt.Errorf("needs a rank 2 input, got %v; reshape first", b.top)
		}
		if spec.Units <= 0 {
			return nil, fmt.Errorf("output count must be positive, got %d", spec.Units)
		}
		if err := validActivation(spec.Activation); err != nil {
			return nil, err
		}
		l.InChannels = b.top[1]
		l.Out = ml.Shape{b.top[0], spec.Units}

	case KindDropout:
		if spec.KeepProb <= 0 || spec.KeepProb > 1 {
			return nil, fmt.Errorf("keep probability %v outside (0, 1]", spec.KeepProb)
		}
		if !b.phaseTrain {
			l.Spec.KeepProb = 1
		}
		l.Out = b.top.Clone()

	case KindReshape:
		out, err := ml.Infer(b.top.Size(), spec.Shape)
		if err != nil {
			return nil, err
		}
		l.Out = out

	default:
		return nil, fmt.Errorf("unknown kind %q", spec.Kind)
	}

	return l, nil
}

func validActivation(a nn.Activation) error {
	if a != nn.ActivationRelu && a != nn.ActivationLinear {
		return fmt.Errorf("unknown activation %q", a)
	}
	return nil
}

// Network returns the network built so far, or the first error recorded.
func (b *Builder) Network() (*Network, error) {
	if b.err != nil {
		return nil, b.err
	}

	counts := orderedmap.New[Kind, int]()
	for pair := b.counters.Oldest(); pair != nil; pair = pair.Next() {
		counts.Set(pair.Key, pair.Value)
	}

	return &Network{
		Input:      b.input.Clone(),
		Output:     b.top.Clone(),
		Format:     b.format,
		PhaseTrain: b.phaseTrain,
		Layers:     append([]*Layer(nil), b.layers...),
		calls:      append([]LayerSpec(nil), b.calls...),
		counts:     counts,
	}, nil
}
