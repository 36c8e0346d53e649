// Package engine executes a convnet.Network on the CPU.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cnnbench/cnnbench/convnet"
	"github.com/cnnbench/cnnbench/envconfig"
	"github.com/cnnbench/cnnbench/format"
	"github.com/cnnbench/cnnbench/logutil"
	"github.com/cnnbench/cnnbench/ml"
	"github.com/cnnbench/cnnbench/ml/nn"
)

var ErrInputShape = errors.New("engine: input shape does not match network")

// Engine holds initialised parameters for a network and runs forward
// passes. Forward calls are serialised.
type Engine struct {
	net     *convnet.Network
	layers  []*layer
	threads int
	seed    uint64
	dtype   ml.DType
	timing  bool

	mu      sync.Mutex
	rng     *rand.Rand
	timings []LayerTiming
}

type layer struct {
	*convnet.Layer

	weight *ml.Tensor
	bias   *ml.Tensor

	conv   *nn.Conv2D
	pool   *nn.MaxPool2D
	linear *nn.Linear
}

type Option func(*Engine)

// WithThreads limits how many batch items are processed concurrently.
func WithThreads(n int) Option {
	return func(e *Engine) { e.threads = n }
}

// WithSeed seeds parameter initialisation and dropout.
func WithSeed(seed uint64) Option {
	return func(e *Engine) { e.seed = seed }
}

// WithDType rounds parameters to dtype after initialisation.
func WithDType(dtype ml.DType) Option {
	return func(e *Engine) { e.dtype = dtype }
}

// WithLayerTiming records the time spent in each layer.
func WithLayerTiming(enabled bool) Option {
	return func(e *Engine) { e.timing = enabled }
}

// New allocates and initialises the parameters of net. Conv kernels use
// Glorot uniform, affine weights a truncated normal scaled by fan-in, and
// biases the constant from their layer spec.
func New(net *convnet.Network, opts ...Option) (*Engine, error) {
	dtype, err := ml.ParseDType(envconfig.DType())
	if err != nil {
		dtype = ml.DTypeF32
	}

	e := &Engine{
		net:     net,
		threads: envconfig.NumThreads(),
		seed:    envconfig.Seed(),
		dtype:   dtype,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.threads <= 0 {
		return nil, fmt.Errorf("engine: invalid thread count %d", e.threads)
	}
	if e.dtype.Size() == 0 {
		return nil, fmt.Errorf("engine: invalid dtype %v", e.dtype)
	}

	e.rng = nn.NewRand(e.seed)
	for _, l := range net.Layers {
		e.layers = append(e.layers, e.initLayer(l))
	}
	if e.timing {
		e.timings = make([]LayerTiming, len(e.layers))
		for i, l := range e.layers {
			e.timings[i] = LayerTiming{Name: l.Name, Kind: l.Spec.Kind}
		}
	}

	slog.Debug("engine ready", "network", net.Name, "params", format.HumanNumber(uint64(net.Params())),
		"dtype", e.dtype, "memory", format.HumanBytes2(uint64(net.ParamBytes(e.dtype))), "threads", e.threads)
	return e, nil
}

func (e *Engine) initLayer(l *convnet.Layer) *layer {
	out := &layer{Layer: l}
	spec := l.Spec

	switch spec.Kind {
	case convnet.KindConv:
		kh, kw := spec.Kernel[0], spec.Kernel[1]
		k := l.InChannels * kh * kw
		out.weight = ml.NewTensor(spec.Units, k)
		out.bias = ml.NewTensor(spec.Units)
		nn.GlorotUniform(out.weight.Data, k, kh*kw*spec.Units, e.rng)
		out.conv = &nn.Conv2D{
			InC: l.InChannels, OutC: spec.Units,
			KH: kh, KW: kw,
			StrideH: spec.Stride[0], StrideW: spec.Stride[1],
			Padding: spec.Padding,
			Weight:  out.weight.Data,
			Bias:    out.bias.Data,
		}

	case convnet.KindMPool:
		out.pool = &nn.MaxPool2D{
			KH: spec.Kernel[0], KW: spec.Kernel[1],
			StrideH: spec.Stride[0], StrideW: spec.Stride[1],
			Padding: spec.Padding,
		}

	case convnet.KindAffine:
		out.weight = ml.NewTensor(l.InChannels, spec.Units)
		out.bias = ml.NewTensor(spec.Units)
		stddev := math.Sqrt(1 / float64(l.InChannels))
		if spec.Activation == nn.ActivationRelu {
			stddev = math.Sqrt(2 / float64(l.InChannels))
		}
		nn.TruncatedNormal(out.weight.Data, stddev, e.rng)
		out.linear = &nn.Linear{
			In: l.InChannels, Out: spec.Units,
			Weight: out.weight.Data,
			Bias:   out.bias.Data,
		}
	}

	if out.bias != nil {
		nn.Constant(out.bias.Data, spec.Bias)
		out.weight.Quantize(e.dtype)
		out.bias.Quantize(e.dtype)
	}
	return out
}

func (e *Engine) Network() *convnet.Network { return e.net }

func (e *Engine) DType() ml.DType { return e.dtype }

// Weights returns the weight tensor of the named conv or affine layer.
func (e *Engine) Weights(name string) (*ml.Tensor, bool) {
	for _, l := range e.layers {
		if l.Name == name && l.weight != nil {
			return l.weight, true
		}
	}
	return nil, false
}

// Forward runs x through every layer and returns the logits. x must have
// exactly the network's input shape. ctx is checked between layers.
func (e *Engine) Forward(ctx context.Context, x *ml.Tensor) (*ml.Tensor, error) {
	if !x.Shape.Equal(e.net.Input) {
		return nil, fmt.Errorf("%w: got %v, want %v", ErrInputShape, x.Shape, e.net.Input)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// kernels run in NCHW; NHWC inputs are transposed once up front
	cur := x
	if e.net.Format == ml.NHWC {
		cur = x.TransposeNCHW()
	}

	for i, l := range e.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		next, err := e.forwardLayer(ctx, l, cur)
		if err != nil {
			return nil, fmt.Errorf("engine: %s: %w", l.Name, err)
		}
		cur = next

		if e.timing {
			e.timings[i].Total += time.Since(start)
			e.timings[i].Calls++
		}
		logutil.TraceContext(ctx, "layer done", "layer", l.Name, "shape", cur.Shape, "elapsed", time.Since(start))
	}

	if len(cur.Shape) == 4 && e.net.Format == ml.NHWC {
		cur = cur.TransposeNHWC()
	}
	return cur, nil
}

func (e *Engine) forwardLayer(ctx context.Context, l *layer, x *ml.Tensor) (*ml.Tensor, error) {
	switch l.Spec.Kind {
	case convnet.KindConv:
		n, c, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
		oh, ow := l.conv.OutputSize(h, w)
		out := ml.NewTensor(n, l.conv.OutC, oh, ow)
		err := e.perItem(ctx, n, func(b int) {
			dst := out.Data[b*l.conv.OutC*oh*ow : (b+1)*l.conv.OutC*oh*ow]
			l.conv.Forward(dst, x.Data[b*c*h*w:(b+1)*c*h*w], h, w)
			l.Spec.Activation.Apply(dst)
		})
		return out, err

	case convnet.KindMPool:
		n, c, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
		oh, ow := l.pool.OutputSize(h, w)
		out := ml.NewTensor(n, c, oh, ow)
		err := e.perItem(ctx, n, func(b int) {
			l.pool.Forward(out.Data[b*c*oh*ow:(b+1)*c*oh*ow], x.Data[b*c*h*w:(b+1)*c*h*w], c, h, w)
		})
		return out, err

	case convnet.KindReshape:
		// reshape in the network's own memory order, then return rank 4
		// results to the NCHW layout the kernels expect
		nhwc := e.net.Format == ml.NHWC
		if len(x.Shape) == 4 && nhwc {
			x = x.TransposeNHWC()
		}
		y, err := x.Reshape(l.Out...)
		if err != nil {
			return nil, err
		}
		if len(y.Shape) == 4 && nhwc {
			y = y.TransposeNCHW()
		}
		return y, nil

	case convnet.KindAffine:
		n := x.Shape[0]
		out := ml.NewTensor(n, l.linear.Out)
		l.linear.Forward(out.Data, x.Data, n)
		l.Spec.Activation.Apply(out.Data)
		return out, nil

	case convnet.KindDropout:
		if l.Spec.KeepProb < 1 {
			x = x.Clone()
			nn.Dropout(x.Data, l.Spec.KeepProb, e.rng)
		}
		return x, nil

	default:
		return nil, fmt.Errorf("unsupported layer kind %q", l.Spec.Kind)
	}
}

// perItem runs fn for every batch index with at most e.threads in flight.
func (e *Engine) perItem(ctx context.Context, n int, fn func(b int)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.threads)
	for b := range n {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(b)
			return nil
		})
	}
	return g.Wait()
}

// Loss returns the mean softmax cross entropy of logits against labels.
func (e *Engine) Loss(logits *ml.Tensor, labels []int) (float64, error) {
	if len(logits.Shape) != 2 || logits.Shape[0] != len(labels) {
		return 0, fmt.Errorf("engine: %d labels for logits %v", len(labels), logits.Shape)
	}
	classes := logits.Shape[1]
	for _, label := range labels {
		if label < 0 || label >= classes {
			return 0, fmt.Errorf("engine: label %d outside [0, %d)", label, classes)
		}
	}
	return nn.CrossEntropy(logits.Data, labels, classes), nil
}

// Predict returns the most likely class of each row of logits.
func Predict(logits *ml.Tensor) []int {
	return nn.Argmax(logits.Data, logits.Shape[0], logits.Shape[1])
}

// Probabilities returns a softmax copy of logits.
func Probabilities(logits *ml.Tensor) *ml.Tensor {
	p := logits.Clone()
	nn.Softmax(p.Data, p.Shape[0], p.Shape[1])
	return p
}

// LayerTiming is the accumulated forward time of one layer.
type LayerTiming struct {
	Name  string
	Kind  convnet.Kind
	Calls int
	Total time.Duration
}

func (t LayerTiming) Mean() time.Duration {
	if t.Calls == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Calls)
}

// Timings returns a snapshot of per-layer timings. It is empty unless the
// engine was created WithLayerTiming.
func (e *Engine) Timings() []LayerTiming {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]LayerTiming(nil), e.timings...)
}

// ResetTimings clears the accumulated timings, typically after warm-up.
func (e *Engine) ResetTimings() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.timings {
		e.timings[i].Calls = 0
		e.timings[i].Total = 0
	}
}
