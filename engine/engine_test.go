package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnnbench/cnnbench/convnet"
	"github.com/cnnbench/cnnbench/ml"
	"github.com/cnnbench/cnnbench/ml/nn"
)

func buildNet(t *testing.T, format ml.DataFormat, train bool) *convnet.Network {
	t.Helper()
	b := convnet.NewBuilder(format.Shape4(3, 2, 4, 4), format, train)
	b.Conv(4, 3, 3)
	b.MPool(2, 2)
	b.Conv(6, 3, 3)
	b.MPool(2, 2)
	b.Reshape([]int{-1, 6})
	b.Affine(8)
	b.Dropout()
	b.Affine(5, convnet.WithActivation(nn.ActivationLinear))
	net, err := b.Network()
	require.NoError(t, err)
	return net
}

func input(shape ml.Shape) *ml.Tensor {
	x := ml.NewTensor(shape...)
	for i := range x.Data {
		x.Data[i] = float32(i%7) - 3
	}
	return x
}

func TestForwardDeterministic(t *testing.T) {
	net := buildNet(t, ml.NCHW, false)

	a, err := New(net, WithSeed(42), WithThreads(2))
	require.NoError(t, err)
	b, err := New(net, WithSeed(42), WithThreads(1))
	require.NoError(t, err)

	x := input(net.Input)
	ya, err := a.Forward(t.Context(), x)
	require.NoError(t, err)
	yb, err := b.Forward(t.Context(), x)
	require.NoError(t, err)

	assert.Equal(t, ml.Shape{3, 5}, ya.Shape)
	assert.Equal(t, ya.Data, yb.Data)

	c, err := New(net, WithSeed(43))
	require.NoError(t, err)
	yc, err := c.Forward(t.Context(), x)
	require.NoError(t, err)
	assert.NotEqual(t, ya.Data, yc.Data)
}

func TestForwardNHWC(t *testing.T) {
	nchw := buildNet(t, ml.NCHW, false)
	nhwc := buildNet(t, ml.NHWC, false)

	a, err := New(nchw, WithSeed(7))
	require.NoError(t, err)
	b, err := New(nhwc, WithSeed(7))
	require.NoError(t, err)

	x := input(nchw.Input)
	ya, err := a.Forward(t.Context(), x)
	require.NoError(t, err)
	yb, err := b.Forward(t.Context(), x.TransposeNHWC())
	require.NoError(t, err)

	require.Equal(t, ya.Shape, yb.Shape)
	for i := range ya.Data {
		assert.InDelta(t, ya.Data[i], yb.Data[i], 1e-5)
	}
}

func TestForwardKnownWeights(t *testing.T) {
	b := convnet.NewBuilder(ml.Shape{2, 1, 2, 2}, ml.NCHW, false)
	b.Reshape([]int{-1, 4})
	b.Affine(1, convnet.WithActivation(nn.ActivationLinear), convnet.WithBias(0.5))
	net, err := b.Network()
	require.NoError(t, err)

	e, err := New(net)
	require.NoError(t, err)
	w, ok := e.Weights("affine0")
	require.True(t, ok)
	nn.Constant(w.Data, 1)

	x, err := ml.FromSlice([]float32{1, 2, 3, 4, -1, -1, -1, -1}, 2, 1, 2, 2)
	require.NoError(t, err)
	y, err := e.Forward(t.Context(), x)
	require.NoError(t, err)
	assert.Equal(t, []float32{10.5, -3.5}, y.Data)

	_, ok = e.Weights("reshape0")
	assert.False(t, ok)
}

func TestForwardErrors(t *testing.T) {
	net := buildNet(t, ml.NCHW, false)
	e, err := New(net)
	require.NoError(t, err)

	_, err = e.Forward(t.Context(), ml.NewTensor(1, 2, 4, 4))
	assert.ErrorIs(t, err, ErrInputShape)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = e.Forward(ctx, input(net.Input))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = New(net, WithThreads(-1))
	assert.Error(t, err)
	_, err = New(net, WithDType(ml.DTypeOther))
	assert.Error(t, err)
}

func TestDropoutPhase(t *testing.T) {
	infer := buildNet(t, ml.NCHW, false)
	train := buildNet(t, ml.NCHW, true)

	a, err := New(infer, WithSeed(1))
	require.NoError(t, err)
	b, err := New(train, WithSeed(1))
	require.NoError(t, err)

	x := input(infer.Input)
	y1, err := a.Forward(t.Context(), x)
	require.NoError(t, err)
	y2, err := a.Forward(t.Context(), x)
	require.NoError(t, err)
	assert.Equal(t, y1.Data, y2.Data)

	// dropout draws from the engine's generator, so repeated training
	// passes differ
	z1, err := b.Forward(t.Context(), x)
	require.NoError(t, err)
	z2, err := b.Forward(t.Context(), x)
	require.NoError(t, err)
	assert.NotEqual(t, z1.Data, z2.Data)
}

func TestDType(t *testing.T) {
	net := buildNet(t, ml.NCHW, false)
	e, err := New(net, WithDType(ml.DTypeF16), WithSeed(3))
	require.NoError(t, err)
	assert.Equal(t, ml.DTypeF16, e.DType())

	w, _ := e.Weights("conv0")
	q := w.Clone()
	q.Quantize(ml.DTypeF16)
	assert.Equal(t, q.Data, w.Data)
}

func TestLossAndPredict(t *testing.T) {
	net := buildNet(t, ml.NCHW, false)
	e, err := New(net)
	require.NoError(t, err)

	logits, err := ml.FromSlice([]float32{0, 5, 0, 0, 0, 3, 0, 0, 0, 0, 0, 0, 0, 0, 0}, 3, 5)
	require.NoError(t, err)

	loss, err := e.Loss(logits, []int{1, 0, 4})
	require.NoError(t, err)
	assert.Greater(t, loss, 0.0)

	_, err = e.Loss(logits, []int{1})
	assert.Error(t, err)
	_, err = e.Loss(logits, []int{1, 0, 5})
	assert.Error(t, err)

	assert.Equal(t, []int{1, 0, 0}, Predict(logits))

	p := Probabilities(logits)
	var sum float32
	for _, v := range p.Data[10:] {
		sum += v
	}
	assert.InDelta(t, 1, sum, 1e-6)
}

func TestLayerTiming(t *testing.T) {
	net := buildNet(t, ml.NCHW, false)

	e, err := New(net)
	require.NoError(t, err)
	assert.Empty(t, e.Timings())

	e, err = New(net, WithLayerTiming(true))
	require.NoError(t, err)
	x := input(net.Input)
	for range 3 {
		_, err := e.Forward(t.Context(), x)
		require.NoError(t, err)
	}

	timings := e.Timings()
	require.Len(t, timings, len(net.Layers))
	assert.Equal(t, "conv0", timings[0].Name)
	for _, lt := range timings {
		assert.Equal(t, 3, lt.Calls)
	}

	e.ResetTimings()
	assert.Zero(t, e.Timings()[0].Calls)
	assert.Zero(t, e.Timings()[0].Mean())
}

func TestForwardNHWCReshape(t *testing.T) {
	build := func(reshape bool) *convnet.Network {
		b := convnet.NewBuilder(ml.Shape{1, 3, 3, 2}, ml.NHWC, false)
		if reshape {
			b.Reshape([]int{1, 3, 3, 2})
		}
		b.Conv(2, 1, 1, convnet.WithActivation(nn.ActivationLinear))
		net, err := b.Network()
		require.NoError(t, err)
		return net
	}

	plain, reshaped := build(false), build(true)
	a, err := New(plain, WithSeed(3))
	require.NoError(t, err)
	b, err := New(reshaped, WithSeed(3))
	require.NoError(t, err)

	x := input(plain.Input)
	ya, err := a.Forward(t.Context(), x)
	require.NoError(t, err)
	yb, err := b.Forward(t.Context(), x)
	require.NoError(t, err)

	assert.Equal(t, reshaped.Output, yb.Shape)
	require.Equal(t, ya.Shape, yb.Shape)
	for i := range ya.Data {
		assert.InDelta(t, ya.Data[i], yb.Data[i], 1e-6)
	}
}
