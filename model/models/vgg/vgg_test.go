package vgg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnnbench/cnnbench/convnet"
	"github.com/cnnbench/cnnbench/ml"
	"github.com/cnnbench/cnnbench/model"
)

func TestVariants(t *testing.T) {
	t.Setenv("CNNBENCH_NUM_CLASSES", "")
	t.Setenv("CNNBENCH_DATA_FORMAT", "")

	cases := []struct {
		name       string
		convLayers int
		params     int64
		fc         int
	}{
		{"vgg11", 8, 132_867_433, 4096},
		{"vgg16", 13, 138_361_641, 4096},
		{"vgg19", 16, 143_671_337, 4096},
		{"vgg19_200mp", 16, 212_571_385, 6000},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			m, err := model.New(tt.name)
			require.NoError(t, err)

			assert.Equal(t, tt.name, m.Name())
			assert.Equal(t, 224, m.ImageSize())
			assert.Equal(t, 64, m.BatchSize())
			assert.Equal(t, 0.005, m.LearningRate(0, 64))

			net, err := model.BuildNetwork(m)
			require.NoError(t, err)

			assert.Equal(t, ml.Shape{64, 3, 224, 224}, net.Input)
			assert.Equal(t, ml.Shape{64, 1001}, net.Output)
			assert.Equal(t, tt.params, net.Params())

			counts := map[convnet.Kind]int{}
			for _, c := range net.Counts() {
				counts[c.Kind] = c.Count
			}
			assert.Equal(t, map[convnet.Kind]int{
				convnet.KindConv:    tt.convLayers,
				convnet.KindMPool:   5,
				convnet.KindReshape: 1,
				convnet.KindAffine:  3,
				convnet.KindDropout: 2,
			}, counts)

			reshape, ok := net.Layer("reshape0")
			require.True(t, ok)
			assert.Equal(t, ml.Shape{64, 512, 7, 7}, reshape.In)
			assert.Equal(t, ml.Shape{64, 25088}, reshape.Out)

			fc, _ := net.Layer("affine1")
			assert.Equal(t, ml.Shape{64, tt.fc}, fc.Out)
		})
	}
}

func TestConvGroups(t *testing.T) {
	m := NewVgg16().(*Model)
	assert.Equal(t, []int{2, 2, 3, 3, 3}, m.ConvLayers())

	net, err := model.BuildNetwork(m, model.WithBatchSize(1), model.WithNumClasses(1000))
	require.NoError(t, err)

	widths := []int{}
	for _, l := range net.Layers {
		if l.Spec.Kind == convnet.KindConv {
			widths = append(widths, l.Spec.Units)
			assert.Equal(t, []int{3, 3}, l.Spec.Kernel)
		}
	}
	assert.Equal(t, []int{64, 64, 128, 128, 256, 256, 256, 512, 512, 512, 512, 512, 512}, widths)

	conv0, _ := net.Layer("conv0")
	assert.Equal(t, int64(2*3*3*3*64*224*224), conv0.FLOPs(net.Format))
	assert.Equal(t, int64(138_357_544), net.Params())

	// every pool halves the spatial size
	for i, size := range []int{112, 56, 28, 14, 7} {
		pool, ok := net.Layer("mpool" + string(rune('0'+i)))
		require.True(t, ok)
		assert.Equal(t, size, pool.Out[2])
	}
}

func TestNHWC(t *testing.T) {
	net, err := model.BuildNetwork(NewVgg11(), model.WithBatchSize(2), model.WithDataFormat(ml.NHWC))
	require.NoError(t, err)

	reshape, _ := net.Layer("reshape0")
	assert.Equal(t, ml.Shape{2, 7, 7, 512}, reshape.In)
	assert.Equal(t, ml.Shape{2, 25088}, reshape.Out)
}

func TestTrainingPhase(t *testing.T) {
	net, err := model.BuildNetwork(NewVgg19(), model.WithBatchSize(1), model.WithPhaseTrain(true))
	require.NoError(t, err)

	for _, name := range []string{"dropout0", "dropout1"} {
		l, ok := net.Layer(name)
		require.True(t, ok)
		assert.Equal(t, float32(0.5), l.Spec.KeepProb)
	}
}

func TestWrongImageSize(t *testing.T) {
	m := NewVgg11().(*Model)
	m.Base = model.NewBase("vgg11", 256, 1, learningRate)

	// the classifier is sized for 224x224 input
	_, err := model.BuildNetwork(m)
	assert.ErrorContains(t, err, "image size 256")

	// the builder rejects the same network when validation is bypassed
	cnn := convnet.NewBuilder(ml.Shape{1, 3, 256, 256}, ml.NCHW, false)
	m.AddInference(cnn)
	_, err = cnn.Network()
	assert.ErrorIs(t, err, convnet.ErrInvalidLayer)
}

func TestValidate(t *testing.T) {
	for _, name := range []string{"vgg11", "vgg16", "vgg19", "vgg19_200mp"} {
		m, err := model.New(name)
		require.NoError(t, err)
		assert.NoError(t, m.(model.Validator).Validate(), name)
	}

	short := newModel("short", []int{1, 1, 2, 2}, [2]int{4096, 4096})
	assert.ErrorContains(t, short.Validate(), "5 conv group counts")
	_, err := model.BuildNetwork(short)
	assert.Error(t, err, "validation runs before construct can panic")

	narrow := newModel("narrow", []int{1, 1, 2, 2, 2}, [2]int{0, 4096})
	assert.ErrorContains(t, narrow.Validate(), "must be positive")
}

func TestConstructGroupCount(t *testing.T) {
	cnn := convnet.NewBuilder(ml.Shape{1, 3, 224, 224}, ml.NCHW, false)
	assert.Panics(t, func() {
		construct(cnn, []int{1, 1, 2, 2}, [2]int{4096, 4096})
	})
}

func TestRegistered(t *testing.T) {
	for _, name := range []string{"vgg11", "vgg16", "vgg19", "vgg19_200mp"} {
		assert.Contains(t, model.List(), name)
	}
}
