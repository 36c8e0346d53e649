// Package vgg provides the VGG-11, VGG-16 and VGG-19 networks (configurations
// A, D and E of Simonyan and Zisserman, arXiv:1409.1556).
package vgg

import (
	"fmt"

	"github.com/cnnbench/cnnbench/convnet"
	"github.com/cnnbench/cnnbench/model"
)

const (
	imageSize    = 224
	batchSize    = 64
	learningRate = 0.005
)

// groupWidths are the filter counts of the five convolution groups.
var groupWidths = [5]int{64, 128, 256, 512, 512}

// construct adds the five conv groups, each closed by a 2x2 max pool, and
// the two dropout-regularised fully connected layers.
func construct(cnn *convnet.Builder, numConvLayers []int, fcLayers [2]int) {
	if len(numConvLayers) != len(groupWidths) {
		panic(fmt.Sprintf("vgg: need %d conv group counts, got %d", len(groupWidths), len(numConvLayers)))
	}

	for i, n := range numConvLayers {
		for range n {
			cnn.Conv(groupWidths[i], 3, 3)
		}
		cnn.MPool(2, 2)
	}
	cnn.Reshape([]int{-1, 512 * 7 * 7})
	cnn.Affine(fcLayers[0])
	cnn.Dropout()
	cnn.Affine(fcLayers[1])
	cnn.Dropout()
}

// Model is one VGG configuration.
type Model struct {
	model.Base

	convLayers []int
	fcLayers   [2]int
}

func (m *Model) AddInference(cnn *convnet.Builder) {
	construct(cnn, m.convLayers, m.fcLayers)
}

// Validate checks that the configuration fits construct: five conv groups,
// positive widths, and the 224x224 input the fixed 512*7*7 reshape needs.
func (m *Model) Validate() error {
	if len(m.convLayers) != len(groupWidths) {
		return fmt.Errorf("vgg: %s: need %d conv group counts, got %d", m.Name(), len(groupWidths), len(m.convLayers))
	}
	if m.ImageSize() != imageSize {
		return fmt.Errorf("vgg: %s: image size %d, the classifier input needs %d", m.Name(), m.ImageSize(), imageSize)
	}
	if m.fcLayers[0] <= 0 || m.fcLayers[1] <= 0 {
		return fmt.Errorf("vgg: %s: fully connected widths must be positive, got %v", m.Name(), m.fcLayers)
	}
	return nil
}

// ConvLayers returns the number of convolutions in each group.
func (m *Model) ConvLayers() []int {
	return append([]int(nil), m.convLayers...)
}

func newModel(name string, convLayers []int, fcLayers [2]int) *Model {
	return &Model{
		Base:       model.NewBase(name, imageSize, batchSize, learningRate),
		convLayers: convLayers,
		fcLayers:   fcLayers,
	}
}

func NewVgg11() model.Model {
	return newModel("vgg11", []int{1, 1, 2, 2, 2}, [2]int{4096, 4096})
}

func NewVgg16() model.Model {
	return newModel("vgg16", []int{2, 2, 3, 3, 3}, [2]int{4096, 4096})
}

func NewVgg19() model.Model {
	return newModel("vgg19", []int{2, 2, 4, 4, 4}, [2]int{4096, 4096})
}

// NewVgg19200MP is VGG-19 with 6000-wide fully connected layers, about
// 200M parameters.
func NewVgg19200MP() model.Model {
	return newModel("vgg19_200mp", []int{2, 2, 4, 4, 4}, [2]int{6000, 6000})
}

func init() {
	model.Register("vgg11", NewVgg11)
	model.Register("vgg16", NewVgg16)
	model.Register("vgg19", NewVgg19)
	model.Register("vgg19_200mp", NewVgg19200MP)
}
