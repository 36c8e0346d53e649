// Package model defines the interface every benchmark model implements, a
// shared base for the common hyperparameters, and the registry models add
// themselves to.
package model

import (
	"github.com/cnnbench/cnnbench/convnet"
)

// Model describes one network architecture together with the training
// hyperparameters it is benchmarked with.
type Model interface {
	Name() string
	ImageSize() int
	BatchSize() int
	SetBatchSize(int)

	// LearningRate returns the rate to use at globalStep for a given batch
	// size.
	LearningRate(globalStep int64, batchSize int) float64

	// AddInference appends the model's layers to cnn. The final classifier
	// is added by BuildNetwork.
	AddInference(cnn *convnet.Builder)
}

// Validator is implemented by models that can check their own
// configuration before a network is built.
type Validator interface {
	Validate() error
}

// Base implements everything in Model except AddInference. Models embed it.
type Base struct {
	name         string
	imageSize    int
	batchSize    int
	learningRate float64
}

func NewBase(name string, imageSize, batchSize int, learningRate float64) Base {
	return Base{
		name:         name,
		imageSize:    imageSize,
		batchSize:    batchSize,
		learningRate: learningRate,
	}
}

func (m *Base) Name() string { return m.name }

func (m *Base) ImageSize() int { return m.imageSize }

func (m *Base) BatchSize() int { return m.batchSize }

func (m *Base) SetBatchSize(n int) { m.batchSize = n }

// LearningRate is constant for the models built on Base.
func (m *Base) LearningRate(int64, int) float64 { return m.learningRate }
