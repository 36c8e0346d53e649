package model

import (
	"fmt"
	"log/slog"

	"github.com/cnnbench/cnnbench/convnet"
	"github.com/cnnbench/cnnbench/ml"
	"github.com/cnnbench/cnnbench/ml/nn"
)

// BuildNetwork instantiates m on a [batch, 3, image, image] input, appends
// its inference layers and finishes with a linear classifier.
func BuildNetwork(m Model, opts ...Option) (*convnet.Network, error) {
	o := DefaultBuildOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	if o.BatchSize > 0 {
		m.SetBatchSize(o.BatchSize)
	}
	if m.BatchSize() <= 0 {
		return nil, fmt.Errorf("%w: %s has batch size %d", ErrInvalidBatchSize, m.Name(), m.BatchSize())
	}

	if v, ok := m.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("model: %s: %w", m.Name(), err)
		}
	}

	size := m.ImageSize()
	cnn := convnet.NewBuilder(o.DataFormat.Shape4(m.BatchSize(), 3, size, size), o.DataFormat, o.PhaseTrain)
	m.AddInference(cnn)
	cnn.Affine(o.NumClasses, convnet.WithActivation(nn.ActivationLinear))

	net, err := cnn.Network()
	if err != nil {
		return nil, fmt.Errorf("model: build %s: %w", m.Name(), err)
	}
	net.Name = m.Name()

	slog.Debug("built network", "model", m.Name(), "layers", len(net.Layers),
		"input", net.Input, "output", net.Output, "params", net.Params())
	return net, nil
}

// InputShape returns the shape BuildNetwork would feed m.
func InputShape(m Model, format ml.DataFormat) ml.Shape {
	return format.Shape4(m.BatchSize(), 3, m.ImageSize(), m.ImageSize())
}
