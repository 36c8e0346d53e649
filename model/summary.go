package model

import (
	"github.com/cnnbench/cnnbench/convnet"
	"github.com/cnnbench/cnnbench/ml"
)

// Summary describes a built network for display and the API.
type Summary struct {
	Name            string         `json:"name" yaml:"name"`
	ImageSize       int            `json:"image_size" yaml:"image_size"`
	BatchSize       int            `json:"batch_size" yaml:"batch_size"`
	LearningRate    float64        `json:"learning_rate" yaml:"learning_rate"`
	DataFormat      ml.DataFormat  `json:"data_format" yaml:"data_format"`
	PhaseTrain      bool           `json:"phase_train" yaml:"phase_train"`
	Input           ml.Shape       `json:"input" yaml:"input,flow"`
	Output          ml.Shape       `json:"output" yaml:"output,flow"`
	Params          int64          `json:"params" yaml:"params"`
	FLOPs           int64          `json:"flops" yaml:"flops"`
	ParamBytes      int64          `json:"param_bytes" yaml:"param_bytes"`
	ActivationBytes int64          `json:"activation_bytes" yaml:"activation_bytes"`
	Counts          map[string]int `json:"counts" yaml:"counts"`
	Layers          []LayerSummary `json:"layers,omitempty" yaml:"layers,omitempty"`
}

type LayerSummary struct {
	Name   string       `json:"name" yaml:"name"`
	Kind   convnet.Kind `json:"kind" yaml:"kind"`
	Output ml.Shape     `json:"output" yaml:"output,flow"`
	Params int64        `json:"params" yaml:"params"`
	FLOPs  int64        `json:"flops" yaml:"flops"`
}

// Summarize reports m's hyperparameters together with the analytic size of
// net, which must have been built from m. Layers are included when
// withLayers is set.
func Summarize(m Model, net *convnet.Network, dtype ml.DType, withLayers bool) Summary {
	s := SummarizeNetwork(net, dtype, withLayers)
	s.Name = m.Name()
	s.ImageSize = m.ImageSize()
	s.LearningRate = m.LearningRate(0, net.BatchSize())
	return s
}

// SummarizeNetwork reports the analytic size of a network with no model
// behind it, such as one rebuilt from a definition. The image size is read
// from the input shape and the learning rate is left zero.
func SummarizeNetwork(net *convnet.Network, dtype ml.DType, withLayers bool) Summary {
	s := Summary{
		Name:            net.Name,
		BatchSize:       net.BatchSize(),
		DataFormat:      net.Format,
		PhaseTrain:      net.PhaseTrain,
		Input:           net.Input,
		Output:          net.Output,
		Params:          net.Params(),
		FLOPs:           net.FLOPs(),
		ParamBytes:      net.ParamBytes(dtype),
		ActivationBytes: net.ActivationBytes(dtype),
		Counts:          make(map[string]int),
	}
	if len(net.Input) == 4 {
		_, _, s.ImageSize, _ = net.Format.Dims(net.Input)
	}

	for _, c := range net.Counts() {
		s.Counts[string(c.Kind)] = c.Count
	}

	if withLayers {
		for _, l := range net.Layers {
			s.Layers = append(s.Layers, LayerSummary{
				Name:   l.Name,
				Kind:   l.Spec.Kind,
				Output: l.Out,
				Params: l.Params(),
				FLOPs:  l.FLOPs(net.Format),
			})
		}
	}
	return s
}
