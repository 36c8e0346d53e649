package model

import (
	"errors"
	"fmt"

	"github.com/cnnbench/cnnbench/envconfig"
	"github.com/cnnbench/cnnbench/ml"
)

var (
	ErrInvalidBatchSize  = errors.New("model: invalid batch size")
	ErrInvalidNumClasses = errors.New("model: invalid number of classes")
	ErrInvalidDataFormat = errors.New("model: invalid data format")
)

// BuildOptions controls how BuildNetwork instantiates a model.
type BuildOptions struct {
	// BatchSize overrides the model's own batch size when positive.
	BatchSize  int
	DataFormat ml.DataFormat
	NumClasses int
	PhaseTrain bool
}

type Option func(*BuildOptions)

// DefaultBuildOptions reads its defaults from the environment.
func DefaultBuildOptions() BuildOptions {
	format, err := ml.ParseDataFormat(envconfig.DataFormat())
	if err != nil {
		format = ml.NCHW
	}
	return BuildOptions{
		DataFormat: format,
		NumClasses: int(envconfig.NumClasses()),
	}
}

func WithBatchSize(n int) Option {
	return func(o *BuildOptions) { o.BatchSize = n }
}

func WithDataFormat(f ml.DataFormat) Option {
	return func(o *BuildOptions) { o.DataFormat = f }
}

func WithNumClasses(n int) Option {
	return func(o *BuildOptions) { o.NumClasses = n }
}

// WithPhaseTrain builds the network for training, which enables dropout.
func WithPhaseTrain(train bool) Option {
	return func(o *BuildOptions) { o.PhaseTrain = train }
}

func (o BuildOptions) Validate() error {
	if o.BatchSize < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, o.BatchSize)
	}
	if o.NumClasses <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidNumClasses, o.NumClasses)
	}
	if o.DataFormat != ml.NCHW && o.DataFormat != ml.NHWC {
		return fmt.Errorf("%w: %q", ErrInvalidDataFormat, o.DataFormat)
	}
	return nil
}
