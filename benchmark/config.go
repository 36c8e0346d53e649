// Package benchmark measures forward-pass latency and throughput of the
// registered models on the CPU engine and reports the results.
package benchmark

import (
	"errors"
	"fmt"

	"github.com/cnnbench/cnnbench/envconfig"
	"github.com/cnnbench/cnnbench/ml"
)

var (
	ErrInvalidIterations = errors.New("benchmark: iterations must be positive")
	ErrInvalidBatchSize  = errors.New("benchmark: batch sizes must be positive")
)

// Config describes one benchmark run. Every batch size is measured
// separately.
type Config struct {
	Iterations  int           `json:"iterations" yaml:"iterations"`
	WarmupRuns  int           `json:"warmup_runs" yaml:"warmup_runs"`
	BatchSizes  []int         `json:"batch_sizes" yaml:"batch_sizes,flow"`
	Threads     int           `json:"threads" yaml:"threads"`
	DType       string        `json:"dtype" yaml:"dtype"`
	DataFormat  ml.DataFormat `json:"data_format" yaml:"data_format"`
	NumClasses  int           `json:"num_classes" yaml:"num_classes"`
	Seed        uint64        `json:"seed" yaml:"seed"`
	DryRun      bool          `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	LayerTiming bool          `json:"layer_timing,omitempty" yaml:"layer_timing,omitempty"`
}

// DefaultConfig returns a short run at batch size 1 with the environment's
// thread count, dtype, layout and seed.
func DefaultConfig() Config {
	format, err := ml.ParseDataFormat(envconfig.DataFormat())
	if err != nil {
		format = ml.NCHW
	}
	return Config{
		Iterations: 10,
		WarmupRuns: 2,
		BatchSizes: []int{1},
		Threads:    envconfig.NumThreads(),
		DType:      envconfig.DType(),
		DataFormat: format,
		NumClasses: int(envconfig.NumClasses()),
		Seed:       envconfig.Seed(),
	}
}

func (c Config) Validate() error {
	if !c.DryRun && c.Iterations <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIterations, c.Iterations)
	}
	if c.WarmupRuns < 0 {
		return fmt.Errorf("benchmark: warmup runs must not be negative: %d", c.WarmupRuns)
	}
	if len(c.BatchSizes) == 0 {
		return fmt.Errorf("%w: none given", ErrInvalidBatchSize)
	}
	for _, n := range c.BatchSizes {
		if n <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidBatchSize, n)
		}
	}
	if c.Threads <= 0 {
		return fmt.Errorf("benchmark: threads must be positive: %d", c.Threads)
	}
	if _, err := ml.ParseDType(c.DType); err != nil {
		return err
	}
	if _, err := ml.ParseDataFormat(string(c.DataFormat)); err != nil {
		return err
	}
	if c.NumClasses <= 0 {
		return fmt.Errorf("benchmark: num classes must be positive: %d", c.NumClasses)
	}
	return nil
}
