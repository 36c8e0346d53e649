package benchmark

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/cnnbench/cnnbench/convnet"
	"github.com/cnnbench/cnnbench/engine"
	"github.com/cnnbench/cnnbench/format"
	"github.com/cnnbench/cnnbench/ml"
	"github.com/cnnbench/cnnbench/model"
)

// ============================================================================
// Datenstrukturen - Ergebnisse
// ============================================================================

// Result holds the measurements of one model at one batch size. Latencies
// are per forward pass over the whole batch.
type Result struct {
	Model      string        `json:"model"`
	BatchSize  int           `json:"batch_size"`
	ImageSize  int           `json:"image_size"`
	DataFormat ml.DataFormat `json:"data_format"`
	DType      string        `json:"dtype"`
	Threads    int           `json:"threads"`
	Iterations int           `json:"iterations"`
	DryRun     bool          `json:"dry_run,omitempty"`

	Params          int64 `json:"params"`
	FLOPs           int64 `json:"flops"`
	ParamBytes      int64 `json:"param_bytes"`
	ActivationBytes int64 `json:"activation_bytes"`

	TotalTime  time.Duration `json:"total_time"`
	AvgLatency time.Duration `json:"avg_latency"`
	MinLatency time.Duration `json:"min_latency"`
	MaxLatency time.Duration `json:"max_latency"`
	P50Latency time.Duration `json:"p50_latency"`
	P95Latency time.Duration `json:"p95_latency"`
	StdDev     time.Duration `json:"std_dev"`
	Throughput float64       `json:"throughput"`
	GFLOPS     float64       `json:"gflops"`

	// AllocPerPass is the heap allocated by one forward pass.
	AllocPerPass uint64  `json:"alloc_per_pass"`
	Loss         float64 `json:"loss"`

	Layers []engine.LayerTiming `json:"layers,omitempty"`
}

// ============================================================================
// Haupt-Benchmark-Funktionen
// ============================================================================

// Run benchmarks the named model from the default registry.
func Run(ctx context.Context, name string, cfg Config, input Input) ([]Result, error) {
	m, err := model.New(name)
	if err != nil {
		return nil, err
	}
	return RunModel(ctx, m, cfg, input)
}

// RunModel benchmarks m at every configured batch size.
func RunModel(ctx context.Context, m model.Model, cfg Config, input Input) ([]Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var results []Result
	for _, batchSize := range cfg.BatchSizes {
		net, err := model.BuildNetwork(m,
			model.WithBatchSize(batchSize),
			model.WithDataFormat(cfg.DataFormat),
			model.WithNumClasses(cfg.NumClasses),
		)
		if err != nil {
			return nil, err
		}

		r, err := runNetwork(ctx, m.Name(), m.ImageSize(), net, cfg, input)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// RunDefinition benchmarks the network described by d at every configured
// batch size. The definition is built as written, so its own data format
// and classifier apply and cfg.DataFormat and cfg.NumClasses are ignored.
func RunDefinition(ctx context.Context, d *convnet.Definition, cfg Config, input Input) ([]Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(d.Input) != 4 {
		return nil, fmt.Errorf("benchmark: definition input must be rank 4, got %v", d.Input)
	}
	_, c, h, w := d.DataFormat.Dims(d.Input)
	if c != 3 || h != w {
		return nil, fmt.Errorf("benchmark: definition input %v is not a square RGB image", d.Input)
	}
	name := cmp.Or(d.Name, "definition")

	var results []Result
	for _, batchSize := range cfg.BatchSizes {
		net, err := d.WithBatchSize(batchSize).Build()
		if err != nil {
			return nil, fmt.Errorf("benchmark: %s batch %d: %w", name, batchSize, err)
		}
		net.Name = name

		r, err := runNetwork(ctx, name, h, net, cfg, input)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func runNetwork(ctx context.Context, name string, imageSize int, net *convnet.Network, cfg Config, input Input) (Result, error) {
	r := analytic(name, imageSize, net, cfg)
	if !cfg.DryRun {
		if err := measure(ctx, &r, net, cfg, input); err != nil {
			return r, fmt.Errorf("benchmark: %s batch %d: %w", name, r.BatchSize, err)
		}
	}

	slog.Info("benchmark", "model", r.Model, "batch", r.BatchSize, "dry_run", r.DryRun,
		"avg", format.HumanDuration(r.AvgLatency), "throughput", fmt.Sprintf("%.1f img/s", r.Throughput))
	return r, nil
}

// analytic fills in everything that follows from the network shape alone.
func analytic(name string, imageSize int, net *convnet.Network, cfg Config) Result {
	dtype, _ := ml.ParseDType(cfg.DType)
	return Result{
		Model:           name,
		BatchSize:       net.BatchSize(),
		ImageSize:       imageSize,
		DataFormat:      net.Format,
		DType:           dtype.String(),
		Threads:         cfg.Threads,
		DryRun:          cfg.DryRun,
		Params:          net.Params(),
		FLOPs:           net.FLOPs(),
		ParamBytes:      net.ParamBytes(dtype),
		ActivationBytes: net.ActivationBytes(ml.DTypeF32),
	}
}

// ============================================================================
// Messung
// ============================================================================

func measure(ctx context.Context, r *Result, net *convnet.Network, cfg Config, input Input) error {
	dtype, _ := ml.ParseDType(cfg.DType)
	e, err := engine.New(net,
		engine.WithThreads(cfg.Threads),
		engine.WithSeed(cfg.Seed),
		engine.WithDType(dtype),
		engine.WithLayerTiming(cfg.LayerTiming),
	)
	if err != nil {
		return err
	}

	x, err := input.Batch(r.BatchSize, r.ImageSize, net.Format)
	if err != nil {
		return err
	}

	for range cfg.WarmupRuns {
		if _, err := e.Forward(ctx, x); err != nil {
			return err
		}
	}
	e.ResetTimings()

	runtime.GC()
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)

	var logits *ml.Tensor
	latencies := make([]time.Duration, 0, cfg.Iterations)
	for range cfg.Iterations {
		start := time.Now()
		logits, err = e.Forward(ctx, x)
		if err != nil {
			return err
		}
		latencies = append(latencies, time.Since(start))
	}

	runtime.ReadMemStats(&after)

	labels := make([]int, r.BatchSize)
	for i := range labels {
		labels[i] = i % logits.Shape[1]
	}
	if r.Loss, err = e.Loss(logits, labels); err != nil {
		return err
	}

	s := calculateStats(latencies)
	r.Iterations = cfg.Iterations
	r.TotalTime = s.total
	r.AvgLatency = s.avg
	r.MinLatency = s.min
	r.MaxLatency = s.max
	r.P50Latency = s.p50
	r.P95Latency = s.p95
	r.StdDev = s.stddev
	if s.avg > 0 {
		r.Throughput = float64(r.BatchSize) / s.avg.Seconds()
		r.GFLOPS = float64(r.FLOPs) / s.avg.Seconds() / 1e9
	}
	r.AllocPerPass = (after.TotalAlloc - before.TotalAlloc) / uint64(cfg.Iterations)
	r.Layers = e.Timings()
	return nil
}

// ============================================================================
// Statistik
// ============================================================================

type latencyStats struct {
	total, avg, min, max, p50, p95, stddev time.Duration
}

func calculateStats(latencies []time.Duration) latencyStats {
	if len(latencies) == 0 {
		return latencyStats{}
	}

	x := make([]float64, len(latencies))
	var total time.Duration
	for i, d := range latencies {
		x[i] = float64(d)
		total += d
	}
	slices.Sort(x)

	return latencyStats{
		total:  total,
		avg:    time.Duration(stat.Mean(x, nil)),
		min:    time.Duration(x[0]),
		max:    time.Duration(x[len(x)-1]),
		p50:    time.Duration(stat.Quantile(0.5, stat.Empirical, x, nil)),
		p95:    time.Duration(stat.Quantile(0.95, stat.Empirical, x, nil)),
		stddev: time.Duration(stddev(x)),
	}
}

func stddev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.StdDev(x, nil)
}
