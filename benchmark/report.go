// MODUL: report
// ZWECK: Benchmark-Report mit System-Info, Vergleichen und Zusammenfassung
// INPUT: Ergebnisse, Config, Eingabe-Beschreibung
// OUTPUT: Report (JSON, Datei-Export)
// NEBENEFFEKTE: Dateisystem-Schreibzugriff bei Export
// ABHAENGIGKEITEN: google/uuid, golang.org/x/sys/cpu
// HINWEISE: RunReport und RunDefinitionReport liefern auch bei Teilfehlern einen Report

package benchmark

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/cpu"

	"github.com/cnnbench/cnnbench/convnet"
	"github.com/cnnbench/cnnbench/model"
)

// Report bundles the results of one invocation with the machine they ran on.
type Report struct {
	ID          string       `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	System      SystemInfo   `json:"system"`
	Config      Config       `json:"config"`
	Input       string       `json:"input"`
	Results     []Result     `json:"results"`
	Comparisons []Comparison `json:"comparisons,omitempty"`
	Summary     Summary      `json:"summary"`
}

type SystemInfo struct {
	OS        string   `json:"os"`
	Arch      string   `json:"arch"`
	CPUCores  int      `json:"cpu_cores"`
	GoVersion string   `json:"go_version"`
	Hostname  string   `json:"hostname,omitempty"`
	Features  []string `json:"cpu_features,omitempty"`
}

// Comparison ranks the models measured at one batch size. Relative is the
// throughput divided by that of the slowest model.
type Comparison struct {
	BatchSize int     `json:"batch_size"`
	Model     string  `json:"model"`
	Relative  float64 `json:"relative"`
}

type Summary struct {
	Fastest        string        `json:"fastest,omitempty"`
	BestThroughput float64       `json:"best_throughput"`
	TotalRuns      int           `json:"total_runs"`
	TotalTime      time.Duration `json:"total_time"`
}

// CollectSystemInfo describes the current machine, including the SIMD
// extensions the BLAS kernels may use.
func CollectSystemInfo() SystemInfo {
	host, _ := os.Hostname()
	return SystemInfo{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		CPUCores:  runtime.NumCPU(),
		GoVersion: runtime.Version(),
		Hostname:  host,
		Features:  cpuFeatures(),
	}
}

func cpuFeatures() []string {
	var features []string
	add := func(ok bool, name string) {
		if ok {
			features = append(features, name)
		}
	}

	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE41, "sse4.1")
		add(cpu.X86.HasSSE42, "sse4.2")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasFPHP, "fphp")
		add(cpu.ARM64.HasASIMDHP, "asimdhp")
		add(cpu.ARM64.HasSVE, "sve")
	}
	return features
}

// NewReport stamps results with a fresh run id and derives comparisons and
// a summary.
func NewReport(results []Result, cfg Config, input string, sys SystemInfo) *Report {
	r := &Report{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		System:    sys,
		Config:    cfg,
		Input:     input,
		Results:   results,
	}
	r.Comparisons = compare(results)
	r.Summary = summarize(results)
	return r
}

func compare(results []Result) []Comparison {
	byBatch := make(map[int][]Result)
	for _, r := range results {
		if !r.DryRun && r.Throughput > 0 {
			byBatch[r.BatchSize] = append(byBatch[r.BatchSize], r)
		}
	}

	var out []Comparison
	for batch, group := range byBatch {
		if len(group) < 2 {
			continue
		}
		slowest := slices.MinFunc(group, func(a, b Result) int { return cmp.Compare(a.Throughput, b.Throughput) })
		for _, r := range group {
			out = append(out, Comparison{BatchSize: batch, Model: r.Model, Relative: r.Throughput / slowest.Throughput})
		}
	}

	slices.SortFunc(out, func(a, b Comparison) int {
		return cmp.Or(cmp.Compare(a.BatchSize, b.BatchSize), cmp.Compare(b.Relative, a.Relative))
	})
	return out
}

func summarize(results []Result) Summary {
	s := Summary{TotalRuns: len(results)}
	for _, r := range results {
		s.TotalTime += r.TotalTime
		if r.Throughput > s.BestThroughput {
			s.BestThroughput = r.Throughput
			s.Fastest = r.Model
		}
	}
	return s
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// ReadJSON decodes a report written by WriteJSON.
func ReadJSON(rd io.Reader) (*Report, error) {
	var r Report
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("benchmark: decode report: %w", err)
	}
	return &r, nil
}

// Export writes the report to path in the given format.
func (r *Report) Export(path, format string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := r.Write(f, format); err != nil {
		return err
	}
	return f.Close()
}

// Write renders the report as "table", "markdown", "json" or "csv".
func (r *Report) Write(w io.Writer, format string) error {
	switch format {
	case "", "table":
		return r.WriteConsole(w)
	case "markdown", "md":
		return r.WriteMarkdown(w)
	case "json":
		return r.WriteJSON(w)
	case "csv":
		return WriteCSV(w, r.Results)
	default:
		return fmt.Errorf("benchmark: unknown output format %q", format)
	}
}

func SortByThroughput(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int { return cmp.Compare(b.Throughput, a.Throughput) })
}

func SortByLatency(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int { return cmp.Compare(a.AvgLatency, b.AvgLatency) })
}

func FilterByModel(results []Result, name string) []Result {
	var out []Result
	for _, r := range results {
		if r.Model == name {
			out = append(out, r)
		}
	}
	return out
}

// RunReport benchmarks each named model in turn. A model that fails is
// logged and skipped; its error is joined into the returned error while the
// report still carries the results of the others. Unknown names fail before
// anything runs.
func RunReport(ctx context.Context, names []string, cfg Config, input Input) (*Report, error) {
	models := make([]model.Model, 0, len(names))
	for _, name := range names {
		m, err := model.New(name)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}

	var results []Result
	var errs []error
	for _, m := range models {
		rs, err := RunModel(ctx, m, cfg, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			slog.Warn("benchmark failed", "model", m.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
			continue
		}
		results = append(results, rs...)
	}

	return NewReport(results, cfg, input.String(), CollectSystemInfo()), errors.Join(errs...)
}

// RunDefinitionReport benchmarks the network described by d and wraps the
// results in a report.
func RunDefinitionReport(ctx context.Context, d *convnet.Definition, cfg Config, input Input) (*Report, error) {
	results, err := RunDefinition(ctx, d, cfg, input)
	if err != nil {
		return nil, err
	}
	return NewReport(results, cfg, input.String(), CollectSystemInfo()), nil
}
