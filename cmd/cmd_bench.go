// cmd_bench.go - Bench Command, lokal oder gegen einen Server
// Hauptfunktionen: BenchHandler, benchConfig, benchRemote, record
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/emirpasic/gods/v2/lists/arraylist"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cnnbench/cnnbench/api"
	"github.com/cnnbench/cnnbench/benchmark"
	"github.com/cnnbench/cnnbench/convnet"
	"github.com/cnnbench/cnnbench/envconfig"
	"github.com/cnnbench/cnnbench/ml"
	"github.com/cnnbench/cnnbench/model"
	"github.com/cnnbench/cnnbench/store"
)

func newBenchCmd() *cobra.Command {
	benchCmd := &cobra.Command{
		Use:   "bench [MODEL...]",
		Short: "Benchmark forward passes of one or more models",
		Long: "Benchmark forward passes of the given models, or of every registered model when none is named.\n" +
			"With --definition the network in an exported definition file is benchmarked instead.",
		RunE: BenchHandler,
	}

	defaults := benchmark.DefaultConfig()
	benchCmd.Flags().Int("iterations", defaults.Iterations, "Timed forward passes per batch size")
	benchCmd.Flags().Int("warmup", defaults.WarmupRuns, "Untimed forward passes before measuring")
	benchCmd.Flags().IntSlice("batch-sizes", defaults.BatchSizes, "Batch sizes to benchmark")
	benchCmd.Flags().Int("threads", 0, "CPU workers (default from CNNBENCH_NUM_THREADS)")
	benchCmd.Flags().String("dtype", "", "Parameter storage: f32, f16 or bf16 (default from CNNBENCH_DTYPE)")
	benchCmd.Flags().String("data-format", "", "Tensor layout, NCHW or NHWC (default from CNNBENCH_DATA_FORMAT)")
	benchCmd.Flags().Int("num-classes", 0, "Classifier width (default from CNNBENCH_NUM_CLASSES)")
	benchCmd.Flags().String("definition", "", "Benchmark the network in this exported definition file")
	benchCmd.Flags().String("image", "", "Benchmark on this image instead of synthetic data")
	benchCmd.Flags().Bool("dry-run", false, "Only report parameters, FLOPs and memory")
	benchCmd.Flags().Bool("layer-timing", false, "Time every layer")
	benchCmd.Flags().String("sort", "", "Order results by throughput or latency")
	benchCmd.Flags().String("format", "", "Output format: table, markdown, csv or json (default table, json when piped)")
	benchCmd.Flags().StringP("output", "o", "", "Also write the report to this file; the extension selects the format")
	benchCmd.Flags().Bool("remote", false, "Run on the server at CNNBENCH_HOST")
	return benchCmd
}

// benchConfig applies the flags that were set to the environment defaults.
func benchConfig(cmd *cobra.Command) (benchmark.Config, error) {
	cfg := benchmark.DefaultConfig()
	flags := cmd.Flags()

	cfg.Iterations, _ = flags.GetInt("iterations")
	cfg.WarmupRuns, _ = flags.GetInt("warmup")
	cfg.BatchSizes, _ = flags.GetIntSlice("batch-sizes")
	cfg.DryRun, _ = flags.GetBool("dry-run")
	cfg.LayerTiming, _ = flags.GetBool("layer-timing")

	if n, _ := flags.GetInt("threads"); n > 0 {
		cfg.Threads = n
	}
	if s, _ := flags.GetString("dtype"); s != "" {
		cfg.DType = strings.ToLower(s)
	}
	if s, _ := flags.GetString("data-format"); s != "" {
		f, err := ml.ParseDataFormat(s)
		if err != nil {
			return cfg, err
		}
		cfg.DataFormat = f
	}
	if flags.Changed("num-classes") {
		cfg.NumClasses, _ = flags.GetInt("num-classes")
	}
	return cfg, cfg.Validate()
}

// outputFormat picks the report format for w: the --format flag when set,
// otherwise a table for terminals and JSON for pipes.
func outputFormat(cmd *cobra.Command, w io.Writer) string {
	if f, _ := cmd.Flags().GetString("format"); f != "" {
		return f
	}
	if f, ok := w.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return "json"
	}
	return "table"
}

func formatForPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json", nil
	case ".md", ".markdown":
		return "markdown", nil
	case ".csv":
		return "csv", nil
	case ".txt":
		return "table", nil
	default:
		return "", fmt.Errorf("cannot infer report format from %q", path)
	}
}

// BenchHandler runs the benchmark locally or on a server and prints the
// report.
func BenchHandler(cmd *cobra.Command, args []string) error {
	cfg, err := benchConfig(cmd)
	if err != nil {
		return err
	}

	defPath, _ := cmd.Flags().GetString("definition")
	var def *convnet.Definition
	if defPath != "" {
		if len(args) > 0 {
			return errors.New("model names cannot be combined with --definition")
		}
		for _, name := range []string{"data-format", "num-classes"} {
			if cmd.Flags().Changed(name) {
				return fmt.Errorf("--%s cannot be combined with --definition", name)
			}
		}
		if def, err = convnet.ReadDefinitionFile(defPath); err != nil {
			return err
		}
	}

	names := uniqueNames(args)
	if len(names) == 0 && def == nil {
		names = model.List()
	}

	outPath, _ := cmd.Flags().GetString("output")
	outFormat := ""
	if outPath != "" {
		if outFormat, err = formatForPath(outPath); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var report *benchmark.Report
	var runErr error
	if remote, _ := cmd.Flags().GetBool("remote"); remote {
		report, runErr = benchRemote(cmd, names, def, cfg)
	} else {
		var input benchmark.Input = benchmark.SyntheticInput{Seed: cfg.Seed}
		if path, _ := cmd.Flags().GetString("image"); path != "" {
			if input, err = benchmark.LoadImageInput(path); err != nil {
				return err
			}
		}

		if def != nil {
			report, runErr = benchmark.RunDefinitionReport(ctx, def, cfg, input)
		} else {
			report, runErr = benchmark.RunReport(ctx, names, cfg, input)
		}
		if report != nil && len(report.Results) > 0 && !envconfig.NoRecord() {
			if err := record(cmd, report); err != nil {
				slog.Warn("could not record benchmark run", "error", err)
			}
		}
	}
	if report == nil {
		return runErr
	}

	switch s, _ := cmd.Flags().GetString("sort"); s {
	case "":
	case "throughput":
		benchmark.SortByThroughput(report.Results)
	case "latency":
		benchmark.SortByLatency(report.Results)
	default:
		return fmt.Errorf("unknown sort order %q", s)
	}

	out := cmd.OutOrStdout()
	if err := report.Write(out, outputFormat(cmd, out)); err != nil {
		return err
	}

	if outPath != "" {
		if err := report.Export(outPath, outFormat); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "report written to %s\n", outPath)
	}
	return runErr
}

// uniqueNames drops repeated model names, keeping the first occurrence.
func uniqueNames(args []string) []string {
	names := arraylist.New[string]()
	for _, name := range args {
		if !names.Contains(name) {
			names.Add(name)
		}
	}
	return names.Values()
}

func benchRemote(cmd *cobra.Command, names []string, def *convnet.Definition, cfg benchmark.Config) (*benchmark.Report, error) {
	if path, _ := cmd.Flags().GetString("image"); path != "" {
		return nil, errors.New("--image is not supported with --remote")
	}

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, err
	}
	if err := client.Heartbeat(cmd.Context()); err != nil {
		return nil, fmt.Errorf("cnnbench server not responding at %s: %w", envconfig.Host(), err)
	}

	// the server picks its own thread count unless one was asked for
	threads := 0
	if cmd.Flags().Changed("threads") {
		threads = cfg.Threads
	}

	return client.Bench(cmd.Context(), &api.BenchRequest{
		Models:      names,
		Definition:  def,
		BatchSizes:  cfg.BatchSizes,
		Iterations:  cfg.Iterations,
		WarmupRuns:  &cfg.WarmupRuns,
		Threads:     threads,
		DataFormat:  string(cfg.DataFormat),
		DType:       cfg.DType,
		NumClasses:  cfg.NumClasses,
		Seed:        &cfg.Seed,
		DryRun:      cfg.DryRun,
		LayerTiming: cfg.LayerTiming,
		Record:      !envconfig.NoRecord(),
	})
}

func record(cmd *cobra.Command, report *benchmark.Report) error {
	st, err := store.Open(store.DefaultPath())
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SaveReport(cmd.Context(), report); err != nil {
		return err
	}
	slog.Debug("recorded benchmark run", "id", report.ID, "path", store.DefaultPath())
	return nil
}
