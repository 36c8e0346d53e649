// cmd_show.go - Show und Export Commands, Netzwerk-Zusammenfassung
// Hauptfunktionen: ShowHandler, ExportHandler, showInfo, definitionNetwork
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/cnnbench/cnnbench/convnet"
	"github.com/cnnbench/cnnbench/envconfig"
	"github.com/cnnbench/cnnbench/format"
	"github.com/cnnbench/cnnbench/ml"
	"github.com/cnnbench/cnnbench/model"
)

var printer = message.NewPrinter(language.English)

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().Int("batch-size", 0, "Batch size (default: the model's own)")
	cmd.Flags().String("data-format", "", "Tensor layout, NCHW or NHWC (default from CNNBENCH_DATA_FORMAT)")
	cmd.Flags().Int("num-classes", 0, "Classifier width (default from CNNBENCH_NUM_CLASSES)")
	cmd.Flags().Bool("train", false, "Build the training phase network (dropout enabled)")
}

// buildOptions turns the flags added by addBuildFlags into model options.
// Unset flags keep the environment defaults.
func buildOptions(cmd *cobra.Command) ([]model.Option, error) {
	var opts []model.Option

	batchSize, err := cmd.Flags().GetInt("batch-size")
	if err != nil {
		return nil, err
	}
	if batchSize < 0 {
		return nil, fmt.Errorf("%w: %d", model.ErrInvalidBatchSize, batchSize)
	}
	if batchSize > 0 {
		opts = append(opts, model.WithBatchSize(batchSize))
	}

	if s, _ := cmd.Flags().GetString("data-format"); s != "" {
		f, err := ml.ParseDataFormat(s)
		if err != nil {
			return nil, err
		}
		opts = append(opts, model.WithDataFormat(f))
	}

	if cmd.Flags().Changed("num-classes") {
		n, _ := cmd.Flags().GetInt("num-classes")
		opts = append(opts, model.WithNumClasses(n))
	}

	if train, _ := cmd.Flags().GetBool("train"); train {
		opts = append(opts, model.WithPhaseTrain(true))
	}
	return opts, nil
}

func newShowCmd() *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show [MODEL]",
		Short: "Show the layers and size of a model",
		Args:  cobra.MaximumNArgs(1),
		RunE:  ShowHandler,
	}

	addBuildFlags(showCmd)
	showCmd.Flags().String("definition", "", "Show the network in this exported definition file instead of a model")
	showCmd.Flags().String("format", "table", "Output format: table, json or yaml")
	showCmd.Flags().BoolP("verbose", "v", false, "Show every layer")
	return showCmd
}

func newExportCmd() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export MODEL",
		Short: "Export the layer definition of a model",
		Args:  cobra.ExactArgs(1),
		RunE:  ExportHandler,
	}

	addBuildFlags(exportCmd)
	exportCmd.Flags().StringP("output", "o", "", "Write to a file; .json, .yaml or .yml selects the format")
	exportCmd.Flags().String("format", "yaml", "Output format when writing to stdout: json or yaml")
	return exportCmd
}

// definitionFlagConflicts lists the build flags a definition file already
// fixes.
var definitionFlagConflicts = []string{"data-format", "num-classes", "train"}

// definitionNetwork rebuilds the network in the file named by --definition.
// Only --batch-size may override it.
func definitionNetwork(cmd *cobra.Command, path string) (*convnet.Network, error) {
	for _, name := range definitionFlagConflicts {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			return nil, fmt.Errorf("--%s cannot be combined with --definition", name)
		}
	}

	d, err := convnet.ReadDefinitionFile(path)
	if err != nil {
		return nil, err
	}

	if n, _ := cmd.Flags().GetInt("batch-size"); n < 0 {
		return nil, fmt.Errorf("%w: %d", model.ErrInvalidBatchSize, n)
	} else if n > 0 {
		d = d.WithBatchSize(n)
	}
	return d.Build()
}

// ShowHandler prints the analytic summary of a model or of a definition
// file.
func ShowHandler(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("definition")
	if (path == "") == (len(args) == 0) {
		return errors.New("show needs either a model name or --definition")
	}

	dtype, err := ml.ParseDType(envconfig.DType())
	if err != nil {
		return err
	}

	var summarize func(withLayers bool) model.Summary
	if path != "" {
		net, err := definitionNetwork(cmd, path)
		if err != nil {
			return err
		}
		summarize = func(withLayers bool) model.Summary {
			return model.SummarizeNetwork(net, dtype, withLayers)
		}
	} else {
		opts, err := buildOptions(cmd)
		if err != nil {
			return err
		}

		m, err := model.New(args[0])
		if err != nil {
			return err
		}

		net, err := model.BuildNetwork(m, opts...)
		if err != nil {
			return err
		}
		summarize = func(withLayers bool) model.Summary {
			return model.Summarize(m, net, dtype, withLayers)
		}
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	out := cmd.OutOrStdout()

	switch f, _ := cmd.Flags().GetString("format"); f {
	case "", "table":
		return showInfo(summarize(true), verbose, out)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summarize(verbose))
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(summarize(verbose)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}

func showInfo(s model.Summary, verbose bool, w io.Writer) error {
	tableRender := func(header string, rows func() [][]string) {
		fmt.Fprintln(w, " ", header)
		table := tablewriter.NewWriter(w)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		table.AppendBulk(rows())
		table.Render()
		fmt.Fprintln(w)
	}

	tableRender("Model", func() (rows [][]string) {
		rows = append(rows, []string{"", "name", s.Name})
		rows = append(rows, []string{"", "image size", fmt.Sprintf("%dx%d", s.ImageSize, s.ImageSize)})
		rows = append(rows, []string{"", "batch size", fmt.Sprint(s.BatchSize)})
		if s.LearningRate > 0 {
			rows = append(rows, []string{"", "learning rate", fmt.Sprint(s.LearningRate)})
		}
		rows = append(rows, []string{"", "data format", string(s.DataFormat)})
		if s.PhaseTrain {
			rows = append(rows, []string{"", "phase", "train"})
		}
		rows = append(rows, []string{"", "input", s.Input.String()})
		rows = append(rows, []string{"", "output", s.Output.String()})
		return
	})

	tableRender("Size", func() (rows [][]string) {
		rows = append(rows, []string{"", "parameters", format.HumanNumber(uint64(s.Params)), printer.Sprintf("%d", s.Params)})
		rows = append(rows, []string{"", "compute", format.HumanFLOPs(float64(s.FLOPs)), "per forward pass"})
		rows = append(rows, []string{"", "weights", format.HumanBytes2(uint64(s.ParamBytes)), ""})
		rows = append(rows, []string{"", "activations", format.HumanBytes2(uint64(s.ActivationBytes)), "f32"})
		return
	})

	tableRender("Layers", func() (rows [][]string) {
		seen := make(map[string]bool)
		for _, l := range s.Layers {
			kind := string(l.Kind)
			if seen[kind] {
				continue
			}
			seen[kind] = true
			rows = append(rows, []string{"", kind, fmt.Sprint(s.Counts[kind])})
		}
		return
	})

	if verbose {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"NAME", "KIND", "OUTPUT", "PARAMS", "FLOPS"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetHeaderLine(false)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		for _, l := range s.Layers {
			table.Append([]string{l.Name, string(l.Kind), l.Output.String(), printer.Sprintf("%d", l.Params), printer.Sprintf("%d", l.FLOPs)})
		}
		table.Render()
	}
	return nil
}

// ExportHandler writes the builder calls of a model as JSON or YAML.
func ExportHandler(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions(cmd)
	if err != nil {
		return err
	}

	m, err := model.New(args[0])
	if err != nil {
		return err
	}

	net, err := model.BuildNetwork(m, opts...)
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		f, _ := cmd.Flags().GetString("format")
		return net.Definition().Encode(cmd.OutOrStdout(), f)
	}

	var f string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		f = "json"
	case ".yaml", ".yml":
		f = "yaml"
	default:
		return errors.New("output file must end in .json, .yaml or .yml")
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := net.Definition().Encode(file, f); err != nil {
		return err
	}
	return file.Close()
}
