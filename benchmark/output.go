// MODUL: output
// ZWECK: Ausgabe von Reports als Tabelle, Markdown und CSV
// INPUT: Report bzw. Ergebnisse
// OUTPUT: formatierter Text auf io.Writer
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: tablewriter, golang.org/x/text/message

package benchmark

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/cnnbench/cnnbench/format"
)

var printer = message.NewPrinter(language.English)

// WriteConsole prints the results as aligned tables.
func (r *Report) WriteConsole(w io.Writer) error {
	fmt.Fprintf(w, "run %s  %s\n", r.ID, r.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "%s/%s, %d cores, %s", r.System.OS, r.System.Arch, r.System.CPUCores, r.System.GoVersion)
	if len(r.System.Features) > 0 {
		fmt.Fprintf(w, " [%s]", strings.Join(r.System.Features, " "))
	}
	fmt.Fprint(w, "\n\n")

	if len(r.Results) == 0 {
		fmt.Fprintln(w, "no results")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"MODEL", "BATCH", "PARAMS", "FLOPS", "AVG", "P95", "THROUGHPUT", "GFLOP/S"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	for _, res := range r.Results {
		row := []string{
			res.Model,
			strconv.Itoa(res.BatchSize),
			printer.Sprintf("%d", res.Params),
			format.HumanFLOPs(float64(res.FLOPs)),
		}
		if res.DryRun {
			row = append(row, "-", "-", "-", "-")
		} else {
			row = append(row,
				format.HumanDuration(res.AvgLatency),
				format.HumanDuration(res.P95Latency),
				fmt.Sprintf("%.1f img/s", res.Throughput),
				fmt.Sprintf("%.1f", res.GFLOPS),
			)
		}
		table.Append(row)
	}
	table.Render()

	for _, res := range r.Results {
		if len(res.Layers) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s batch %d per layer\n", res.Model, res.BatchSize)
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"LAYER", "MEAN", "SHARE"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetHeaderLine(false)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		for _, l := range res.Layers {
			share := 0.0
			if res.AvgLatency > 0 {
				share = float64(l.Mean()) / float64(res.AvgLatency) * 100
			}
			table.Append([]string{l.Name, format.HumanDuration(l.Mean()), fmt.Sprintf("%.1f%%", share)})
		}
		table.Render()
	}

	if len(r.Comparisons) > 0 {
		fmt.Fprintln(w)
		for _, c := range r.Comparisons {
			fmt.Fprintf(w, "batch %d: %s %.2fx\n", c.BatchSize, c.Model, c.Relative)
		}
	}

	if r.Summary.Fastest != "" {
		fmt.Fprintf(w, "\nfastest: %s at %.1f img/s\n", r.Summary.Fastest, r.Summary.BestThroughput)
	}
	return nil
}

// WriteMarkdown renders the report as a Markdown document.
func (r *Report) WriteMarkdown(w io.Writer) error {
	fmt.Fprintf(w, "# Benchmark %s\n\n", r.ID)
	fmt.Fprintf(w, "- **Date:** %s\n", r.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "- **System:** %s/%s, %d cores\n", r.System.OS, r.System.Arch, r.System.CPUCores)
	if len(r.System.Features) > 0 {
		fmt.Fprintf(w, "- **CPU features:** %s\n", strings.Join(r.System.Features, ", "))
	}
	fmt.Fprintf(w, "- **Input:** %s\n\n", r.Input)

	fmt.Fprintln(w, "| Model | Batch | Params | FLOPs | Avg | P95 | Throughput | GFLOP/s |")
	fmt.Fprintln(w, "|-------|-------|--------|-------|-----|-----|------------|---------|")
	for _, res := range r.Results {
		fmt.Fprintf(w, "| %s | %d | %s | %s | %s | %s | %.1f img/s | %.1f |\n",
			res.Model, res.BatchSize,
			format.HumanNumber(uint64(res.Params)),
			format.HumanFLOPs(float64(res.FLOPs)),
			format.HumanDuration(res.AvgLatency),
			format.HumanDuration(res.P95Latency),
			res.Throughput, res.GFLOPS)
	}

	if len(r.Comparisons) > 0 {
		fmt.Fprint(w, "\n## Comparison\n\n")
		fmt.Fprintln(w, "| Batch | Model | Relative |")
		fmt.Fprintln(w, "|-------|-------|----------|")
		for _, c := range r.Comparisons {
			fmt.Fprintf(w, "| %d | %s | %.2fx |\n", c.BatchSize, c.Model, c.Relative)
		}
	}
	return nil
}

var csvHeader = []string{
	"model", "batch_size", "image_size", "data_format", "dtype", "threads", "iterations",
	"params", "flops", "avg_latency_ms", "min_latency_ms", "max_latency_ms", "p50_latency_ms",
	"p95_latency_ms", "throughput_img_s", "gflops", "alloc_per_pass",
}

// WriteCSV writes one semicolon separated row per result.
func WriteCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	ms := func(d time.Duration) string {
		return strconv.FormatFloat(float64(d.Microseconds())/1000, 'f', 3, 64)
	}
	for _, r := range results {
		row := []string{
			r.Model,
			strconv.Itoa(r.BatchSize),
			strconv.Itoa(r.ImageSize),
			string(r.DataFormat),
			r.DType,
			strconv.Itoa(r.Threads),
			strconv.Itoa(r.Iterations),
			strconv.FormatInt(r.Params, 10),
			strconv.FormatInt(r.FLOPs, 10),
			ms(r.AvgLatency),
			ms(r.MinLatency),
			ms(r.MaxLatency),
			ms(r.P50Latency),
			ms(r.P95Latency),
			strconv.FormatFloat(r.Throughput, 'f', 2, 64),
			strconv.FormatFloat(r.GFLOPS, 'f', 2, 64),
			strconv.FormatUint(r.AllocPerPass, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
