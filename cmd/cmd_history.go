// cmd_history.go - History Command fuer gespeicherte Laeufe
// Hauptfunktionen: HistoryHandler, findRun, listRuns
package cmd

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cnnbench/cnnbench/benchmark"
	"github.com/cnnbench/cnnbench/format"
	"github.com/cnnbench/cnnbench/store"
)

func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history [RUN]",
		Short: "List recorded benchmark runs or show one of them",
		Args:  cobra.MaximumNArgs(1),
		RunE:  HistoryHandler,
	}

	historyCmd.Flags().Int("limit", 20, "Number of runs to list, 0 for all")
	historyCmd.Flags().String("model", "", "Only show runs or results of this model")
	historyCmd.Flags().String("format", "table", "Output format for a single run: table, markdown, csv or json")
	historyCmd.Flags().Bool("delete", false, "Delete the given run")
	return historyCmd
}

// HistoryHandler lists runs from the results store. Given a run id (or a
// unique prefix of one) it prints that run's report instead.
func HistoryHandler(cmd *cobra.Command, args []string) error {
	st, err := store.Open(store.DefaultPath())
	if err != nil {
		return err
	}
	defer st.Close()

	modelName, _ := cmd.Flags().GetString("model")

	if len(args) == 0 {
		if del, _ := cmd.Flags().GetBool("delete"); del {
			return errors.New("--delete needs a run id")
		}
		limit, _ := cmd.Flags().GetInt("limit")
		return listRuns(cmd, st, limit, modelName)
	}

	runs, err := st.Runs(cmd.Context(), 0)
	if err != nil {
		return err
	}
	run, err := findRun(runs, args[0])
	if err != nil {
		return err
	}

	if del, _ := cmd.Flags().GetBool("delete"); del {
		if err := st.DeleteRun(cmd.Context(), run.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted run %s\n", run.ID)
		return nil
	}

	results, err := st.Results(cmd.Context(), run.ID)
	if err != nil {
		return err
	}
	if modelName != "" {
		results = benchmark.FilterByModel(results, modelName)
	}

	report := benchmark.NewReport(results, run.Config, run.Input, run.System)
	report.ID = run.ID
	report.Timestamp = run.CreatedAt

	f, _ := cmd.Flags().GetString("format")
	return report.Write(cmd.OutOrStdout(), f)
}

func findRun(runs []store.Run, prefix string) (*store.Run, error) {
	var found *store.Run
	for i := range runs {
		if runs[i].ID == prefix {
			return &runs[i], nil
		}
		if strings.HasPrefix(runs[i].ID, prefix) {
			if found != nil {
				return nil, fmt.Errorf("run id %q is ambiguous", prefix)
			}
			found = &runs[i]
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrRunNotFound, prefix)
	}
	return found, nil
}

func listRuns(cmd *cobra.Command, st *store.Store, limit int, modelName string) error {
	runs, err := st.Runs(cmd.Context(), limit)
	if err != nil {
		return err
	}

	modelsWidth := 40
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 80 {
			modelsWidth = w - 60
		}
	}

	var data [][]string
	for _, run := range runs {
		if modelName != "" && !slices.Contains(run.Models, modelName) {
			continue
		}

		id := run.ID
		if len(id) > 8 {
			id = id[:8]
		}

		data = append(data, []string{
			id,
			format.HumanTime(run.CreatedAt, "Never"),
			runewidth.Truncate(strings.Join(run.Models, ","), modelsWidth, "..."),
			strconv.Itoa(run.Results),
			run.Input,
		})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"ID", "CREATED", "MODELS", "RESULTS", "INPUT"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}
