// cmd_list.go - List Command
// Hauptfunktionen: ListHandler
package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cnnbench/cnnbench/format"
	"github.com/cnnbench/cnnbench/model"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list [PREFIX]",
		Aliases: []string{"ls"},
		Short:   "List registered models",
		Args:    cobra.MaximumNArgs(1),
		RunE:    ListHandler,
	}
}

// ListHandler prints every registered model whose name starts with the
// optional prefix.
func ListHandler(cmd *cobra.Command, args []string) error {
	var data [][]string

	for _, name := range model.List() {
		if len(args) > 0 && !strings.HasPrefix(strings.ToLower(name), strings.ToLower(args[0])) {
			continue
		}

		m, err := model.New(name)
		if err != nil {
			return err
		}

		net, err := model.BuildNetwork(m)
		if err != nil {
			return err
		}

		data = append(data, []string{
			name,
			fmt.Sprintf("%dx%d", m.ImageSize(), m.ImageSize()),
			strconv.Itoa(m.BatchSize()),
			strconv.FormatFloat(m.LearningRate(0, m.BatchSize()), 'g', -1, 64),
			strconv.Itoa(len(net.Layers)),
			format.HumanNumber(uint64(net.Params())),
		})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"NAME", "IMAGE", "BATCH", "LR", "LAYERS", "PARAMS"})
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
