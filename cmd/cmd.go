// Package cmd implements the cnnbench command line.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/cnnbench/cnnbench/envconfig"
	"github.com/cnnbench/cnnbench/logutil"
	_ "github.com/cnnbench/cnnbench/model/models"
	"github.com/cnnbench/cnnbench/version"
)

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "cnnbench",
		Short:         "Convolutional network benchmark",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	listCmd := newListCmd()
	showCmd := newShowCmd()
	exportCmd := newExportCmd()
	benchCmd := newBenchCmd()
	historyCmd := newHistoryCmd()
	serveCmd := newServeCmd()
	envCmd := newEnvCmd()

	envVars := envconfig.AsMap()
	buildEnvs := []envconfig.EnvVar{
		envVars["CNNBENCH_DATA_FORMAT"],
		envVars["CNNBENCH_NUM_CLASSES"],
		envVars["CNNBENCH_DTYPE"],
	}

	for _, cmd := range []*cobra.Command{
		listCmd,
		showCmd,
		exportCmd,
		benchCmd,
		historyCmd,
		serveCmd,
	} {
		switch cmd {
		case benchCmd:
			appendEnvDocs(cmd, slices.Concat(buildEnvs, []envconfig.EnvVar{
				envVars["CNNBENCH_DEBUG"],
				envVars["CNNBENCH_HOST"],
				envVars["CNNBENCH_HOME"],
				envVars["CNNBENCH_NUM_THREADS"],
				envVars["CNNBENCH_SEED"],
				envVars["CNNBENCH_NORECORD"],
			}))
		case historyCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["CNNBENCH_HOME"]})
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["CNNBENCH_DEBUG"],
				envVars["CNNBENCH_HOST"],
				envVars["CNNBENCH_HOME"],
				envVars["CNNBENCH_ORIGINS"],
				envVars["CNNBENCH_NUM_THREADS"],
				envVars["CNNBENCH_NORECORD"],
			})
		default:
			appendEnvDocs(cmd, buildEnvs)
		}
	}

	rootCmd.AddCommand(
		listCmd,
		showCmd,
		exportCmd,
		benchCmd,
		historyCmd,
		serveCmd,
		envCmd,
	)

	return rootCmd
}

func versionHandler(cmd *cobra.Command, _ []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "cnnbench version is %s\n", version.Version)
}
