// cmd_serve.go - Serve und Env Commands
// Hauptfunktionen: RunServer, EnvHandler
package cmd

import (
	"fmt"
	"net"
	"slices"

	"github.com/spf13/cobra"

	"github.com/cnnbench/cnnbench/envconfig"
	"github.com/cnnbench/cnnbench/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the cnnbench API server",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print configuration variables and their values",
		Args:  cobra.ExactArgs(0),
		RunE:  EnvHandler,
	}
}

// RunServer listens on CNNBENCH_HOST and serves the API.
func RunServer(_ *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", envconfig.Host())
	if err != nil {
		return err
	}

	return server.Serve(ln)
}

func EnvHandler(cmd *cobra.Command, _ []string) error {
	vars := envconfig.AsMap()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "%s=%v\n", name, vars[name].Value)
	}
	return nil
}
