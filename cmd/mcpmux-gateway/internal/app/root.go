// Package app assembles the gateway's cobra command tree and wires every
// internal package into a running process: persistent flags parsed once,
// subcommands reading back the resolved configuration.
package app

import (
	"github.com/spf13/cobra"

	"github.com/mcpmux/gateway/internal/config"
)

var configPath string

// NewRootCmd builds the gateway's root command. Running it directly
// (with no subcommand) starts the gateway in the foreground.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mcpmux-gateway",
		Short:         "Multi-tenant MCP gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAuthorizeCmd())
	cmd.AddCommand(newApproveClientCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}
