package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mcpmux/gateway/internal/config"
	"github.com/mcpmux/gateway/internal/store"
)

// newApproveClientCmd approves a dynamically-registered inbound client,
// the operator-driven counterpart to DCR's unapproved-by-default client
// state: a client created via POST /register cannot complete /authorize
// or /token until an operator runs this command.
func newApproveClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve-client <client-id>",
		Short: "Approve a dynamically-registered inbound OAuth client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return runApproveClient(cmd.Context(), cfg, args[0])
		},
	}
	return cmd
}

func runApproveClient(ctx context.Context, cfg config.Config, clientID string) error {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	st, err := store.Open(ctx, log, store.WithDatabaseFile(cfg.DatabasePath))
	if err != nil {
		return fmt.Errorf("approve-client: open store: %w", err)
	}
	defer st.Close()

	if err := st.ApproveInboundClient(ctx, clientID); err != nil {
		return fmt.Errorf("approve-client: %w", err)
	}

	log.Info("approved inbound client", zap.String("client_id", clientID))
	return nil
}
