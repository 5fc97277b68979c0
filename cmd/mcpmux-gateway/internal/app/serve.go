package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mcpmux/gateway/internal/awssecrets"
	"github.com/mcpmux/gateway/internal/collab"
	"github.com/mcpmux/gateway/internal/config"
	"github.com/mcpmux/gateway/internal/crypto"
	"github.com/mcpmux/gateway/internal/events"
	"github.com/mcpmux/gateway/internal/inbound"
	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/oauthclient"
	"github.com/mcpmux/gateway/internal/oauthserver"
	"github.com/mcpmux/gateway/internal/permissions"
	"github.com/mcpmux/gateway/internal/pool"
	"github.com/mcpmux/gateway/internal/router"
	"github.com/mcpmux/gateway/internal/servermanager"
	"github.com/mcpmux/gateway/internal/serverlog"
	"github.com/mcpmux/gateway/internal/store"
	"github.com/mcpmux/gateway/internal/transport"
)

// shutdownGrace bounds how long in-flight requests get to finish during a
// graceful shutdown before the listener is torn down regardless.
const shutdownGrace = 10 * time.Second

// runServe loads configuration and runs the gateway until its context is
// canceled. It defers all real assembly to a dedicated function.
func runServe(cmd *cobra.Command) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	return serve(cmd.Context(), cfg, log)
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	st, err := store.Open(ctx, log, store.WithDatabaseFile(cfg.DatabasePath))
	if err != nil {
		return fmt.Errorf("app: open store: %w", err)
	}
	defer st.Close()

	secrets, err := newSecretProvider(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("app: build secret provider: %w", err)
	}

	encKey, err := secrets.Secret(ctx, filepath.Base(cfg.EncryptionKeyPath))
	if err != nil {
		return fmt.Errorf("app: load encryption key: %w", err)
	}
	sealer, err := crypto.NewSealer(encKey)
	if err != nil {
		return fmt.Errorf("app: build sealer: %w", err)
	}

	jwtSecret, err := secrets.Secret(ctx, "jwt-signing-key")
	if err != nil {
		return fmt.Errorf("app: load jwt signing key: %w", err)
	}

	bus := events.New(log)

	oauthSrv := oauthserver.New(st, log, oauthserver.Config{
		Issuer: "mcpmux-gateway",
		Secret: jwtSecret,
	})

	oauthCli := oauthclient.New(st, sealer, log)

	logs, err := serverlog.New(cfg.LogsRoot)
	if err != nil {
		return fmt.Errorf("app: open server logs: %w", err)
	}
	defer logs.Close()

	dialer := &transport.MultiDialer{
		HTTP: &transport.HTTPDialer{Tokens: oauthCli},
		Stdio: &transport.StdioDialer{
			OnStderr: func(srv model.InstalledServer, line string) {
				level := "info"
				switch lower := strings.ToLower(line); {
				case strings.Contains(lower, "error"), strings.Contains(lower, "panic"):
					level = "error"
				case strings.Contains(lower, "warn"):
					level = "warn"
				}
				if err := logs.Append(model.ServerLog{
					TenantID: srv.TenantID, ServerID: srv.ID, Level: level,
					Source: model.LogSourceTransport, Message: line, Timestamp: time.Now(),
				}); err != nil {
					log.Warn("failed to write server log line", zap.Error(err), zap.String("server_id", srv.ID))
				}
			},
		},
	}
	connPool := pool.New(dialer)

	mgr := servermanager.New(connPool, st, bus, router.Discoverer{}, log)
	resolver := permissions.New(st, log)
	rt := router.New(st, resolver, connPool, mgr)

	handler := inbound.New(st, rt, bus, oauthSrv, log)
	defer handler.Close()

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler.Mux())
	mux.Handle("/", oauthSrv.Handler())

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("gateway listening", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		connPool.CloseAll()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newSecretProvider builds the collab.SecretProvider backing key material
// storage, selected by cfg.SecretBackend.
func newSecretProvider(ctx context.Context, cfg config.Config, log *zap.Logger) (collab.SecretProvider, error) {
	switch cfg.SecretBackend {
	case "", "file":
		return newFileSecretProvider(filepath.Dir(cfg.EncryptionKeyPath)), nil
	case "aws":
		return awssecrets.New(ctx, cfg.AWSRoleARN, log)
	default:
		return nil, fmt.Errorf("app: unknown secret backend %q", cfg.SecretBackend)
	}
}
