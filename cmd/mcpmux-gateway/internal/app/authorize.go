package app

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/mcpmux/gateway/internal/config"
	"github.com/mcpmux/gateway/internal/crypto"
	"github.com/mcpmux/gateway/internal/oauthclient"
	"github.com/mcpmux/gateway/internal/store"
	"github.com/mcpmux/gateway/pkg/oauth"
)

type authorizeFlags struct {
	serverID     string
	authorizeURL string
	tokenURL     string
	clientID     string
	clientSecret string
	scopes       []string
}

// newAuthorizeCmd drives an interactive, browser-based authorization-code
// grant for an installed server whose authorization server has no
// dynamic-registration support, so its client_id/client_secret and
// endpoints must be supplied by the operator up front.
func newAuthorizeCmd() *cobra.Command {
	var flags authorizeFlags

	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Obtain an OAuth token for an installed server via a browser redirect",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return runAuthorize(cmd.Context(), cfg, flags)
		},
	}

	cmd.Flags().StringVar(&flags.serverID, "server-id", "", "installed server to authorize (required)")
	cmd.Flags().StringVar(&flags.authorizeURL, "authorize-url", "", "authorization server's authorization endpoint (required)")
	cmd.Flags().StringVar(&flags.tokenURL, "token-url", "", "authorization server's token endpoint (required)")
	cmd.Flags().StringVar(&flags.clientID, "client-id", "", "OAuth client_id registered with the authorization server (required)")
	cmd.Flags().StringVar(&flags.clientSecret, "client-secret", "", "OAuth client_secret, for confidential clients")
	cmd.Flags().StringSliceVar(&flags.scopes, "scope", nil, "OAuth scopes to request, comma-separated")
	_ = cmd.MarkFlagRequired("server-id")
	_ = cmd.MarkFlagRequired("authorize-url")
	_ = cmd.MarkFlagRequired("token-url")
	_ = cmd.MarkFlagRequired("client-id")

	return cmd
}

func runAuthorize(ctx context.Context, cfg config.Config, flags authorizeFlags) error {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	st, err := store.Open(ctx, log, store.WithDatabaseFile(cfg.DatabasePath))
	if err != nil {
		return fmt.Errorf("authorize: open store: %w", err)
	}
	defer st.Close()

	srv, err := st.GetInstalledServer(ctx, flags.serverID)
	if err != nil {
		return fmt.Errorf("authorize: look up server %s: %w", flags.serverID, err)
	}

	secrets, err := newSecretProvider(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("authorize: build secret provider: %w", err)
	}
	encKey, err := secrets.Secret(ctx, filepath.Base(cfg.EncryptionKeyPath))
	if err != nil {
		return fmt.Errorf("authorize: load encryption key: %w", err)
	}
	sealer, err := crypto.NewSealer(encKey)
	if err != nil {
		return fmt.Errorf("authorize: build sealer: %w", err)
	}

	driver := oauthclient.New(st, sealer, log)

	redirectURI, listener, err := oauthclient.LoopbackRedirectURI()
	if err != nil {
		return fmt.Errorf("authorize: open loopback listener: %w", err)
	}
	defer listener.Close()

	verifier, err := oauthclient.NewPKCEVerifier()
	if err != nil {
		return fmt.Errorf("authorize: generate PKCE verifier: %w", err)
	}
	challengeSum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(challengeSum[:])

	conf := oauth2.Config{
		ClientID:     flags.clientID,
		ClientSecret: flags.clientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: flags.authorizeURL, TokenURL: flags.tokenURL},
		RedirectURL:  redirectURI,
		Scopes:       flags.scopes,
	}
	authURL := conf.AuthCodeURL("state",
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"))

	code, err := waitForAuthorizationCode(ctx, listener, authURL)
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}

	if err := driver.Exchange(ctx, *srv, conf, code, verifier); err != nil {
		return fmt.Errorf("authorize: exchange code: %w", err)
	}

	log.Info("authorized server", zap.String("server_id", srv.ID))
	return nil
}

// callbackResult carries the outcome of the authorization server's
// redirect back to the loopback listener.
type callbackResult struct {
	code string
	err  error
}

// waitForAuthorizationCode opens authURL in the user's browser and serves
// a single request on listener, extracting the authorization code (or
// error) the authorization server redirects back with.
func waitForAuthorizationCode(ctx context.Context, listener net.Listener, authURL string) (string, error) {
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if errParam := r.URL.Query().Get("error"); errParam != "" {
			results <- callbackResult{err: fmt.Errorf("authorization server returned error: %s", errParam)}
			http.Error(w, "authorization failed, you may close this window", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			results <- callbackResult{err: fmt.Errorf("authorization redirect missing code parameter")}
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}
		results <- callbackResult{code: code}
		fmt.Fprint(w, "Authorized. You may close this window.")
	})
	srv := &http.Server{Handler: mux}
	go func() { _ = srv.Serve(listener) }()
	defer srv.Close()

	if err := oauth.OpenBrowser(authURL); err != nil {
		fmt.Printf("open this URL to authorize: %s\n", authURL)
	}

	select {
	case res := <-results:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
