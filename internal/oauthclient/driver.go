// Package oauthclient drives the gateway's OAuth client role against
// outbound MCP servers: RFC 7591 self-registration, the authorization
// code exchange, and per-request token refresh, driving
// golang.org/x/oauth2 against this gateway's own credential storage.
package oauthclient

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/mcpmux/gateway/internal/crypto"
	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/retry"
	"github.com/mcpmux/gateway/internal/store"
)

const (
	registrationAttempts     = 3
	registrationRetryBackoff = 200 * time.Millisecond
)

// Driver drives outbound OAuth registration and token refresh for
// installed servers that require it.
type Driver struct {
	store  *store.Store
	sealer *crypto.Sealer
	log    *zap.Logger
}

// New builds a Driver.
func New(st *store.Store, sealer *crypto.Sealer, log *zap.Logger) *Driver {
	return &Driver{store: st, sealer: sealer, log: log}
}

// EnsureRegistered performs RFC 7591 dynamic client registration against
// an outbound server's authorization server if this gateway is not
// already registered with it. Idempotent: safe to call on every connect
// attempt.
func (d *Driver) EnsureRegistered(ctx context.Context, srv model.InstalledServer, registrationEndpoint string) error {
	if _, err := d.store.GetOutboundOAuthRegistration(ctx, srv.TenantID, srv.ID); err == nil {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"client_name":   "mcpmux-gateway",
		"redirect_uris": []string{"http://127.0.0.1:0/callback"},
		"grant_types":   []string{"authorization_code", "refresh_token"},
	})
	if err != nil {
		return fmt.Errorf("oauthclient: marshal registration request: %w", err)
	}

	// Only transient dial/network errors from Do are retried; a rejection
	// with a status code is a permanent answer from the authorization
	// server and is returned to the caller immediately.
	var resp *http.Response
	err = retry.If(registrationAttempts, registrationRetryBackoff, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, registrationEndpoint, bytes.NewReader(body))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		var doErr error
		resp, doErr = http.DefaultClient.Do(req)
		if doErr != nil {
			d.log.Warn("oauthclient: registration request failed", zap.String("server", srv.Name), zap.Error(doErr))
		}
		return doErr
	}, func(error) bool { return true })
	if err != nil {
		return fmt.Errorf("oauthclient: registration request to %s: %w", srv.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("oauthclient: registration rejected by %s: status %d", srv.Name, resp.StatusCode)
	}

	var reg struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		return fmt.Errorf("oauthclient: decode registration response: %w", err)
	}

	var encSecret *string
	if reg.ClientSecret != "" {
		sealed, err := d.sealer.SealString(reg.ClientSecret)
		if err != nil {
			return fmt.Errorf("oauthclient: seal client secret: %w", err)
		}
		encSecret = &sealed
	}

	return d.store.UpsertOutboundOAuthRegistration(ctx, model.OutboundOAuthRegistration{
		ID: "reg_" + srv.ID, TenantID: srv.TenantID, ServerID: srv.ID,
		ClientID: reg.ClientID, ClientSecret: encSecret, RegisteredAt: time.Now(),
	})
}

// Exchange trades an authorization code for tokens and stores the result
// as the server's credential, using golang.org/x/oauth2's code-exchange
// bookkeeping types.
func (d *Driver) Exchange(ctx context.Context, srv model.InstalledServer, conf oauth2.Config, code, verifier string) error {
	tok, err := conf.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		return fmt.Errorf("oauthclient: exchange code for %s: %w", srv.Name, err)
	}
	return d.storeToken(ctx, srv, tok)
}

// Refresh forces a token refresh for an installed server, implementing
// transport.TokenSource's Refresh method.
func (d *Driver) Refresh(ctx context.Context, tenantID, serverID string) (string, error) {
	cred, err := d.store.GetCredential(ctx, tenantID, serverID, model.CredentialOAuth)
	if err != nil {
		return "", fmt.Errorf("oauthclient: no stored credential for %s/%s: %w", tenantID, serverID, err)
	}
	_ = cred // the refresh_token itself is embedded in the encrypted value, decoded below
	raw, err := d.sealer.OpenString(cred.ValueEnc)
	if err != nil {
		return "", fmt.Errorf("oauthclient: decrypt credential: %w", err)
	}
	var stored oauth2.Token
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return "", fmt.Errorf("oauthclient: decode stored token: %w", err)
	}
	if stored.RefreshToken == "" {
		return "", fmt.Errorf("oauthclient: server %s has no refresh token on file: %w", serverID, model.ErrUpstreamAuth)
	}

	conf := oauth2.Config{Endpoint: oauth2.Endpoint{}}
	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: stored.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("oauthclient: refresh token for %s: %w", serverID, err)
	}

	if err := d.storeToken(ctx, model.InstalledServer{TenantID: tenantID, ID: serverID}, fresh); err != nil {
		return "", err
	}
	return fresh.AccessToken, nil
}

// Token implements transport.TokenSource's current-token lookup without
// forcing a network round trip.
func (d *Driver) Token(ctx context.Context, tenantID, serverID string) (string, error) {
	cred, err := d.store.GetCredential(ctx, tenantID, serverID, model.CredentialOAuth)
	if err != nil {
		return "", err
	}
	raw, err := d.sealer.OpenString(cred.ValueEnc)
	if err != nil {
		return "", err
	}
	var stored oauth2.Token
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return "", err
	}
	return stored.AccessToken, nil
}

func (d *Driver) storeToken(ctx context.Context, srv model.InstalledServer, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("oauthclient: marshal token: %w", err)
	}
	sealed, err := d.sealer.Seal(raw)
	if err != nil {
		return fmt.Errorf("oauthclient: seal token: %w", err)
	}
	now := time.Now()
	var expiresAt *time.Time
	if !tok.Expiry.IsZero() {
		expiresAt = &tok.Expiry
	}
	return d.store.UpsertCredential(ctx, model.Credential{
		ID: "cred_" + srv.ID, TenantID: srv.TenantID, ServerID: srv.ID,
		Kind: model.CredentialOAuth, ValueEnc: sealed, ExpiresAt: expiresAt,
		CreatedAt: now, UpdatedAt: now,
	})
}

// LoopbackRedirectURI starts a short-lived localhost listener and returns
// its redirect_uri per RFC 8252's native-app loopback convention, used by
// the authorization-code leg of Exchange when driving the flow
// ourselves rather than delegating to an external browser-based UI.
func LoopbackRedirectURI() (string, net.Listener, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("oauthclient: open loopback listener: %w", err)
	}
	return fmt.Sprintf("http://127.0.0.1:%d/callback", l.Addr().(*net.TCPAddr).Port), l, nil
}

// NewPKCEVerifier generates a fresh RFC 7636 code_verifier for the
// authorization-code leg of an outbound OAuth flow.
func NewPKCEVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
