package oauthclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"

	"github.com/mcpmux/gateway/internal/crypto"
	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/store"
)

func newTestDriver(t *testing.T) (*Driver, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), zaptest.NewLogger(t), store.WithDatabaseFile(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	sealer, err := crypto.NewSealer(key)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, st.CreateTenant(context.Background(), model.Tenant{ID: "ten_1", Name: "T", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, st.CreateInstalledServer(context.Background(), model.InstalledServer{
		ID: "srv_1", TenantID: "ten_1", Name: "s", Source: model.ServerSrcManual,
		Transport: model.TransportHTTP, CreatedAt: now, UpdatedAt: now,
	}))

	return New(st, sealer, zaptest.NewLogger(t)), st
}

func TestEnsureRegistered_StoresRegistrationFromServerResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"client_id": "remote-client-id", "client_secret": "remote-secret",
		})
	}))
	defer ts.Close()

	d, st := newTestDriver(t)
	srv := model.InstalledServer{ID: "srv_1", TenantID: "ten_1", Name: "remote"}

	require.NoError(t, d.EnsureRegistered(context.Background(), srv, ts.URL))

	reg, err := st.GetOutboundOAuthRegistration(context.Background(), "ten_1", "srv_1")
	require.NoError(t, err)
	assert.Equal(t, "remote-client-id", reg.ClientID)
	require.NotNil(t, reg.ClientSecret)
	assert.NotEqual(t, "remote-secret", *reg.ClientSecret)
}

func TestEnsureRegistered_IsIdempotent(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"client_id": "c1"})
	}))
	defer ts.Close()

	d, _ := newTestDriver(t)
	srv := model.InstalledServer{ID: "srv_1", TenantID: "ten_1", Name: "remote"}

	require.NoError(t, d.EnsureRegistered(context.Background(), srv, ts.URL))
	require.NoError(t, d.EnsureRegistered(context.Background(), srv, ts.URL))
	assert.Equal(t, 1, calls)
}

func TestEnsureRegistered_PropagatesNonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	d, _ := newTestDriver(t)
	srv := model.InstalledServer{ID: "srv_1", TenantID: "ten_1", Name: "remote"}

	err := d.EnsureRegistered(context.Background(), srv, ts.URL)
	assert.Error(t, err)
}

func TestExchangeThenToken_RoundTripsAccessToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-123", "token_type": "Bearer", "refresh_token": "rt-456",
		})
	}))
	defer ts.Close()

	d, _ := newTestDriver(t)
	srv := model.InstalledServer{ID: "srv_1", TenantID: "ten_1", Name: "remote"}
	conf := oauth2.Config{
		ClientID: "c1",
		Endpoint: oauth2.Endpoint{TokenURL: ts.URL},
	}

	require.NoError(t, d.Exchange(context.Background(), srv, conf, "auth-code", "verifier"))

	access, err := d.Token(context.Background(), "ten_1", "srv_1")
	require.NoError(t, err)
	assert.Equal(t, "at-123", access)
}

func TestToken_MissingCredentialIsAnError(t *testing.T) {
	d, _ := newTestDriver(t)
	_, err := d.Token(context.Background(), "ten_1", "srv_1")
	assert.Error(t, err)
}

func TestNewPKCEVerifier_GeneratesDistinctValues(t *testing.T) {
	a, err := NewPKCEVerifier()
	require.NoError(t, err)
	b, err := NewPKCEVerifier()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}

func TestLoopbackRedirectURI_ReturnsAddressOfListener(t *testing.T) {
	uri, l, err := LoopbackRedirectURI()
	require.NoError(t, err)
	defer l.Close()
	assert.Contains(t, uri, "http://127.0.0.1:")
	assert.Contains(t, uri, "/callback")
}
