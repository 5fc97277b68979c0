package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpmux/gateway/internal/model"
)

type fakeTokenSource struct {
	token        string
	refreshToken string
	refreshCalls int
}

func (f *fakeTokenSource) Token(ctx context.Context, tenantID, serverID string) (string, error) {
	return f.token, nil
}

func (f *fakeTokenSource) Refresh(ctx context.Context, tenantID, serverID string) (string, error) {
	f.refreshCalls++
	return f.refreshToken, nil
}

func TestHeaderRoundTripper_InjectsBearerToken(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	tokens := &fakeTokenSource{token: "initial-token"}
	client := &http.Client{Transport: &headerRoundTripper{
		base: http.DefaultTransport, tenantID: "ten_1", serverID: "srv_1", tokens: tokens,
	}}

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "Bearer initial-token", gotAuth)
	assert.Equal(t, 0, tokens.refreshCalls)
}

func TestHeaderRoundTripper_RefreshesAndRetriesOn401(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") == "Bearer refreshed-token" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	tokens := &fakeTokenSource{token: "stale-token", refreshToken: "refreshed-token"}
	client := &http.Client{Transport: &headerRoundTripper{
		base: http.DefaultTransport, tenantID: "ten_1", serverID: "srv_1", tokens: tokens,
	}}

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, tokens.refreshCalls)
}

func TestHTTPDialer_RejectsUnsupportedTransport(t *testing.T) {
	d := &HTTPDialer{}
	url := "http://example.invalid"
	srv := model.InstalledServer{ID: "srv_1", Transport: model.Transport("carrier-pigeon"), URL: &url}

	_, err := d.Dial(context.Background(), srv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported remote transport")
}
