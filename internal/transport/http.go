// Package transport implements the gateway's outbound dialers: stdio
// child processes and HTTP/SSE remote servers, selecting transport by
// the installed server's configured type and attaching bearer tokens
// from this gateway's own OAuth Client Driver.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/pool"
)

// TokenSource resolves the current bearer token for a tenant/server pair
// and can force a refresh, implemented by internal/oauthclient.
type TokenSource interface {
	Token(ctx context.Context, tenantID, serverID string) (string, error)
	Refresh(ctx context.Context, tenantID, serverID string) (string, error)
}

// HTTPDialer dials remote MCP servers over streamable HTTP or SSE.
type HTTPDialer struct {
	Tokens TokenSource
}

// headerRoundTripper injects a live bearer token into every request,
// re-resolving it per request rather than caching it on the transport so
// that a refreshed token takes effect without rebuilding the client.
type headerRoundTripper struct {
	base     http.RoundTripper
	tenantID string
	serverID string
	tokens   TokenSource
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	newReq := req.Clone(req.Context())
	if h.tokens != nil {
		if tok, err := h.tokens.Token(req.Context(), h.tenantID, h.serverID); err == nil && tok != "" {
			newReq.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	resp, err := h.base.RoundTrip(newReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && h.tokens != nil {
		_ = resp.Body.Close()
		if tok, rerr := h.tokens.Refresh(req.Context(), h.tenantID, h.serverID); rerr == nil && tok != "" {
			retry := req.Clone(req.Context())
			retry.Header.Set("Authorization", "Bearer "+tok)
			return h.base.RoundTrip(retry)
		}
		return resp, nil
	}
	return resp, nil
}

// httpConn adapts an mcp.ClientSession to pool.Conn.
type httpConn struct {
	client  *mcp.Client
	session *mcp.ClientSession
}

func (c *httpConn) Close() error { return c.session.Close() }

// Session exposes the underlying MCP client session for the router to
// call tools/prompts/resources against.
func (c *httpConn) Session() *mcp.ClientSession { return c.session }

func (d *HTTPDialer) Dial(ctx context.Context, srv model.InstalledServer) (pool.Conn, error) {
	if srv.URL == nil || *srv.URL == "" {
		return nil, fmt.Errorf("transport: server %s has no url configured", srv.ID)
	}

	httpClient := &http.Client{
		Transport: &headerRoundTripper{
			base:     http.DefaultTransport,
			tenantID: srv.TenantID,
			serverID: srv.ID,
			tokens:   d.Tokens,
		},
	}

	var mcpTransport mcp.Transport
	switch strings.ToLower(string(srv.Transport)) {
	case "sse":
		mcpTransport = &mcp.SSEClientTransport{Endpoint: *srv.URL, HTTPClient: httpClient}
	case "http", "streamable", "streamable-http":
		mcpTransport = &mcp.StreamableClientTransport{Endpoint: *srv.URL, HTTPClient: httpClient}
	default:
		return nil, fmt.Errorf("transport: unsupported remote transport %q", srv.Transport)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "mcpmux-gateway", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, mcpTransport, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: connect to %s: %w", srv.ID, err)
	}
	return &httpConn{client: client, session: session}, nil
}
