// Package inbound serves MCP over streamable HTTP at a single path,
// authenticating callers against internal/oauthserver's issued tokens,
// resolving each caller's active tenant, and translating Event Bus
// notifications into protocol-level list_changed notifications. Each
// client gets its own mcp.Server instance, built via mcp.NewServer +
// ServerOptions, fronted by a middleware chain that verifies the
// bearer token against this gateway's own authorization server before
// resolving the caller's active tenant.
package inbound

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mcpmux/gateway/internal/events"
	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/router"
	"github.com/mcpmux/gateway/internal/store"
)

// TokenVerifier verifies a bearer token issued by internal/oauthserver,
// implemented by oauthserver.Server.
type TokenVerifier interface {
	VerifyAccessToken(token string) (clientID, scope string, err error)
}

// Handler serves the gateway's single inbound MCP endpoint.
type Handler struct {
	store    *store.Store
	router   *router.Router
	bus      *events.Bus
	verifier TokenVerifier
	log      *zap.Logger

	sessions *sessionRegistry

	// baseCtx bounds the lifetime of every per-session reconciliation
	// goroutine; it is cancelled by Close on gateway shutdown. The SDK
	// exposes no per-session "disconnected" hook to tie these to
	// individual sessions instead, so a lagging reconciler simply stops
	// mattering once its session's HTTP connection drops (writes to a
	// closed session are no-ops on the SDK side).
	baseCtx context.Context
	cancel  context.CancelFunc

	limit *rate.Limiter
}

// New builds an inbound Handler whose background reconciliation
// goroutines run until Close is called.
func New(st *store.Store, rt *router.Router, bus *events.Bus, verifier TokenVerifier, log *zap.Logger) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		store:    st,
		router:   rt,
		bus:      bus,
		verifier: verifier,
		log:      log,
		sessions: newSessionRegistry(),
		baseCtx:  ctx,
		cancel:   cancel,
		limit:    rate.NewLimiter(rate.Limit(50), 100),
	}
}

// Close stops every in-flight reconciliation goroutine.
func (h *Handler) Close() {
	h.cancel()
}

// Mux builds the gateway's top-level HTTP handler: /mcp for the MCP
// endpoint, wrapped in a middleware chain of trace ID -> rate limit ->
// bearer auth -> tenant resolution.
func (h *Handler) Mux() http.Handler {
	mux := http.NewServeMux()
	mcpHandler := mcp.NewStreamableHTTPHandler(h.getServer, nil)
	mux.Handle("/mcp", h.traceID(h.rateLimit(h.authenticate(h.resolveTenant(mcpHandler)))))
	return mux
}

func (h *Handler) traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := newTraceID()
		h.log.Debug("inbound request", zap.String("trace_id", id), zap.String("method", r.Method), zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(withTraceID(r.Context(), id)))
		h.log.Debug("inbound request complete", zap.String("trace_id", id))
	})
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limit.Allow() {
			http.Error(w, `{"error":"rate_limited"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			unauthorized(w)
			return
		}
		clientID, scope, err := h.verifier.VerifyAccessToken(token)
		if err != nil {
			unauthorized(w)
			return
		}
		ctx := withClientID(r.Context(), clientID)
		ctx = withScope(ctx, scope)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveTenant picks the tenant a client's request is scoped to based on
// the client's connection mode, attaching the resolved tenant ID to the
// request context for getServer to read when building the per-session
// *mcp.Server.
func (h *Handler) resolveTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID, _ := clientIDFrom(r.Context())
		client, err := h.store.GetInboundClient(r.Context(), clientID)
		if err != nil {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusForbidden)
			return
		}

		tenantID, err := h.resolveTenantForClient(r.Context(), *client)
		if err != nil {
			http.Error(w, `{"error":"no_active_tenant"}`, http.StatusConflict)
			return
		}

		next.ServeHTTP(w, r.WithContext(withTenantID(r.Context(), tenantID)))
	})
}

func (h *Handler) resolveTenantForClient(ctx context.Context, client model.InboundClient) (string, error) {
	switch client.ConnectionMode {
	case model.ConnModePinned:
		if client.PinnedTenantID == nil {
			return "", fmt.Errorf("client %s is pinned but has no tenant: %w", client.ID, model.ErrInvalidArgument)
		}
		return *client.PinnedTenantID, nil
	case model.ConnModeAskOnChange:
		if tenantID, ok, err := h.store.ConfirmedTenant(ctx, client.ID); err != nil {
			return "", err
		} else if ok {
			return tenantID, nil
		}
		// No confirmation on file yet: fall through to the active tenant so
		// a brand new ask_on_change client isn't stuck with no tenant at
		// all; the desktop shell confirms out-of-band on its next change.
		fallthrough
	default: // ConnModeFollowActive
		return h.store.ActiveTenantID(ctx, time.Now)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="mcpmux-gateway"`)
	http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
}

func newTraceID() string {
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
