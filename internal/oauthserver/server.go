package oauthserver

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mcpmux/gateway/internal/store"
)

// Server is the gateway's embedded OAuth 2.1 authorization server,
// exposing /register, /authorize, /token, /revoke, and /clients over
// plain localhost HTTP. TLS termination, if any, is the operator's
// concern; this process is single-instance and localhost-only. Tenant
// scoping is not this server's concern: it resolves per connection mode
// in internal/inbound once a client actually connects.
type Server struct {
	store  *store.Store
	tokens *tokenIssuer
	log    *zap.Logger

	limitMu sync.Mutex
	limits  map[string]*rate.Limiter
}

// Config configures a Server.
type Config struct {
	Issuer    string
	Secret    []byte
	AccessTTL time.Duration
}

// New builds a Server.
func New(st *store.Store, log *zap.Logger, cfg Config) *Server {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	return &Server{
		store:  st,
		tokens: newTokenIssuer(cfg.Secret, cfg.Issuer, cfg.AccessTTL),
		log:    log,
		limits: make(map[string]*rate.Limiter),
	}
}

// VerifyAccessToken verifies a bearer token issued by this server,
// called by internal/inbound's auth middleware.
func (s *Server) VerifyAccessToken(token string) (clientID, scope string, err error) {
	c, err := s.tokens.verify(token)
	if err != nil {
		return "", "", err
	}
	return c.ClientID, c.Scope, nil
}

// Handler builds the HTTP mux for the authorization server's endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/register", s.rateLimited("register", http.HandlerFunc(s.handleRegister)))
	mux.Handle("/authorize", s.rateLimited("authorize", http.HandlerFunc(s.handleAuthorize)))
	mux.Handle("/token", s.rateLimited("token", http.HandlerFunc(s.handleToken)))
	mux.Handle("/revoke", s.rateLimited("revoke", http.HandlerFunc(s.handleRevoke)))
	mux.Handle("/clients", s.rateLimited("clients", http.HandlerFunc(s.handleListClients)))
	return mux
}

// pathRateLimits gives each endpoint its own per-minute token-bucket budget: the
// token endpoint is hit once per refresh cycle by every connected
// client, so it gets the largest allowance, while registration is rare
// and gets the smallest.
var pathRateLimits = map[string]struct {
	perMinute float64
	burst     int
}{
	"register":  {perMinute: 20, burst: 20},
	"authorize": {perMinute: 30, burst: 30},
	"token":     {perMinute: 60, burst: 60},
	"revoke":    {perMinute: 30, burst: 30},
	"clients":   {perMinute: 30, burst: 30},
}

// rateLimited wraps a handler with a per-path token-bucket limiter,
// keyed on path instead of client identity, since the AS endpoints
// are unauthenticated by design until a token exists.
func (s *Server) rateLimited(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiterFor(path).Allow() {
			writeOAuthError(w, http.StatusTooManyRequests, "slow_down", "rate limit exceeded for "+path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limiterFor(path string) *rate.Limiter {
	s.limitMu.Lock()
	defer s.limitMu.Unlock()
	l, ok := s.limits[path]
	if !ok {
		spec, ok := pathRateLimits[path]
		if !ok {
			spec.perMinute, spec.burst = 30, 30
		}
		l = rate.NewLimiter(rate.Limit(spec.perMinute/60.0), spec.burst)
		s.limits[path] = l
	}
	return l
}
