package oauthserver

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/mcpmux/gateway/internal/store"
)

const refreshTokenTTL = 30 * 24 * time.Hour

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// handleToken implements POST /token for both the authorization_code and
// refresh_token grants. Only per-request refresh is implemented; there
// is no preemptive background refresh loop.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		s.exchangeCode(w, r)
	case "refresh_token":
		s.exchangeRefreshToken(w, r)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "")
	}
}

func (s *Server) exchangeCode(w http.ResponseWriter, r *http.Request) {
	code := r.PostForm.Get("code")
	verifier := r.PostForm.Get("code_verifier")
	redirectURI := r.PostForm.Get("redirect_uri")
	clientID := r.PostForm.Get("client_id")

	row, err := s.store.ConsumeAuthorizationCode(r.Context(), code)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", err.Error())
		return
	}
	if row.ClientID != clientID || row.RedirectURI != redirectURI {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "client_id or redirect_uri mismatch")
		return
	}
	if time.Now().After(row.ExpiresAt) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "authorization code expired")
		return
	}
	if !verifyPKCE(row.CodeChallengeMethod, row.CodeChallenge, verifier) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
		return
	}

	s.issueTokenPair(w, r, row.ClientID, row.Scope)
}

func (s *Server) exchangeRefreshToken(w http.ResponseWriter, r *http.Request) {
	raw := r.PostForm.Get("refresh_token")
	hash := hashToken(raw)

	row, err := s.store.GetRefreshToken(r.Context(), hash)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "unknown refresh token")
		return
	}
	if row.Revoked || time.Now().After(row.ExpiresAt) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh token revoked or expired")
		return
	}

	// Rotate: the old refresh token is single-use.
	_ = s.store.RevokeRefreshToken(r.Context(), hash)
	s.issueTokenPair(w, r, row.ClientID, row.Scope)
}

func (s *Server) issueTokenPair(w http.ResponseWriter, r *http.Request, clientID, scope string) {
	client, err := s.store.GetInboundClient(r.Context(), clientID)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client", "unknown client_id")
		return
	}
	if !client.Approved {
		writeOAuthError(w, http.StatusForbidden, "unauthorized_client", "client is pending approval")
		return
	}

	access, expiresAt, err := s.tokens.issue(clientID, scope)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	refresh, err := randomToken(32)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	now := time.Now()
	if err := s.store.CreateRefreshToken(r.Context(), store.RefreshToken{
		TokenHash: hashToken(refresh), ClientID: clientID,
		Scope: scope, ExpiresAt: now.Add(refreshTokenTTL), CreatedAt: now,
	}); err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(expiresAt).Seconds()),
		RefreshToken: refresh,
		Scope:        scope,
	})
}

// handleRevoke implements POST /revoke (RFC 7009) for refresh tokens.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	_ = s.store.RevokeRefreshToken(r.Context(), hashToken(r.PostForm.Get("token")))
	w.WriteHeader(http.StatusOK)
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
