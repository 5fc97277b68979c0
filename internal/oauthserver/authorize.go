package oauthserver

import (
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/mcpmux/gateway/internal/store"
)

// handleAuthorize implements GET /authorize: validates the client and
// PKCE parameters, rejects unapproved clients, then issues a one-time
// authorization code and redirects back to the client's redirect_uri.
// The tenant a client is scoped to is resolved later, per connection
// mode, by internal/inbound when the client actually connects.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	responseType := q.Get("response_type")
	codeChallenge := q.Get("code_challenge")
	codeChallengeMethod := q.Get("code_challenge_method")
	scope := q.Get("scope")
	state := q.Get("state")

	if responseType != "code" {
		writeOAuthError(w, http.StatusBadRequest, "unsupported_response_type", "only 'code' is supported")
		return
	}
	if codeChallengeMethod != "S256" || codeChallenge == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "PKCE S256 code_challenge is required")
		return
	}

	client, err := s.store.GetInboundClient(r.Context(), clientID)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client", "unknown client_id")
		return
	}
	if !client.Approved {
		writeOAuthError(w, http.StatusForbidden, "unauthorized_client", "client is pending approval")
		return
	}
	if !containsURI(client.RedirectURIs, redirectURI) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri not registered for this client")
		return
	}

	code := uuid.NewString()
	now := time.Now()
	if err := s.store.CreateAuthorizationCode(r.Context(), store.AuthorizationCode{
		Code: code, ClientID: clientID, RedirectURI: redirectURI,
		Scope: scope, CodeChallenge: codeChallenge, CodeChallengeMethod: codeChallengeMethod,
		ExpiresAt: now.Add(2 * time.Minute), CreatedAt: now,
	}); err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	redirect, err := url.Parse(redirectURI)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed redirect_uri")
		return
	}
	q2 := redirect.Query()
	q2.Set("code", code)
	if state != "" {
		q2.Set("state", state)
	}
	redirect.RawQuery = q2.Encode()

	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func containsURI(uris []string, target string) bool {
	for _, u := range uris {
		if u == target {
			return true
		}
	}
	return false
}
