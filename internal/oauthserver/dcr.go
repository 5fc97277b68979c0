package oauthserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mcpmux/gateway/internal/model"
)

var validate = validator.New()

// registrationRequest is the RFC 7591 dynamic client registration body.
type registrationRequest struct {
	ClientName   string   `json:"client_name" validate:"required"`
	RedirectURIs []string `json:"redirect_uris" validate:"required,min=1,dive,required"`
}

type registrationResponse struct {
	ClientID              string   `json:"client_id"`
	ClientName            string   `json:"client_name"`
	RedirectURIs          []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method"`
	GrantTypes            []string `json:"grant_types"`
	ResponseTypes         []string `json:"response_types"`
}

// handleRegister implements POST /register (RFC 7591). Registration is
// open: any inbound client may self-register, matching the MCP ecosystem
// convention of DCR-without-prior-approval for loopback-redirect native
// apps (RFC 8252).
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", err.Error())
		return
	}
	if err := validateRedirectURIs(req.RedirectURIs); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_redirect_uri", err.Error())
		return
	}

	// A second registration with the same client_name merges redirect URIs
	// into the existing client rather than minting a new one.
	if existing, err := s.store.GetInboundClientByName(r.Context(), req.ClientName); err == nil {
		merged := mergeRedirectURIs(existing.RedirectURIs, req.RedirectURIs)
		if err := s.store.UpdateInboundClientRedirectURIs(r.Context(), existing.ID, merged); err != nil {
			writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, registrationResponse{
			ClientID:                existing.ID,
			ClientName:              existing.Name,
			RedirectURIs:            merged,
			TokenEndpointAuthMethod: "none",
			GrantTypes:              []string{"authorization_code", "refresh_token"},
			ResponseTypes:           []string{"code"},
		})
		return
	}

	now := time.Now()
	client := model.InboundClient{
		ID:             "client_" + uuid.NewString(),
		Name:           req.ClientName,
		ConnectionMode: model.ConnModeFollowActive,
		RedirectURIs:   req.RedirectURIs,
		Approved:       false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateInboundClient(r.Context(), client); err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, registrationResponse{
		ClientID:                client.ID,
		ClientName:              client.Name,
		RedirectURIs:            client.RedirectURIs,
		TokenEndpointAuthMethod: "none",
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
	})
}

// validateRedirectURIs enforces RFC 8252's native-app convention on every
// redirect URI in a registration request: an http(s) URI must target a
// loopback address (127.0.0.1, localhost, or [::1]), since a loopback
// listener is the only thing a public client can prove it controls.
// Any other scheme is allowed on the assumption it is a private
// custom-scheme redirect registered by a native app; only http(s) to a
// non-loopback host is rejected.
func validateRedirectURIs(uris []string) error {
	for _, raw := range uris {
		if err := validateRedirectURI(raw); err != nil {
			return err
		}
	}
	return nil
}

func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("redirect_uri %q is not a valid URI: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil
	}
	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return nil
	}
	return fmt.Errorf("redirect_uri %q must use a loopback address (127.0.0.1, localhost, [::1]) or a custom scheme", raw)
}

// mergeRedirectURIs unions two redirect-URI sets, preserving the existing
// order and appending any URI from the new request not already present.
func mergeRedirectURIs(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, u := range existing {
		seen[u] = true
	}
	for _, u := range incoming {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{"error": code, "error_description": description})
}
