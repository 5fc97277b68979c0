package oauthserver

import "net/http"

// clientSummary is the public view of a registered inbound client
// returned by GET /clients, omitting anything secret.
type clientSummary struct {
	ClientID     string   `json:"client_id"`
	ClientName   string   `json:"client_name"`
	RedirectURIs []string `json:"redirect_uris"`
	Approved     bool     `json:"approved"`
}

// handleListClients implements GET /clients: lists every inbound client
// registered with this authorization server, so an operator can see
// which dynamically-registered clients are waiting on approval.
func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeOAuthError(w, http.StatusMethodNotAllowed, "invalid_request", "only GET is supported")
		return
	}

	clients, err := s.store.ListInboundClients(r.Context())
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	out := make([]clientSummary, 0, len(clients))
	for _, c := range clients {
		out = append(out, clientSummary{
			ClientID:     c.ID,
			ClientName:   c.Name,
			RedirectURIs: c.RedirectURIs,
			Approved:     c.Approved,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
