package router

import (
	"sort"
	"strings"
	"sync"

	"github.com/mcpmux/gateway/internal/model"
)

// PrefixCache resolves each installed server's tool-name disambiguation
// prefix: its declared alias, if one is set and not already claimed by
// an earlier server, otherwise a prefix normalized from its server ID.
// Resolution runs in server-creation order, so when two servers declare
// the same alias the one installed first keeps it and the later one
// falls back to its normalized ID.
type PrefixCache struct {
	mu       sync.Mutex
	prefixes map[string]map[string]string // tenantID -> serverID -> prefix
}

// NewPrefixCache builds an empty cache.
func NewPrefixCache() *PrefixCache {
	return &PrefixCache{prefixes: make(map[string]map[string]string)}
}

// Resolve recomputes the prefix assignment for one tenant's installed
// servers. Called before every feature listing so a just-installed or
// just-uninstalled server is reflected immediately; resolution itself is
// cheap and the priority ordering makes it safe to redo on every call.
func (c *PrefixCache) Resolve(tenantID string, servers []model.InstalledServer) {
	ordered := append([]model.InstalledServer(nil), servers...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].CreatedAt.Before(ordered[j].CreatedAt) })

	resolved := make(map[string]string, len(ordered))
	claimed := make(map[string]string, len(ordered)) // prefix -> serverID

	for _, srv := range ordered {
		if srv.Alias != nil && *srv.Alias != "" {
			if _, taken := claimed[*srv.Alias]; !taken {
				claimed[*srv.Alias] = srv.ID
				resolved[srv.ID] = *srv.Alias
				continue
			}
		}

		fallback := normalizeServerID(srv.ID)
		if owner, taken := claimed[fallback]; taken && owner != srv.ID {
			// Degenerate case: the fallback itself collides with another
			// server's claimed prefix. The raw ID is unique by
			// construction, so fall back to that.
			fallback = srv.ID
		}
		claimed[fallback] = srv.ID
		resolved[srv.ID] = fallback
	}

	c.mu.Lock()
	c.prefixes[tenantID] = resolved
	c.mu.Unlock()
}

// PrefixFor returns the resolved prefix for a server. Resolve must have
// been called for the server's tenant first; if the server is unknown
// (e.g. a stale call racing an uninstall) its normalized ID is returned.
func (c *PrefixCache) PrefixFor(tenantID, serverID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.prefixes[tenantID]; ok {
		if p, ok := m[serverID]; ok {
			return p
		}
	}
	return normalizeServerID(serverID)
}

// normalizeServerID derives the fallback prefix from a server ID: the ID
// lowercased with its path separators collapsed to dots.
func normalizeServerID(serverID string) string {
	return strings.ReplaceAll(strings.ToLower(serverID), "/", ".")
}
