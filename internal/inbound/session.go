package inbound

import (
	"context"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/mcpmux/gateway/internal/events"
)

// sessionRegistry tracks the live set of (tenant, client) reconciliation
// goroutines, mostly so tests can assert on how many are running.
type sessionRegistry struct {
	mu    sync.Mutex
	count int
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{}
}

// watchReconcile starts a goroutine that keeps srv's advertised tools, prompts,
// and resources in sync with the permission resolver's output as Event
// Bus notifications arrive, driving the MCP list_changed notifications
// the protocol expects. This is a diff-and-patch reconciliation loop: a
// single long-lived mcp.Server has its tool/prompt/resource set patched
// in place as grants and upstream discovery change, rather than being
// rebuilt from scratch on every change.
func (h *Handler) watchReconcile(srv *mcp.Server, tenantID, clientID string) {
	sub := h.bus.Subscribe()
	h.sessions.mu.Lock()
	h.sessions.count++
	h.sessions.mu.Unlock()

	state := newFeatureState()

	go func() {
		defer sub.Close()
		defer func() {
			h.sessions.mu.Lock()
			h.sessions.count--
			h.sessions.mu.Unlock()
		}()

		// Populate the reconciler's view of what was registered at session
		// construction without re-deriving it from the server, since the SDK
		// doesn't expose a "current tool list" getter.
		if err := h.syncFeatures(h.baseCtx, srv, tenantID, clientID, state); err != nil {
			h.log.Warn("initial reconciliation snapshot failed", zap.Error(err))
		}

		for {
			select {
			case <-h.baseCtx.Done():
				return
			case ev, ok := <-sub.Events:
				if !ok {
					return
				}
				if !relevant(ev, tenantID, clientID) {
					continue
				}
				if err := h.syncFeatures(h.baseCtx, srv, tenantID, clientID, state); err != nil {
					h.log.Warn("reconciliation failed", zap.Error(err), zap.String("tenant_id", tenantID))
				}
			}
		}
	}()
}

func relevant(ev events.Event, tenantID, clientID string) bool {
	if ev.TenantID != "" && ev.TenantID != tenantID {
		return false
	}
	if ev.ClientID != "" && ev.ClientID != clientID {
		return false
	}
	switch ev.Kind {
	case events.KindFeaturesDiscovered, events.KindGrantChanged, events.KindFeatureSetChanged,
		events.KindClientGrantsUpdated, events.KindServerStatusChanged:
		return true
	default:
		return false
	}
}

// featureState is the reconciler's record of what it last registered on
// the session server, keyed by qualified name (tools, prompts) or URI
// (resources).
type featureState struct {
	tools     map[string]bool
	prompts   map[string]bool
	resources map[string]bool
}

func newFeatureState() *featureState {
	return &featureState{
		tools:     make(map[string]bool),
		prompts:   make(map[string]bool),
		resources: make(map[string]bool),
	}
}

// syncFeatures diffs the resolver's current allow-set against what was
// last registered and applies the minimal set of Add/Remove calls,
// which is what drives the SDK's list_changed notifications.
func (h *Handler) syncFeatures(ctx context.Context, srv *mcp.Server, tenantID, clientID string, state *featureState) error {
	tools, err := h.router.ListTools(ctx, tenantID, clientID)
	if err != nil {
		return err
	}
	wantTools := make(map[string]bool, len(tools))
	for _, t := range tools {
		wantTools[t.Name] = true
		if !state.tools[t.Name] {
			srv.AddTool(t, h.toolHandler(tenantID, clientID))
		}
	}
	var removedTools []string
	for name := range state.tools {
		if !wantTools[name] {
			removedTools = append(removedTools, name)
		}
	}
	if len(removedTools) > 0 {
		srv.RemoveTools(removedTools...)
	}
	state.tools = wantTools

	prompts, err := h.router.ListPrompts(ctx, tenantID, clientID)
	if err != nil {
		return err
	}
	wantPrompts := make(map[string]bool, len(prompts))
	for _, p := range prompts {
		wantPrompts[p.Name] = true
		if !state.prompts[p.Name] {
			srv.AddPrompt(p, h.promptHandler(tenantID, clientID))
		}
	}
	var removedPrompts []string
	for name := range state.prompts {
		if !wantPrompts[name] {
			removedPrompts = append(removedPrompts, name)
		}
	}
	if len(removedPrompts) > 0 {
		srv.RemovePrompts(removedPrompts...)
	}
	state.prompts = wantPrompts

	resources, err := h.router.ListResources(ctx, tenantID, clientID)
	if err != nil {
		return err
	}
	wantResources := make(map[string]bool, len(resources))
	for _, r := range resources {
		wantResources[r.URI] = true
		if !state.resources[r.URI] {
			srv.AddResource(r, h.resourceHandler(tenantID, clientID))
		}
	}
	var removedResources []string
	for uri := range state.resources {
		if !wantResources[uri] {
			removedResources = append(removedResources, uri)
		}
	}
	if len(removedResources) > 0 {
		srv.RemoveResources(removedResources...)
	}
	state.resources = wantResources

	return nil
}
