// Package servermanager owns the per-(tenant,server) connection state
// machine: Disconnected -> Connecting -> {Connected|AuthRequired|Error} ->
// Disconnecting -> Disconnected, driving internal/pool and publishing
// transitions on internal/events.
package servermanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcpmux/gateway/internal/events"
	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/pool"
	"github.com/mcpmux/gateway/internal/schema"
	"github.com/mcpmux/gateway/internal/store"
	"github.com/mcpmux/gateway/internal/workerpool"
)

// schemaValidationConcurrency bounds how many tool schemas a single
// discovery pass resolves at once.
const schemaValidationConcurrency = 8

// FeatureDiscoverer lists tools/prompts/resources from a live connection,
// implemented by internal/router using the go-sdk client session.
type FeatureDiscoverer interface {
	Discover(ctx context.Context, srv model.InstalledServer, conn pool.Conn) ([]model.ServerFeature, error)
}

// Manager tracks connection state for every installed server and
// coordinates (re)connection through the Pool.
type Manager struct {
	pool     *pool.Pool
	store    *store.Store
	bus      *events.Bus
	discover FeatureDiscoverer
	validate *workerpool.Pool
	log      *zap.Logger

	mu     sync.RWMutex
	states map[string]model.ServerState // key: tenantID+"/"+serverID
}

// New builds a Manager.
func New(p *pool.Pool, st *store.Store, bus *events.Bus, discoverer FeatureDiscoverer, log *zap.Logger) *Manager {
	return &Manager{
		pool: p, store: st, bus: bus, discover: discoverer, log: log,
		validate: workerpool.New(schemaValidationConcurrency),
		states:   make(map[string]model.ServerState),
	}
}

func stateKey(srv model.InstalledServer) string { return srv.TenantID + "/" + srv.ID }

// State returns the current connection state for an installed server,
// defaulting to Disconnected if never connected.
func (m *Manager) State(srv model.InstalledServer) model.ServerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.states[stateKey(srv)]; ok {
		return s
	}
	return model.StateDisconnected
}

func (m *Manager) setState(srv model.InstalledServer, s model.ServerState) {
	m.mu.Lock()
	m.states[stateKey(srv)] = s
	m.mu.Unlock()
	m.bus.Publish(events.Event{
		Kind: events.KindServerStatusChanged, TenantID: srv.TenantID, ServerID: srv.ID, Payload: s,
	})
}

// Ensure connects an installed server if it is not already connected or
// connecting, discovers its features on a fresh connection, and persists
// them. Safe to call concurrently; the Pool's dial gate deduplicates
// concurrent dials for the same server.
func (m *Manager) Ensure(ctx context.Context, srv model.InstalledServer) error {
	switch m.State(srv) {
	case model.StateConnected, model.StateConnecting:
		return nil
	}

	m.setState(srv, model.StateConnecting)

	outcome := m.pool.Connect(ctx, srv)
	if outcome.Err != nil {
		if isAuthError(outcome.Err) {
			m.setState(srv, model.StateAuthRequired)
		} else {
			m.setState(srv, model.StateError)
		}
		return outcome.Err
	}

	if !outcome.Reused {
		features, err := m.discover.Discover(ctx, srv, outcome.Conn)
		if err != nil {
			m.setState(srv, model.StateError)
			return fmt.Errorf("servermanager: discover %s: %w", srv.ID, err)
		}

		features, schemaErrs := schema.ValidateTools(ctx, m.validate, features)
		for _, schemaErr := range schemaErrs {
			m.log.Warn("dropping tool with invalid input schema", zap.Error(schemaErr), zap.String("server_id", srv.ID))
		}

		if err := m.store.ReplaceServerFeatures(ctx, srv.ID, features); err != nil {
			m.setState(srv, model.StateError)
			return fmt.Errorf("servermanager: persist features for %s: %w", srv.ID, err)
		}
		m.bus.Publish(events.Event{Kind: events.KindFeaturesDiscovered, TenantID: srv.TenantID, ServerID: srv.ID})
	}

	m.setState(srv, model.StateConnected)
	return nil
}

// Disconnect tears down an installed server's live connection.
func (m *Manager) Disconnect(srv model.InstalledServer) error {
	m.setState(srv, model.StateDisconnecting)
	err := m.pool.Drop(srv.TenantID, srv.ID)
	m.setState(srv, model.StateDisconnected)
	return err
}

// Reconnect forces a fresh dial, used after an upstream credential is
// refreshed or the user explicitly asks to retry an AuthRequired/Error
// server.
func (m *Manager) Reconnect(ctx context.Context, srv model.InstalledServer) error {
	_ = m.pool.Drop(srv.TenantID, srv.ID)
	m.mu.Lock()
	delete(m.states, stateKey(srv))
	m.mu.Unlock()
	return m.Ensure(ctx, srv)
}

func isAuthError(err error) bool {
	return errors.Is(err, model.ErrUpstreamAuth)
}

// WaitHealthy blocks until srv reaches Connected or a terminal failure
// state, or the context expires. Used by startup sequencing and tests.
func (m *Manager) WaitHealthy(ctx context.Context, srv model.InstalledServer, poll time.Duration) (model.ServerState, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		switch s := m.State(srv); s {
		case model.StateConnected, model.StateAuthRequired, model.StateError:
			return s, nil
		}
		select {
		case <-ctx.Done():
			return m.State(srv), ctx.Err()
		case <-ticker.C:
		}
	}
}
