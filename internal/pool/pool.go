// Package pool implements the outbound connection pool's dial gate:
// at most one concurrent dial per (tenant, server), with later callers
// joining the in-flight dial instead of starting their own, built around
// golang.org/x/sync/singleflight keyed on (tenantID, serverID).
// Outcome.Reused tells callers whether they triggered the dial or joined
// one in flight; it is set from inside the dial closure, not from
// singleflight's shared return value.
package pool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/codes"

	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/telemetry"
)

// Conn is a live outbound connection to an installed server. The Router
// and Server Manager consume this; the concrete client implementation
// lives in internal/transport.
type Conn interface {
	Close() error
	Session() *mcp.ClientSession
}

// Dialer dials a fresh connection for an installed server. Implemented by
// internal/transport for stdio and HTTP/SSE servers.
type Dialer interface {
	Dial(ctx context.Context, srv model.InstalledServer) (Conn, error)
}

type key struct {
	tenantID string
	serverID string
}

func (k key) String() string { return k.tenantID + "/" + k.serverID }

// Outcome is the result of a Connect call, including whether the caller
// joined an already in-flight or already-completed dial.
type Outcome struct {
	Conn   Conn
	Reused bool
	Err    error
}

// Pool is the gateway's single outbound connection pool.
type Pool struct {
	dialer Dialer

	group singleflight.Group

	mu    sync.RWMutex
	conns map[key]Conn
}

// New builds a Pool around the given Dialer.
func New(dialer Dialer) *Pool {
	return &Pool{dialer: dialer, conns: make(map[key]Conn)}
}

// Connect returns the live connection for (tenantID, serverID), dialing
// it if necessary. Concurrent callers for the same key observe exactly
// one dial attempt; all but the dialing goroutine get Reused=true.
func (p *Pool) Connect(ctx context.Context, srv model.InstalledServer) Outcome {
	k := key{tenantID: srv.TenantID, serverID: srv.ID}

	p.mu.RLock()
	if c, ok := p.conns[k]; ok {
		p.mu.RUnlock()
		return Outcome{Conn: c, Reused: true}
	}
	p.mu.RUnlock()

	// singleflight's own "shared" result is true for every caller of a
	// call in flight, including the one whose function actually ran, so
	// it cannot tell the dialer apart from a joiner. dialed is set by
	// whichever goroutine's closure actually executes the dial.
	var dialed bool
	v, err, _ := p.group.Do(k.String(), func() (any, error) {
		dialed = true
		dialCtx, span := telemetry.StartDialSpan(ctx, srv.Name)
		defer span.End()

		c, err := p.dialer.Dial(dialCtx, srv)
		if err != nil {
			span.SetStatus(codes.Error, "dial failed")
			return nil, err
		}
		span.SetStatus(codes.Ok, "")

		p.mu.Lock()
		p.conns[k] = c
		p.mu.Unlock()
		return c, nil
	})
	if err != nil {
		// Remove the failed cell so the next caller gets a fresh dial
		// attempt instead of a cached failure.
		p.group.Forget(k.String())
		return Outcome{Err: fmt.Errorf("pool: dial %s: %w", k, err)}
	}
	return Outcome{Conn: v.(Conn), Reused: !dialed}
}

// Drop closes and removes a connection, used when the Router or Server
// Manager observes an unrecoverable transport error and wants the next
// Connect call to dial fresh.
func (p *Pool) Drop(tenantID, serverID string) error {
	k := key{tenantID: tenantID, serverID: serverID}
	p.mu.Lock()
	c, ok := p.conns[k]
	delete(p.conns, k)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return c.Close()
}

// Get returns the current connection for a key without dialing, used by
// callers that must not trigger a dial (e.g. a health probe).
func (p *Pool) Get(tenantID, serverID string) (Conn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.conns[key{tenantID: tenantID, serverID: serverID}]
	return c, ok
}

// CloseAll closes every live connection, used at shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, c := range p.conns {
		_ = c.Close()
		delete(p.conns, k)
	}
}
