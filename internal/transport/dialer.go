package transport

import (
	"context"
	"fmt"

	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/pool"
)

// MultiDialer implements pool.Dialer by routing to StdioDialer or
// HTTPDialer based on an installed server's configured transport.
type MultiDialer struct {
	Stdio *StdioDialer
	HTTP  *HTTPDialer
}

var _ pool.Dialer = (*MultiDialer)(nil)

func (d *MultiDialer) Dial(ctx context.Context, srv model.InstalledServer) (pool.Conn, error) {
	switch srv.Transport {
	case model.TransportStdio:
		return d.Stdio.Dial(ctx, srv)
	case model.TransportHTTP, model.TransportSSE:
		return d.HTTP.Dial(ctx, srv)
	default:
		return nil, fmt.Errorf("transport: server %s has unknown transport %q", srv.ID, srv.Transport)
	}
}
