package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpmux/gateway/internal/model"
)

type fakeConn struct {
	closed atomic.Bool
}

func (c *fakeConn) Close() error           { c.closed.Store(true); return nil }
func (c *fakeConn) Session() *mcp.ClientSession { return nil }

type countingDialer struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func newCountingDialer() *countingDialer {
	return &countingDialer{release: make(chan struct{})}
}

func (d *countingDialer) Dial(ctx context.Context, srv model.InstalledServer) (Conn, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	select {
	case <-d.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &fakeConn{}, nil
}

func (d *countingDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func TestPool_ConcurrentConnectDedupsToOneDial(t *testing.T) {
	dialer := newCountingDialer()
	p := New(dialer)
	srv := model.InstalledServer{ID: "srv_1", TenantID: "ten_1", Name: "s"}

	const n = 20
	var wg sync.WaitGroup
	outcomes := make([]Outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = p.Connect(context.Background(), srv)
		}(i)
	}

	// Give every goroutine a chance to join the in-flight dial before
	// releasing it, otherwise this just tests sequential dialing.
	time.Sleep(20 * time.Millisecond)
	close(dialer.release)
	wg.Wait()

	assert.Equal(t, 1, dialer.callCount())
	var dialerCount, reusedCount int
	for _, o := range outcomes {
		require.NoError(t, o.Err)
		require.NotNil(t, o.Conn)
		if o.Reused {
			reusedCount++
		} else {
			dialerCount++
		}
	}
	// singleflight.Do's own shared return is true for every caller,
	// including the one that ran the dial, so Connect tracks the actual
	// dialer itself: exactly one caller sees Reused=false.
	assert.Equal(t, 1, dialerCount, "exactly one concurrent caller should report having dialed")
	assert.Equal(t, n-1, reusedCount)
}

func TestPool_GetReturnsCachedConnWithoutDialing(t *testing.T) {
	dialer := newCountingDialer()
	p := New(dialer)
	srv := model.InstalledServer{ID: "srv_1", TenantID: "ten_1", Name: "s"}

	close(dialer.release)
	outcome := p.Connect(context.Background(), srv)
	require.NoError(t, outcome.Err)

	conn, ok := p.Get("ten_1", "srv_1")
	assert.True(t, ok)
	assert.Same(t, outcome.Conn, conn)
	assert.Equal(t, 1, dialer.callCount())
}

func TestPool_DropClosesAndForcesFreshDial(t *testing.T) {
	dialer := newCountingDialer()
	p := New(dialer)
	srv := model.InstalledServer{ID: "srv_1", TenantID: "ten_1", Name: "s"}
	close(dialer.release)

	outcome := p.Connect(context.Background(), srv)
	require.NoError(t, outcome.Err)
	require.NoError(t, p.Drop("ten_1", "srv_1"))

	fc := outcome.Conn.(*fakeConn)
	assert.True(t, fc.closed.Load())

	_, ok := p.Get("ten_1", "srv_1")
	assert.False(t, ok)

	second := p.Connect(context.Background(), srv)
	require.NoError(t, second.Err)
	assert.Equal(t, 2, dialer.callCount())
}

func TestPool_FailedDialIsNotCached(t *testing.T) {
	dialer := &erroringDialer{}
	p := New(dialer)
	srv := model.InstalledServer{ID: "srv_1", TenantID: "ten_1", Name: "s"}

	first := p.Connect(context.Background(), srv)
	require.Error(t, first.Err)

	dialer.succeed = true
	second := p.Connect(context.Background(), srv)
	require.NoError(t, second.Err)
}

type erroringDialer struct {
	succeed bool
}

func (d *erroringDialer) Dial(ctx context.Context, srv model.InstalledServer) (Conn, error) {
	if !d.succeed {
		return nil, assert.AnError
	}
	return &fakeConn{}, nil
}
