package servermanager

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mcpmux/gateway/internal/events"
	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/pool"
	"github.com/mcpmux/gateway/internal/store"
)

type fakeConn struct{}

func (fakeConn) Close() error                    { return nil }
func (fakeConn) Session() *mcp.ClientSession { return nil }

type fakeDialer struct {
	err error
}

func (d *fakeDialer) Dial(ctx context.Context, srv model.InstalledServer) (pool.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return fakeConn{}, nil
}

type fakeDiscoverer struct {
	features []model.ServerFeature
	err      error
	calls    int
}

func (d *fakeDiscoverer) Discover(ctx context.Context, srv model.InstalledServer, conn pool.Conn) ([]model.ServerFeature, error) {
	d.calls++
	return d.features, d.err
}

func newTestManager(t *testing.T, dialer *fakeDialer, disc *fakeDiscoverer) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), zaptest.NewLogger(t), store.WithDatabaseFile(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	now := time.Now().UTC()
	require.NoError(t, st.CreateTenant(context.Background(), model.Tenant{ID: "ten_1", Name: "T", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, st.CreateInstalledServer(context.Background(), model.InstalledServer{
		ID: "srv_1", TenantID: "ten_1", Name: "s", Source: model.ServerSrcManual,
		Transport: model.TransportStdio, CreatedAt: now, UpdatedAt: now,
	}))

	p := pool.New(dialer)
	bus := events.New(zaptest.NewLogger(t))
	mgr := New(p, st, bus, disc, zaptest.NewLogger(t))
	return mgr, st
}

func testServer() model.InstalledServer {
	return model.InstalledServer{ID: "srv_1", TenantID: "ten_1", Name: "s"}
}

func TestEnsure_SuccessfulConnectDiscoversAndPersistsFeatures(t *testing.T) {
	disc := &fakeDiscoverer{features: []model.ServerFeature{
		{ID: "feat_1", ServerID: "srv_1", Kind: model.FeatureTool, Name: "t", RawJSON: model.RawJSON(`{"name":"t"}`)},
	}}
	mgr, st := newTestManager(t, &fakeDialer{}, disc)
	srv := testServer()

	err := mgr.Ensure(context.Background(), srv)
	require.NoError(t, err)
	assert.Equal(t, model.StateConnected, mgr.State(srv))
	assert.Equal(t, 1, disc.calls)

	features, err := st.ListTenantFeatures(context.Background(), "ten_1")
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "t", features[0].Name)
}

func TestEnsure_AlreadyConnectedIsANoop(t *testing.T) {
	disc := &fakeDiscoverer{}
	mgr, _ := newTestManager(t, &fakeDialer{}, disc)
	srv := testServer()

	require.NoError(t, mgr.Ensure(context.Background(), srv))
	require.NoError(t, mgr.Ensure(context.Background(), srv))
	assert.Equal(t, 1, disc.calls)
}

func TestEnsure_DialFailureSetsErrorState(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeDialer{err: fmt.Errorf("boom")}, &fakeDiscoverer{})
	srv := testServer()

	err := mgr.Ensure(context.Background(), srv)
	assert.Error(t, err)
	assert.Equal(t, model.StateError, mgr.State(srv))
}

func TestEnsure_AuthErrorSetsAuthRequiredState(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeDialer{err: model.ErrUpstreamAuth}, &fakeDiscoverer{})
	srv := testServer()

	err := mgr.Ensure(context.Background(), srv)
	assert.Error(t, err)
	assert.Equal(t, model.StateAuthRequired, mgr.State(srv))
}

func TestDisconnect_DropsConnectionAndResetsState(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeDialer{}, &fakeDiscoverer{})
	srv := testServer()
	require.NoError(t, mgr.Ensure(context.Background(), srv))

	require.NoError(t, mgr.Disconnect(srv))
	assert.Equal(t, model.StateDisconnected, mgr.State(srv))
}

func TestReconnect_RediscoversFeaturesEvenIfAlreadyConnected(t *testing.T) {
	disc := &fakeDiscoverer{}
	mgr, _ := newTestManager(t, &fakeDialer{}, disc)
	srv := testServer()

	require.NoError(t, mgr.Ensure(context.Background(), srv))
	assert.Equal(t, 1, disc.calls)

	require.NoError(t, mgr.Reconnect(context.Background(), srv))
	assert.Equal(t, 2, disc.calls)
}

func TestWaitHealthy_ReturnsOnceConnected(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeDialer{}, &fakeDiscoverer{})
	srv := testServer()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = mgr.Ensure(context.Background(), srv)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	state, err := mgr.WaitHealthy(ctx, srv, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, model.StateConnected, state)
}

func TestWaitHealthy_ReturnsContextErrorOnTimeout(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeDialer{}, &fakeDiscoverer{})
	srv := testServer()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := mgr.WaitHealthy(ctx, srv, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
