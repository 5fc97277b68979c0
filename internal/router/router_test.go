package router

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mcpmux/gateway/internal/events"
	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/permissions"
	"github.com/mcpmux/gateway/internal/pool"
	"github.com/mcpmux/gateway/internal/servermanager"
	"github.com/mcpmux/gateway/internal/store"
)

// sessionConn wraps a real in-process MCP client session as a pool.Conn,
// so tests exercise the router's dispatch logic against a live SDK
// session instead of a fake.
type sessionConn struct {
	session *mcp.ClientSession
}

func (c sessionConn) Close() error                  { return c.session.Close() }
func (c sessionConn) Session() *mcp.ClientSession { return c.session }

// staticDialer always hands back a pre-connected conn, regardless of which
// installed server is being dialed.
type staticDialer struct {
	conn pool.Conn
	err  error
}

func (d *staticDialer) Dial(ctx context.Context, srv model.InstalledServer) (pool.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

// fakeDiscoverer returns a fixed feature list regardless of the live
// connection, since the features under test are registered directly on
// the in-memory MCP server rather than discovered from it.
type fakeDiscoverer struct {
	features []model.ServerFeature
}

func (d *fakeDiscoverer) Discover(ctx context.Context, srv model.InstalledServer, conn pool.Conn) ([]model.ServerFeature, error) {
	return d.features, nil
}

// newEchoSession starts a real in-process MCP server exposing a single
// "echo" tool and returns a connected client session for it.
func newEchoSession(t *testing.T) *mcp.ClientSession {
	t.Helper()

	srv := mcp.NewServer(&mcp.Implementation{Name: "test-upstream", Version: "0.0.1"}, &mcp.ServerOptions{
		HasTools: true,
	})
	srv.AddTool(&mcp.Tool{Name: "echo", Description: "echoes its input back"},
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "echoed"}}}, nil
		})

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = srv.Run(ctx, serverTransport)
	}()
	t.Cleanup(cancel)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

type testEnv struct {
	router  *Router
	manager *servermanager.Manager
	store   *store.Store
	srv     model.InstalledServer
}

func newTestEnv(t *testing.T, dialer pool.Dialer, discoverer servermanager.FeatureDiscoverer) *testEnv {
	t.Helper()
	st, err := store.Open(context.Background(), zaptest.NewLogger(t), store.WithDatabaseFile(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	now := time.Now().UTC()
	require.NoError(t, st.CreateTenant(context.Background(), model.Tenant{ID: "ten_1", Name: "T", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, st.EnsureBuiltinFeatureSets(context.Background(), "ten_1", func() time.Time { return now }))
	require.NoError(t, st.CreateInboundClient(context.Background(), model.InboundClient{
		ID: "cli_1", Name: "test-client", ConnectionMode: model.ConnModeFollowActive, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, st.CreateGrant(context.Background(), model.Grant{
		ID: "grant_1", TenantID: "ten_1", ClientID: "cli_1", FeatureSetID: model.AllFeatureSetID("ten_1"), CreatedAt: now,
	}))

	srv := model.InstalledServer{
		ID: "srv_1", TenantID: "ten_1", Name: "upstream", Source: model.ServerSrcManual,
		Transport: model.TransportStdio, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.CreateInstalledServer(context.Background(), srv))

	p := pool.New(dialer)
	bus := events.New(zaptest.NewLogger(t))
	mgr := servermanager.New(p, st, bus, discoverer, zaptest.NewLogger(t))
	resolver := permissions.New(st, zaptest.NewLogger(t))
	r := New(st, resolver, p, mgr)

	return &testEnv{router: r, manager: mgr, store: st, srv: srv}
}

func TestRouter_CallToolDispatchesToLiveSession(t *testing.T) {
	session := newEchoSession(t)
	dialer := &staticDialer{conn: sessionConn{session: session}}
	disc := &fakeDiscoverer{features: []model.ServerFeature{
		{ID: "feat_1", ServerID: "srv_1", Kind: model.FeatureTool, Name: "echo", RawJSON: model.RawJSON(`{"name":"echo"}`), DiscoveredAt: time.Now().UTC()},
	}}
	env := newTestEnv(t, dialer, disc)

	require.NoError(t, env.manager.Ensure(context.Background(), env.srv))

	tools, err := env.router.ListTools(context.Background(), "ten_1", "cli_1")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "srv_1_echo", tools[0].Name, "a server with no alias falls back to its normalized server ID")

	result, err := env.router.CallTool(context.Background(), "ten_1", "cli_1", &mcp.CallToolParams{Name: tools[0].Name})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "echoed", text.Text)
}

func TestRouter_CallToolRejectsUnknownQualifiedName(t *testing.T) {
	session := newEchoSession(t)
	dialer := &staticDialer{conn: sessionConn{session: session}}
	disc := &fakeDiscoverer{features: []model.ServerFeature{
		{ID: "feat_1", ServerID: "srv_1", Kind: model.FeatureTool, Name: "echo", RawJSON: model.RawJSON(`{"name":"echo"}`), DiscoveredAt: time.Now().UTC()},
	}}
	env := newTestEnv(t, dialer, disc)
	require.NoError(t, env.manager.Ensure(context.Background(), env.srv))

	_, err := env.router.CallTool(context.Background(), "ten_1", "cli_1", &mcp.CallToolParams{Name: "does-not-exist"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPermissionDenied)
}

func TestRouter_CallToolSurfacesDialFailureAsReconnectResult(t *testing.T) {
	dialer := &staticDialer{err: assert.AnError}
	disc := &fakeDiscoverer{features: []model.ServerFeature{
		{ID: "feat_1", ServerID: "srv_1", Kind: model.FeatureTool, Name: "echo", RawJSON: model.RawJSON(`{"name":"echo"}`), DiscoveredAt: time.Now().UTC()},
	}}
	env := newTestEnv(t, dialer, disc)

	// Seed the feature directly since Ensure never succeeds with a failing
	// dialer and so never gets to persist discovered features.
	require.NoError(t, env.store.ReplaceServerFeatures(context.Background(), "srv_1", disc.features))

	result, err := env.router.CallTool(context.Background(), "ten_1", "cli_1", &mcp.CallToolParams{Name: "srv_1_echo"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "requires reconnection")
}

func TestPrefixCache_NoAliasFallsBackToNormalizedServerID(t *testing.T) {
	c := NewPrefixCache()
	now := time.Now().UTC()
	c.Resolve("ten_1", []model.InstalledServer{
		{ID: "catalog/github", CreatedAt: now},
	})

	assert.Equal(t, "catalog.github", c.PrefixFor("ten_1", "catalog/github"))
}

func TestPrefixCache_EarlierInstalledAliasWinsOnCollision(t *testing.T) {
	c := NewPrefixCache()
	now := time.Now().UTC()
	gh := "gh"
	servers := []model.InstalledServer{
		{ID: "srv_a", Alias: &gh, CreatedAt: now},
		{ID: "srv_b", Alias: &gh, CreatedAt: now.Add(time.Minute)},
	}
	c.Resolve("ten_1", servers)

	assert.Equal(t, "gh", c.PrefixFor("ten_1", "srv_a"), "the first server to declare an alias keeps it")
	assert.Equal(t, "srv_b", c.PrefixFor("ten_1", "srv_b"), "the later colliding server falls back to its normalized ID")
}

func TestPrefixCache_AliasAndNormalizedIDDoNotCollide(t *testing.T) {
	c := NewPrefixCache()
	now := time.Now().UTC()
	alias := "srv_b" // deliberately equal to another server's normalized ID
	c.Resolve("ten_1", []model.InstalledServer{
		{ID: "srv_b", CreatedAt: now},
		{ID: "srv_a", Alias: &alias, CreatedAt: now.Add(time.Minute)},
	})

	assert.Equal(t, "srv_b", c.PrefixFor("ten_1", "srv_b"))
	assert.Equal(t, "srv_a", c.PrefixFor("ten_1", "srv_a"), "an alias colliding with another server's fallback prefix falls back to the raw ID")
}

func TestPrefixCache_TenantsAreIsolated(t *testing.T) {
	c := NewPrefixCache()
	now := time.Now().UTC()
	gh := "gh"
	c.Resolve("ten_1", []model.InstalledServer{{ID: "srv_a", Alias: &gh, CreatedAt: now}})
	c.Resolve("ten_2", []model.InstalledServer{{ID: "srv_z", Alias: &gh, CreatedAt: now}})

	assert.Equal(t, "gh", c.PrefixFor("ten_1", "srv_a"))
	assert.Equal(t, "gh", c.PrefixFor("ten_2", "srv_z"), "the same alias may be claimed independently by each tenant")
}
