package inbound

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/store"
)

func newTestHandler(t *testing.T) (*Handler, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), zaptest.NewLogger(t), store.WithDatabaseFile(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return &Handler{store: st, log: zaptest.NewLogger(t)}, st
}

func TestResolveTenantForClient_Pinned(t *testing.T) {
	h, _ := newTestHandler(t)
	pinned := "ten_pinned"
	client := model.InboundClient{ID: "c1", ConnectionMode: model.ConnModePinned, PinnedTenantID: &pinned}

	got, err := h.resolveTenantForClient(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, pinned, got)
}

func TestResolveTenantForClient_PinnedWithoutTenantIsAnError(t *testing.T) {
	h, _ := newTestHandler(t)
	client := model.InboundClient{ID: "c1", ConnectionMode: model.ConnModePinned}

	_, err := h.resolveTenantForClient(context.Background(), client)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestResolveTenantForClient_AskOnChangeUsesConfirmedTenant(t *testing.T) {
	h, st := newTestHandler(t)
	require.NoError(t, st.SetConfirmedTenant(context.Background(), "c1", "ten_confirmed"))
	client := model.InboundClient{ID: "c1", ConnectionMode: model.ConnModeAskOnChange}

	got, err := h.resolveTenantForClient(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, "ten_confirmed", got)
}

func TestResolveTenantForClient_AskOnChangeFallsBackToActive(t *testing.T) {
	h, st := newTestHandler(t)
	now := func() time.Time { return time.Now() }
	activeID, err := st.ActiveTenantID(context.Background(), now)
	require.NoError(t, err)

	client := model.InboundClient{ID: "c1", ConnectionMode: model.ConnModeAskOnChange}
	got, err := h.resolveTenantForClient(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, activeID, got)
}

func TestResolveTenantForClient_FollowActive(t *testing.T) {
	h, st := newTestHandler(t)
	now := func() time.Time { return time.Now() }
	activeID, err := st.ActiveTenantID(context.Background(), now)
	require.NoError(t, err)

	client := model.InboundClient{ID: "c1", ConnectionMode: model.ConnModeFollowActive}
	got, err := h.resolveTenantForClient(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, activeID, got)
}
