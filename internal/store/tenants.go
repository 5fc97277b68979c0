package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mcpmux/gateway/internal/model"
)

func (s *Store) CreateTenant(ctx context.Context, t model.Tenant) error {
	const q = `INSERT INTO tenants (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`
	_, err := s.db.ExecContext(ctx, q, t.ID, t.Name, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create tenant: %w", err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	const q = `SELECT id, name, created_at, updated_at FROM tenants WHERE id = $1`
	var t model.Tenant
	if err := s.db.GetContext(ctx, &t, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tenant %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("store: get tenant: %w", err)
	}
	return &t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	const q = `SELECT id, name, created_at, updated_at FROM tenants ORDER BY name`
	var ts []model.Tenant
	if err := s.db.SelectContext(ctx, &ts, q); err != nil {
		return nil, fmt.Errorf("store: list tenants: %w", err)
	}
	return ts, nil
}

func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	const q = `DELETE FROM tenants WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("store: delete tenant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tenant %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// activeTenantSettingKey is the AppSetting key holding the tenant that
// follow_active inbound clients resolve to. The gateway tracks the
// "exactly one active tenant" invariant as a single AppSetting row instead
// of a per-tenant boolean column, so switching the active tenant is one
// write rather than a two-row transaction clearing the old default.
const activeTenantSettingKey = "gateway.active_tenant"

// ActiveTenantID returns the tenant that follow_active inbound clients
// currently resolve to, creating and activating a tenant named "Default"
// if none has ever been activated.
func (s *Store) ActiveTenantID(ctx context.Context, now func() time.Time) (string, error) {
	if v, ok, err := s.GetAppSetting(ctx, activeTenantSettingKey); err != nil {
		return "", err
	} else if ok {
		return v, nil
	}

	tenants, err := s.ListTenants(ctx)
	if err != nil {
		return "", err
	}
	if len(tenants) > 0 {
		if err := s.SetActiveTenantID(ctx, tenants[0].ID); err != nil {
			return "", err
		}
		return tenants[0].ID, nil
	}

	t := model.Tenant{ID: "ten_default", Name: "Default", CreatedAt: now(), UpdatedAt: now()}
	if err := s.CreateTenant(ctx, t); err != nil {
		return "", err
	}
	if err := s.EnsureBuiltinFeatureSets(ctx, t.ID, now); err != nil {
		return "", err
	}
	if err := s.SetActiveTenantID(ctx, t.ID); err != nil {
		return "", err
	}
	return t.ID, nil
}

// SetActiveTenantID activates a tenant for every follow_active inbound
// client. It publishes no event, and no caller in this module publishes
// events.KindSpaceActivated after it, so open inbound sessions are not
// notified of the change.
func (s *Store) SetActiveTenantID(ctx context.Context, tenantID string) error {
	return s.SetAppSetting(ctx, activeTenantSettingKey, tenantID)
}
