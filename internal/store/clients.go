package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mcpmux/gateway/internal/model"
)

func (s *Store) CreateInboundClient(ctx context.Context, c model.InboundClient) error {
	const q = `INSERT INTO inbound_clients
		(id, name, connection_mode, pinned_tenant_id, redirect_uris, client_secret_enc, approved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.db.ExecContext(ctx, q, c.ID, c.Name, c.ConnectionMode, c.PinnedTenantID,
		c.RedirectURIs, c.ClientSecretEnc, c.Approved, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create inbound client: %w", err)
	}
	return nil
}

func (s *Store) GetInboundClient(ctx context.Context, id string) (*model.InboundClient, error) {
	const q = `SELECT id, name, connection_mode, pinned_tenant_id, redirect_uris, client_secret_enc, approved, created_at, updated_at
		FROM inbound_clients WHERE id = $1`
	var c model.InboundClient
	if err := s.db.GetContext(ctx, &c, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("inbound client %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("store: get inbound client: %w", err)
	}
	return &c, nil
}

// GetInboundClientByName looks up a client by its registration name, used
// by RFC 7591 dynamic registration to detect a re-registration under the
// same client_name.
func (s *Store) GetInboundClientByName(ctx context.Context, name string) (*model.InboundClient, error) {
	const q = `SELECT id, name, connection_mode, pinned_tenant_id, redirect_uris, client_secret_enc, approved, created_at, updated_at
		FROM inbound_clients WHERE name = $1`
	var c model.InboundClient
	if err := s.db.GetContext(ctx, &c, q, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("inbound client %q: %w", name, model.ErrNotFound)
		}
		return nil, fmt.Errorf("store: get inbound client by name: %w", err)
	}
	return &c, nil
}

// ApproveInboundClient marks a dynamically-registered client as approved,
// allowing it to complete /authorize and /token from this point on.
func (s *Store) ApproveInboundClient(ctx context.Context, id string) error {
	const q = `UPDATE inbound_clients SET approved = true, updated_at = $2 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, nowFn())
	if err != nil {
		return fmt.Errorf("store: approve inbound client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("inbound client %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// UpdateInboundClientRedirectURIs overwrites a client's registered
// redirect URI set, used when re-registration under the same client_name
// merges in a new redirect URI.
func (s *Store) UpdateInboundClientRedirectURIs(ctx context.Context, id string, uris []string) error {
	const q = `UPDATE inbound_clients SET redirect_uris = $2, updated_at = $3 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, model.StringList(uris), nowFn())
	if err != nil {
		return fmt.Errorf("store: update inbound client redirect uris: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("inbound client %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *Store) ListInboundClients(ctx context.Context) ([]model.InboundClient, error) {
	const q = `SELECT id, name, connection_mode, pinned_tenant_id, redirect_uris, client_secret_enc, approved, created_at, updated_at
		FROM inbound_clients ORDER BY name`
	var cs []model.InboundClient
	if err := s.db.SelectContext(ctx, &cs, q); err != nil {
		return nil, fmt.Errorf("store: list inbound clients: %w", err)
	}
	return cs, nil
}

func (s *Store) UpdateInboundClientConnection(ctx context.Context, id string, mode model.ConnMode, pinnedTenantID *string) error {
	const q = `UPDATE inbound_clients SET connection_mode = $2, pinned_tenant_id = $3, updated_at = $4 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, mode, pinnedTenantID, nowFn())
	if err != nil {
		return fmt.Errorf("store: update inbound client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("inbound client %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *Store) GetAppSetting(ctx context.Context, key string) (string, bool, error) {
	const q = `SELECT value FROM app_settings WHERE key = $1`
	var v string
	if err := s.db.GetContext(ctx, &v, q, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("store: get app setting: %w", err)
	}
	return v, true, nil
}

func (s *Store) SetAppSetting(ctx context.Context, key, value string) error {
	const q = `INSERT INTO app_settings (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, q, key, value, nowFn())
	if err != nil {
		return fmt.Errorf("store: set app setting: %w", err)
	}
	return nil
}

// ConfirmedTenant returns the tenant a client last confirmed under the
// ask_on_change connection mode, read from durable app settings rather
// than in-memory state so it survives a restart.
func (s *Store) ConfirmedTenant(ctx context.Context, clientID string) (string, bool, error) {
	return s.GetAppSetting(ctx, model.ConfirmedTenantSettingKey(clientID))
}

// SetConfirmedTenant persists a client's confirmed tenant choice.
func (s *Store) SetConfirmedTenant(ctx context.Context, clientID, tenantID string) error {
	return s.SetAppSetting(ctx, model.ConfirmedTenantSettingKey(clientID), tenantID)
}
