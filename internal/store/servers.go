package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mcpmux/gateway/internal/model"
)

func (s *Store) CreateInstalledServer(ctx context.Context, srv model.InstalledServer) error {
	const q = `INSERT INTO installed_servers
		(id, tenant_id, name, source, transport, command, url, alias, input_values_enc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.db.ExecContext(ctx, q, srv.ID, srv.TenantID, srv.Name, srv.Source, srv.Transport,
		srv.Command, srv.URL, srv.Alias, srv.InputValues, srv.CreatedAt, srv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create installed server: %w", err)
	}
	return nil
}

func (s *Store) GetInstalledServer(ctx context.Context, id string) (*model.InstalledServer, error) {
	const q = `SELECT id, tenant_id, name, source, transport, command, url, alias, input_values_enc, created_at, updated_at
		FROM installed_servers WHERE id = $1`
	var srv model.InstalledServer
	if err := s.db.GetContext(ctx, &srv, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("installed server %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("store: get installed server: %w", err)
	}
	return &srv, nil
}

func (s *Store) ListInstalledServers(ctx context.Context, tenantID string) ([]model.InstalledServer, error) {
	const q = `SELECT id, tenant_id, name, source, transport, command, url, alias, input_values_enc, created_at, updated_at
		FROM installed_servers WHERE tenant_id = $1 ORDER BY name`
	var srvs []model.InstalledServer
	if err := s.db.SelectContext(ctx, &srvs, q, tenantID); err != nil {
		return nil, fmt.Errorf("store: list installed servers: %w", err)
	}
	return srvs, nil
}

func (s *Store) DeleteInstalledServer(ctx context.Context, id string) error {
	const q = `DELETE FROM installed_servers WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("store: delete installed server: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("installed server %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// ReplaceServerFeatures atomically swaps a server's discovered feature
// set, used by the Server Manager after every successful (re)discovery.
func (s *Store) ReplaceServerFeatures(ctx context.Context, serverID string, features []model.ServerFeature) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, `DELETE FROM server_features WHERE server_id = $1`, serverID); err != nil {
		return fmt.Errorf("store: clear server features: %w", err)
	}

	const ins = `INSERT INTO server_features (id, server_id, kind, name, prefix, raw_json, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, f := range features {
		if _, err := tx.ExecContext(ctx, ins, f.ID, f.ServerID, f.Kind, f.Name, f.Prefix, f.RawJSON, f.DiscoveredAt); err != nil {
			return fmt.Errorf("store: insert server feature: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit server features: %w", err)
	}
	return nil
}

func (s *Store) ListServerFeatures(ctx context.Context, serverID string) ([]model.ServerFeature, error) {
	const q = `SELECT id, server_id, kind, name, prefix, raw_json, discovered_at
		FROM server_features WHERE server_id = $1 ORDER BY kind, name`
	var fs []model.ServerFeature
	if err := s.db.SelectContext(ctx, &fs, q, serverID); err != nil {
		return nil, fmt.Errorf("store: list server features: %w", err)
	}
	return fs, nil
}

// ListTenantFeatures returns every feature across every installed server
// of a tenant, used by the Permission Resolver and the Router's prefix
// cache warm-up.
func (s *Store) ListTenantFeatures(ctx context.Context, tenantID string) ([]model.ServerFeature, error) {
	const q = `SELECT sf.id, sf.server_id, sf.kind, sf.name, sf.prefix, sf.raw_json, sf.discovered_at
		FROM server_features sf
		JOIN installed_servers s ON s.id = sf.server_id
		WHERE s.tenant_id = $1
		ORDER BY sf.kind, sf.name`
	var fs []model.ServerFeature
	if err := s.db.SelectContext(ctx, &fs, q, tenantID); err != nil {
		return nil, fmt.Errorf("store: list tenant features: %w", err)
	}
	return fs, nil
}

// rollback is a no-op when the transaction already committed, and a
// rollback whose error is ignored otherwise.
func rollback(tx *sqlx.Tx) {
	_ = tx.Rollback()
}
