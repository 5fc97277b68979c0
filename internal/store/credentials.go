package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mcpmux/gateway/internal/model"
)

func (s *Store) UpsertCredential(ctx context.Context, c model.Credential) error {
	const q = `INSERT INTO credentials (id, tenant_id, server_id, kind, value_enc, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT(tenant_id, server_id, kind) DO UPDATE SET
			value_enc = excluded.value_enc, expires_at = excluded.expires_at, updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, q, c.ID, c.TenantID, c.ServerID, c.Kind, c.ValueEnc, c.ExpiresAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert credential: %w", err)
	}
	return nil
}

func (s *Store) GetCredential(ctx context.Context, tenantID, serverID string, kind model.CredentialKind) (*model.Credential, error) {
	const q = `SELECT id, tenant_id, server_id, kind, value_enc, expires_at, created_at, updated_at
		FROM credentials WHERE tenant_id = $1 AND server_id = $2 AND kind = $3`
	var c model.Credential
	if err := s.db.GetContext(ctx, &c, q, tenantID, serverID, kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential %s/%s/%s: %w", tenantID, serverID, kind, model.ErrNotFound)
		}
		return nil, fmt.Errorf("store: get credential: %w", err)
	}
	return &c, nil
}

func (s *Store) DeleteCredential(ctx context.Context, tenantID, serverID string, kind model.CredentialKind) error {
	const q = `DELETE FROM credentials WHERE tenant_id = $1 AND server_id = $2 AND kind = $3`
	_, err := s.db.ExecContext(ctx, q, tenantID, serverID, kind)
	if err != nil {
		return fmt.Errorf("store: delete credential: %w", err)
	}
	return nil
}

func (s *Store) UpsertOutboundOAuthRegistration(ctx context.Context, r model.OutboundOAuthRegistration) error {
	const q = `INSERT INTO outbound_oauth_registrations
		(id, tenant_id, server_id, client_id, client_secret_enc, scopes, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT(tenant_id, server_id) DO UPDATE SET
			client_id = excluded.client_id, client_secret_enc = excluded.client_secret_enc,
			scopes = excluded.scopes, registered_at = excluded.registered_at`
	_, err := s.db.ExecContext(ctx, q, r.ID, r.TenantID, r.ServerID, r.ClientID, r.ClientSecret, r.Scopes, r.RegisteredAt)
	if err != nil {
		return fmt.Errorf("store: upsert outbound oauth registration: %w", err)
	}
	return nil
}

func (s *Store) GetOutboundOAuthRegistration(ctx context.Context, tenantID, serverID string) (*model.OutboundOAuthRegistration, error) {
	const q = `SELECT id, tenant_id, server_id, client_id, client_secret_enc, scopes, registered_at
		FROM outbound_oauth_registrations WHERE tenant_id = $1 AND server_id = $2`
	var r model.OutboundOAuthRegistration
	if err := s.db.GetContext(ctx, &r, q, tenantID, serverID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("outbound oauth registration %s/%s: %w", tenantID, serverID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("store: get outbound oauth registration: %w", err)
	}
	return &r, nil
}
