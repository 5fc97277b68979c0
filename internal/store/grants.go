package store

import (
	"context"
	"fmt"

	"github.com/mcpmux/gateway/internal/model"
)

func (s *Store) CreateGrant(ctx context.Context, g model.Grant) error {
	const q = `INSERT INTO grants (id, tenant_id, client_id, feature_set_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT(tenant_id, client_id, feature_set_id) DO NOTHING`
	_, err := s.db.ExecContext(ctx, q, g.ID, g.TenantID, g.ClientID, g.FeatureSetID, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create grant: %w", err)
	}
	return nil
}

func (s *Store) RevokeGrant(ctx context.Context, tenantID, clientID, featureSetID string) error {
	const q = `DELETE FROM grants WHERE tenant_id = $1 AND client_id = $2 AND feature_set_id = $3`
	_, err := s.db.ExecContext(ctx, q, tenantID, clientID, featureSetID)
	if err != nil {
		return fmt.Errorf("store: revoke grant: %w", err)
	}
	return nil
}

// ListClientGrants returns the feature sets directly granted to a client
// within a tenant. The Permission Resolver expands these into a concrete
// allow/exclude set over individual features.
func (s *Store) ListClientGrants(ctx context.Context, tenantID, clientID string) ([]model.Grant, error) {
	const q = `SELECT id, tenant_id, client_id, feature_set_id, created_at
		FROM grants WHERE tenant_id = $1 AND client_id = $2`
	var gs []model.Grant
	if err := s.db.SelectContext(ctx, &gs, q, tenantID, clientID); err != nil {
		return nil, fmt.Errorf("store: list client grants: %w", err)
	}
	return gs, nil
}
