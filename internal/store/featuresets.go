package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mcpmux/gateway/internal/model"
)

func (s *Store) CreateFeatureSet(ctx context.Context, fs model.FeatureSet) error {
	const q = `INSERT INTO feature_sets
		(id, tenant_id, name, description, icon, feature_set_type, server_id, is_builtin, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.db.ExecContext(ctx, q, fs.ID, fs.TenantID, fs.Name, fs.Description, fs.Icon,
		fs.Type, fs.ServerID, fs.IsBuiltin, fs.IsDeleted, fs.CreatedAt, fs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create feature set: %w", err)
	}
	return nil
}

func (s *Store) GetFeatureSet(ctx context.Context, id string) (*model.FeatureSet, error) {
	const q = `SELECT id, tenant_id, name, description, icon, feature_set_type, server_id, is_builtin, is_deleted, created_at, updated_at
		FROM feature_sets WHERE id = $1 AND is_deleted = 0`
	var fs model.FeatureSet
	if err := s.db.GetContext(ctx, &fs, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("feature set %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("store: get feature set: %w", err)
	}
	return &fs, nil
}

func (s *Store) ListFeatureSets(ctx context.Context, tenantID string) ([]model.FeatureSet, error) {
	const q = `SELECT id, tenant_id, name, description, icon, feature_set_type, server_id, is_builtin, is_deleted, created_at, updated_at
		FROM feature_sets WHERE tenant_id = $1 AND is_deleted = 0 ORDER BY name`
	var fss []model.FeatureSet
	if err := s.db.SelectContext(ctx, &fss, q, tenantID); err != nil {
		return nil, fmt.Errorf("store: list feature sets: %w", err)
	}
	return fss, nil
}

// SoftDeleteFeatureSet marks a feature set deleted. Builtin sets cannot be
// deleted; callers must check FeatureSet.IsBuiltin first.
func (s *Store) SoftDeleteFeatureSet(ctx context.Context, id string) error {
	const q = `UPDATE feature_sets SET is_deleted = 1, updated_at = $2 WHERE id = $1 AND is_builtin = 0`
	res, err := s.db.ExecContext(ctx, q, id, nowFn())
	if err != nil {
		return fmt.Errorf("store: delete feature set: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("feature set %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *Store) ReplaceFeatureSetMembers(ctx context.Context, featureSetID string, members []model.FeatureSetMember) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, `DELETE FROM feature_set_members WHERE feature_set_id = $1`, featureSetID); err != nil {
		return fmt.Errorf("store: clear feature set members: %w", err)
	}
	const ins = `INSERT INTO feature_set_members (id, feature_set_id, member_type, member_id, mode)
		VALUES ($1, $2, $3, $4, $5)`
	for _, m := range members {
		if _, err := tx.ExecContext(ctx, ins, m.ID, m.FeatureSetID, m.MemberType, m.MemberID, m.Mode); err != nil {
			return fmt.Errorf("store: insert feature set member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit feature set members: %w", err)
	}
	return nil
}

func (s *Store) ListFeatureSetMembers(ctx context.Context, featureSetID string) ([]model.FeatureSetMember, error) {
	const q = `SELECT id, feature_set_id, member_type, member_id, mode
		FROM feature_set_members WHERE feature_set_id = $1`
	var ms []model.FeatureSetMember
	if err := s.db.SelectContext(ctx, &ms, q, featureSetID); err != nil {
		return nil, fmt.Errorf("store: list feature set members: %w", err)
	}
	return ms, nil
}

// EnsureBuiltinFeatureSets creates the per-tenant "all" and "default"
// builtin sets if they do not already exist, relying on their
// deterministic IDs (model.AllFeatureSetID, model.DefaultFeatureSetID) to
// make the operation naturally idempotent.
func (s *Store) EnsureBuiltinFeatureSets(ctx context.Context, tenantID string, now func() time.Time) error {
	all := model.FeatureSet{
		ID: model.AllFeatureSetID(tenantID), TenantID: tenantID, Name: "All",
		Type: model.FeatureSetAll, IsBuiltin: true, CreatedAt: now(), UpdatedAt: now(),
	}
	def := model.FeatureSet{
		ID: model.DefaultFeatureSetID(tenantID), TenantID: tenantID, Name: "Default",
		Type: model.FeatureSetDefault, IsBuiltin: true, CreatedAt: now(), UpdatedAt: now(),
	}
	const q = `INSERT INTO feature_sets
		(id, tenant_id, name, description, icon, feature_set_type, server_id, is_builtin, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, '', '', $4, NULL, 1, 0, $5, $6)
		ON CONFLICT(id) DO NOTHING`
	for _, fs := range []model.FeatureSet{all, def} {
		if _, err := s.db.ExecContext(ctx, q, fs.ID, fs.TenantID, fs.Name, fs.Type, fs.CreatedAt, fs.UpdatedAt); err != nil {
			return fmt.Errorf("store: ensure builtin feature set %s: %w", fs.ID, err)
		}
	}
	return nil
}
