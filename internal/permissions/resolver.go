// Package permissions implements the Permission Resolver: turning a
// client's granted feature sets into a concrete allow-set of features,
// honoring nested feature-set composition with cycle detection.
package permissions

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/store"
)

// Resolution is the outcome of resolving a client's visible features
// within a tenant.
type Resolution struct {
	// AllowedFeatureIDs is the set of server_features.id values visible
	// to the client.
	AllowedFeatureIDs map[string]bool
}

// Allows reports whether a feature ID is visible under this resolution.
func (r Resolution) Allows(featureID string) bool { return r.AllowedFeatureIDs[featureID] }

// Resolver computes Resolutions from durable state.
type Resolver struct {
	store *store.Store
	log   *zap.Logger
}

// New builds a Resolver.
func New(st *store.Store, log *zap.Logger) *Resolver {
	return &Resolver{store: st, log: log}
}

// Resolve computes the features visible to clientID within tenantID,
// unioning every feature set directly granted to the client.
func (r *Resolver) Resolve(ctx context.Context, tenantID, clientID string) (Resolution, error) {
	allFeatures, err := r.store.ListTenantFeatures(ctx, tenantID)
	if err != nil {
		return Resolution{}, fmt.Errorf("permissions: list tenant features: %w", err)
	}
	featuresByServer := make(map[string][]model.ServerFeature)
	allFeatureIDs := make(map[string]bool, len(allFeatures))
	for _, f := range allFeatures {
		featuresByServer[f.ServerID] = append(featuresByServer[f.ServerID], f)
		allFeatureIDs[f.ID] = true
	}

	featureSets, err := r.store.ListFeatureSets(ctx, tenantID)
	if err != nil {
		return Resolution{}, fmt.Errorf("permissions: list feature sets: %w", err)
	}
	setsByID := make(map[string]model.FeatureSet, len(featureSets))
	for _, fs := range featureSets {
		setsByID[fs.ID] = fs
	}

	grants, err := r.store.ListClientGrants(ctx, tenantID, clientID)
	if err != nil {
		return Resolution{}, fmt.Errorf("permissions: list client grants: %w", err)
	}

	// Effective grants are the client's explicit grant rows plus the
	// tenant's builtin default set, which is never stored as an explicit
	// grant row but always applies.
	grantedIDs := make(map[string]bool, len(grants)+1)
	grantedIDs[model.DefaultFeatureSetID(tenantID)] = true
	for _, g := range grants {
		grantedIDs[g.FeatureSetID] = true
	}

	allowed := make(map[string]bool)
	memberCache := make(map[string][]model.FeatureSetMember)
	for id := range grantedIDs {
		fs, ok := setsByID[id]
		if !ok {
			continue // feature set was deleted after the grant was issued
		}
		visited := make(map[string]bool)
		resolved, err := r.expand(ctx, fs, setsByID, featuresByServer, allFeatureIDs, memberCache, visited)
		if err != nil {
			return Resolution{}, err
		}
		for fid := range resolved {
			allowed[fid] = true
		}
	}

	return Resolution{AllowedFeatureIDs: allowed}, nil
}

func (r *Resolver) members(ctx context.Context, featureSetID string, cache map[string][]model.FeatureSetMember) ([]model.FeatureSetMember, error) {
	if m, ok := cache[featureSetID]; ok {
		return m, nil
	}
	m, err := r.store.ListFeatureSetMembers(ctx, featureSetID)
	if err != nil {
		return nil, fmt.Errorf("permissions: list members of %s: %w", featureSetID, err)
	}
	cache[featureSetID] = m
	return m, nil
}

// expand resolves one feature set into a set of feature IDs, recursively
// composing any nested feature_set members. A feature set already on the
// visited path is skipped with a warning rather than failing the whole
// resolution.
func (r *Resolver) expand(
	ctx context.Context,
	fs model.FeatureSet,
	setsByID map[string]model.FeatureSet,
	featuresByServer map[string][]model.ServerFeature,
	allFeatureIDs map[string]bool,
	memberCache map[string][]model.FeatureSetMember,
	visited map[string]bool,
) (map[string]bool, error) {
	if visited[fs.ID] {
		r.log.Warn("permissions: cycle detected in feature set composition, skipping", zap.String("feature_set_id", fs.ID))
		return map[string]bool{}, nil
	}
	visited[fs.ID] = true

	result := make(map[string]bool)

	switch fs.Type {
	case model.FeatureSetAll:
		for id := range allFeatureIDs {
			result[id] = true
		}
	case model.FeatureSetServerAll:
		if fs.ServerID != nil {
			for _, f := range featuresByServer[*fs.ServerID] {
				result[f.ID] = true
			}
		}
	case model.FeatureSetDefault:
		// Secure by default: an empty default set grants nothing. Coverage
		// only comes from its members (typically includes).
	case model.FeatureSetCustom:
		// Custom sets start empty; members below build up coverage.
	}

	members, err := r.members(ctx, fs.ID, memberCache)
	if err != nil {
		return nil, err
	}

	for _, m := range members {
		switch m.MemberType {
		case model.MemberFeature:
			switch m.Mode {
			case model.MemberInclude:
				if allFeatureIDs[m.MemberID] {
					result[m.MemberID] = true
				}
			case model.MemberExclude:
				delete(result, m.MemberID)
			}
		case model.MemberFeatureSet:
			nested, ok := setsByID[m.MemberID]
			if !ok {
				continue
			}
			nestedResolved, err := r.expand(ctx, nested, setsByID, featuresByServer, allFeatureIDs, memberCache, visited)
			if err != nil {
				return nil, err
			}
			switch m.Mode {
			case model.MemberInclude:
				for id := range nestedResolved {
					result[id] = true
				}
			case model.MemberExclude:
				for id := range nestedResolved {
					delete(result, id)
				}
			}
		}
	}

	return result, nil
}
