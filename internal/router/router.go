// Package router dispatches inbound tools/list, prompts/list,
// resources/list, tools/call, prompts/get, and resources/read operations
// to the correct outbound server, applying the Permission Resolver's
// allow-set and qualifying/unqualifying feature names by prefix.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/permissions"
	"github.com/mcpmux/gateway/internal/pool"
	"github.com/mcpmux/gateway/internal/servermanager"
	"github.com/mcpmux/gateway/internal/store"
)

// toolCallTimeout bounds a single outbound tool call.
const toolCallTimeout = 60 * time.Second

var tracer = otel.Tracer("github.com/mcpmux/gateway/internal/router")

// Router ties the Permission Resolver, Connection Pool, and Server
// Manager together into the operations the Inbound Handler needs.
type Router struct {
	store     *store.Store
	resolver  *permissions.Resolver
	pool      *pool.Pool
	manager   *servermanager.Manager
	prefixes  *PrefixCache
}

// New builds a Router.
func New(st *store.Store, resolver *permissions.Resolver, p *pool.Pool, mgr *servermanager.Manager) *Router {
	return &Router{store: st, resolver: resolver, pool: p, manager: mgr, prefixes: NewPrefixCache()}
}

// visibleFeatures returns the client's allowed features, each carrying
// its qualified (prefixed) name.
func (r *Router) visibleFeatures(ctx context.Context, tenantID, clientID string, kind model.FeatureKind) ([]model.ServerFeature, error) {
	res, err := r.resolver.Resolve(ctx, tenantID, clientID)
	if err != nil {
		return nil, err
	}
	all, err := r.store.ListTenantFeatures(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := r.refreshPrefixes(ctx, tenantID); err != nil {
		return nil, err
	}
	var out []model.ServerFeature
	for _, f := range all {
		if f.Kind != kind || !res.Allows(f.ID) {
			continue
		}
		f.Prefix = r.prefixes.PrefixFor(tenantID, f.ServerID)
		out = append(out, f)
	}
	return out, nil
}

// refreshPrefixes resolves the current alias/prefix assignment for a
// tenant's installed servers.
func (r *Router) refreshPrefixes(ctx context.Context, tenantID string) error {
	servers, err := r.store.ListInstalledServers(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("router: list installed servers: %w", err)
	}
	r.prefixes.Resolve(tenantID, servers)
	return nil
}

// ListTools returns the client's visible tools as MCP Tool descriptors.
func (r *Router) ListTools(ctx context.Context, tenantID, clientID string) ([]*mcp.Tool, error) {
	features, err := r.visibleFeatures(ctx, tenantID, clientID, model.FeatureTool)
	if err != nil {
		return nil, fmt.Errorf("router: list tools: %w", err)
	}
	tools := make([]*mcp.Tool, 0, len(features))
	for _, f := range features {
		var t mcp.Tool
		if err := json.Unmarshal(f.RawJSON, &t); err != nil {
			continue
		}
		t.Name = f.QualifiedName()
		tools = append(tools, &t)
	}
	return tools, nil
}

// ListPrompts returns the client's visible prompts.
func (r *Router) ListPrompts(ctx context.Context, tenantID, clientID string) ([]*mcp.Prompt, error) {
	features, err := r.visibleFeatures(ctx, tenantID, clientID, model.FeaturePrompt)
	if err != nil {
		return nil, fmt.Errorf("router: list prompts: %w", err)
	}
	prompts := make([]*mcp.Prompt, 0, len(features))
	for _, f := range features {
		var p mcp.Prompt
		if err := json.Unmarshal(f.RawJSON, &p); err != nil {
			continue
		}
		p.Name = f.QualifiedName()
		prompts = append(prompts, &p)
	}
	return prompts, nil
}

// ListResources returns the client's visible resources.
func (r *Router) ListResources(ctx context.Context, tenantID, clientID string) ([]*mcp.Resource, error) {
	features, err := r.visibleFeatures(ctx, tenantID, clientID, model.FeatureResource)
	if err != nil {
		return nil, fmt.Errorf("router: list resources: %w", err)
	}
	resources := make([]*mcp.Resource, 0, len(features))
	for _, f := range features {
		var res mcp.Resource
		if err := json.Unmarshal(f.RawJSON, &res); err != nil {
			continue
		}
		resources = append(resources, &res)
	}
	return resources, nil
}

// resolveQualified finds the installed server and original feature name
// behind a gateway-qualified name, failing if the client is no longer
// permitted to see it (features may have been revoked between list and
// call).
func (r *Router) resolveQualified(ctx context.Context, tenantID, clientID, qualifiedName string, kind model.FeatureKind) (model.InstalledServer, string, error) {
	res, err := r.resolver.Resolve(ctx, tenantID, clientID)
	if err != nil {
		return model.InstalledServer{}, "", err
	}
	all, err := r.store.ListTenantFeatures(ctx, tenantID)
	if err != nil {
		return model.InstalledServer{}, "", err
	}
	if err := r.refreshPrefixes(ctx, tenantID); err != nil {
		return model.InstalledServer{}, "", err
	}
	for _, f := range all {
		if f.Kind != kind || !res.Allows(f.ID) {
			continue
		}
		f.Prefix = r.prefixes.PrefixFor(tenantID, f.ServerID)
		if f.QualifiedName() != qualifiedName {
			continue
		}
		srv, err := r.store.GetInstalledServer(ctx, f.ServerID)
		if err != nil {
			return model.InstalledServer{}, "", err
		}
		return *srv, f.Name, nil
	}
	return model.InstalledServer{}, "", fmt.Errorf("feature %q: %w", qualifiedName, model.ErrNotFound)
}

// CallTool dispatches a tool call by its gateway-qualified name.
func (r *Router) CallTool(ctx context.Context, tenantID, clientID string, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "router.CallTool")
	defer span.End()

	srv, original, err := r.resolveQualified(ctx, tenantID, clientID, params.Name, model.FeatureTool)
	if err != nil {
		span.SetStatus(codes.Error, "resolve failed")
		return nil, fmt.Errorf("%w: %v", model.ErrPermissionDenied, err)
	}

	if err := r.manager.Ensure(ctx, srv); err != nil {
		return reconnectResult(srv, err)
	}
	conn, ok := r.pool.Get(tenantID, srv.ID)
	if !ok {
		return reconnectResult(srv, model.ErrUpstreamUnavailable)
	}

	callCtx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	result, err := conn.Session().CallTool(callCtx, &mcp.CallToolParams{
		Meta: params.Meta, Name: original, Arguments: params.Arguments,
	})
	if err != nil {
		if isAuthOrTimeout(err) {
			return reconnectResult(srv, err)
		}
		span.SetStatus(codes.Error, "call failed")
		return nil, fmt.Errorf("router: call tool %s on %s: %w", original, srv.Name, err)
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// GetPrompt dispatches a prompt fetch by gateway-qualified name.
func (r *Router) GetPrompt(ctx context.Context, tenantID, clientID string, params *mcp.GetPromptParams) (*mcp.GetPromptResult, error) {
	srv, original, err := r.resolveQualified(ctx, tenantID, clientID, params.Name, model.FeaturePrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrPermissionDenied, err)
	}
	if err := r.manager.Ensure(ctx, srv); err != nil {
		return nil, fmt.Errorf("router: server %s unavailable: %w", srv.Name, err)
	}
	conn, ok := r.pool.Get(tenantID, srv.ID)
	if !ok {
		return nil, fmt.Errorf("router: server %s unavailable: %w", srv.Name, model.ErrUpstreamUnavailable)
	}
	return conn.Session().GetPrompt(ctx, &mcp.GetPromptParams{Name: original, Arguments: params.Arguments})
}

// ReadResource dispatches a resource read. Resources are not prefixed by
// name (they're addressed by URI, which is already globally unique per
// server), so no qualified-name lookup is needed beyond permission
// filtering against the owning feature.
func (r *Router) ReadResource(ctx context.Context, tenantID, clientID string, params *mcp.ReadResourceParams) (*mcp.ReadResourceResult, error) {
	res, err := r.resolver.Resolve(ctx, tenantID, clientID)
	if err != nil {
		return nil, err
	}
	all, err := r.store.ListTenantFeatures(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, f := range all {
		if f.Kind != model.FeatureResource || f.Name != params.URI || !res.Allows(f.ID) {
			continue
		}
		srv, err := r.store.GetInstalledServer(ctx, f.ServerID)
		if err != nil {
			return nil, err
		}
		if err := r.manager.Ensure(ctx, *srv); err != nil {
			return nil, fmt.Errorf("router: server %s unavailable: %w", srv.Name, err)
		}
		conn, ok := r.pool.Get(tenantID, srv.ID)
		if !ok {
			return nil, fmt.Errorf("router: server %s unavailable: %w", srv.Name, model.ErrUpstreamUnavailable)
		}
		return conn.Session().ReadResource(ctx, params)
	}
	return nil, fmt.Errorf("resource %q: %w", params.URI, model.ErrNotFound)
}

// reconnectResult surfaces an upstream auth/timeout failure as a
// user-visible tool error rather than tearing the instance down.
func reconnectResult(srv model.InstalledServer, cause error) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{
			Text: fmt.Sprintf("Server %q requires reconnection before this tool can be called: %v", srv.Name, cause),
		}},
	}, nil
}

func isAuthOrTimeout(err error) bool {
	if errors.Is(err, model.ErrUpstreamAuth) || errors.Is(err, model.ErrUpstreamTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"401", "unauthorized", "invalid_token", "token expired", "access token"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
