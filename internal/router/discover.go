package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/pool"
)

// Discoverer implements servermanager.FeatureDiscoverer by listing an
// outbound server's tools, prompts, and resources over its live session.
type Discoverer struct{}

// Discover lists every tool, prompt, and resource a freshly connected
// server advertises, serializing each back to raw JSON for storage.
func (Discoverer) Discover(ctx context.Context, srv model.InstalledServer, conn pool.Conn) ([]model.ServerFeature, error) {
	session := conn.Session()
	now := time.Now()
	var out []model.ServerFeature

	tools, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("discover: list tools: %w", err)
	}
	for _, t := range tools.Tools {
		raw, err := json.Marshal(t)
		if err != nil {
			continue
		}
		out = append(out, model.ServerFeature{
			ID: uuid.NewString(), ServerID: srv.ID, Kind: model.FeatureTool, Name: t.Name,
			RawJSON: model.RawJSON(raw), DiscoveredAt: now,
		})
	}

	prompts, err := session.ListPrompts(ctx, &mcp.ListPromptsParams{})
	if err != nil {
		return nil, fmt.Errorf("discover: list prompts: %w", err)
	}
	for _, p := range prompts.Prompts {
		raw, err := json.Marshal(p)
		if err != nil {
			continue
		}
		out = append(out, model.ServerFeature{
			ID: uuid.NewString(), ServerID: srv.ID, Kind: model.FeaturePrompt, Name: p.Name,
			RawJSON: model.RawJSON(raw), DiscoveredAt: now,
		})
	}

	resources, err := session.ListResources(ctx, &mcp.ListResourcesParams{})
	if err != nil {
		return nil, fmt.Errorf("discover: list resources: %w", err)
	}
	for _, r := range resources.Resources {
		raw, err := json.Marshal(r)
		if err != nil {
			continue
		}
		out = append(out, model.ServerFeature{
			ID: uuid.NewString(), ServerID: srv.ID, Kind: model.FeatureResource, Name: r.URI,
			RawJSON: model.RawJSON(raw), DiscoveredAt: now,
		})
	}

	return out, nil
}
