package inbound

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// getServer builds a fresh *mcp.Server for one streamable-HTTP session,
// scoped to the tenant and client resolved by the middleware chain.
// Grounded on pkg/gateway/custom_transport.go's mcp.NewServer +
// ServerOptions construction, generalized from one gateway-wide server to
// one per (tenant, client) session so each caller only ever sees the
// tools, prompts, and resources their grants allow.
func (h *Handler) getServer(r *http.Request) *mcp.Server {
	ctx := r.Context()
	tenantID := TenantIDFrom(ctx)
	clientID := ClientIDFrom(ctx)
	traceID := TraceIDFrom(ctx)

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "mcpmux-gateway",
		Version: "0.1.0",
	}, &mcp.ServerOptions{
		InitializedHandler: func(_ context.Context, req *mcp.InitializedRequest) {
			clientInfo := req.Session.InitializeParams().ClientInfo
			h.log.Info("session initialized",
				zap.String("trace_id", traceID), zap.String("tenant_id", tenantID),
				zap.String("peer", clientInfo.Name+"@"+clientInfo.Version))
		},
		HasTools:     true,
		HasPrompts:   true,
		HasResources: true,
	})

	if err := h.populate(ctx, srv, tenantID, clientID); err != nil {
		h.log.Error("failed to populate session", zap.Error(err), zap.String("trace_id", traceID))
	}

	h.watchReconcile(srv, tenantID, clientID)

	return srv
}

// populate registers every currently-visible tool, prompt, and resource
// on a freshly constructed session server.
func (h *Handler) populate(ctx context.Context, srv *mcp.Server, tenantID, clientID string) error {
	tools, err := h.router.ListTools(ctx, tenantID, clientID)
	if err != nil {
		return err
	}
	for _, t := range tools {
		srv.AddTool(t, h.toolHandler(tenantID, clientID))
	}

	prompts, err := h.router.ListPrompts(ctx, tenantID, clientID)
	if err != nil {
		return err
	}
	for _, p := range prompts {
		srv.AddPrompt(p, h.promptHandler(tenantID, clientID))
	}

	resources, err := h.router.ListResources(ctx, tenantID, clientID)
	if err != nil {
		return err
	}
	for _, r := range resources {
		srv.AddResource(r, h.resourceHandler(tenantID, clientID))
	}

	return nil
}

func (h *Handler) toolHandler(tenantID, clientID string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return h.router.CallTool(ctx, tenantID, clientID, req.Params)
	}
}

func (h *Handler) promptHandler(tenantID, clientID string) mcp.PromptHandler {
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return h.router.GetPrompt(ctx, tenantID, clientID, req.Params)
	}
}

func (h *Handler) resourceHandler(tenantID, clientID string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return h.router.ReadResource(ctx, tenantID, clientID, req.Params)
	}
}
