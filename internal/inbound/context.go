package inbound

import "context"

type ctxKey int

const (
	ctxTraceID ctxKey = iota
	ctxClientID
	ctxScope
	ctxTenantID
)

func withTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}

// TraceIDFrom returns the request's trace ID, or "" if none is set.
func TraceIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxTraceID).(string)
	return id
}

func withClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxClientID, id)
}

func clientIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxClientID).(string)
	return id, ok
}

func withScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, ctxScope, scope)
}

func scopeFrom(ctx context.Context) string {
	s, _ := ctx.Value(ctxScope).(string)
	return s
}

func withTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTenantID, id)
}

// TenantIDFrom returns the tenant resolved for the current request by
// Handler.resolveTenant, or "" if called outside a request.
func TenantIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxTenantID).(string)
	return id
}

// ClientIDFrom returns the authenticated inbound client ID for the
// current request, or "" if called outside a request.
func ClientIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxClientID).(string)
	return id
}
