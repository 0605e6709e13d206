package tools

import "context"

// Tool execution context keys. The dispatcher injects per-run values
// into context instead of mutating tool instances, so a single tool
// registration is safe under concurrent sessions.

type toolContextKey string

const (
	ctxWorkspace toolContextKey = "tool_workspace"
	ctxSessionID toolContextKey = "tool_session_id"
	ctxAutoMode  toolContextKey = "tool_auto_mode"
)

func WithWorkspace(ctx context.Context, root string) context.Context {
	return context.WithValue(ctx, ctxWorkspace, root)
}

func WorkspaceFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxWorkspace).(string)
	return v
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxSessionID, id)
}

func SessionIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxSessionID).(string)
	return v
}

// WithAutoMode marks the run as pre-approved: "ask" policies proceed
// without a user prompt. Set for agent-plus sessions and for approved
// diff application.
func WithAutoMode(ctx context.Context, auto bool) context.Context {
	return context.WithValue(ctx, ctxAutoMode, auto)
}

func AutoModeFromCtx(ctx context.Context) bool {
	v, _ := ctx.Value(ctxAutoMode).(bool)
	return v
}
