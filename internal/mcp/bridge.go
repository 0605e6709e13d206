package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/rushi32/IsoCode/internal/tools"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// bridgeTool adapts one remote MCP tool to the dispatcher's Tool
// interface. Calls check the owning server's error state first, so a
// degraded server fails fast with its recorded error.
type bridgeTool struct {
	server string
	tool   mcpgo.Tool
	client *mcpclient.Client
	state  *serverState
	name   string
}

func newBridgeTool(server string, tool mcpgo.Tool, client *mcpclient.Client, state *serverState) *bridgeTool {
	return &bridgeTool{
		server: server,
		tool:   tool,
		client: client,
		state:  state,
		name:   fmt.Sprintf("mcp_%s_%s", sanitizeName(server), sanitizeName(tool.Name)),
	}
}

func sanitizeName(s string) string {
	return strings.Trim(unsafeNameChars.ReplaceAllString(s, "_"), "_")
}

func (b *bridgeTool) Name() string { return b.name }

func (b *bridgeTool) Description() string {
	desc := b.tool.Description
	if desc == "" {
		desc = "external tool"
	}
	return fmt.Sprintf("[%s] %s", b.server, desc)
}

// Parameters round-trips the remote schema through JSON so the prompt
// renderer sees the same plain-map shape the builtins use.
func (b *bridgeTool) Parameters() map[string]interface{} {
	raw, err := json.Marshal(b.tool.InputSchema)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(raw, &schema); err != nil || schema == nil {
		return map[string]interface{}{"type": "object"}
	}
	return schema
}

func (b *bridgeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	if errMsg := b.state.lastErr(); errMsg != "" {
		return tools.ErrorResult(fmt.Sprintf("server %s unavailable: %s", b.server, errMsg))
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = b.tool.Name
	req.Params.Arguments = args

	resp, err := b.client.CallTool(ctx, req)
	if err != nil {
		b.state.setErr(err.Error())
		return tools.ErrorResult(fmt.Sprintf("call %s on %s: %v", b.tool.Name, b.server, err))
	}

	text := collectText(resp.Content)
	if resp.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return tools.ErrorResult(text)
	}
	if text == "" {
		text = "(no text content returned)"
	}
	return tools.NewResult(text)
}

func collectText(content []mcpgo.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
