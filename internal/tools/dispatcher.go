package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rushi32/IsoCode/internal/config"
	"github.com/rushi32/IsoCode/internal/contextwindow"
)

// Category names used by the permission table. Tools outside these
// categories are read-only and always run.
const (
	categoryShell = "shell"
	categoryWrite = "write"
	categoryEdit  = "edit"
)

// Dispatcher runs tools: lookup, permission policy, path confinement,
// deadline, execution, truncation. Policy is read per call so /config
// updates apply immediately.
type Dispatcher struct {
	reg       *Registry
	cfg       *config.Config
	workspace string
}

func NewDispatcher(reg *Registry, cfg *config.Config, workspace string) *Dispatcher {
	return &Dispatcher{reg: reg, cfg: cfg, workspace: workspace}
}

func (d *Dispatcher) Registry() *Registry { return d.reg }

// Run executes the named tool. ctx is expected to carry workspace,
// session id, and autoMode (see context_keys.go); missing workspace
// falls back to the dispatcher default.
func (d *Dispatcher) Run(ctx context.Context, name string, args map[string]interface{}) *Result {
	tool, ok := d.reg.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool %q; available tools: %s",
			name, strings.Join(d.reg.Names(), ", "))).WithError(ErrUnknownTool)
	}

	if res := d.checkPolicy(ctx, name); res != nil {
		return res
	}

	workspace := WorkspaceFromCtx(ctx)
	if workspace == "" {
		workspace = d.workspace
		ctx = WithWorkspace(ctx, workspace)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := confinePathArgs(args, workspace, !strings.HasPrefix(name, "mcp_")); err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}

	if deadline := deadlineFor(name, args); deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	result := tool.Execute(ctx, args)
	if result == nil {
		result = ErrorResult(fmt.Sprintf("tool %s returned no result", name))
	}
	if result.Payload != nil {
		result.ForLLM = contextwindow.TruncateToolResult(result.Payload)
	} else {
		result.ForLLM = contextwindow.SmartTruncate(result.ForLLM, maxInlineResult)
	}
	return result
}

// maxInlineResult caps plain-string tool output the same way the
// content field of a structured payload is capped.
const maxInlineResult = 4000

func (d *Dispatcher) checkPolicy(ctx context.Context, name string) *Result {
	category := categoryOf(name)
	if category == "" {
		return nil
	}
	perms := d.cfg.Snapshot().Permissions
	var policy string
	switch category {
	case categoryShell:
		policy = perms.Shell
	case categoryWrite:
		policy = perms.Write
	case categoryEdit:
		policy = perms.Edit
	}
	switch policy {
	case config.PolicyNever:
		return ErrorResult(fmt.Sprintf("tool %s is disabled by the %s permission policy", name, category)).
			WithError(ErrPolicyDenied)
	case config.PolicyAlways:
		return nil
	default: // ask
		if AutoModeFromCtx(ctx) {
			return nil
		}
		return ErrorResult(fmt.Sprintf("tool %s requires approval (%s policy is %q and auto mode is off)",
			name, category, config.PolicyAsk)).WithError(ErrPolicyDenied)
	}
}

// categoryOf maps a tool name to its permission category. External
// server tools run arbitrary code, so they are governed as shell.
func categoryOf(name string) string {
	switch name {
	case "run_command", "git_commit", "run_lint", "run_tests":
		return categoryShell
	case "write_file":
		return categoryWrite
	case "replace_in_file", "apply_diff":
		return categoryEdit
	}
	if strings.HasPrefix(name, "mcp_") {
		return categoryShell
	}
	return ""
}

// pathArgKeys are the conventional path-carrying argument names.
var pathArgKeys = []string{"path", "filePath", "file", "dir", "cwd"}

// confinePathArgs resolves conventional path arguments against the
// workspace and rejects escapes. For builtin tools the resolved absolute
// path replaces the original; external server tools keep the original
// text since their processes interpret paths themselves.
func confinePathArgs(args map[string]interface{}, workspace string, rewrite bool) error {
	for _, key := range pathArgKeys {
		v, ok := args[key].(string)
		if !ok || v == "" {
			continue
		}
		resolved, err := resolvePath(v, workspace)
		if err != nil {
			return err
		}
		if rewrite {
			args[key] = resolved
		}
	}
	if raw, ok := args["paths"].([]interface{}); ok {
		for i, item := range raw {
			v, ok := item.(string)
			if !ok || v == "" {
				continue
			}
			resolved, err := resolvePath(v, workspace)
			if err != nil {
				return err
			}
			if rewrite {
				raw[i] = resolved
			}
		}
	}
	return nil
}

// deadlineFor returns the execution deadline for a tool. Shell commands
// honour a timeout argument in seconds, clamped to 1–120.
func deadlineFor(name string, args map[string]interface{}) time.Duration {
	switch name {
	case "run_command":
		if secs, ok := args["timeout"].(float64); ok && secs > 0 {
			if secs > 120 {
				secs = 120
			}
			return time.Duration(secs * float64(time.Second))
		}
		return 30 * time.Second
	case "run_lint":
		return 45 * time.Second
	case "run_tests":
		return 120 * time.Second
	case "web_fetch":
		return 30 * time.Second
	}
	if strings.HasPrefix(name, "browser_") {
		return 30 * time.Second
	}
	if strings.HasPrefix(name, "mcp_") {
		return 60 * time.Second
	}
	return 0
}
