package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// shellOutput is the captured result of one subprocess run.
type shellOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// runShell executes command via sh -c in dir. The caller's ctx carries
// the deadline; on expiry the error names the timeout.
func runShell(ctx context.Context, dir, command string) (*shellOutput, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := &shellOutput{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return out, fmt.Errorf("command timed out")
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, err
	}
	return out, nil
}

// RunCommandTool executes an arbitrary shell command in the workspace.
type RunCommandTool struct{}

func (t *RunCommandTool) Name() string { return "run_command" }
func (t *RunCommandTool) Description() string {
	return "Run a shell command in the workspace. Returns stdout, stderr, and exit code. Default timeout 30s."
}
func (t *RunCommandTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"command": stringProp("Shell command to run (executed via sh -c)"),
		"cwd":     stringProp("Working directory relative to the workspace (default: workspace root)"),
		"timeout": numberProp("Timeout in seconds (max 120, default 30)"),
	}, "command")
}

func (t *RunCommandTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	command, _ := args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return ErrorResult("command is required")
	}
	workspace := WorkspaceFromCtx(ctx)
	dir := workspace
	if cwd, _ := args["cwd"].(string); cwd != "" {
		resolved, err := resolvePath(cwd, workspace)
		if err != nil {
			return ErrorResult(err.Error()).WithError(err)
		}
		dir = resolved
	}

	out, err := runShell(ctx, dir, command)
	if err != nil {
		if strings.Contains(err.Error(), "timed out") {
			return ErrorResult(fmt.Sprintf("command timed out: %s", command))
		}
		return ErrorResult(fmt.Sprintf("failed to run command: %v", err))
	}
	return PayloadResult(map[string]interface{}{
		"stdout":   out.Stdout,
		"stderr":   out.Stderr,
		"exitCode": out.ExitCode,
	})
}
