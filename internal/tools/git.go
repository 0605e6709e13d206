package tools

import (
	"context"
	"fmt"
	"strings"
)

// The git tools are guarded shell invocations: fixed subcommands with a
// few whitelisted arguments, never free-form git.

func runGit(ctx context.Context, workspace string, args ...string) *shellOutput {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	out, err := runShell(ctx, workspace, "git "+strings.Join(quoted, " "))
	if err != nil {
		return &shellOutput{Stderr: err.Error(), ExitCode: -1}
	}
	return out
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`&|;<>(){}*?[]~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func gitResult(out *shellOutput, emptyNote string) *Result {
	if out.ExitCode != 0 {
		msg := strings.TrimSpace(out.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(out.Stdout)
		}
		if msg == "" {
			msg = fmt.Sprintf("git exited with code %d", out.ExitCode)
		}
		return ErrorResult(msg)
	}
	text := strings.TrimRight(out.Stdout, "\n")
	if text == "" {
		text = emptyNote
	}
	return NewResult(text)
}

// GitStatusTool shows working-tree status.
type GitStatusTool struct{}

func (t *GitStatusTool) Name() string { return "git_status" }
func (t *GitStatusTool) Description() string {
	return "Show the git working tree status (short format, with branch)."
}
func (t *GitStatusTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{})
}

func (t *GitStatusTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	out := runGit(ctx, WorkspaceFromCtx(ctx), "status", "--short", "--branch")
	return gitResult(out, "(clean working tree)")
}

// GitDiffTool shows uncommitted changes.
type GitDiffTool struct{}

func (t *GitDiffTool) Name() string { return "git_diff" }
func (t *GitDiffTool) Description() string {
	return "Show uncommitted changes. Pass staged=true for the index, path to limit to one file."
}
func (t *GitDiffTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"path":   stringProp("Limit the diff to this path"),
		"staged": boolProp("Diff the staged changes instead of the working tree"),
	})
}

func (t *GitDiffTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	gitArgs := []string{"diff"}
	if staged, _ := args["staged"].(bool); staged {
		gitArgs = append(gitArgs, "--staged")
	}
	if path, _ := args["path"].(string); path != "" {
		gitArgs = append(gitArgs, "--", path)
	}
	out := runGit(ctx, WorkspaceFromCtx(ctx), gitArgs...)
	return gitResult(out, "(no changes)")
}

// GitLogTool shows recent commits.
type GitLogTool struct{}

func (t *GitLogTool) Name() string { return "git_log" }
func (t *GitLogTool) Description() string {
	return "Show recent commits, one line each (default 10)."
}
func (t *GitLogTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"count": numberProp("Number of commits to show (default 10, max 50)"),
	})
}

func (t *GitLogTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	count := intArg(args, "count", 10)
	if count < 1 {
		count = 10
	}
	if count > 50 {
		count = 50
	}
	out := runGit(ctx, WorkspaceFromCtx(ctx), "log", "--oneline", "-n", fmt.Sprintf("%d", count))
	return gitResult(out, "(no commits)")
}

// GitCommitTool stages everything and commits.
type GitCommitTool struct{}

func (t *GitCommitTool) Name() string { return "git_commit" }
func (t *GitCommitTool) Description() string {
	return "Stage all changes and create a commit with the given message."
}
func (t *GitCommitTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"message": stringProp("Commit message"),
	}, "message")
}

func (t *GitCommitTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	message, _ := args["message"].(string)
	if strings.TrimSpace(message) == "" {
		return ErrorResult("message is required")
	}
	workspace := WorkspaceFromCtx(ctx)
	if out := runGit(ctx, workspace, "add", "-A"); out.ExitCode != 0 {
		return gitResult(out, "")
	}
	out := runGit(ctx, workspace, "commit", "-m", message)
	return gitResult(out, "(nothing to commit)")
}

// GitBranchTool shows or switches branches.
type GitBranchTool struct{}

func (t *GitBranchTool) Name() string { return "git_branch" }
func (t *GitBranchTool) Description() string {
	return "List branches, or pass name to create and switch to a new branch."
}
func (t *GitBranchTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"name": stringProp("Name of the branch to create and check out"),
	})
}

func (t *GitBranchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	workspace := WorkspaceFromCtx(ctx)
	name, _ := args["name"].(string)
	if name == "" {
		out := runGit(ctx, workspace, "branch", "--list")
		return gitResult(out, "(no branches)")
	}
	out := runGit(ctx, workspace, "checkout", "-b", name)
	if out.ExitCode != 0 {
		return gitResult(out, "")
	}
	return NewResult(fmt.Sprintf("Switched to new branch %s", name))
}
