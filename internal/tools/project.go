package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// projectKind identifies the toolchain run_lint/run_tests should drive.
type projectKind struct {
	Name string
	Lint string
	Test string
}

// detectProject inspects the workspace root for well-known manifests.
func detectProject(workspace string) (projectKind, bool) {
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(workspace, name))
		return err == nil
	}
	switch {
	case exists("go.mod"):
		return projectKind{Name: "go", Lint: "go vet ./...", Test: "go test ./..."}, true
	case exists("package.json"):
		return projectKind{Name: "node", Lint: "npm run lint --if-present", Test: "npm test --silent"}, true
	case exists("pyproject.toml") || exists("requirements.txt"):
		return projectKind{Name: "python", Lint: "ruff check .", Test: "pytest -q"}, true
	case exists("Cargo.toml"):
		return projectKind{Name: "rust", Lint: "cargo clippy --quiet", Test: "cargo test --quiet"}, true
	}
	return projectKind{}, false
}

func runProjectCommand(ctx context.Context, workspace, command, kind string) *Result {
	out, err := runShell(ctx, workspace, command)
	if err != nil {
		if strings.Contains(err.Error(), "timed out") {
			return ErrorResult(fmt.Sprintf("%s timed out: %s", kind, command))
		}
		return ErrorResult(fmt.Sprintf("failed to run %s: %v", kind, err))
	}
	return PayloadResult(map[string]interface{}{
		"project":  kind,
		"command":  command,
		"stdout":   out.Stdout,
		"stderr":   out.Stderr,
		"exitCode": out.ExitCode,
	})
}

// RunLintTool runs the project's linter, detected from its manifest.
type RunLintTool struct{}

func (t *RunLintTool) Name() string { return "run_lint" }
func (t *RunLintTool) Description() string {
	return "Run the project linter (go vet, npm run lint, ruff, or cargo clippy depending on the project)."
}
func (t *RunLintTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{})
}

func (t *RunLintTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	workspace := WorkspaceFromCtx(ctx)
	kind, ok := detectProject(workspace)
	if !ok {
		return ErrorResult("no recognised project manifest (go.mod, package.json, pyproject.toml, requirements.txt, Cargo.toml)")
	}
	return runProjectCommand(ctx, workspace, kind.Lint, kind.Name)
}

// RunTestsTool runs the project's test suite.
type RunTestsTool struct{}

func (t *RunTestsTool) Name() string { return "run_tests" }
func (t *RunTestsTool) Description() string {
	return "Run the project test suite (go test, npm test, pytest, or cargo test depending on the project)."
}
func (t *RunTestsTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{})
}

func (t *RunTestsTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	workspace := WorkspaceFromCtx(ctx)
	kind, ok := detectProject(workspace)
	if !ok {
		return ErrorResult("no recognised project manifest (go.mod, package.json, pyproject.toml, requirements.txt, Cargo.toml)")
	}
	return runProjectCommand(ctx, workspace, kind.Test, kind.Name)
}
