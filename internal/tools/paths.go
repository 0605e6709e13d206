package tools

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// resolvePath resolves a path argument against the workspace root and
// confines it there. Symlinks are resolved to canonical form before the
// boundary check, so a link pointing outside the workspace is rejected
// even though the link itself lives inside. Resolution is idempotent:
// feeding a resolved path back in yields the same path.
func resolvePath(path, workspace string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}

	var resolved string
	if filepath.IsAbs(path) {
		resolved = filepath.Clean(path)
	} else {
		resolved = filepath.Clean(filepath.Join(workspace, path))
	}

	absWorkspace, _ := filepath.Abs(workspace)
	wsReal, err := filepath.EvalSymlinks(absWorkspace)
	if err != nil {
		wsReal = absWorkspace
	}

	absResolved, _ := filepath.Abs(resolved)
	real, err := filepath.EvalSymlinks(absResolved)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("path resolve failed", "path", path, "error", err)
			return "", fmt.Errorf("resolve %s: %w", path, ErrPathEscapesWorkspace)
		}
		// Non-existent target (about to be created): canonicalise the
		// deepest existing ancestor and re-append the remainder, so a
		// symlinked parent still gets boundary-checked.
		real, err = resolveThroughAncestors(absResolved)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", path, ErrPathEscapesWorkspace)
		}
	}

	if !isPathInside(real, wsReal) {
		slog.Warn("path escapes workspace", "path", path, "resolved", real, "workspace", wsReal)
		return "", fmt.Errorf("%s: %w", path, ErrPathEscapesWorkspace)
	}
	return real, nil
}

// isPathInside reports whether child is parent or lives under it.
func isPathInside(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

// resolveThroughAncestors canonicalises the deepest existing ancestor of
// target and appends the non-existent remainder.
func resolveThroughAncestors(target string) (string, error) {
	current := target
	var tail []string
	for {
		parent := filepath.Dir(current)
		if parent == current {
			return "", os.ErrNotExist
		}
		tail = append([]string{filepath.Base(current)}, tail...)
		current = parent

		if real, err := filepath.EvalSymlinks(current); err == nil {
			result := real
			for _, component := range tail {
				result = filepath.Join(result, component)
			}
			return result, nil
		}
	}
}
