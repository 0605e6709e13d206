package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rushi32/IsoCode/internal/diff"
)

// readPageLines is the auto-pagination threshold for read_file.
const readPageLines = 200

// perFileCap bounds each file's contribution to a batch read.
const perFileCap = 2000

// ReadFileTool reads a file with optional offset/limit pagination.
type ReadFileTool struct{}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Read the contents of a file. Large files paginate; pass offset and limit to read further."
}
func (t *ReadFileTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"path":   stringProp("Path to the file, relative to the workspace"),
		"offset": numberProp("1-based line to start reading from"),
		"limit":  numberProp("Maximum number of lines to return"),
	}, "path")
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	resolved, err := resolvePath(path, WorkspaceFromCtx(ctx))
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read %s: %v", path, err))
	}

	lines := strings.Split(string(data), "\n")
	// A trailing newline is a line terminator, not an extra line.
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	total := len(lines)
	offset := intArg(args, "offset", 1)
	if offset < 1 {
		offset = 1
	}
	limit := intArg(args, "limit", 0)
	if limit <= 0 {
		limit = readPageLines
	}

	note := ""
	start := offset - 1
	if start >= total {
		return ErrorResult(fmt.Sprintf("offset %d is past the end of %s (%d lines)", offset, path, total))
	}
	end := start + limit
	if end > total {
		end = total
	}
	if end < total || start > 0 {
		note = fmt.Sprintf("showing lines %d-%d of %d; pass offset=%d to continue", offset, end, total, end+1)
	}

	return PayloadResult(map[string]interface{}{
		"path":       path,
		"content":    strings.Join(lines[start:end], "\n"),
		"totalLines": total,
		"note":       note,
	})
}

// WriteFileTool writes content to a file, creating parent directories.
type WriteFileTool struct{}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Write content to a file, creating it (and parent directories) if needed. Overwrites existing content."
}
func (t *WriteFileTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"path":    stringProp("Path to the file to write"),
		"content": stringProp("Full content to write"),
	}, "path", "content")
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	resolved, err := resolvePath(path, WorkspaceFromCtx(ctx))
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("failed to create directory for %s: %v", path, err))
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write %s: %v", path, err))
	}
	return NewResult(fmt.Sprintf("Wrote %d bytes to %s", len(content), path))
}

// ReplaceInFileTool replaces an exact text match inside a file.
type ReplaceInFileTool struct{}

func (t *ReplaceInFileTool) Name() string { return "replace_in_file" }
func (t *ReplaceInFileTool) Description() string {
	return "Replace the first exact occurrence of a text block in a file. The search text must match exactly, including whitespace."
}
func (t *ReplaceInFileTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"path":    stringProp("Path to the file to edit"),
		"search":  stringProp("Exact text to find"),
		"replace": stringProp("Text to replace it with"),
	}, "path", "search", "replace")
}

func (t *ReplaceInFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	search, _ := args["search"].(string)
	replace, _ := args["replace"].(string)
	if search == "" {
		return ErrorResult("search text is required")
	}
	resolved, err := resolvePath(path, WorkspaceFromCtx(ctx))
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read %s: %v", path, err))
	}
	content := string(data)
	count := strings.Count(content, search)
	if count == 0 {
		return ErrorResult(fmt.Sprintf("search text not found in %s; read the file and match the current content exactly", path))
	}
	updated := strings.Replace(content, search, replace, 1)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write %s: %v", path, err))
	}
	if count > 1 {
		return NewResult(fmt.Sprintf("Replaced first of %d occurrences in %s", count, path))
	}
	return NewResult(fmt.Sprintf("Replaced 1 occurrence in %s", path))
}

// ApplyDiffTool applies a unified diff to a file. A diff against a
// missing file creates it.
type ApplyDiffTool struct{}

func (t *ApplyDiffTool) Name() string { return "apply_diff" }
func (t *ApplyDiffTool) Description() string {
	return "Apply a unified diff to a file. Context lines must match the current file content."
}
func (t *ApplyDiffTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"path": stringProp("Path to the file the diff applies to"),
		"diff": stringProp("Unified diff text (---/+++ headers optional, @@ hunks required)"),
	}, "diff")
}

func (t *ApplyDiffTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	diffText, _ := args["diff"].(string)
	if strings.TrimSpace(diffText) == "" {
		return ErrorResult("diff is required")
	}
	path, _ := args["path"].(string)
	if path == "" {
		path = diff.ExtractPath(diffText)
	}
	if path == "" {
		return ErrorResult("path is required (none given and none found in diff headers)")
	}
	resolved, err := resolvePath(path, WorkspaceFromCtx(ctx))
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}

	original := ""
	created := false
	if data, err := os.ReadFile(resolved); err == nil {
		original = string(data)
	} else if os.IsNotExist(err) {
		created = true
	} else {
		return ErrorResult(fmt.Sprintf("failed to read %s: %v", path, err))
	}

	updated, err := diff.Apply(original, diffText)
	if err != nil {
		return ErrorResult(fmt.Sprintf("diff does not apply to %s: %v", path, err))
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("failed to create directory for %s: %v", path, err))
	}
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write %s: %v", path, err))
	}
	if created {
		return NewResult(fmt.Sprintf("Created %s from diff (%d bytes)", path, len(updated)))
	}
	return NewResult(fmt.Sprintf("Applied diff to %s (%d bytes)", path, len(updated)))
}

// ReadManyFilesTool reads several files in one call with per-file caps.
type ReadManyFilesTool struct{}

func (t *ReadManyFilesTool) Name() string { return "read_many_files" }
func (t *ReadManyFilesTool) Description() string {
	return "Read up to 20 files at once. Each file is capped; use read_file for full content."
}
func (t *ReadManyFilesTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"paths": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": "Paths of the files to read",
		},
	}, "paths")
}

func (t *ReadManyFilesTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	raw, _ := args["paths"].([]interface{})
	if len(raw) == 0 {
		return ErrorResult("paths is required and must be a non-empty array")
	}
	workspace := WorkspaceFromCtx(ctx)

	var sb strings.Builder
	shown := 0
	for _, item := range raw {
		if shown >= 20 {
			fmt.Fprintf(&sb, "... %d more files omitted\n", len(raw)-shown)
			break
		}
		path, _ := item.(string)
		if path == "" {
			continue
		}
		resolved, err := resolvePath(path, workspace)
		if err != nil {
			fmt.Fprintf(&sb, "=== %s ===\n(error: %v)\n\n", path, err)
			shown++
			continue
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			fmt.Fprintf(&sb, "=== %s ===\n(error: %v)\n\n", path, err)
			shown++
			continue
		}
		content := string(data)
		if len(content) > perFileCap {
			content = content[:perFileCap] + fmt.Sprintf("\n... truncated (%d bytes total)", len(data))
		}
		fmt.Fprintf(&sb, "=== %s ===\n%s\n\n", path, content)
		shown++
	}
	return PayloadResult(map[string]interface{}{
		"count":   shown,
		"content": strings.TrimRight(sb.String(), "\n"),
	})
}

// Schema helpers shared by the builtin tools.

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func numberProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": description}
}

func boolProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": description}
}

// intArg reads a numeric argument; JSON numbers arrive as float64.
func intArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}
