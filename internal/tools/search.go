package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rushi32/IsoCode/internal/index"
)

// grepMatchCap bounds grep_search hits; the truncation layer notes the
// overflow when more were found.
const grepMatchCap = 30

// skipWalkDir keeps the search walkers out of dependency and build
// output directories. Kept in sync with the file-index ignore set.
func skipWalkDir(name string) bool {
	if strings.HasPrefix(name, ".") && name != "." {
		return true
	}
	switch name {
	case "node_modules", "dist", "out", "build", "vendor", "target", "__pycache__", "coverage":
		return true
	}
	return false
}

// ListFilesTool lists a directory.
type ListFilesTool struct{}

func (t *ListFilesTool) Name() string { return "list_files" }
func (t *ListFilesTool) Description() string {
	return "List the entries of a directory. Directories are suffixed with /."
}
func (t *ListFilesTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"path": stringProp("Directory to list, relative to the workspace (default: workspace root)"),
	})
}

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	resolved, err := resolvePath(path, WorkspaceFromCtx(ctx))
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to list %s: %v", path, err))
	}
	names := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].(string) < names[j].(string) })
	return PayloadResult(map[string]interface{}{
		"path":  path,
		"files": names,
		"count": len(names),
	})
}

// GlobSearchTool finds files whose relative path matches a glob pattern.
type GlobSearchTool struct{}

func (t *GlobSearchTool) Name() string { return "glob_search" }
func (t *GlobSearchTool) Description() string {
	return "Find files matching a glob pattern (e.g. **/*.go or src/*.ts)."
}
func (t *GlobSearchTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"pattern": stringProp("Glob pattern matched against workspace-relative paths"),
	}, "pattern")
}

func (t *GlobSearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return ErrorResult("pattern is required")
	}
	workspace := WorkspaceFromCtx(ctx)

	var files []interface{}
	err := filepath.WalkDir(workspace, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != workspace && skipWalkDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(workspace, path)
		if err != nil {
			return nil
		}
		if matchGlob(pattern, rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("glob walk failed: %v", err))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].(string) < files[j].(string) })
	return PayloadResult(map[string]interface{}{
		"pattern": pattern,
		"files":   files,
		"count":   len(files),
	})
}

// matchGlob matches a workspace-relative path against a glob pattern.
// ** spans directories; a bare pattern with no separator matches the
// base name anywhere in the tree.
func matchGlob(pattern, rel string) bool {
	if !strings.ContainsRune(pattern, '/') && !strings.Contains(pattern, "**") {
		ok, _ := filepath.Match(pattern, filepath.Base(rel))
		return ok
	}
	re, err := globToRegexp(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(rel)
}

func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				// **/ also matches the empty prefix
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					sb.WriteString("(?:.*/)?")
					i += 2
				} else {
					sb.WriteString(".*")
					i++
				}
			} else {
				sb.WriteString("[^/]*")
			}
		case '?':
			sb.WriteString("[^/]")
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

// GrepSearchTool searches file contents with a regular expression.
type GrepSearchTool struct{}

func (t *GrepSearchTool) Name() string { return "grep_search" }
func (t *GrepSearchTool) Description() string {
	return "Search file contents with a regular expression. Returns up to 30 matches with file and line."
}
func (t *GrepSearchTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"pattern": stringProp("Regular expression to search for"),
		"path":    stringProp("Directory to search under (default: workspace root)"),
		"include": stringProp("Glob limiting which files are searched (e.g. *.go)"),
	}, "pattern")
}

func (t *GrepSearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return ErrorResult("pattern is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid regular expression: %v", err))
	}
	workspace := WorkspaceFromCtx(ctx)
	root := workspace
	if path, _ := args["path"].(string); path != "" {
		root, err = resolvePath(path, workspace)
		if err != nil {
			return ErrorResult(err.Error()).WithError(err)
		}
	}
	include, _ := args["include"].(string)

	var matches []interface{}
	total := 0
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skipWalkDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if include != "" {
			if ok, _ := filepath.Match(include, d.Name()); !ok {
				return nil
			}
		}
		rel, relErr := filepath.Rel(workspace, path)
		if relErr != nil {
			rel = path
		}
		found, err := grepFile(path, rel, re, &matches, &total)
		if err != nil {
			return nil
		}
		if found && total > grepMatchCap*4 {
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return ErrorResult(fmt.Sprintf("search walk failed: %v", walkErr))
	}
	return PayloadResult(map[string]interface{}{
		"pattern": pattern,
		"matches": matches,
		"total":   total,
	})
}

func grepFile(path, rel string, re *regexp.Regexp, matches *[]interface{}, total *int) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	found := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 256*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.ContainsRune(line, 0) {
			return found, nil // binary
		}
		if !re.MatchString(line) {
			continue
		}
		found = true
		*total++
		if len(*matches) < grepMatchCap {
			text := line
			if len(text) > 200 {
				text = text[:200]
			}
			*matches = append(*matches, map[string]interface{}{
				"file": rel,
				"line": lineNo,
				"text": strings.TrimSpace(text),
			})
		}
	}
	return found, nil
}

// CodebaseSearchTool queries the shared file index.
type CodebaseSearchTool struct {
	Index *index.Cache
}

func (t *CodebaseSearchTool) Name() string { return "codebase_search" }
func (t *CodebaseSearchTool) Description() string {
	return "Find files relevant to a natural-language query using the project index."
}
func (t *CodebaseSearchTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"query": stringProp("What you are looking for, e.g. 'http route registration'"),
	}, "query")
}

func (t *CodebaseSearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return ErrorResult("query is required")
	}
	ix, err := t.Index.Get(WorkspaceFromCtx(ctx))
	if err != nil {
		return ErrorResult(fmt.Sprintf("index unavailable: %v", err))
	}
	hits := ix.Search(query, 10)
	matches := make([]interface{}, 0, len(hits))
	for _, h := range hits {
		m := map[string]interface{}{"file": h.Path}
		if h.Snippet != "" {
			m["snippet"] = h.Snippet
		}
		matches = append(matches, m)
	}
	return PayloadResult(map[string]interface{}{
		"query":   query,
		"matches": matches,
		"total":   len(matches),
	})
}
