package tools

import (
	"github.com/rushi32/IsoCode/internal/index"
	"github.com/rushi32/IsoCode/internal/store"
)

// Deps carries the shared services the builtin tools need.
type Deps struct {
	Store       *store.Store
	Index       *index.Cache
	LLM         VisionCaller
	VisionModel func() string
	Board       *TaskBoard
	Browser     *Browser
}

// RegisterBuiltins registers the full builtin tool set. External server
// tools are added separately under the mcp_ prefix.
func RegisterBuiltins(reg *Registry, d Deps) {
	// file
	reg.Register(&ReadFileTool{})
	reg.Register(&WriteFileTool{})
	reg.Register(&ReplaceInFileTool{})
	reg.Register(&ApplyDiffTool{})
	reg.Register(&ReadManyFilesTool{})

	// search and navigation
	reg.Register(&ListFilesTool{})
	reg.Register(&GlobSearchTool{})
	reg.Register(&GrepSearchTool{})
	reg.Register(&CodebaseSearchTool{Index: d.Index})

	// shell
	reg.Register(&RunCommandTool{})

	// git
	reg.Register(&GitStatusTool{})
	reg.Register(&GitDiffTool{})
	reg.Register(&GitLogTool{})
	reg.Register(&GitCommitTool{})
	reg.Register(&GitBranchTool{})

	// lint and tests
	reg.Register(&RunLintTool{})
	reg.Register(&RunTestsTool{})

	// memory
	reg.Register(&MemoryStoreTool{Store: d.Store})
	reg.Register(&MemoryGetTool{Store: d.Store})

	// tasks
	reg.Register(&TaskAddTool{Board: d.Board})
	reg.Register(&TaskCompleteTool{Board: d.Board})
	reg.Register(&TaskListTool{Board: d.Board})

	// browser
	reg.Register(&BrowserOpenTool{Browser: d.Browser})
	reg.Register(&BrowserNavigateTool{Browser: d.Browser})
	reg.Register(&BrowserClickTool{Browser: d.Browser})
	reg.Register(&BrowserTypeTool{Browser: d.Browser})
	reg.Register(&BrowserScreenshotTool{Browser: d.Browser, Store: d.Store})
	reg.Register(&BrowserCloseTool{Browser: d.Browser})

	// vision and web
	reg.Register(&AnalyzeImageTool{LLM: d.LLM, VisionModel: d.VisionModel, Browser: d.Browser})
	reg.Register(&WebFetchTool{})
}

// Categories lists the builtin tools grouped for prompt rendering, in
// the order the system prompt presents them.
func Categories() []struct {
	Title string
	Names []string
} {
	return []struct {
		Title string
		Names []string
	}{
		{"Files", []string{"read_file", "write_file", "replace_in_file", "apply_diff", "read_many_files"}},
		{"Search", []string{"list_files", "glob_search", "grep_search", "codebase_search"}},
		{"Shell", []string{"run_command"}},
		{"Git", []string{"git_status", "git_diff", "git_log", "git_commit", "git_branch"}},
		{"Quality", []string{"run_lint", "run_tests"}},
		{"Memory", []string{"memory_store", "memory_get"}},
		{"Tasks", []string{"task_add", "task_complete", "task_list"}},
		{"Browser", []string{"browser_open", "browser_navigate", "browser_click", "browser_type", "browser_screenshot", "browser_close"}},
		{"Vision", []string{"analyze_image"}},
		{"Web", []string{"web_fetch"}},
	}
}
