package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rushi32/IsoCode/internal/config"
	"github.com/rushi32/IsoCode/internal/sessions"
	"github.com/rushi32/IsoCode/internal/tools"
)

const promptPreamble = `You are IsoCode, a coding agent working inside the user's workspace. You operate in a strict loop: you reply with exactly one JSON object, the system executes it, and the result arrives as the next message.

Reply with ONE of these JSON forms and nothing else (no prose outside the JSON):
{"type":"thought","content":"<reasoning, planning, progress notes>"}
{"type":"action","tool":"<tool name>","args":{<tool arguments>}}
{"type":"diff_request","filePath":"<workspace-relative path>","diff":"<unified diff>"}
{"type":"final","content":"<the answer or completion summary for the user>"}`

const promptDelegateForm = `{"type":"delegate","tasks":[{"task":"<independent subtask>","model":"<optional model override>"}]}`

const promptPlanning = `Planning:
- Your first reply to a new request must be a thought starting with PLAN: followed by a numbered task list.
- After finishing each task, reply with a thought containing PROGRESS: and what was completed.
- Emit final only when every planned task is done.`

const promptPermissionsAgent = `Permissions:
- Propose every file mutation as a diff_request (or call write_file / replace_in_file / apply_diff and the system converts the call into a proposal).
- The user approves or rejects each proposal; the decision arrives as an observation. Continue from it either way.`

const promptPermissionsAgentPlus = `Permissions:
- All permissions are granted. Write files and run commands directly through actions; do not emit diff_request.
- You may split independent subtasks across parallel workers with the delegate directive.`

const promptWorkflow = `Workflow:
- Read a file before modifying it; never guess at its current content.
- Prefer surgical replace_in_file edits over rewriting whole files.
- Batch related reads with read_many_files instead of one read per step.
- If a path turns out wrong, run list_files on the directory instead of retrying blindly.
- Keep steps small and verify results before moving on.`

// RenderPrompt assembles the base agent system prompt: directive format,
// planning and permissions clauses for the mode, the categorised tool
// listing, and the workflow rules. A non-empty override replaces the
// fixed clauses but the tool listing is always appended.
func RenderPrompt(reg *tools.Registry, override string, agentPlus bool) string {
	var parts []string

	if override = strings.TrimSpace(override); override != "" {
		parts = append(parts, override)
	} else {
		preamble := promptPreamble
		if agentPlus {
			preamble += "\n" + promptDelegateForm
		}
		permissions := promptPermissionsAgent
		if agentPlus {
			permissions = promptPermissionsAgentPlus
		}
		parts = append(parts, preamble, promptPlanning, permissions)
	}

	parts = append(parts, renderToolListing(reg))

	if override == "" {
		parts = append(parts, promptWorkflow)
	}
	return strings.Join(parts, "\n\n")
}

// PromptRenderer binds RenderPrompt to the live registry and config for
// the session manager.
func PromptRenderer(reg *tools.Registry, cfg *config.Config) sessions.PromptRenderer {
	return func(agentPlus bool) string {
		return RenderPrompt(reg, cfg.Snapshot().SystemPrompt, agentPlus)
	}
}

// renderToolListing groups the registered tools under the builtin
// category headers, with external server tools in a trailing group.
func renderToolListing(reg *tools.Registry) string {
	var b strings.Builder
	b.WriteString("Tools:")

	listed := make(map[string]bool)
	for _, cat := range tools.Categories() {
		var lines []string
		for _, name := range cat.Names {
			t, ok := reg.Get(name)
			if !ok {
				continue
			}
			listed[name] = true
			lines = append(lines, toolLine(t))
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n\n%s:\n%s", cat.Title, strings.Join(lines, "\n"))
	}

	var external []string
	for _, t := range reg.Tools() {
		if !listed[t.Name()] {
			external = append(external, toolLine(t))
		}
	}
	if len(external) > 0 {
		fmt.Fprintf(&b, "\n\nExternal:\n%s", strings.Join(external, "\n"))
	}
	return b.String()
}

func toolLine(t tools.Tool) string {
	return fmt.Sprintf("- %s(%s): %s", t.Name(), signature(t.Parameters()), t.Description())
}

// signature renders a schema's parameters as name, name? pairs with the
// required ones first.
func signature(schema map[string]interface{}) string {
	props, _ := schema["properties"].(map[string]interface{})
	if len(props) == 0 {
		return ""
	}

	required := make(map[string]bool)
	switch req := schema["required"].(type) {
	case []string:
		for _, name := range req {
			required[name] = true
		}
	case []interface{}:
		for _, v := range req {
			if name, ok := v.(string); ok {
				required[name] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if required[names[i]] != required[names[j]] {
			return required[names[i]]
		}
		return names[i] < names[j]
	})

	out := make([]string, 0, len(names))
	for _, name := range names {
		if required[name] {
			out = append(out, name)
		} else {
			out = append(out, name+"?")
		}
	}
	return strings.Join(out, ", ")
}
