package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DirectiveType discriminates the assistant's per-turn output.
type DirectiveType string

const (
	DirectiveThought     DirectiveType = "thought"
	DirectiveAction      DirectiveType = "action"
	DirectiveDiffRequest DirectiveType = "diff_request"
	DirectiveDelegate    DirectiveType = "delegate"
	DirectiveFinal       DirectiveType = "final"
)

// DelegateTask is one subtask of a delegate directive.
type DelegateTask struct {
	Task  string `json:"task"`
	Model string `json:"model,omitempty"`
}

// UnmarshalJSON accepts both a bare string and an object carrying the
// task text and optional model hint under their common spellings.
func (t *DelegateTask) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Task = strings.TrimSpace(s)
		return nil
	}
	var obj struct {
		Task        string `json:"task"`
		TaskText    string `json:"taskText"`
		Description string `json:"description"`
		Prompt      string `json:"prompt"`
		Model       string `json:"model"`
		ModelHint   string `json:"modelHint"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Task = strings.TrimSpace(firstNonEmpty(obj.Task, obj.TaskText, obj.Description, obj.Prompt))
	t.Model = firstNonEmpty(obj.Model, obj.ModelHint)
	return nil
}

// Directive is the tagged union the model emits each turn. Exactly the
// fields of the active variant are set.
type Directive struct {
	Type DirectiveType `json:"type"`

	// thought, final
	Content string `json:"content,omitempty"`

	// action
	Tool string                 `json:"tool,omitempty"`
	Args map[string]interface{} `json:"args,omitempty"`

	// diff_request
	FilePath string `json:"filePath,omitempty"`
	Diff     string `json:"diff,omitempty"`

	// delegate
	Tasks []DelegateTask `json:"tasks,omitempty"`
}

// JSON renders the directive the way it is recorded in the conversation.
func (d *Directive) JSON() string {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf(`{"type":%q}`, string(d.Type))
	}
	return string(b)
}

// Models that drop the discriminator or rename it still get understood.
var typeAliases = map[string]DirectiveType{
	"thinking":     DirectiveThought,
	"reasoning":    DirectiveThought,
	"plan":         DirectiveThought,
	"tool":         DirectiveAction,
	"tool_call":    DirectiveAction,
	"tool_use":     DirectiveAction,
	"answer":       DirectiveFinal,
	"final_answer": DirectiveFinal,
	"response":     DirectiveFinal,
	"result":       DirectiveFinal,
}

var (
	// Assistant-channel framing some local models leak into output,
	// e.g. <|channel|>final<|message|>.
	channelMarkers = regexp.MustCompile(`<\|[^|<>]*\|>`)

	// Fence lines around JSON blocks: ```json ... ```
	fenceLines = regexp.MustCompile("(?m)^\\s*```[a-zA-Z0-9]*\\s*$")
)

// ParseDirective turns raw model text into a directive. Three tiers, in
// order: the largest balanced JSON object after wrapper stripping, then
// key-value salvage, then heuristic English salvage. The second return
// is false when nothing usable was found.
func ParseDirective(text string) (*Directive, bool) {
	cleaned := stripWrappers(text)
	if cleaned == "" {
		return nil, false
	}

	candidates := extractJSONObjects(cleaned)
	sort.SliceStable(candidates, func(i, j int) bool { return len(candidates[i]) > len(candidates[j]) })
	for _, blob := range candidates {
		if d, ok := decodeDirective(blob); ok {
			return d, true
		}
	}

	if d, ok := salvageKeyValue(cleaned); ok {
		return d, true
	}
	return salvageEnglish(cleaned)
}

func stripWrappers(text string) string {
	text = channelMarkers.ReplaceAllString(text, "\n")
	text = fenceLines.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// extractJSONObjects returns every balanced top-level JSON object
// substring in positional order. String literals are tracked only inside
// an object so braces in prose quotes cannot open a phantom object.
func extractJSONObjects(text string) []string {
	var spans []string
	depth, start := 0, -1
	inString, escaped := false, false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				spans = append(spans, text[start:i+1])
				start = -1
			}
		}
	}
	return spans
}

// rawDirective tolerates the field spellings models actually produce.
type rawDirective struct {
	Type     string          `json:"type"`
	Content  string          `json:"content"`
	Text     string          `json:"text"`
	Message  string          `json:"message"`
	Tool     string          `json:"tool"`
	Name     string          `json:"name"`
	Args     json.RawMessage `json:"args"`
	Argument json.RawMessage `json:"arguments"`
	FilePath string          `json:"filePath"`
	AltPath  string          `json:"file_path"`
	Diff     string          `json:"diff"`
	Tasks    []DelegateTask  `json:"tasks"`
}

func decodeDirective(blob string) (*Directive, bool) {
	var raw rawDirective
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return nil, false
	}

	d := &Directive{
		Content:  firstNonEmpty(raw.Content, raw.Text, raw.Message),
		Tool:     strings.TrimSpace(firstNonEmpty(raw.Tool, raw.Name)),
		Args:     decodeArgs(firstRaw(raw.Args, raw.Argument)),
		FilePath: firstNonEmpty(raw.FilePath, raw.AltPath),
		Diff:     raw.Diff,
		Tasks:    nonEmptyTasks(raw.Tasks),
	}

	typ := strings.ToLower(strings.TrimSpace(raw.Type))
	if alias, ok := typeAliases[typ]; ok {
		d.Type = alias
	} else {
		d.Type = DirectiveType(typ)
	}

	switch d.Type {
	case DirectiveThought, DirectiveFinal:
		return d, d.Content != ""
	case DirectiveAction:
		return d, d.Tool != ""
	case DirectiveDiffRequest:
		return d, d.Diff != ""
	case DirectiveDelegate:
		return d, len(d.Tasks) > 0
	case "":
		// Unambiguous payloads speak for themselves.
		switch {
		case d.Tool != "":
			d.Type = DirectiveAction
		case d.Diff != "":
			d.Type = DirectiveDiffRequest
		case len(d.Tasks) > 0:
			d.Type = DirectiveDelegate
		default:
			return nil, false
		}
		return d, true
	default:
		return nil, false
	}
}

// decodeArgs accepts an object, a JSON-encoded object in a string, or
// nothing.
func decodeArgs(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			return m
		}
	}
	return nil
}

func nonEmptyTasks(tasks []DelegateTask) []DelegateTask {
	out := tasks[:0]
	for _, t := range tasks {
		if t.Task != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Tier 2: key-value salvage for replies like `action="read_file"
// args={"path":"a.go"}` or `final: all done`.
var (
	salvageActionKey = regexp.MustCompile(`(?i)\baction\b\s*[:=]\s*"?([a-zA-Z][a-zA-Z0-9_.-]*)"?`)
	salvageArgsKey   = regexp.MustCompile(`(?i)\bargs(?:uments)?\b\s*[:=]\s*`)
	salvageFinalKey  = regexp.MustCompile(`(?i)^\s*"?final(?:_answer)?"?\s*[:=]\s*(.+)`)
	salvageThought   = regexp.MustCompile(`(?i)^\s*"?thought"?\s*[:=]\s*(.+)`)
)

func salvageKeyValue(text string) (*Directive, bool) {
	if m := salvageActionKey.FindStringSubmatch(text); m != nil {
		d := &Directive{Type: DirectiveAction, Tool: m[1]}
		if loc := salvageArgsKey.FindStringIndex(text); loc != nil {
			if objs := extractJSONObjects(text[loc[1]:]); len(objs) > 0 {
				d.Args = decodeArgs(json.RawMessage(objs[0]))
			}
		}
		return d, true
	}
	if m := salvageFinalKey.FindStringSubmatch(text); m != nil {
		return &Directive{Type: DirectiveFinal, Content: strings.TrimSpace(m[1])}, true
	}
	if m := salvageThought.FindStringSubmatch(text); m != nil {
		return &Directive{Type: DirectiveThought, Content: strings.TrimSpace(m[1])}, true
	}
	return nil, false
}

// Tier 3: heuristic salvage of imperative English. Only unmistakable
// phrasings are mapped; everything else stays a parse failure so the
// format nudge can correct the model.
var (
	salvageReadFile  = regexp.MustCompile("(?i)\\bread(?:ing)?\\s+(?:the\\s+)?file\\s+[`'\"]?([\\w./\\\\-]+)")
	salvageRunCmd    = regexp.MustCompile("(?i)\\brun(?:ning)?\\s+`([^`]+)`")
	salvageSearch    = regexp.MustCompile("(?i)\\bsearch(?:ing)?\\s+for\\s+[`'\"]?([^`'\"\n]+)")
	salvageListFiles = regexp.MustCompile("(?i)\\blist(?:ing)?\\s+(?:the\\s+)?files\\s+in\\s+[`'\"]?([\\w./\\\\-]+)")
	salvageThinking  = regexp.MustCompile(`(?i)^\s*(?:okay|ok|sure|let me|let's|i will|i'll|i need to|first|next|now)\b`)
)

func salvageEnglish(text string) (*Directive, bool) {
	if m := salvageReadFile.FindStringSubmatch(text); m != nil {
		return &Directive{Type: DirectiveAction, Tool: "read_file", Args: map[string]interface{}{"path": m[1]}}, true
	}
	if m := salvageRunCmd.FindStringSubmatch(text); m != nil {
		return &Directive{Type: DirectiveAction, Tool: "run_command", Args: map[string]interface{}{"command": m[1]}}, true
	}
	if m := salvageSearch.FindStringSubmatch(text); m != nil {
		return &Directive{Type: DirectiveAction, Tool: "codebase_search", Args: map[string]interface{}{"query": strings.TrimSpace(m[1])}}, true
	}
	if m := salvageListFiles.FindStringSubmatch(text); m != nil {
		return &Directive{Type: DirectiveAction, Tool: "list_files", Args: map[string]interface{}{"path": m[1]}}, true
	}
	if salvageThinking.MatchString(text) || strings.Contains(text, "my plan") || planMarker.MatchString(text) {
		return &Directive{Type: DirectiveThought, Content: text}, true
	}
	return nil, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstRaw(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}
