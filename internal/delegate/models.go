package delegate

import "regexp"

// taskClass buckets a subtask by the capability it needs, driving which
// installed model runs it first.
type taskClass int

const (
	classGeneral taskClass = iota
	classCoder
	classVision
)

func (c taskClass) String() string {
	switch c {
	case classCoder:
		return "coder"
	case classVision:
		return "vision"
	}
	return "general"
}

var (
	visionTaskRe = regexp.MustCompile(`(?i)\b(screenshot|browser|image|picture|photo|diagram|visual)\b|what is on the screen|look at the (page|screen)`)
	coderTaskRe  = regexp.MustCompile(`(?i)\b(implement|fix|refactor|edit|write|code|file|function|class|method|bug|test|apply_diff|rename|debug)\b`)
)

// classify maps a task's wording to its class. Vision wins over coder so
// "fix the screenshot" still reaches a model that can see.
func classify(task string) taskClass {
	switch {
	case visionTaskRe.MatchString(task):
		return classVision
	case coderTaskRe.MatchString(task):
		return classCoder
	}
	return classGeneral
}

// classPatterns score an installed model's id for a class; one point per
// matching pattern, highest total wins.
var classPatterns = map[taskClass][]*regexp.Regexp{
	classVision: {
		regexp.MustCompile(`(?i)llava|bakllava|moondream|minicpm-v`),
		regexp.MustCompile(`(?i)vision`),
		regexp.MustCompile(`(?i)vl\b`),
	},
	classCoder: {
		regexp.MustCompile(`(?i)coder|codellama|codegemma|starcoder|codestral|devstral`),
		regexp.MustCompile(`(?i)deepseek`),
		regexp.MustCompile(`(?i)\bcode\b`),
	},
	classGeneral: {
		regexp.MustCompile(`(?i)instruct|chat`),
		regexp.MustCompile(`(?i)llama|mistral|gemma|phi|qwen`),
	},
}

var coderModelRe = regexp.MustCompile(`(?i)coder|codellama|codegemma|starcoder|codestral|devstral|deepseek`)

func scoreModel(id string, class taskClass) int {
	score := 0
	for _, p := range classPatterns[class] {
		if p.MatchString(id) {
			score++
		}
	}
	return score
}

// modelsFor computes the ordered model list for one task. An explicit
// hint is honoured verbatim and alone. Otherwise the task's class picks
// a primary from the installed models, the rest follow as fallbacks in
// listing order, and the configured vision model and the session default
// close the list.
func modelsFor(task, hint string, available []string, defaultModel, visionModel string) []string {
	if hint != "" {
		return []string{hint}
	}

	class := classify(task)

	primary := ""
	best := 0
	for _, id := range available {
		if s := scoreModel(id, class); s > best {
			best = s
			primary = id
		}
	}

	// A vision task with no vision-capable install should at least avoid
	// a coder model when the session default is one.
	if class == classVision && primary == "" && coderModelRe.MatchString(defaultModel) {
		for _, id := range available {
			if !coderModelRe.MatchString(id) {
				primary = id
				break
			}
		}
		if primary == "" {
			primary = visionModel
		}
	}

	ordered := make([]string, 0, len(available)+3)
	ordered = append(ordered, primary)
	ordered = append(ordered, available...)
	ordered = append(ordered, visionModel, defaultModel)
	return dedupe(ordered)
}

func dedupe(models []string) []string {
	seen := make(map[string]bool, len(models))
	out := models[:0]
	for _, m := range models {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
