package engine

import (
	"regexp"
	"strings"

	"github.com/rushi32/IsoCode/internal/sessions"
)

var (
	planMarker   = regexp.MustCompile(`(?m)^\s*PLAN\s*:`)
	planTaskLine = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+\S`)
)

// trackPlan updates the session's plan state from a thought. The first
// thought carrying a PLAN: marker (or an unmistakable numbered list)
// becomes the plan; its numbered lines are the task count. Later
// thoughts reporting progress bump the completed counter.
func trackPlan(s *sessions.Session, thought string) {
	if s.PlanText == "" {
		tasks := planTaskLine.FindAllString(thought, -1)
		// Without the marker, a single numbered line is too weak a
		// signal; require a real list.
		if planMarker.MatchString(thought) || len(tasks) >= 2 {
			s.PlanText = thought
			s.TotalTasks = len(tasks)
			return
		}
	}
	if strings.Contains(thought, "PROGRESS:") || strings.Contains(thought, "Completed task") {
		s.NoteProgress()
	}
}
