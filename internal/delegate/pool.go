// Package delegate runs the agent-plus worker pool. Each delegated task
// gets an ordered list of candidate models, a fresh sub-agent session,
// and up to maxWorkers tasks run at a time; the results come back as a
// single aggregated observation for the parent agent.
package delegate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rushi32/IsoCode/internal/config"
	"github.com/rushi32/IsoCode/internal/engine"
	"github.com/rushi32/IsoCode/internal/llm"
)

const (
	minWorkers = 1
	maxWorkers = 5
)

// fatalRe marks runner errors that no other model can recover from:
// resource exhaustion and torn connections abort the whole delegation.
var fatalRe = regexp.MustCompile(`memory|heap|ENOMEM|out of memory|ECONNRESET|socket hang up|abort`)

// ModelLister reports the models installed on the provider. *llm.Client
// satisfies it.
type ModelLister interface {
	ListModels(ctx context.Context) ([]llm.ModelEntry, error)
}

// Runner executes one subtask to completion in its own session and
// returns the final answer text. Engine.RunSubtask satisfies it.
type Runner func(ctx context.Context, sessionID, model, workspace, task string) (string, error)

// Pool satisfies engine.Delegator.
type Pool struct {
	cfg    *config.Config
	models ModelLister
	run    Runner
}

var _ engine.Delegator = (*Pool)(nil)

func NewPool(cfg *config.Config, models ModelLister, run Runner) *Pool {
	return &Pool{cfg: cfg, models: models, run: run}
}

type taskResult struct {
	text   string
	failed bool
}

// Delegate fans the tasks out over sub-agent sessions. The installed
// model list is fetched once per delegation; each task then works
// through its own candidate list, falling back on non-fatal errors.
// Delegate returns an error only when a task fails fatally or when
// every task fails, which disables delegation for the parent session.
func (p *Pool) Delegate(ctx context.Context, parentID, defaultModel, workspace string, tasks []engine.DelegateTask) (string, int, error) {
	norm := make([]engine.DelegateTask, 0, len(tasks))
	for _, t := range tasks {
		t.Task = strings.TrimSpace(t.Task)
		if t.Task != "" {
			norm = append(norm, t)
		}
	}
	if len(norm) == 0 {
		return "", 0, fmt.Errorf("delegation request carries no tasks")
	}

	snap := p.cfg.Snapshot()

	var available []string
	if entries, err := p.models.ListModels(ctx); err != nil {
		slog.Warn("delegation could not list models, using session default only", "error", err)
	} else {
		available = make([]string, 0, len(entries))
		for _, e := range entries {
			available = append(available, e.ID)
		}
	}

	candidates := make([][]string, len(norm))
	for i, t := range norm {
		candidates[i] = modelsFor(t.Task, t.Model, available, defaultModel, snap.VisionModel)
		if len(candidates[i]) == 0 {
			return "", 0, fmt.Errorf("no model available for subtask %d", i+1)
		}
		slog.Info("subtask planned",
			"parent", parentID,
			"subtask", i+1,
			"class", classify(t.Task).String(),
			"models", candidates[i])
	}

	workers := snap.MaxWorkers
	if workers < minWorkers {
		workers = minWorkers
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}

	results := make([]taskResult, len(norm))
	for start := 0; start < len(norm); start += workers {
		end := start + workers
		if end > len(norm) {
			end = len(norm)
		}
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				return p.runTask(gctx, parentID, workspace, i, norm[i], candidates[i], results)
			})
		}
		if err := g.Wait(); err != nil {
			return "", 0, err
		}
	}

	failed := 0
	for _, r := range results {
		if r.failed {
			failed++
		}
	}
	if failed == len(results) {
		return "", 0, fmt.Errorf("all %d delegated subtasks failed", len(results))
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Subtask %d] %s", i+1, r.text)
	}
	return b.String(), len(results), nil
}

// runTask works through the task's candidate models in order. A fatal
// error aborts the delegation; exhausting every candidate records a
// failure for this task but lets the siblings finish.
func (p *Pool) runTask(ctx context.Context, parentID, workspace string, i int, task engine.DelegateTask, models []string, results []taskResult) error {
	subID := fmt.Sprintf("%s-sub-%d", parentID, i+1)

	var lastErr error
	for _, model := range models {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := p.run(ctx, subID, model, workspace, task.Task)
		if err == nil {
			slog.Info("subtask finished", "session", subID, "model", model)
			results[i] = taskResult{text: text}
			return nil
		}
		lastErr = err
		if fatalRe.MatchString(err.Error()) {
			slog.Error("subtask failed fatally", "session", subID, "model", model, "error", err)
			return fmt.Errorf("subtask %d failed on %s: %w", i+1, model, err)
		}
		slog.Warn("subtask model failed, trying next", "session", subID, "model", model, "error", err)
	}

	results[i] = taskResult{failed: true, text: failureText(lastErr)}
	return nil
}

func failureText(err error) string {
	if err == nil {
		return "failed: no model produced a result"
	}
	line := err.Error()
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return "failed: " + line
}
