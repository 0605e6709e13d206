// Package engine implements the per-session ReAct control loop: system
// prompt rendering, directive parsing with salvage, plan and progress
// tracking, approval gating for file mutations, compaction scheduling,
// delegation hand-off, and termination. Every error path converges on a
// final event (run ends) or an observation (run continues); the loop
// never raises past Run.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rushi32/IsoCode/internal/config"
	"github.com/rushi32/IsoCode/internal/contextwindow"
	"github.com/rushi32/IsoCode/internal/diff"
	"github.com/rushi32/IsoCode/internal/llm"
	"github.com/rushi32/IsoCode/internal/sessions"
	"github.com/rushi32/IsoCode/internal/store"
	"github.com/rushi32/IsoCode/internal/tools"
	"github.com/rushi32/IsoCode/pkg/protocol"
)

const (
	// DefaultMaxSteps bounds one run unless the caller raises it.
	DefaultMaxSteps = 12

	// MaxStepsCeiling is the largest per-run step cap a caller may
	// request; the interactive server boundary uses it.
	MaxStepsCeiling = 500

	// subtaskMaxSteps caps delegated sub-agent runs.
	subtaskMaxSteps = 15

	// maxStepsWithoutAction ends runs that keep reasoning without
	// acting.
	maxStepsWithoutAction = 10

	checkpointEvery = 8

	agentTimeout     = 180 * time.Second
	agentPlusTimeout = 300 * time.Second
	maxOutputTokens  = 4096
	llmRetries       = 2
)

const (
	jsonFormatNudge = `Your reply could not be parsed. Respond with exactly one JSON object per turn, using one of: {"type":"thought","content":"..."}, {"type":"action","tool":"...","args":{...}}, {"type":"diff_request","filePath":"...","diff":"..."}, or {"type":"final","content":"..."}. No prose outside the JSON.`

	actionNudge = "You have been thinking for two turns without acting. Take a concrete step now: reply with an action, or with final if everything is already done."

	delegationUnavailableNudge = "Delegation is not available for this session. Work through the tasks yourself, one action per turn."
)

// SendFunc delivers one event frame to the client. The engine calls it
// from the session's own goroutine only.
type SendFunc func(protocol.Event)

// ModelClient is the slice of the LLM adapter the engine needs.
// *llm.Client satisfies it.
type ModelClient interface {
	Call(ctx context.Context, model string, messages []llm.Message, opts llm.Options) (*llm.Reply, error)
	Provider() string
}

// Delegator fans subtasks out to parallel sub-agents. It returns the
// aggregated observation text and how many subtask results it carries.
type Delegator interface {
	Delegate(ctx context.Context, parentID, defaultModel, workspace string, tasks []DelegateTask) (string, int, error)
}

// Engine drives agent sessions. One Engine serves all sessions; per-run
// state lives on the Session.
type Engine struct {
	cfg        *config.Config
	llm        ModelClient
	dispatcher *tools.Dispatcher
	sessions   *sessions.Manager
	compactor  *contextwindow.Compactor
	board      *tools.TaskBoard
	delegator  Delegator
}

// New builds the engine around its collaborators.
func New(cfg *config.Config, client ModelClient, dispatcher *tools.Dispatcher, mgr *sessions.Manager, board *tools.TaskBoard) *Engine {
	return &Engine{
		cfg:        cfg,
		llm:        client,
		dispatcher: dispatcher,
		sessions:   mgr,
		compactor:  contextwindow.NewCompactor(client),
		board:      board,
	}
}

// SetDelegator wires the delegation pool. Without one, delegate
// directives are answered with a single-agent nudge.
func (e *Engine) SetDelegator(d Delegator) { e.delegator = d }

// Sessions exposes the registry for the server boundary.
func (e *Engine) Sessions() *sessions.Manager { return e.sessions }

// RunRequest is one agent turn arriving from the server boundary.
type RunRequest struct {
	SessionID string
	Message   string
	Model     string
	AgentPlus bool
	Workspace string
	Context   []protocol.ContextFile
	Decision  string // "", "approve", "reject"
	MaxSteps  int    // 0 means DefaultMaxSteps; capped at MaxStepsCeiling
}

// Run executes one agent turn: open or resume the session, then step
// the loop until a terminal final, a pending approval, or a step cap.
// The returned error covers request validation only (bad decision,
// unknown session); once the loop is running every failure converges on
// an event instead.
func (e *Engine) Run(ctx context.Context, req RunRequest, send SendFunc) error {
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if maxSteps > MaxStepsCeiling {
		maxSteps = MaxStepsCeiling
	}

	if req.Decision != "" {
		return e.resumeWithDecision(ctx, req, maxSteps, send)
	}

	model := req.Model
	if model == "" {
		model = e.cfg.Snapshot().Model
	}
	s, created := e.sessions.OpenOrGet(sessions.OpenRequest{
		ID:        req.SessionID,
		AgentPlus: req.AgentPlus,
		Model:     model,
		Workspace: req.Workspace,
		Message:   req.Message,
		Context:   req.Context,
	})
	if created {
		e.checkpoint(s)
	} else if req.Message != "" {
		// A fresh user turn restarts the per-run counters.
		s.Steps = 0
		s.StepsWithoutAction = 0
		s.ConsecutiveFinals = 0
	}

	if err := e.loop(ctx, s, maxSteps, send); err != nil {
		e.finish(ctx, s, send, e.providerFinalText(s.Model, err))
	}
	return nil
}

// resumeWithDecision consumes the pending diff: approve applies it
// through the dispatcher, reject touches nothing. Both push an
// observation and re-enter the loop.
func (e *Engine) resumeWithDecision(ctx context.Context, req RunRequest, maxSteps int, send SendFunc) error {
	if req.Decision != "approve" && req.Decision != "reject" {
		return fmt.Errorf("invalid decision %q: want approve or reject", req.Decision)
	}
	s, ok := e.sessions.Get(req.SessionID)
	if !ok {
		return fmt.Errorf("decision for %q: %w", req.SessionID, sessions.ErrSessionNotFound)
	}
	pd, err := s.TakePendingDiff()
	if err != nil {
		return fmt.Errorf("decision for %q: %w", req.SessionID, err)
	}

	var obs string
	if req.Decision == "approve" {
		res := e.execute(ctx, s, "apply_diff", map[string]interface{}{"path": pd.FilePath, "diff": pd.Diff})
		if res.IsError {
			obs = "User APPROVED, but applying the diff failed: " + res.ForLLM
		} else {
			obs = "User APPROVED. " + res.ForLLM
		}
	} else {
		obs = fmt.Sprintf("User REJECTED the proposed diff for %s. Do not apply it; reconsider the change or move on.", pd.FilePath)
	}
	s.Append(llm.Message{Role: llm.RoleUser, Content: observationJSON(obs)})
	send(protocol.Observation(obs))
	slog.Info("decision applied", "session", s.ID, "decision", req.Decision, "file", pd.FilePath)

	if err := e.loop(ctx, s, maxSteps, send); err != nil {
		e.finish(ctx, s, send, e.providerFinalText(s.Model, err))
	}
	return nil
}

// outcome is the flow-control result of dispatching one directive.
type outcome int

const (
	outcomeContinue outcome = iota
	outcomeAwait            // pending diff emitted; run ends, session stays
	outcomeDone             // session terminated
)

// loop advances the session until a terminal directive, a pending
// approval, a stop request, or a step cap. The returned error is a
// provider failure that survived the retries; the caller decides whether
// it becomes a final (outer runs) or propagates (subtasks).
func (e *Engine) loop(ctx context.Context, s *sessions.Session, maxSteps int, send SendFunc) error {
	consecutiveThoughts := 0

	for {
		if s.StopRequested() {
			e.finish(ctx, s, send, "Agent stopped by user.")
			return nil
		}
		if s.StepsWithoutAction >= maxStepsWithoutAction {
			e.finish(ctx, s, send, fmt.Sprintf(
				"Stopping after %d consecutive steps without a tool action. Progress so far is saved; rephrase the request or break it into smaller pieces to continue.",
				maxStepsWithoutAction))
			return nil
		}
		if s.Steps >= maxSteps {
			e.finish(ctx, s, send, fmt.Sprintf(
				"Reached the %d-step limit for this run. Progress so far is saved; send a follow-up message to continue.", maxSteps))
			return nil
		}
		s.Steps++

		snap := e.cfg.Snapshot()
		if contextwindow.ShouldCompact(s.Messages, snap.ContextWindow, s.Compactions) {
			msgs, usedFallback := e.compactor.Compact(ctx, s.Model, s.Messages)
			s.Messages = msgs
			if usedFallback {
				// The model cannot summarise right now; spending the
				// remaining compaction budget on it would only fail again.
				s.Compactions = contextwindow.MaxCompactions
			} else {
				s.Compactions++
			}
			e.checkpoint(s)
			slog.Debug("conversation compacted", "session", s.ID, "messages", len(s.Messages), "fallback", usedFallback)
		}

		if s.Steps%checkpointEvery == 0 {
			e.checkpoint(s)
		}

		view := contextwindow.TrimToBudget(s.Messages, contextwindow.Budget(snap.ContextWindow))

		reply, err := e.callModel(ctx, s, view, send)
		if err != nil {
			return err
		}

		directives := interpret(reply)
		if len(directives) == 0 {
			slog.Debug("unparsable reply", "session", s.ID, "chars", len(reply.Content))
			s.Append(llm.Message{Role: llm.RoleAssistant, Content: reply.Content})
			s.Append(llm.Message{Role: llm.RoleUser, Content: jsonFormatNudge})
			s.StepsWithoutAction++
			continue
		}

		ended := false
		for _, d := range directives {
			switch e.dispatch(ctx, s, d, send, &consecutiveThoughts) {
			case outcomeAwait, outcomeDone:
				ended = true
			}
			if ended || s.StopRequested() {
				break
			}
		}
		if ended {
			return nil
		}
	}
}

// interpret converts a model reply into directives: a native tool-call
// list beats text, otherwise the parsed or salvaged directive. Empty
// means parse failure.
func interpret(reply *llm.Reply) []*Directive {
	if len(reply.ToolCalls) > 0 {
		out := make([]*Directive, 0, len(reply.ToolCalls))
		for _, tc := range reply.ToolCalls {
			out = append(out, &Directive{Type: DirectiveAction, Tool: tc.Name, Args: tc.Args})
		}
		return out
	}
	if d, ok := ParseDirective(reply.Content); ok {
		return []*Directive{d}
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, s *sessions.Session, d *Directive, send SendFunc, consecutiveThoughts *int) outcome {
	switch d.Type {
	case DirectiveThought:
		s.Append(llm.Message{Role: llm.RoleAssistant, Content: d.JSON()})
		send(protocol.Thought(d.Content))
		trackPlan(s, d.Content)
		s.StepsWithoutAction++
		*consecutiveThoughts++
		if *consecutiveThoughts >= 2 {
			s.Append(llm.Message{Role: llm.RoleUser, Content: actionNudge})
			*consecutiveThoughts = 0
		}
		return outcomeContinue

	case DirectiveAction:
		*consecutiveThoughts = 0
		s.ConsecutiveFinals = 0
		return e.runAction(ctx, s, d, send)

	case DirectiveDiffRequest:
		*consecutiveThoughts = 0
		s.ConsecutiveFinals = 0
		s.StepsWithoutAction = 0
		s.Append(llm.Message{Role: llm.RoleAssistant, Content: d.JSON()})
		filePath := d.FilePath
		if filePath == "" {
			filePath = diff.ExtractPath(d.Diff)
		}
		return e.proposeDiff(ctx, s, relToWorkspace(s.Workspace, filePath), d.Diff, send)

	case DirectiveDelegate:
		*consecutiveThoughts = 0
		if !s.AgentPlus {
			// Delegation only exists in agent-plus; treat it as an
			// unknown directive and restate the protocol.
			s.Append(llm.Message{Role: llm.RoleAssistant, Content: d.JSON()})
			s.Append(llm.Message{Role: llm.RoleUser, Content: jsonFormatNudge})
			s.StepsWithoutAction++
			return outcomeContinue
		}
		s.ConsecutiveFinals = 0
		return e.runDelegation(ctx, s, d, send)

	case DirectiveFinal:
		return e.handleFinal(ctx, s, d, send)
	}
	return outcomeContinue
}

// writeTools are intercepted in agent mode and converted to approval
// requests instead of reaching the dispatcher.
func isWriteTool(name string) bool {
	switch name {
	case "apply_diff", "write_file", "replace_in_file":
		return true
	}
	return false
}

func (e *Engine) runAction(ctx context.Context, s *sessions.Session, d *Directive, send SendFunc) outcome {
	s.StepsWithoutAction = 0

	if !s.AgentPlus && isWriteTool(d.Tool) {
		filePath, diffText, err := e.synthesizeDiff(s, d)
		if err != nil {
			s.Append(llm.Message{Role: llm.RoleAssistant, Content: d.JSON()})
			s.Append(llm.Message{Role: llm.RoleTool, Content: err.Error()})
			send(protocol.Observation(err.Error()))
			return outcomeContinue
		}
		proposal := &Directive{Type: DirectiveDiffRequest, FilePath: filePath, Diff: diffText}
		s.Append(llm.Message{Role: llm.RoleAssistant, Content: proposal.JSON()})
		return e.proposeDiff(ctx, s, filePath, diffText, send)
	}

	s.Append(llm.Message{Role: llm.RoleAssistant, Content: d.JSON()})
	argsJSON, _ := json.Marshal(d.Args)
	send(protocol.Action(d.Tool, argsJSON))

	res := e.execute(ctx, s, d.Tool, d.Args)
	obs := res.ForLLM
	if missingPathObservation(obs) {
		obs += "\n(hint: the path may not exist; run list_files on the directory first)"
	}
	s.Append(llm.Message{Role: llm.RoleTool, Content: obs})
	send(protocol.Observation(obs))

	if s.AgentPlus && !res.IsError && (d.Tool == "write_file" || d.Tool == "replace_in_file") {
		if p, _ := d.Args["path"].(string); p != "" {
			send(protocol.OpenFile(relToWorkspace(s.Workspace, p)))
		}
	}
	return outcomeContinue
}

// proposeDiff records the pending mutation. Agent mode hands it to the
// client and ends the run; agent-plus approves its own proposal on the
// spot.
func (e *Engine) proposeDiff(ctx context.Context, s *sessions.Session, filePath, diffText string, send SendFunc) outcome {
	s.SetPendingDiff(filePath, diffText)

	if !s.AgentPlus {
		send(protocol.DiffRequest(s.ID, filePath, diffText))
		slog.Info("awaiting approval", "session", s.ID, "file", filePath)
		return outcomeAwait
	}

	pd, err := s.TakePendingDiff()
	if err != nil {
		return outcomeContinue
	}
	res := e.execute(ctx, s, "apply_diff", map[string]interface{}{"path": pd.FilePath, "diff": pd.Diff})
	s.Append(llm.Message{Role: llm.RoleUser, Content: observationJSON(res.ForLLM)})
	send(protocol.Observation(res.ForLLM))
	return outcomeContinue
}

// synthesizeDiff turns an intercepted write action into (path, unified
// diff) without touching the file.
func (e *Engine) synthesizeDiff(s *sessions.Session, d *Directive) (string, string, error) {
	switch d.Tool {
	case "apply_diff":
		diffText, _ := d.Args["diff"].(string)
		if diffText == "" {
			return "", "", fmt.Errorf("apply_diff needs a diff argument")
		}
		path, _ := d.Args["path"].(string)
		if path == "" {
			path = diff.ExtractPath(diffText)
		}
		if path == "" {
			return "", "", fmt.Errorf("apply_diff needs a path argument or ---/+++ headers in the diff")
		}
		return relToWorkspace(s.Workspace, path), diffText, nil

	case "write_file":
		path, _ := d.Args["path"].(string)
		content, _ := d.Args["content"].(string)
		if path == "" {
			return "", "", fmt.Errorf("write_file needs a path argument")
		}
		current, err := readWorkspaceFile(s.Workspace, path)
		if err != nil {
			return "", "", err
		}
		rel := relToWorkspace(s.Workspace, path)
		return rel, diff.Create(rel, current, content), nil

	case "replace_in_file":
		path, _ := d.Args["path"].(string)
		search, _ := d.Args["search"].(string)
		replace, _ := d.Args["replace"].(string)
		if path == "" || search == "" {
			return "", "", fmt.Errorf("replace_in_file needs path and search arguments")
		}
		current, err := readWorkspaceFile(s.Workspace, path)
		if err != nil {
			return "", "", err
		}
		if !strings.Contains(current, search) {
			return "", "", fmt.Errorf("search text not found in %s; read the file and match the current content exactly", path)
		}
		proposed := strings.Replace(current, search, replace, 1)
		rel := relToWorkspace(s.Workspace, path)
		return rel, diff.Create(rel, current, proposed), nil
	}
	return "", "", fmt.Errorf("not a write tool: %s", d.Tool)
}

func (e *Engine) runDelegation(ctx context.Context, s *sessions.Session, d *Directive, send SendFunc) outcome {
	s.StepsWithoutAction = 0
	s.Append(llm.Message{Role: llm.RoleAssistant, Content: d.JSON()})

	if s.DelegationDisabled || e.delegator == nil || len(d.Tasks) == 0 {
		s.Append(llm.Message{Role: llm.RoleUser, Content: delegationUnavailableNudge})
		return outcomeContinue
	}

	slog.Info("delegation started", "session", s.ID, "tasks", len(d.Tasks))
	combined, results, err := e.delegator.Delegate(ctx, s.ID, s.Model, s.Workspace, d.Tasks)
	if err != nil {
		s.DelegationDisabled = true
		slog.Warn("delegation failed", "session", s.ID, "error", err)
		nudge := fmt.Sprintf(
			"Delegation failed (%s). Delegation is now disabled for this session; continue working through the tasks yourself, one action at a time.",
			compactError(err))
		s.Append(llm.Message{Role: llm.RoleUser, Content: nudge})
		return outcomeContinue
	}

	payload, _ := json.Marshal(struct {
		Type    string `json:"type"`
		Swarm   bool   `json:"swarm"`
		Results int    `json:"results"`
		Content string `json:"content"`
	}{"observation", true, results, combined})
	s.Append(llm.Message{Role: llm.RoleUser, Content: string(payload)})
	send(protocol.SwarmObservation(results, combined))
	return outcomeContinue
}

func (e *Engine) handleFinal(ctx context.Context, s *sessions.Session, d *Directive, send SendFunc) outcome {
	if s.TotalTasks > 0 && s.CompletedTasks < s.TotalTasks && s.ConsecutiveFinals < 2 {
		s.ConsecutiveFinals++
		s.Append(llm.Message{Role: llm.RoleAssistant, Content: d.JSON()})
		nudge := fmt.Sprintf(
			"Only %d/%d planned tasks are complete. Continue with the next task; emit final again only when everything is done.",
			s.CompletedTasks, s.TotalTasks)
		s.Append(llm.Message{Role: llm.RoleUser, Content: nudge})
		s.StepsWithoutAction++
		slog.Debug("premature final nudged", "session", s.ID,
			"completed", s.CompletedTasks, "total", s.TotalTasks, "consecutiveFinals", s.ConsecutiveFinals)
		return outcomeContinue
	}
	e.finish(ctx, s, send, d.Content)
	return outcomeDone
}

// finish ends the session on every terminal path: final frame, last
// checkpoint, persisted conversation and memory summary, registry and
// task-board removal.
func (e *Engine) finish(ctx context.Context, s *sessions.Session, send SendFunc, text string) {
	fin := &Directive{Type: DirectiveFinal, Content: text}
	s.Append(llm.Message{Role: llm.RoleAssistant, Content: fin.JSON()})
	send(protocol.Final(text))

	e.checkpoint(s)
	st := store.New(s.Workspace)
	if err := st.SaveConversation(s.ID, s.Messages, store.ConversationMeta{
		Model:     s.Model,
		Mode:      modeName(s.AgentPlus),
		Compacted: s.Compactions > 0,
	}); err != nil {
		slog.Warn("save conversation failed", "session", s.ID, "error", err)
	}
	if summary := e.compactor.Summary(ctx, s.Model, s.Messages); summary != "" {
		if err := st.SaveMemory(s.ID, summary); err != nil {
			slog.Warn("save memory failed", "session", s.ID, "error", err)
		}
	}
	e.sessions.Remove(s.ID)
	if e.board != nil {
		e.board.Drop(s.ID)
	}
	slog.Info("session finished", "session", s.ID, "steps", s.Steps, "messages", len(s.Messages))
}

// RunSubtask executes one delegated subtask to completion in a fresh
// agent-plus session and returns its final text. Provider failures
// propagate so the delegation pool can fall back to another model.
func (e *Engine) RunSubtask(ctx context.Context, sessionID, model, workspace, task string) (string, error) {
	var final string
	sink := func(ev protocol.Event) {
		if ev.Type == protocol.EventFinal {
			final = ev.Content
		}
	}

	s, _ := e.sessions.OpenOrGet(sessions.OpenRequest{
		ID:        sessionID,
		AgentPlus: true,
		Model:     model,
		Workspace: workspace,
		Message:   task,
	})
	if err := e.loop(ctx, s, subtaskMaxSteps, sink); err != nil {
		e.checkpoint(s)
		e.sessions.Remove(s.ID)
		return "", err
	}
	if final == "" {
		return "", fmt.Errorf("subtask %s produced no final answer", sessionID)
	}
	return final, nil
}

// callModel invokes the adapter with the run's options, retrying twice
// on transient failures and announcing each retry as a thought. Missing
// models abort immediately.
func (e *Engine) callModel(ctx context.Context, s *sessions.Session, view []llm.Message, send SendFunc) (*llm.Reply, error) {
	opts := llm.Options{
		Temperature: 0.2,
		MaxTokens:   maxOutputTokens,
		Timeout:     agentTimeout,
		ExpectJSON:  true,
	}
	if s.AgentPlus {
		opts.Temperature = 0.5
		opts.Timeout = agentPlusTimeout
	}

	var lastErr error
	for attempt := 0; attempt <= llmRetries; attempt++ {
		reply, err := e.llm.Call(ctx, s.Model, view, opts)
		if err == nil {
			s.Retries = 0
			return reply, nil
		}
		lastErr = err
		if isMissingModel(err) || ctx.Err() != nil {
			break
		}
		if attempt < llmRetries {
			s.Retries++
			send(protocol.Thought(fmt.Sprintf("Model call failed (%s). Retrying (%d/%d)...", compactError(err), attempt+1, llmRetries)))
			slog.Warn("model call retry", "session", s.ID, "attempt", attempt+1, "error", err)
		}
	}
	return nil, lastErr
}

// execute decorates the context and hands off to the dispatcher. Engine
// dispatches are pre-approved; in agent mode the write tools never get
// here because runAction intercepts them.
func (e *Engine) execute(ctx context.Context, s *sessions.Session, name string, args map[string]interface{}) *tools.Result {
	ctx = tools.WithWorkspace(ctx, s.Workspace)
	ctx = tools.WithSessionID(ctx, s.ID)
	ctx = tools.WithAutoMode(ctx, true)
	return e.dispatcher.Run(ctx, name, args)
}

func (e *Engine) checkpoint(s *sessions.Session) {
	if err := store.New(s.Workspace).SaveCheckpoint(s.ID, BuildCheckpoint(s)); err != nil {
		slog.Warn("checkpoint failed", "session", s.ID, "error", err)
	}
}

// Shutdown checkpoints every live session so interrupted work can resume
// in a later process. Called once during server shutdown.
func (e *Engine) Shutdown() {
	for _, ref := range e.sessions.Active() {
		if s, ok := e.sessions.Get(ref.ID); ok {
			e.checkpoint(s)
		}
	}
}

// providerFinalText renders a provider failure as the terminal message,
// with a remediation hint where the cause is deterministic.
func (e *Engine) providerFinalText(model string, err error) string {
	if isMissingModel(err) {
		hint := "pull or configure it, then retry"
		if e.llm.Provider() == llm.ProviderOllama {
			hint = fmt.Sprintf("run `ollama pull %s` or switch to an installed model", model)
		}
		return fmt.Sprintf("The model %q is not available: %s. To fix it, %s.", model, compactError(err), hint)
	}
	if isConnectionError(err) {
		hint := "Check that the provider is running at the configured API base."
		if e.llm.Provider() == llm.ProviderOllama {
			hint = "Start it with `ollama serve` or fix the API base in the configuration."
		}
		return fmt.Sprintf("The LLM provider is unreachable: %s. %s", compactError(err), hint)
	}
	return fmt.Sprintf("The model call failed after %d retries: %s", llmRetries, compactError(err))
}

func isMissingModel(err error) bool {
	if errors.Is(err, llm.ErrModelNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}

func isConnectionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "connect:")
}

// missingPathObservation spots tool output about a nonexistent path so
// the loop can append the list_files hint.
func missingPathObservation(obs string) bool {
	lower := strings.ToLower(obs)
	return strings.Contains(obs, "ENOENT") || strings.Contains(lower, "no such file")
}

func observationJSON(content string) string {
	payload, _ := json.Marshal(struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}{"observation", content})
	return string(payload)
}

func modeName(agentPlus bool) string {
	if agentPlus {
		return "agent-plus"
	}
	return "agent"
}

func compactError(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}

// relToWorkspace normalises a path to workspace-relative forward-slash
// form for diff requests and open_file events.
func relToWorkspace(workspace, path string) string {
	if path == "" {
		return path
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(workspace, path)
	}
	if rel, err := filepath.Rel(workspace, abs); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(filepath.Clean(path))
}

// readWorkspaceFile returns the file's current content, or empty when it
// does not exist yet. Paths escaping the workspace are rejected.
func readWorkspaceFile(workspace, path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(workspace, path)
	}
	abs = filepath.Clean(abs)
	rel, err := filepath.Rel(workspace, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the workspace", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
