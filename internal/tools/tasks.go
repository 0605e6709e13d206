package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// TaskBoard holds per-session task lists in memory. Entries are dropped
// when their session terminates.
type TaskBoard struct {
	mu     sync.Mutex
	bySess map[string][]taskItem
	nextID int
}

type taskItem struct {
	ID   int
	Text string
	Done bool
}

func NewTaskBoard() *TaskBoard {
	return &TaskBoard{bySess: make(map[string][]taskItem)}
}

func (b *TaskBoard) add(sessionID, text string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.bySess[sessionID] = append(b.bySess[sessionID], taskItem{ID: b.nextID, Text: text})
	return b.nextID
}

func (b *TaskBoard) complete(sessionID string, id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.bySess[sessionID]
	for i := range items {
		if items[i].ID == id {
			items[i].Done = true
			return true
		}
	}
	return false
}

func (b *TaskBoard) list(sessionID string) []taskItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.bySess[sessionID]
	out := make([]taskItem, len(items))
	copy(out, items)
	return out
}

// Drop discards a session's tasks.
func (b *TaskBoard) Drop(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bySess, sessionID)
}

// TaskAddTool appends a task to the session's list.
type TaskAddTool struct {
	Board *TaskBoard
}

func (t *TaskAddTool) Name() string { return "task_add" }
func (t *TaskAddTool) Description() string {
	return "Add a task to this session's task list. Returns its id."
}
func (t *TaskAddTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"text": stringProp("What needs doing"),
	}, "text")
}

func (t *TaskAddTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	text, _ := args["text"].(string)
	if strings.TrimSpace(text) == "" {
		return ErrorResult("text is required")
	}
	id := t.Board.add(SessionIDFromCtx(ctx), text)
	return NewResult(fmt.Sprintf("Added task %d: %s", id, text))
}

// TaskCompleteTool marks a task done.
type TaskCompleteTool struct {
	Board *TaskBoard
}

func (t *TaskCompleteTool) Name() string { return "task_complete" }
func (t *TaskCompleteTool) Description() string {
	return "Mark a task on this session's task list as completed."
}
func (t *TaskCompleteTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"id": numberProp("Id of the task to complete"),
	}, "id")
}

func (t *TaskCompleteTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	id := intArg(args, "id", 0)
	if id == 0 {
		return ErrorResult("id is required")
	}
	if !t.Board.complete(SessionIDFromCtx(ctx), id) {
		return ErrorResult(fmt.Sprintf("no task with id %d in this session", id))
	}
	return NewResult(fmt.Sprintf("Completed task %d", id))
}

// TaskListTool renders the session's task list.
type TaskListTool struct {
	Board *TaskBoard
}

func (t *TaskListTool) Name() string { return "task_list" }
func (t *TaskListTool) Description() string {
	return "List this session's tasks with their completion state."
}
func (t *TaskListTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{})
}

func (t *TaskListTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	items := t.Board.list(SessionIDFromCtx(ctx))
	if len(items) == 0 {
		return NewResult("(no tasks)")
	}
	var sb strings.Builder
	done := 0
	for _, item := range items {
		mark := " "
		if item.Done {
			mark = "x"
			done++
		}
		fmt.Fprintf(&sb, "[%s] %d. %s\n", mark, item.ID, item.Text)
	}
	fmt.Fprintf(&sb, "%d/%d completed", done, len(items))
	return NewResult(sb.String())
}
