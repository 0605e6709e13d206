// Package tools implements the tool dispatcher and the builtin tool set:
// lookup, permission policy, workspace path confinement, execution, and
// result truncation. Tools are plain structs satisfying the Tool
// interface; the dispatcher owns everything around Execute.
package tools

import (
	"context"
	"errors"
)

// Sentinel errors callers branch on.
var (
	ErrUnknownTool          = errors.New("unknown tool")
	ErrPolicyDenied         = errors.New("denied by permission policy")
	ErrPathEscapesWorkspace = errors.New("path outside workspace")
)

// Tool is a single executable capability exposed to the model.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// Result is the unified return type from tool execution. ForLLM carries
// the rendered observation; Payload, when set, is the structured form
// the dispatcher truncates and serialises into ForLLM.
type Result struct {
	ForLLM  string
	Payload map[string]interface{}
	IsError bool
	Err     error
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

// PayloadResult defers rendering to the dispatcher, which applies the
// per-field caps before serialising.
func PayloadResult(payload map[string]interface{}) *Result {
	return &Result{Payload: payload}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	r.IsError = true
	return r
}
