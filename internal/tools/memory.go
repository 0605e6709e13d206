package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rushi32/IsoCode/internal/store"
)

// MemoryStoreTool persists a key-value pair across sessions.
type MemoryStoreTool struct {
	Store *store.Store
}

func (t *MemoryStoreTool) Name() string { return "memory_store" }
func (t *MemoryStoreTool) Description() string {
	return "Store a fact under a key in persistent agent memory. Survives across sessions."
}
func (t *MemoryStoreTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"key":   stringProp("Short identifier for the fact"),
		"value": stringProp("The fact to remember"),
	}, "key", "value")
}

func (t *MemoryStoreTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	key, _ := args["key"].(string)
	value, _ := args["value"].(string)
	if strings.TrimSpace(key) == "" {
		return ErrorResult("key is required")
	}
	if value == "" {
		return ErrorResult("value is required")
	}
	if err := t.Store.AgentMemorySet(key, value); err != nil {
		return ErrorResult(fmt.Sprintf("failed to store memory: %v", err))
	}
	return NewResult(fmt.Sprintf("Stored %q", key))
}

// MemoryGetTool reads persistent agent memory.
type MemoryGetTool struct {
	Store *store.Store
}

func (t *MemoryGetTool) Name() string { return "memory_get" }
func (t *MemoryGetTool) Description() string {
	return "Read a fact from persistent agent memory. Without a key, lists stored keys."
}
func (t *MemoryGetTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"key": stringProp("Key to look up (omit to list all keys)"),
	})
}

func (t *MemoryGetTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	key, _ := args["key"].(string)
	if key == "" {
		keys := t.Store.AgentMemoryKeys()
		if len(keys) == 0 {
			return NewResult("(memory is empty)")
		}
		return NewResult("Stored keys: " + strings.Join(keys, ", "))
	}
	value, ok := t.Store.AgentMemoryGet(key)
	if !ok {
		return ErrorResult(fmt.Sprintf("no memory stored under %q", key))
	}
	return NewResult(value)
}
