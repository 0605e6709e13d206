package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	maxProjectKeys     = 100
	maxAgentKeys       = 200
	maxAgentValueChars = 8000
)

type kvEntry struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// kvFile is a capped key-value JSON file. Writes are last-write-wins
// across processes; a mutex serialises access within this one.
type kvFile struct {
	mu       sync.Mutex
	path     string
	maxKeys  int
	maxChars int // 0 = unlimited
}

func (f *kvFile) load() map[string]kvEntry {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return map[string]kvEntry{}
	}
	var m map[string]kvEntry
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]kvEntry{}
	}
	return m
}

func (f *kvFile) set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.maxChars > 0 && len(value) > f.maxChars {
		value = value[:f.maxChars]
	}
	m := f.load()
	m[key] = kvEntry{Value: value, UpdatedAt: time.Now().UTC()}

	// Evict oldest entries beyond the cap.
	if len(m) > f.maxKeys {
		type aged struct {
			key string
			at  time.Time
		}
		entries := make([]aged, 0, len(m))
		for k, v := range m {
			entries = append(entries, aged{k, v.UpdatedAt})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
		for _, e := range entries[:len(m)-f.maxKeys] {
			delete(m, e.key)
		}
	}
	return writeJSONAtomic(f.path, m)
}

func (f *kvFile) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.load()[key]
	return e.Value, ok
}

func (f *kvFile) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.load()
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var (
	kvMu      sync.Mutex
	kvByPath  = map[string]*kvFile{}
)

// kvFor returns a process-wide kvFile for a path so concurrent sessions
// share one lock per file.
func kvFor(path string, maxKeys, maxChars int) *kvFile {
	kvMu.Lock()
	defer kvMu.Unlock()
	if f, ok := kvByPath[path]; ok {
		return f
	}
	f := &kvFile{path: path, maxKeys: maxKeys, maxChars: maxChars}
	kvByPath[path] = f
	return f
}

func (s *Store) projectContext() *kvFile {
	return kvFor(filepath.Join(s.Dir(), "project-context.json"), maxProjectKeys, 0)
}

func (s *Store) agentMemory() *kvFile {
	return kvFor(filepath.Join(s.Dir(), "agent-memory.json"), maxAgentKeys, maxAgentValueChars)
}

// SetProjectContext records a project-scoped fact. Capped at 100 keys,
// oldest evicted.
func (s *Store) SetProjectContext(key, value string) error {
	return s.projectContext().set(key, value)
}

// ProjectContext returns one project-scoped value.
func (s *Store) ProjectContext(key string) (string, bool) {
	return s.projectContext().get(key)
}

// ProjectContextSummary renders the project context as a short block for
// the system prompt, newest entries first. Returns "" when empty.
func (s *Store) ProjectContextSummary() string {
	f := s.projectContext()
	f.mu.Lock()
	m := f.load()
	f.mu.Unlock()
	if len(m) == 0 {
		return ""
	}
	type pair struct {
		key string
		e   kvEntry
	}
	pairs := make([]pair, 0, len(m))
	for k, e := range m {
		pairs = append(pairs, pair{k, e})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].e.UpdatedAt.After(pairs[j].e.UpdatedAt) })

	var sb strings.Builder
	sb.WriteString("Project context:\n")
	for _, p := range pairs {
		v := p.e.Value
		if len(v) > 200 {
			v = v[:200]
		}
		fmt.Fprintf(&sb, "- %s: %s\n", p.key, v)
	}
	return sb.String()
}

// AgentMemorySet stores a value in agent memory. Values are capped at
// 8,000 chars; the file holds at most 200 keys, oldest evicted.
func (s *Store) AgentMemorySet(key, value string) error {
	return s.agentMemory().set(key, value)
}

// AgentMemoryGet reads one agent-memory value.
func (s *Store) AgentMemoryGet(key string) (string, bool) {
	return s.agentMemory().get(key)
}

// AgentMemoryKeys lists the stored keys, sorted.
func (s *Store) AgentMemoryKeys() []string {
	return s.agentMemory().keys()
}
