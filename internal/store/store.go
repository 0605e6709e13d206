// Package store persists per-workspace agent state under <workspace>/.isocode:
// conversations, session memory summaries, checkpoints, project context,
// agent memory, and screenshots. Every JSON write is atomic (temp file then
// rename) so a crash never leaves a half-written artifact.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rushi32/IsoCode/internal/llm"
)

const (
	maxPersistedMessages = 100
	maxPersistedChars    = 4000
	checkpointReadCap    = 1500
	memoryPrimerTop      = 3
)

var unsafeIDChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeID maps a session id onto a filesystem-safe name. Idempotent:
// sanitising twice yields the same result.
func SanitizeID(id string) string {
	return unsafeIDChars.ReplaceAllString(id, "_")
}

// Store owns the .isocode directory of a single workspace.
type Store struct {
	root string // workspace root, absolute
}

// New returns a store rooted at the workspace. Directories are created
// lazily on first write.
func New(workspaceRoot string) *Store {
	return &Store{root: workspaceRoot}
}

// Dir returns the .isocode directory path.
func (s *Store) Dir() string { return filepath.Join(s.root, ".isocode") }

func (s *Store) conversationsDir() string { return filepath.Join(s.Dir(), "conversations") }
func (s *Store) memoryDir() string        { return filepath.Join(s.Dir(), "memory") }
func (s *Store) checkpointsDir() string   { return filepath.Join(s.Dir(), "checkpoints") }

// ScreenshotsDir returns (and creates) the screenshot output directory.
func (s *Store) ScreenshotsDir() (string, error) {
	dir := filepath.Join(s.Dir(), "screenshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshots dir: %w", err)
	}
	return dir, nil
}

// MCPServersPath returns the external tool server config file location.
func (s *Store) MCPServersPath() string {
	return filepath.Join(s.Dir(), "mcp-servers.json")
}

// Rules returns the contents of .isocode/rules.md, or "" when absent.
func (s *Store) Rules() string {
	data, err := os.ReadFile(filepath.Join(s.Dir(), "rules.md"))
	if err != nil {
		return ""
	}
	return string(data)
}

// ConversationMeta is the metadata block of a persisted conversation.
type ConversationMeta struct {
	Model     string `json:"model,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Compacted bool   `json:"compacted,omitempty"`
}

// ConversationRecord is the on-disk shape of one conversation.
type ConversationRecord struct {
	SessionID    string           `json:"sessionId"`
	UpdatedAt    string           `json:"updatedAt"`
	MessageCount int              `json:"messageCount"`
	Metadata     ConversationMeta `json:"metadata"`
	Messages     []llm.Message    `json:"messages"`
}

// ConversationInfo summarises a persisted conversation for listings.
type ConversationInfo struct {
	SessionID    string `json:"sessionId"`
	UpdatedAt    string `json:"updatedAt"`
	MessageCount int    `json:"messageCount"`
}

// SaveConversation persists the tail of a conversation: at most the last
// 100 messages, each content capped at 4,000 chars. The in-memory history
// is never modified; messageCount records the full length.
func (s *Store) SaveConversation(sessionID string, msgs []llm.Message, meta ConversationMeta) error {
	tail := msgs
	if len(tail) > maxPersistedMessages {
		tail = tail[len(tail)-maxPersistedMessages:]
	}
	persisted := make([]llm.Message, len(tail))
	for i, m := range tail {
		persisted[i] = m
		if len(m.Content) > maxPersistedChars {
			persisted[i].Content = m.Content[:maxPersistedChars]
		}
		persisted[i].Images = nil // never persist image payloads
	}

	rec := ConversationRecord{
		SessionID:    sessionID,
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339),
		MessageCount: len(msgs),
		Metadata:     meta,
		Messages:     persisted,
	}
	path := filepath.Join(s.conversationsDir(), SanitizeID(sessionID)+".json")
	return writeJSONAtomic(path, rec)
}

// LoadConversation reads a persisted conversation.
func (s *Store) LoadConversation(sessionID string) (*ConversationRecord, error) {
	path := filepath.Join(s.conversationsDir(), SanitizeID(sessionID)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec ConversationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse conversation %s: %w", sessionID, err)
	}
	return &rec, nil
}

// DeleteConversation removes a persisted conversation. Deleting a missing
// conversation is not an error.
func (s *Store) DeleteConversation(sessionID string) error {
	path := filepath.Join(s.conversationsDir(), SanitizeID(sessionID)+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ListConversations returns saved conversations, newest first.
func (s *Store) ListConversations() []ConversationInfo {
	entries, err := os.ReadDir(s.conversationsDir())
	if err != nil {
		return nil
	}
	var out []ConversationInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.conversationsDir(), e.Name()))
		if err != nil {
			continue
		}
		var rec ConversationRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		out = append(out, ConversationInfo{
			SessionID:    rec.SessionID,
			UpdatedAt:    rec.UpdatedAt,
			MessageCount: rec.MessageCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out
}

type memoryRecord struct {
	SessionID string `json:"sessionId"`
	Summary   string `json:"summary"`
	UpdatedAt string `json:"updatedAt"`
}

// SaveMemory writes the LLM-generated summary for a session.
func (s *Store) SaveMemory(sessionID, summary string) error {
	rec := memoryRecord{
		SessionID: sessionID,
		Summary:   summary,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	path := filepath.Join(s.memoryDir(), SanitizeID(sessionID)+".json")
	return writeJSONAtomic(path, rec)
}

// MemoryPrimer concatenates the most recent session summaries (top 3 by
// file mtime) into a short primer for new sessions. Returns "" when no
// memory exists.
func (s *Store) MemoryPrimer() string {
	entries, err := os.ReadDir(s.memoryDir())
	if err != nil {
		return ""
	}
	type cand struct {
		mtime   time.Time
		summary string
	}
	var cands []cand
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.memoryDir(), e.Name()))
		if err != nil {
			continue
		}
		var rec memoryRecord
		if err := json.Unmarshal(data, &rec); err != nil || rec.Summary == "" {
			continue
		}
		cands = append(cands, cand{info.ModTime(), rec.Summary})
	}
	if len(cands) == 0 {
		return ""
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].mtime.After(cands[j].mtime) })
	if len(cands) > memoryPrimerTop {
		cands = cands[:memoryPrimerTop]
	}
	var sb strings.Builder
	sb.WriteString("Notes from recent sessions:\n")
	for _, c := range cands {
		sb.WriteString("- ")
		sb.WriteString(strings.TrimSpace(c.summary))
		sb.WriteString("\n")
	}
	return sb.String()
}

// SaveCheckpoint writes a markdown checkpoint for a session.
func (s *Store) SaveCheckpoint(sessionID, markdown string) error {
	path := filepath.Join(s.checkpointsDir(), SanitizeID(sessionID)+".md")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoints dir: %w", err)
	}
	return writeFileAtomic(path, []byte(markdown))
}

// LoadCheckpoint returns a prior checkpoint capped at 1,500 chars for
// prompt injection, or "" when none exists.
func (s *Store) LoadCheckpoint(sessionID string) string {
	path := filepath.Join(s.checkpointsDir(), SanitizeID(sessionID)+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	text := string(data)
	if len(text) > checkpointReadCap {
		text = text[:checkpointReadCap]
	}
	return text
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".isocode-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}
