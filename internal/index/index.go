// Package index builds a lightweight file index of a workspace: file list,
// directory set, and the first 2,000 chars of key project files. Indexes
// are cached per workspace with a 60 s TTL; an fsnotify watcher invalidates
// the cache early when the workspace changes.
package index

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// DefaultTTL bounds how stale a cached index may get; the watcher
	// usually invalidates sooner.
	DefaultTTL = 60 * time.Second

	keyFileHeadChars = 2000
)

var ignoredDirs = map[string]bool{
	"node_modules": true,
	"dist":         true,
	"out":          true,
	"build":        true,
	"vendor":       true,
	"target":       true,
	"__pycache__":  true,
	"coverage":     true,
}

var binaryExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".webp": true, ".pdf": true, ".zip": true, ".tar": true, ".gz": true,
	".bz2": true, ".xz": true, ".7z": true, ".exe": true, ".dll": true,
	".so": true, ".dylib": true, ".bin": true, ".o": true, ".a": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".webm": true,
	".jar": true, ".class": true, ".pyc": true, ".wasm": true, ".db": true,
	".sqlite": true,
}

var keyFileNames = map[string]bool{
	"README.md": true, "readme.md": true, "package.json": true,
	"go.mod": true, "Cargo.toml": true, "pyproject.toml": true,
	"requirements.txt": true, "Makefile": true, "tsconfig.json": true,
	"composer.json": true, "Gemfile": true, "pom.xml": true,
	"build.gradle": true, "setup.py": true,
}

// File is one indexed workspace file.
type File struct {
	RelativePath string `json:"relativePath"`
	Extension    string `json:"extension"`
	Size         int64  `json:"size"`
	Dir          string `json:"dir"`
}

// Index is a point-in-time view of a workspace.
type Index struct {
	Root     string            `json:"root"`
	Files    []File            `json:"files"`
	Dirs     []string          `json:"dirs"`
	KeyFiles map[string]string `json:"keyFiles"`
	Total    int               `json:"total"`
	BuiltAt  time.Time         `json:"builtAt"`
}

// Build walks the workspace and produces a fresh index. Ignored
// directories (dot-prefixed, build outputs, dependency trees) and binary
// extensions are skipped.
func Build(root string) (*Index, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	ix := &Index{
		Root:     abs,
		KeyFiles: map[string]string{},
		BuiltAt:  time.Now(),
	}
	dirSet := map[string]bool{}

	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if path == abs {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") || ignoredDirs[name] {
				return filepath.SkipDir
			}
			rel, _ := filepath.Rel(abs, path)
			dirSet[filepath.ToSlash(rel)] = true
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if binaryExts[ext] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(abs, path)
		rel = filepath.ToSlash(rel)
		ix.Files = append(ix.Files, File{
			RelativePath: rel,
			Extension:    ext,
			Size:         info.Size(),
			Dir:          filepath.ToSlash(filepath.Dir(rel)),
		})
		if keyFileNames[name] {
			if data, err := os.ReadFile(path); err == nil {
				head := string(data)
				if len(head) > keyFileHeadChars {
					head = head[:keyFileHeadChars]
				}
				ix.KeyFiles[rel] = head
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk workspace: %w", err)
	}

	ix.Total = len(ix.Files)
	ix.Dirs = make([]string, 0, len(dirSet))
	for d := range dirSet {
		ix.Dirs = append(ix.Dirs, d)
	}
	sort.Strings(ix.Dirs)
	sort.Slice(ix.Files, func(i, j int) bool {
		return ix.Files[i].RelativePath < ix.Files[j].RelativePath
	})
	return ix, nil
}

// ProjectMap renders a compact overview for the system prompt.
func (ix *Index) ProjectMap() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Project map (%d files):\n", ix.Total)
	if len(ix.Dirs) > 0 {
		dirs := ix.Dirs
		if len(dirs) > 40 {
			dirs = dirs[:40]
		}
		sb.WriteString("Directories: " + strings.Join(dirs, ", ") + "\n")
	}
	if len(ix.KeyFiles) > 0 {
		names := make([]string, 0, len(ix.KeyFiles))
		for name := range ix.KeyFiles {
			names = append(names, name)
		}
		sort.Strings(names)
		sb.WriteString("Key files: " + strings.Join(names, ", ") + "\n")
	}
	return sb.String()
}

// Match is one codebase_search hit.
type Match struct {
	Path    string `json:"path"`
	Snippet string `json:"snippet,omitempty"`
}

// Search scores indexed paths (and key-file contents) against
// whitespace-separated query terms, best first, capped at limit.
func (ix *Index) Search(query string, limit int) []Match {
	terms := queryTerms(query)
	if len(terms) == 0 || limit <= 0 {
		return nil
	}
	type scored struct {
		m     Match
		score int
	}
	var hits []scored
	for _, f := range ix.Files {
		lower := strings.ToLower(f.RelativePath)
		score := 0
		for _, t := range terms {
			if strings.Contains(lower, t) {
				score += 2
				if strings.Contains(strings.ToLower(filepath.Base(lower)), t) {
					score++
				}
			}
		}
		if head, ok := ix.KeyFiles[f.RelativePath]; ok {
			lowerHead := strings.ToLower(head)
			for _, t := range terms {
				if strings.Contains(lowerHead, t) {
					score++
				}
			}
		}
		if score > 0 {
			m := Match{Path: f.RelativePath}
			if head, ok := ix.KeyFiles[f.RelativePath]; ok {
				snippet := head
				if len(snippet) > 200 {
					snippet = snippet[:200]
				}
				m.Snippet = snippet
			}
			hits = append(hits, scored{m, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Match, len(hits))
	for i, h := range hits {
		out[i] = h.m
	}
	return out
}

// RelevanceContext gathers up to maxChars of index-derived context for a
// user request: matching paths plus key-file heads.
func (ix *Index) RelevanceContext(query string, maxChars int) string {
	matches := ix.Search(query, 20)
	if len(matches) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Possibly relevant files:\n")
	for _, m := range matches {
		line := "- " + m.Path + "\n"
		if sb.Len()+len(line) > maxChars {
			break
		}
		sb.WriteString(line)
		if m.Snippet != "" {
			snip := "  " + strings.ReplaceAll(m.Snippet, "\n", " ") + "\n"
			if sb.Len()+len(snip) <= maxChars {
				sb.WriteString(snip)
			}
		}
	}
	return sb.String()
}

func queryTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, `"'.,;:()[]{}`)
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// Cache holds one index per workspace behind a mutex, rebuilt when the
// TTL lapses or a watcher event arrives.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*Index
	watcher *fsnotify.Watcher
	watched map[string]string // watched dir -> workspace root
	done    chan struct{}
}

// NewCache builds a cache with the default TTL. The fsnotify watcher is
// best-effort: when it cannot be created the cache degrades to pure TTL.
func NewCache() *Cache {
	c := &Cache{
		ttl:     DefaultTTL,
		entries: map[string]*Index{},
		watched: map[string]string{},
		done:    make(chan struct{}),
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Debug("file index watcher unavailable", "error", err)
		return c
	}
	c.watcher = w
	go c.watchLoop()
	return c
}

func (c *Cache) watchLoop() {
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			// Ignore churn inside .isocode; the agent writes there constantly.
			if strings.Contains(ev.Name, string(filepath.Separator)+".isocode") {
				continue
			}
			c.mu.Lock()
			for dir, root := range c.watched {
				if strings.HasPrefix(ev.Name, dir) {
					delete(c.entries, root)
				}
			}
			c.mu.Unlock()
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			slog.Debug("file index watcher error", "error", err)
		}
	}
}

// Get returns the cached index for a workspace, rebuilding when missing
// or older than the TTL.
func (c *Cache) Get(root string) (*Index, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if ix, ok := c.entries[abs]; ok && time.Since(ix.BuiltAt) < c.ttl {
		c.mu.Unlock()
		return ix, nil
	}
	c.mu.Unlock()

	ix, err := Build(abs)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[abs] = ix
	c.mu.Unlock()
	c.watch(abs)
	return ix, nil
}

func (c *Cache) watch(root string) {
	if c.watcher == nil {
		return
	}
	c.mu.Lock()
	_, already := c.watched[root]
	if !already {
		c.watched[root] = root
	}
	c.mu.Unlock()
	if already {
		return
	}
	if err := c.watcher.Add(root); err != nil {
		slog.Debug("file index watch failed", "root", root, "error", err)
		c.mu.Lock()
		delete(c.watched, root)
		c.mu.Unlock()
	}
}

// Invalidate drops the cached index for a workspace.
func (c *Cache) Invalidate(root string) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, abs)
	c.mu.Unlock()
}

// Close stops the watcher goroutine.
func (c *Cache) Close() error {
	close(c.done)
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}
