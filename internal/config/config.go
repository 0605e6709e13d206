// Package config holds the runtime configuration: defaults, the
// user-config.json file (json5, comments allowed), ISOCODE_* environment
// overlays, and merges posted to the /config endpoint. Later sources win:
// defaults < env < file < endpoint.
package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/titanous/json5"
)

// Policy values for tool permission categories.
const (
	PolicyAlways = "always"
	PolicyAsk    = "ask"
	PolicyNever  = "never"
)

// Permissions maps tool categories to a policy. Read-only tools are not
// governed here; they always run.
type Permissions struct {
	Shell string `json:"shell"`
	Write string `json:"write"`
	Edit  string `json:"edit"`
}

// Settings is the plain data portion of the configuration. Config embeds
// it behind a mutex; Snapshot returns a copy.
type Settings struct {
	Provider      string      `json:"provider"`
	APIBase       string      `json:"apiBase"`
	Model         string      `json:"model"`
	APIKey        string      `json:"apiKey,omitempty"`
	Port          int         `json:"port"`
	Workspace     string      `json:"workspace,omitempty"`
	ContextWindow int         `json:"contextWindow"`
	MaxHistory    int         `json:"maxHistory"`
	Temperature   float64     `json:"temperature"`
	MaxWorkers    int         `json:"maxWorkers"`
	VisionModel   string      `json:"visionModel,omitempty"`
	SystemPrompt  string      `json:"systemPrompt,omitempty"`
	Permissions   Permissions `json:"permissions"`
}

// Config is the live configuration shared across handlers. All reads go
// through Snapshot; mutation goes through Merge.
type Config struct {
	Settings
	mu sync.RWMutex
}

// Default returns a Config with local-provider defaults.
func Default() *Config {
	return &Config{Settings: Settings{
		Provider:      "local",
		APIBase:       "http://localhost:11434",
		Model:         "qwen2.5-coder:7b",
		Port:          8642,
		ContextWindow: 16384,
		MaxHistory:    100,
		Temperature:   0.7,
		MaxWorkers:    2,
		Permissions: Permissions{
			Shell: PolicyAsk,
			Write: PolicyAsk,
			Edit:  PolicyAsk,
		},
	}}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "user-config.json"
	}
	return filepath.Join(home, ".isocode", "user-config.json")
}

// Load builds the configuration from defaults, environment overlays, and
// the user-config file. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.applyEnvOverrides()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.normalise()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, &cfg.Settings); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.normalise()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("ISOCODE_PROVIDER", &c.Provider)
	envStr("ISOCODE_API_BASE", &c.APIBase)
	envStr("ISOCODE_MODEL", &c.Model)
	envStr("ISOCODE_API_KEY", &c.APIKey)
	envStr("ISOCODE_WORKSPACE", &c.Workspace)
	if v := os.Getenv("ISOCODE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Port = port
		}
	}
}

// normalise clamps values into their documented ranges.
func (c *Config) normalise() {
	if c.ContextWindow <= 0 {
		c.ContextWindow = 16384
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 100
	}
	if c.MaxWorkers < 1 {
		c.MaxWorkers = 1
	}
	if c.MaxWorkers > 5 {
		c.MaxWorkers = 5
	}
	if c.Port <= 0 {
		c.Port = 8642
	}
	c.Permissions.Shell = normalisePolicy(c.Permissions.Shell)
	c.Permissions.Write = normalisePolicy(c.Permissions.Write)
	c.Permissions.Edit = normalisePolicy(c.Permissions.Edit)
	c.Workspace = ExpandHome(c.Workspace)
}

func normalisePolicy(p string) string {
	switch p {
	case PolicyAlways, PolicyAsk, PolicyNever:
		return p
	default:
		return PolicyAsk
	}
}

// Snapshot returns a copy of the current settings. Callers hold the copy
// for the duration of a session or request; later merges do not affect it.
func (c *Config) Snapshot() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Settings
}

// Update carries a partial configuration from the /config endpoint.
// Nil fields are left untouched.
type Update struct {
	Provider      *string            `json:"provider"`
	APIBase       *string            `json:"apiBase"`
	Model         *string            `json:"model"`
	APIKey        *string            `json:"apiKey"`
	ContextWindow *int               `json:"contextWindow"`
	MaxHistory    *int               `json:"maxHistory"`
	Temperature   *float64           `json:"temperature"`
	MaxWorkers    *int               `json:"maxWorkers"`
	VisionModel   *string            `json:"visionModel"`
	SystemPrompt  *string            `json:"systemPrompt"`
	Permissions   *PermissionsUpdate `json:"permissions"`
}

// PermissionsUpdate is the partial form of Permissions.
type PermissionsUpdate struct {
	Shell *string `json:"shell"`
	Write *string `json:"write"`
	Edit  *string `json:"edit"`
}

// Merge overlays an update onto the live configuration and re-normalises.
func (c *Config) Merge(u Update) {
	c.mu.Lock()
	defer c.mu.Unlock()

	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setStr(&c.Provider, u.Provider)
	setStr(&c.APIBase, u.APIBase)
	setStr(&c.Model, u.Model)
	setStr(&c.APIKey, u.APIKey)
	setStr(&c.VisionModel, u.VisionModel)
	setStr(&c.SystemPrompt, u.SystemPrompt)
	if u.ContextWindow != nil {
		c.ContextWindow = *u.ContextWindow
	}
	if u.MaxHistory != nil {
		c.MaxHistory = *u.MaxHistory
	}
	if u.Temperature != nil {
		c.Temperature = *u.Temperature
	}
	if u.MaxWorkers != nil {
		c.MaxWorkers = *u.MaxWorkers
	}
	if u.Permissions != nil {
		setStr(&c.Permissions.Shell, u.Permissions.Shell)
		setStr(&c.Permissions.Write, u.Permissions.Write)
		setStr(&c.Permissions.Edit, u.Permissions.Edit)
	}
	c.normalise()
}

// Save writes the configuration to path atomically.
func (c *Config) Save(path string) error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.Settings, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".user-config-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Hash returns a short digest of the current settings, used to detect
// configuration changes between requests.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c.Settings)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// Masked returns a copy of the settings with the API key hidden, for the
// /config GET response.
func (c *Config) Masked() Settings {
	s := c.Snapshot()
	if s.APIKey != "" {
		s.APIKey = "***"
	}
	return s
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
