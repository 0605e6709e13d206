package mcp

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/titanous/json5"
)

// ServerConfig describes one external tool server.
type ServerConfig struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// EnvSlice renders Env as KEY=VALUE pairs in stable order.
func (c ServerConfig) EnvSlice() []string {
	if len(c.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+c.Env[k])
	}
	return out
}

// serversFile is the wrapped form of mcp-servers.json. A bare top-level
// array is accepted too.
type serversFile struct {
	Servers []ServerConfig `json:"servers"`
}

// LoadServerConfigs parses mcp-servers.json (json5, comments allowed)
// and returns the configured servers plus a hash of the canonicalised
// configuration. A missing file yields an empty list; entries without a
// name or command are rejected.
func LoadServerConfigs(path string) ([]ServerConfig, string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, hashConfigs(nil), nil
	}
	if err != nil {
		return nil, "", err
	}

	var configs []ServerConfig
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json5.Unmarshal(data, &configs); err != nil {
			return nil, "", fmt.Errorf("parse server list: %w", err)
		}
	} else {
		var file serversFile
		if err := json5.Unmarshal(data, &file); err != nil {
			return nil, "", fmt.Errorf("parse server list: %w", err)
		}
		configs = file.Servers
	}

	seen := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, "", fmt.Errorf("server entry missing name")
		}
		if cfg.Command == "" {
			return nil, "", fmt.Errorf("server %q missing command", cfg.Name)
		}
		if seen[cfg.Name] {
			return nil, "", fmt.Errorf("duplicate server name %q", cfg.Name)
		}
		seen[cfg.Name] = true
	}
	return configs, hashConfigs(configs), nil
}

// hashConfigs produces a stable fingerprint of the server list, used to
// detect configuration changes between syncs.
func hashConfigs(configs []ServerConfig) string {
	ordered := append([]ServerConfig(nil), configs...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })
	raw, _ := json.Marshal(ordered)
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%x", sum[:8])
}
