// Package config loads forge's layered configuration: built-in defaults,
// a user-level .forgerc.json, a project-level .forgerc.json, FORGE_*
// environment overrides, and finally runtime overrides supplied by the
// CLI — each layer merging onto the last rather than replacing it
// wholesale, so a project file only needs to name the fields it changes.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is forge's on-disk configuration. Provider API keys never live
// here; they belong to the Secrets Store.
type Config struct {
	Providers []Provider `json:"providers,omitempty"`

	Generation GenerationConfig `json:"generation"`
	Security   SecurityConfig   `json:"security"`
	Server     ServerConfig     `json:"server"`
	Watch      WatchConfig      `json:"watch"`

	LogFormat string `json:"log_format,omitempty"`
	LogLevel  string `json:"log_level,omitempty"`
}

// Provider is one entry in the provider allow-list. The provider router
// resolves a model alias against these entries; Secrets Store holds the
// matching API key, keyed by the same ID.
type Provider struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	BaseURL string          `json:"base_url,omitempty"`
	Models  []ProviderModel `json:"models,omitempty"`
}

type ProviderModel struct {
	ModelName string `json:"model_name"`
	IsDefault bool   `json:"is_default,omitempty"`
}

// GenerationConfig carries the default knobs for Pipeline.Run.
type GenerationConfig struct {
	Style       string  `json:"style,omitempty"`
	Language    string  `json:"language,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
	Patience    int     `json:"patience,omitempty"`
}

// SecurityConfig toggles the sanitizer by default.
type SecurityConfig struct {
	Sanitize bool `json:"sanitize"`
}

// ServerConfig configures the HTTP/SSE surface started by `forge serve`.
type ServerConfig struct {
	Port            int    `json:"port,omitempty"`
	RateLimitPerMin int    `json:"rate_limit_per_min,omitempty"`
	AuthTokenEnv    string `json:"auth_token_env,omitempty"`
}

// WatchConfig configures `forge watch`.
type WatchConfig struct {
	DebounceMs     int `json:"debounce_ms,omitempty"`
	PollIntervalMs int `json:"poll_interval_ms,omitempty"`
	DashboardPort  int `json:"dashboard_port,omitempty"`
}

const (
	defaultServerPort    = 8420
	defaultRateLimit     = 30
	defaultDebounceMs    = 500
	defaultPollIntervalM = 300
	defaultDashboardPort = 8421
)

// Default returns the built-in baseline every other layer merges onto.
func Default() *Config {
	return &Config{
		Generation: GenerationConfig{Style: "minimal", Threshold: 0.75, Patience: 2},
		Security:   SecurityConfig{Sanitize: true},
		Server:     ServerConfig{Port: defaultServerPort, RateLimitPerMin: defaultRateLimit},
		Watch:      WatchConfig{DebounceMs: defaultDebounceMs, PollIntervalMs: defaultPollIntervalM, DashboardPort: defaultDashboardPort},
		LogFormat:  "text",
		LogLevel:   "info",
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	seen := make(map[string]struct{}, len(c.Providers))
	defaultCount := 0
	for i, p := range c.Providers {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("providers[%d]: missing id", i)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("providers[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}
		for j, m := range p.Models {
			if strings.TrimSpace(m.ModelName) == "" {
				return fmt.Errorf("providers[%d].models[%d]: missing model_name", i, j)
			}
			if m.IsDefault {
				defaultCount++
			}
		}
	}
	if defaultCount > 1 {
		return errors.New("multiple default models (providers[].models[].is_default)")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}

// DefaultModelID returns the <provider_id>/<model_name> wire id marked
// is_default, if any.
func (c *Config) DefaultModelID() (string, bool) {
	if c == nil {
		return "", false
	}
	for _, p := range c.Providers {
		for _, m := range p.Models {
			if m.IsDefault && strings.TrimSpace(p.ID) != "" && strings.TrimSpace(m.ModelName) != "" {
				return p.ID + "/" + m.ModelName, true
			}
		}
	}
	return "", false
}

// UserConfigPath returns ~/.forgerc.json.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ".forgerc.json"
	}
	return filepath.Join(home, ".forgerc.json")
}

// ProjectConfigPath returns <dir>/.forgerc.json.
func ProjectConfigPath(dir string) string {
	return filepath.Join(dir, ".forgerc.json")
}

// Load builds the fully-merged config for a project directory: defaults,
// then the user config, then the project config, then FORGE_* environment
// overrides. Runtime overrides (CLI flags) are the caller's responsibility
// to apply afterward with ApplyOverrides.
func Load(projectDir string) (*Config, error) {
	cfg := Default()

	if err := mergeFile(cfg, UserConfigPath()); err != nil {
		return nil, fmt.Errorf("config: user config: %w", err)
	}
	if strings.TrimSpace(projectDir) != "" {
		if err := mergeFile(cfg, ProjectConfigPath(projectDir)); err != nil {
			return nil, fmt.Errorf("config: project config: %w", err)
		}
	}
	if err := mergeEnv(cfg, os.Environ()); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// mergeFile unmarshals path's JSON onto cfg in place; a missing file is
// not an error, since every layer below built-in defaults is optional.
func mergeFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(b, cfg)
}

// mergeEnv maps dot-path FORGE_ environment variables onto cfg, e.g.
// FORGE_SECURITY_SANITIZE=false -> {security:{sanitize:false}}. Keys below
// the first segment are matched case-insensitively against this layer's
// own JSON tags by round-tripping through a nested map before unmarshaling
// back onto cfg, so unknown paths are ignored rather than erroring.
func mergeEnv(cfg *Config, environ []string) error {
	nested := map[string]any{}
	found := false
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "FORGE_") {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(key, "FORGE_")), "_")
		if len(path) == 0 || path[0] == "" {
			continue
		}
		setPath(nested, path, parseEnvValue(value))
		found = true
	}
	if !found {
		return nil
	}
	b, err := json.Marshal(nested)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, cfg)
}

func setPath(m map[string]any, path []string, value any) {
	if len(path) == 1 {
		m[path[0]] = value
		return
	}
	next, ok := m[path[0]].(map[string]any)
	if !ok {
		next = map[string]any{}
		m[path[0]] = next
	}
	setPath(next, path[1:], value)
}

func parseEnvValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// ApplyOverrides merges a map of dot-path runtime overrides (the same
// shape CLI flags produce) on top of an already-loaded config.
func ApplyOverrides(cfg *Config, overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	nested := map[string]any{}
	for key, value := range overrides {
		setPath(nested, strings.Split(strings.ToLower(key), "."), value)
	}
	b, err := json.Marshal(nested)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, cfg)
}

// Save atomically writes cfg to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp := path + ".tmp"
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
