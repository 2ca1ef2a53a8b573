package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/floegence/forge/internal/cache"
	"github.com/floegence/forge/internal/config"
	"github.com/floegence/forge/internal/grimoire"
	"github.com/floegence/forge/internal/history"
	"github.com/floegence/forge/internal/hookbus"
	"github.com/floegence/forge/internal/kv"
	"github.com/floegence/forge/internal/migrations"
	"github.com/floegence/forge/internal/pipeline"
	"github.com/floegence/forge/internal/plugins"
	"github.com/floegence/forge/internal/probes"
	"github.com/floegence/forge/internal/providerrouter"
	"github.com/floegence/forge/internal/searchindex"
	"github.com/floegence/forge/internal/secrets"
	"github.com/floegence/forge/internal/sse"
	"github.com/floegence/forge/internal/telemetry"
)

// app is every long-lived dependency a subcommand might need, wired once
// per process. Subcommands that only touch a slice of it (e.g. `forge
// history`) still pay the cost of the full bootstrap; that's cheap next
// to a provider round trip and keeps every command's wiring identical.
type app struct {
	log *slog.Logger
	cfg *config.Config

	workspace string
	storeRoot string

	secrets *secrets.Store
	kv      *kv.Store
	index   *searchindex.Index

	router   *providerrouter.Router
	probes   *probes.Registry
	hooks    *hookbus.Bus
	plugins  *plugins.Registry
	telem    *telemetry.Store
	history  *history.Store
	grimoire *grimoire.Store
	progress *sse.Channel
	pipeline *pipeline.Pipeline
	migrate  *migrations.Runner
}

func (a *app) Close() {
	if a == nil {
		return
	}
	if a.index != nil {
		_ = a.index.Close()
	}
}

// storeRoot returns <UserConfigDir>/forge, the shared directory holding
// the KV Store's collections, the telemetry window, and the Search
// Index — everything that is scoped to the machine rather than to one
// workspace.
func storeRoot() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "forge"), nil
}

// resolveWorkspace returns the project directory that owns
// .forge/migrations.json and the .forgerc.json project config layer:
// flagValue if given, else the current directory.
func resolveWorkspace(flagValue string) (string, error) {
	if v := strings.TrimSpace(flagValue); v != "" {
		return filepath.Abs(v)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return wd, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(cfg.LogLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(cfg.LogFormat), "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// wireNameForType maps a config.Provider.Type to the fixed wire name its
// concrete providerrouter.Provider reports via Name(). The router keys
// its registered providers by that name, so only one config entry per
// type ends up reachable through the router — a second entry of the
// same type is a config mistake, not something forge silently merges.
func wireNameForType(providerType string) string {
	switch strings.ToLower(strings.TrimSpace(providerType)) {
	case "anthropic":
		return "anthropic-direct"
	case "gemini":
		return "gemini"
	case "openai", "openai-compatible":
		return "openai-compatible"
	case "ollama":
		return "ollama"
	default:
		return ""
	}
}

func defaultModelForProvider(p config.Provider) string {
	for _, m := range p.Models {
		if m.IsDefault {
			return m.ModelName
		}
	}
	if len(p.Models) > 0 {
		return p.Models[0].ModelName
	}
	return ""
}

// envVarsForProvider lists, in lookup order, the environment variables
// that can supply p's API key: a forge-specific override keyed by the
// provider's configured id, then the provider type's conventional
// variable name. Ollama needs no key at all.
func envVarsForProvider(p config.Provider) []string {
	id := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(p.ID), "-", "_"))
	vars := []string{}
	if id != "" {
		vars = append(vars, "FORGE_"+id+"_API_KEY")
	}
	switch wireNameForType(p.Type) {
	case "anthropic-direct":
		vars = append(vars, "ANTHROPIC_API_KEY")
	case "gemini":
		vars = append(vars, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	case "openai-compatible":
		vars = append(vars, "OPENAI_API_KEY")
	}
	return vars
}

// resolveProviderAPIKey reads p's API key from the process environment
// first, checking each of envVarsForProvider in order, and only falls
// back to the Secrets Store when none of those variables are set. The
// environment is the documented mechanism; the Secrets Store exists as
// a CLI convenience for keys a user doesn't want to export in their
// shell, not as a replacement for it.
func resolveProviderAPIKey(store *secrets.Store, p config.Provider) (string, error) {
	for _, name := range envVarsForProvider(p) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, nil
		}
	}
	key, _, err := store.GetProviderAPIKey(p.ID)
	return key, err
}

// registerProviders constructs and registers one providerrouter.Provider
// per distinct provider type named in cfg.Providers, resolving its API
// key via resolveProviderAPIKey. Entries with a type forge doesn't
// recognize, or whose key lookup fails, are skipped and logged. An
// entry with no key available anywhere is still registered; its
// provider then reports itself unavailable (except Ollama, which needs
// no key), so a generation attempt against it fails with
// ErrNotConfigured at Generate time rather than at startup.
func registerProviders(log *slog.Logger, router *providerrouter.Router, cfg *config.Config, store *secrets.Store) {
	for _, p := range cfg.Providers {
		wireName := wireNameForType(p.Type)
		if wireName == "" {
			log.Warn("skipping provider with unrecognized type", "id", p.ID, "type", p.Type)
			continue
		}
		apiKey, err := resolveProviderAPIKey(store, p)
		if err != nil {
			log.Warn("failed to read provider api key", "id", p.ID, "error", err)
			continue
		}
		model := defaultModelForProvider(p)

		switch wireName {
		case "anthropic-direct":
			router.Register(providerrouter.NewAnthropicProvider(apiKey))
		case "gemini":
			router.Register(providerrouter.NewGeminiProvider(apiKey))
		case "openai-compatible":
			router.Register(providerrouter.NewOpenAICompatibleProvider(apiKey, p.BaseURL, model))
		case "ollama":
			router.Register(providerrouter.NewOllamaProvider(p.BaseURL, model))
		}
	}
}

// defaultWireProvider resolves the router's fallback provider name from
// cfg's designated default model, falling back to the first provider
// type configured at all when none is marked default.
func defaultWireProvider(cfg *config.Config) string {
	if id, ok := cfg.DefaultModelID(); ok {
		providerID := strings.SplitN(id, "/", 2)[0]
		for _, p := range cfg.Providers {
			if p.ID == providerID {
				return wireNameForType(p.Type)
			}
		}
	}
	if len(cfg.Providers) > 0 {
		return wireNameForType(cfg.Providers[0].Type)
	}
	return ""
}

func registerProbes(reg *probes.Registry, workspace string) {
	reg.Register(probes.NewClockProbe(30 * time.Second))
	reg.Register(probes.NewSystemResourceProbe(10 * time.Second))
	reg.Register(probes.NewWorkspaceProbe(workspace, 15*time.Second))
}

type bootstrapOptions struct {
	Workspace string
}

// bootstrap wires every ambient and domain component exactly once:
// config → secrets → KV Store → Search Index → provider router → probes
// → hook bus → plugins → telemetry → History/Grimoire → Pipeline →
// Migrations. Every subcommand calls this and then only touches the
// fields it needs.
func bootstrap(opts bootstrapOptions) (*app, error) {
	workspace, err := resolveWorkspace(opts.Workspace)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := newLogger(cfg)

	root, err := storeRoot()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("init store root: %w", err)
	}

	secretsStore := secrets.NewStore(secrets.DefaultPath())

	store, err := kv.Open(filepath.Join(root, "store"))
	if err != nil {
		return nil, fmt.Errorf("open kv store: %w", err)
	}

	var index *searchindex.Index
	idx, err := searchindex.Open(filepath.Join(root, "search.db"))
	if err != nil {
		// The Search Index is a derived, rebuildable cache: a corrupt or
		// unopenable search.db degrades History/Grimoire Search to their
		// in-memory scan fallback instead of failing the whole command.
		log.Warn("search index unavailable, falling back to linear scan", "error", err)
	} else {
		index = idx
	}

	router := providerrouter.NewRouter(defaultWireProvider(cfg))
	registerProviders(log, router, cfg, secretsStore)

	c := cache.New(512)
	probeRegistry := probes.NewRegistry(c)
	registerProbes(probeRegistry, workspace)

	bus := hookbus.New()

	userHome, _ := os.UserHomeDir()
	pluginRegistry := plugins.New(workspace, userHome, filepath.Join(root, "plugin-state.json"), bus)
	pluginRegistry.Discover()

	telem := telemetry.New(store)
	hist := history.New(store)
	grim := grimoire.New(store)
	if index != nil {
		hist.SetIndex(index)
		grim.SetIndex(index)
	}

	progress := sse.New(sse.Options{})

	pl := &pipeline.Pipeline{
		Router:    router,
		Probes:    probeRegistry,
		Hooks:     bus,
		History:   hist,
		Grimoire:  grim,
		Telemetry: telem,
	}

	migrator, err := migrations.New(workspace, store, migrations.Builtin())
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}

	return &app{
		log:       log,
		cfg:       cfg,
		workspace: workspace,
		storeRoot: root,
		secrets:   secretsStore,
		kv:        store,
		index:     index,
		router:    router,
		probes:    probeRegistry,
		hooks:     bus,
		plugins:   pluginRegistry,
		telem:     telem,
		history:   hist,
		grimoire:  grim,
		progress:  progress,
		pipeline:  pl,
		migrate:   migrator,
	}, nil
}
