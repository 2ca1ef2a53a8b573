package plugins

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/floegence/forge/internal/hookbus"
)

// CommandFunc is a plugin-contributed command handler.
type CommandFunc func(args map[string]any) (any, error)

// LifecycleFunc is a plugin's init/destroy entry point.
type LifecycleFunc func(ctx LifecycleContext) error

// LifecycleContext is passed to a plugin's init/destroy handler.
type LifecycleContext struct {
	PluginName string
	Manifest   Manifest
}

// HandlerRegistry is the compiled-in lookup table of hook, command, and
// lifecycle handlers that plugin manifests reference by name. Plugins
// never ship executable code on disk; a manifest's "handler" strings
// resolve against whatever this process registered ahead of time.
type HandlerRegistry struct {
	mu        sync.RWMutex
	hooks     map[string]hookbus.Handler
	commands  map[string]CommandFunc
	lifecycle map[string]LifecycleFunc
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		hooks:     map[string]hookbus.Handler{},
		commands:  map[string]CommandFunc{},
		lifecycle: map[string]LifecycleFunc{},
	}
}

func (h *HandlerRegistry) RegisterHookHandler(ref string, fn hookbus.Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks[ref] = fn
}

func (h *HandlerRegistry) RegisterCommandHandler(ref string, fn CommandFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands[ref] = fn
}

func (h *HandlerRegistry) RegisterLifecycleHandler(ref string, fn LifecycleFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lifecycle[ref] = fn
}

func (h *HandlerRegistry) hookHandler(ref string) (hookbus.Handler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.hooks[ref]
	return fn, ok
}

func (h *HandlerRegistry) commandHandler(ref string) (CommandFunc, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.commands[ref]
	return fn, ok
}

func (h *HandlerRegistry) lifecycleHandler(ref string) (LifecycleFunc, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.lifecycle[ref]
	return fn, ok
}

// Lifecycle wires a Registry's effective, enabled plugins into a hook
// bus and a command dispatch table, resolving references through a
// HandlerRegistry. It is the Enable/Disable half of the Plugin Registry
// contract; Registry itself only tracks discovery and enable state.
type Lifecycle struct {
	mu       sync.Mutex
	bus      *hookbus.Bus
	handlers *HandlerRegistry

	commands map[string]commandBinding
	warnings []string
	loaded   map[string]bool
}

func NewLifecycle(bus *hookbus.Bus, handlers *HandlerRegistry) *Lifecycle {
	return &Lifecycle{
		bus:      bus,
		handlers: handlers,
		commands: map[string]commandBinding{},
		loaded:   map[string]bool{},
	}
}

// Sync enables every effective, enabled plugin in catalog that isn't
// already loaded, and disables every loaded plugin that's no longer
// effective or enabled. Load failures are reported per-plugin and never
// prevent the rest of the catalog from loading.
func (l *Lifecycle) Sync(catalog Catalog) []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()

	wantLoaded := map[string]Entry{}
	for _, e := range catalog.Plugins {
		if e.Effective && e.Enabled {
			wantLoaded[e.Manifest.Name] = e
		}
	}

	var notices []Notice
	for name := range l.loaded {
		if _, ok := wantLoaded[name]; !ok {
			l.disableLocked(name)
		}
	}

	names := make([]string, 0, len(wantLoaded))
	for name := range wantLoaded {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if l.loaded[name] {
			continue
		}
		e := wantLoaded[name]
		if err := l.enableLocked(e); err != nil {
			notices = append(notices, Notice{Name: name, Path: e.Path, Message: err.Error()})
		}
	}
	return notices
}

func (l *Lifecycle) enableLocked(e Entry) error {
	name := e.Manifest.Name
	for _, hr := range e.Manifest.Hooks {
		fn, ok := l.handlers.hookHandler(hr.Handler)
		if !ok {
			return fmt.Errorf("plugin %s: unknown hook handler %q", name, hr.Handler)
		}
		l.bus.Register(hookbus.Point(hr.Point), fn, name+":"+hr.Handler, hr.Priority)
	}
	for _, cr := range e.Manifest.Commands {
		cmdName := strings.TrimSpace(cr.Name)
		if cmdName == "" {
			continue
		}
		if _, exists := l.commands[cmdName]; exists {
			l.warnings = append(l.warnings, fmt.Sprintf("plugin %s: command %q already claimed, first-loaded wins", name, cmdName))
			continue
		}
		if _, ok := l.handlers.commandHandler(cr.Handler); !ok {
			return fmt.Errorf("plugin %s: unknown command handler %q", name, cr.Handler)
		}
		l.commands[cmdName] = commandBinding{pluginName: name, handlerRef: cr.Handler}
	}
	if ref := strings.TrimSpace(e.Manifest.Init); ref != "" {
		fn, ok := l.handlers.lifecycleHandler(ref)
		if !ok {
			return fmt.Errorf("plugin %s: unknown init handler %q", name, ref)
		}
		if err := fn(LifecycleContext{PluginName: name, Manifest: e.Manifest}); err != nil {
			return fmt.Errorf("plugin %s: init failed: %w", name, err)
		}
	}
	l.loaded[name] = true
	return nil
}

func (l *Lifecycle) disableLocked(name string) {
	l.bus.Unregister(name)
	for cmdName, binding := range l.commands {
		if binding.pluginName == name {
			delete(l.commands, cmdName)
		}
	}
	delete(l.loaded, name)
}

// Command looks up a command by name in O(1); the plugin that
// first claimed the name under Sync owns it until that plugin is
// disabled.
func (l *Lifecycle) Command(name string) (CommandFunc, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	binding, ok := l.commands[name]
	if !ok {
		return nil, false
	}
	fn, ok := l.handlers.commandHandler(binding.handlerRef)
	return fn, ok
}

// Warnings returns and clears accumulated command-collision warnings.
func (l *Lifecycle) Warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]string(nil), l.warnings...)
	sort.Strings(out)
	l.warnings = nil
	return out
}
