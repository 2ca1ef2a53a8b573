// Package plugins implements the Plugin Registry: discovery of plugin
// manifests from a fixed set of scoped directories, precedence/shadow
// resolution across them, enable/disable lifecycle wiring into the hook
// bus, and a persisted enable/disable sidecar state file.
//
// A plugin's actual behavior (hook handlers, command handlers) is Go
// code compiled into the binary and registered by name through
// RegisterHookHandler/RegisterCommandHandler; the on-disk manifest only
// declares which named handlers a plugin wires up and under what
// metadata. This mirrors how the on-disk manifest never contains
// executable code, only declarative frontmatter, one directory layer up
// from the teacher's own skill-manifest pattern.
package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/floegence/forge/internal/hookbus"
)

// Manifest is the declarative description loaded from PLUGIN.md's YAML
// frontmatter.
type Manifest struct {
	Name        string        `yaml:"name"`
	Version     string        `yaml:"version"`
	Description string        `yaml:"description"`
	Priority    int           `yaml:"priority"`
	Hooks       []HookRef     `yaml:"hooks"`
	Context     string        `yaml:"context"`
	Commands    []CommandRef  `yaml:"commands"`
	Init        string        `yaml:"init"`
	Destroy     string        `yaml:"destroy"`
}

// HookRef names a compiled-in handler to wire at a given hook point.
type HookRef struct {
	Point    string `yaml:"point"`
	Handler  string `yaml:"handler"`
	Priority int    `yaml:"priority"`
}

// CommandRef maps a CLI/API command name to a compiled-in handler.
type CommandRef struct {
	Name    string `yaml:"name"`
	Handler string `yaml:"handler"`
}

// Entry is one catalog row: a discovered plugin plus its resolved
// enable/shadow state.
type Entry struct {
	ID         string
	Manifest   Manifest
	Path       string
	Scope      string
	Enabled    bool
	Effective  bool
	ShadowedBy string
}

// Catalog is the full discovery result.
type Catalog struct {
	Version   int64
	Plugins   []Entry
	Conflicts []Notice
	Errors    []Notice
}

// Notice is a non-fatal diagnostic surfaced alongside the catalog.
type Notice struct {
	Name       string
	Path       string
	Message    string
	WinnerPath string
}

type discoveryRoot struct {
	path  string
	scope string
}

type stateFile struct {
	SchemaVersion int      `json:"schema_version"`
	DisabledPaths []string `json:"disabled_paths,omitempty"`
}

var pluginNameRE = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// Registry discovers, enables, and disables plugins, persisting
// enable/disable state to a JSON sidecar file.
type Registry struct {
	mu         sync.RWMutex
	workspace  string
	userHome   string
	statePath  string

	disabledPaths map[string]struct{}

	bus      *hookbus.Bus
	commands map[string]commandBinding

	discovered map[string]Entry // name -> effective entry
	active     map[string]struct{}

	version   int64
	entries   []Entry
	conflicts []Notice
	errors    []Notice
}

type commandBinding struct {
	pluginName string
	handlerRef string
}

func New(workspace, userHome, statePath string, bus *hookbus.Bus) *Registry {
	return &Registry{
		workspace:     strings.TrimSpace(workspace),
		userHome:      strings.TrimSpace(userHome),
		statePath:     strings.TrimSpace(statePath),
		disabledPaths: map[string]struct{}{},
		bus:           bus,
		commands:      map[string]commandBinding{},
		discovered:    map[string]Entry{},
		active:        map[string]struct{}{},
	}
}

func (r *Registry) roots() []discoveryRoot {
	roots := make([]discoveryRoot, 0, 2)
	if ws := strings.TrimSpace(r.workspace); ws != "" {
		roots = append(roots, discoveryRoot{path: filepath.Join(ws, ".forge", "plugins"), scope: "workspace"})
	}
	if home := strings.TrimSpace(r.userHome); home != "" {
		roots = append(roots, discoveryRoot{path: filepath.Join(home, ".forge", "plugins"), scope: "user"})
	}
	return roots
}

// Discover rescans every root and rebuilds the catalog, resolving
// workspace-over-user precedence and name collisions.
func (r *Registry) Discover() Catalog {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discoverLocked()
	return r.catalogLocked()
}

func (r *Registry) Catalog() Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalogLocked()
}

func (r *Registry) discoverLocked() {
	var allErrors []Notice
	if err := r.loadStateLocked(); err != nil {
		allErrors = append(allErrors, Notice{Path: r.statePath, Message: err.Error()})
	}

	grouped := map[string][]Entry{}
	for _, root := range r.roots() {
		found, notices := scanRoot(root)
		allErrors = append(allErrors, notices...)
		for _, e := range found {
			grouped[e.Manifest.Name] = append(grouped[e.Manifest.Name], e)
		}
	}

	effective := map[string]Entry{}
	var entries []Entry
	var conflicts []Notice

	for _, name := range sortedKeys(grouped) {
		items := grouped[name]
		winnerIdx := -1
		for i := range items {
			if !r.isDisabledLocked(items[i].Path) {
				winnerIdx = i
				break
			}
		}
		winnerPath := ""
		if winnerIdx >= 0 {
			winnerPath = items[winnerIdx].Path
		}
		for i := range items {
			item := items[i]
			item.Enabled = !r.isDisabledLocked(item.Path)
			item.Effective = i == winnerIdx
			if i != winnerIdx && winnerPath != "" {
				item.ShadowedBy = winnerPath
				conflicts = append(conflicts, Notice{Name: name, Path: item.Path, WinnerPath: winnerPath, Message: "shadowed by higher-precedence plugin"})
			}
			entries = append(entries, item)
		}
		if winnerIdx >= 0 {
			effective[name] = items[winnerIdx]
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Effective != entries[j].Effective {
			return entries[i].Effective
		}
		if entries[i].Manifest.Priority != entries[j].Manifest.Priority {
			return entries[i].Manifest.Priority > entries[j].Manifest.Priority
		}
		return entries[i].Manifest.Name < entries[j].Manifest.Name
	})
	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].Name == conflicts[j].Name {
			return conflicts[i].Path < conflicts[j].Path
		}
		return conflicts[i].Name < conflicts[j].Name
	})

	r.discovered = effective
	r.entries = entries
	r.conflicts = conflicts
	r.errors = allErrors
	r.version++
}

func (r *Registry) catalogLocked() Catalog {
	return Catalog{
		Version:   r.version,
		Plugins:   append([]Entry(nil), r.entries...),
		Conflicts: append([]Notice(nil), r.conflicts...),
		Errors:    append([]Notice(nil), r.errors...),
	}
}

func scanRoot(root discoveryRoot) ([]Entry, []Notice) {
	rootPath := filepath.Clean(root.path)
	dirEntries, err := os.ReadDir(rootPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []Notice{{Path: rootPath, Message: err.Error()}}
	}

	var out []Entry
	var notices []Notice
	for _, de := range dirEntries {
		if de == nil || !de.IsDir() {
			continue
		}
		dirName := strings.TrimSpace(de.Name())
		if dirName == "" {
			continue
		}
		manifestPath := filepath.Join(rootPath, dirName, "PLUGIN.md")
		if _, err := os.Stat(manifestPath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			notices = append(notices, Notice{Path: manifestPath, Message: err.Error()})
			continue
		}
		manifest, err := parseManifest(manifestPath)
		if err != nil {
			notices = append(notices, Notice{Path: manifestPath, Message: err.Error()})
			continue
		}
		if manifest.Name != dirName {
			notices = append(notices, Notice{Path: manifestPath, Message: fmt.Sprintf("plugin name %q does not match directory %q", manifest.Name, dirName)})
			continue
		}
		out = append(out, Entry{
			ID:       pluginID(root.scope, manifestPath),
			Manifest: manifest,
			Path:     manifestPath,
			Scope:    root.scope,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Manifest.Priority == out[j].Manifest.Priority {
			return out[i].Manifest.Name < out[j].Manifest.Name
		}
		return out[i].Manifest.Priority > out[j].Manifest.Priority
	})
	return out, notices
}

func parseManifest(path string) (Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	frontmatter, _, ok := splitFrontmatter(string(content))
	if !ok {
		return Manifest{}, fmt.Errorf("missing frontmatter")
	}
	var m Manifest
	if err := yaml.Unmarshal([]byte(frontmatter), &m); err != nil {
		return Manifest{}, err
	}
	m.Name = strings.TrimSpace(m.Name)
	m.Description = strings.TrimSpace(m.Description)
	if m.Name == "" || !pluginNameRE.MatchString(m.Name) {
		return Manifest{}, fmt.Errorf("invalid or missing plugin name")
	}
	if m.Description == "" {
		return Manifest{}, fmt.Errorf("missing description")
	}
	return m, nil
}

func splitFrontmatter(content string) (frontmatter, body string, ok bool) {
	const delim = "---"
	if !strings.HasPrefix(content, delim) {
		return "", "", false
	}
	rest := content[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return "", "", false
	}
	frontmatter = strings.TrimPrefix(rest[:idx], "\n")
	body = strings.TrimPrefix(rest[idx+len(delim)+1:], "\n")
	return frontmatter, body, true
}

func pluginID(scope, path string) string {
	return scope + ":" + path
}

func sortedKeys(m map[string][]Entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) isDisabledLocked(path string) bool {
	_, disabled := r.disabledPaths[filepath.Clean(path)]
	return disabled
}

func (r *Registry) loadStateLocked() error {
	if r.statePath == "" {
		return nil
	}
	raw, err := os.ReadFile(r.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var sf stateFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return nil
	}
	r.disabledPaths = map[string]struct{}{}
	for _, p := range sf.DisabledPaths {
		r.disabledPaths[filepath.Clean(p)] = struct{}{}
	}
	return nil
}

func (r *Registry) saveStateLocked() error {
	if r.statePath == "" {
		return nil
	}
	paths := make([]string, 0, len(r.disabledPaths))
	for p := range r.disabledPaths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	sf := stateFile{SchemaVersion: 1, DisabledPaths: paths}
	raw, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.statePath), 0o700); err != nil {
		return err
	}
	tmp := r.statePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, r.statePath)
}

// SetEnabled patches the enable/disable state for one discovered path and
// persists it before rediscovering.
func (r *Registry) SetEnabled(path string, enabled bool) (Catalog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discoverLocked()

	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" {
		return Catalog{}, fmt.Errorf("invalid plugin path")
	}
	if !r.hasPathLocked(path) {
		return Catalog{}, fmt.Errorf("unknown plugin path: %s", path)
	}
	if enabled {
		delete(r.disabledPaths, path)
	} else {
		r.disabledPaths[path] = struct{}{}
	}
	if err := r.saveStateLocked(); err != nil {
		return Catalog{}, err
	}
	r.discoverLocked()
	return r.catalogLocked(), nil
}

func (r *Registry) hasPathLocked(path string) bool {
	for _, e := range r.entries {
		if e.Path == path {
			return true
		}
	}
	return false
}
