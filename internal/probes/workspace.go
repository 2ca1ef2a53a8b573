package probes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// WorkspaceProbe hints at recent file activity under a working directory,
// giving the enhancer a thread of "what was the user just doing" without
// reading file contents.
type WorkspaceProbe struct {
	root  string
	ttl   time.Duration
	limit int
}

func NewWorkspaceProbe(root string, ttl time.Duration) *WorkspaceProbe {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &WorkspaceProbe{root: root, ttl: ttl, limit: 3}
}

func (p *WorkspaceProbe) Name() string      { return "workspace" }
func (p *WorkspaceProbe) TTL() time.Duration { return p.ttl }

func (p *WorkspaceProbe) Hint(ctx context.Context) (string, error) {
	if p.root == "" {
		return "", nil
	}
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return "", err
	}

	type recent struct {
		name    string
		modTime time.Time
	}
	var recents []recent
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		recents = append(recents, recent{name: e.Name(), modTime: info.ModTime()})
	}
	if len(recents) == 0 {
		return "", nil
	}
	sort.Slice(recents, func(i, j int) bool { return recents[i].modTime.After(recents[j].modTime) })
	if len(recents) > p.limit {
		recents = recents[:p.limit]
	}

	names := make([]string, 0, len(recents))
	for _, r := range recents {
		names = append(names, filepath.Base(r.name))
	}
	return fmt.Sprintf("Recently touched in workspace: %v.", names), nil
}
