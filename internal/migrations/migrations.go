// Package migrations applies ordered, idempotent changes to forge's
// on-disk persistence layout and logs every application to
// .forge/migrations.json. A migration that has already run is simply
// skipped on the next Upgrade — there is no separate "down" direction,
// matching the append-only log spec.md describes.
package migrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/floegence/forge/internal/kv"
)

// Migration is one ordered, idempotent step. Version must be unique and
// increasing; Up receives the already-open KV Store it may need to
// reshape collections in place.
type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, store *kv.Store) error
}

// Record is one applied-migration entry in the log.
type Record struct {
	Version     int       `json:"version"`
	Description string    `json:"description"`
	AppliedAt   time.Time `json:"appliedAt"`
	Result      string    `json:"result"`
}

// Runner owns the migration log file and the ordered registry of
// migrations it knows how to apply.
type Runner struct {
	logPath    string
	store      *kv.Store
	migrations []Migration

	mu sync.Mutex
}

// New returns a Runner logging to <workspaceDir>/.forge/migrations.json
// and applying migrations against store. migrations need not be
// pre-sorted; Runner sorts by Version.
func New(workspaceDir string, store *kv.Store, migrations []Migration) (*Runner, error) {
	workspaceDir = strings.TrimSpace(workspaceDir)
	if workspaceDir == "" {
		return nil, errors.New("migrations: missing workspace directory")
	}
	if store == nil {
		return nil, errors.New("migrations: missing store")
	}

	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	seen := map[int]bool{}
	for _, m := range sorted {
		if m.Version <= 0 {
			return nil, fmt.Errorf("migrations: invalid version %d", m.Version)
		}
		if seen[m.Version] {
			return nil, fmt.Errorf("migrations: duplicate version %d", m.Version)
		}
		seen[m.Version] = true
	}

	return &Runner{
		logPath:    filepath.Join(workspaceDir, ".forge", "migrations.json"),
		store:      store,
		migrations: sorted,
	}, nil
}

func (r *Runner) LogPath() string {
	if r == nil {
		return ""
	}
	return r.logPath
}

// Applied returns every record in the log, oldest first.
func (r *Runner) Applied() ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLogLocked()
}

// Pending returns migrations not yet present in the log, oldest first.
func (r *Runner) Pending() ([]Migration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	applied, err := r.readLogLocked()
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(applied))
	for _, rec := range applied {
		done[rec.Version] = true
	}

	var pending []Migration
	for _, m := range r.migrations {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Upgrade applies every pending migration in order and appends one
// record per successful application. dryRun never writes the log or
// runs a migration's Up function — it only reports what would happen.
func (r *Runner) Upgrade(ctx context.Context, dryRun bool) ([]Record, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	pending, err := r.Pending()
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	if dryRun {
		preview := make([]Record, 0, len(pending))
		for _, m := range pending {
			preview = append(preview, Record{Version: m.Version, Description: m.Description, Result: "pending"})
		}
		return preview, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	applied, err := r.readLogLocked()
	if err != nil {
		return nil, err
	}

	var newRecords []Record
	for _, m := range pending {
		rec := Record{Version: m.Version, Description: m.Description, AppliedAt: time.Now().UTC()}
		if err := m.Up(ctx, r.store); err != nil {
			rec.Result = "failed: " + err.Error()
			applied = append(applied, rec)
			if writeErr := r.writeLogLocked(applied); writeErr != nil {
				return nil, fmt.Errorf("migrations: version %d failed (%v) and logging that failure also failed: %w", m.Version, err, writeErr)
			}
			return nil, fmt.Errorf("migrations: version %d: %w", m.Version, err)
		}
		rec.Result = "ok"
		applied = append(applied, rec)
		newRecords = append(newRecords, rec)
	}

	if err := r.writeLogLocked(applied); err != nil {
		return nil, err
	}
	return newRecords, nil
}

func (r *Runner) readLogLocked() ([]Record, error) {
	b, err := os.ReadFile(r.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if strings.TrimSpace(string(b)) == "" {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("migrations: decode log: %w", err)
	}
	return records, nil
}

func (r *Runner) writeLogLocked(records []Record) error {
	if err := os.MkdirAll(filepath.Dir(r.logPath), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := r.logPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, r.logPath)
}
