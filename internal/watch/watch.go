// Package watch polls a file or directory for *.txt/*.md changes and
// regenerates through the pipeline on each debounced change, broadcasting
// progress over an SSE channel. It has no fsnotify-style OS event source
// to build on in this stack, so change detection is a plain mtime poll.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/floegence/forge/internal/pipeline"
	"github.com/floegence/forge/internal/sse"
)

const (
	defaultDebounce     = 500 * time.Millisecond
	defaultPollInterval = 300 * time.Millisecond
)

var watchedExt = map[string]bool{".txt": true, ".md": true}

// Options configures a new Watcher.
type Options struct {
	Target string

	DebounceMs     int
	PollIntervalMs int

	Pipeline        *pipeline.Pipeline
	PipelineOptions pipeline.Options
	Progress        *sse.Channel
}

// Event is one watch-mode progress notification, broadcast as a JSON SSE
// frame on the Progress channel. Each run replaces
// PipelineOptions.OnProgress with a forwarder that turns pipeline events
// into Events, so a caller-supplied OnProgress is not called.
type Event struct {
	Type      string   `json:"type"`
	Iteration int      `json:"iteration,omitempty"`
	File      string   `json:"file,omitempty"`
	ElapsedMs int64    `json:"elapsedMs,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// Watcher owns the poll loop, the in-flight/idle state, and the most
// recently generated HTML.
type Watcher struct {
	target       string
	debounce     time.Duration
	pollInterval time.Duration

	pipeline     *pipeline.Pipeline
	pipelineOpts pipeline.Options
	progress     *sse.Channel

	mu         sync.Mutex
	mtimes     map[string]time.Time
	generating bool
	latestHTML string
	lastFile   string
}

func New(opts Options) (*Watcher, error) {
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("watch: missing Pipeline")
	}
	target := strings.TrimSpace(opts.Target)
	if target == "" {
		return nil, fmt.Errorf("watch: missing Target")
	}
	if _, err := os.Stat(target); err != nil {
		return nil, fmt.Errorf("watch: stat %s: %w", target, err)
	}

	debounce := time.Duration(opts.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	poll := time.Duration(opts.PollIntervalMs) * time.Millisecond
	if poll <= 0 {
		poll = defaultPollInterval
	}

	return &Watcher{
		target:       target,
		debounce:     debounce,
		pollInterval: poll,
		pipeline:     opts.Pipeline,
		pipelineOpts: opts.PipelineOptions,
		progress:     opts.Progress,
		mtimes:       map[string]time.Time{},
	}, nil
}

// LatestHTML returns the most recently generated document, if any.
func (w *Watcher) LatestHTML() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latestHTML
}

// LatestFile returns the path of the file that produced LatestHTML.
func (w *Watcher) LatestFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastFile
}

// Run blocks, polling for changes until ctx is cancelled. A target that is
// itself a watched file fires an initial generation before entering the
// poll loop.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.target)
	if err != nil {
		return fmt.Errorf("watch: stat %s: %w", w.target, err)
	}

	snapshot, err := w.scan()
	if err != nil {
		return err
	}
	w.mtimes = snapshot

	if !info.IsDir() {
		w.trigger(ctx, w.target)
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var dirtyFile string
	var dirtySince time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			current, err := w.scan()
			if err != nil {
				continue
			}
			if changed := diff(w.mtimes, current); len(changed) > 0 {
				dirtyFile = changed[len(changed)-1]
				dirtySince = time.Now()
			}
			w.mtimes = current

			if dirtyFile == "" || w.isGenerating() {
				continue
			}
			if time.Since(dirtySince) < w.debounce {
				continue
			}
			file := dirtyFile
			dirtyFile = ""
			w.trigger(ctx, file)
		}
	}
}

func (w *Watcher) isGenerating() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generating
}

// trigger reads file's content as the generation intent and runs the
// pipeline, broadcasting progress and, on success, recording the result
// as the latest HTML. Further change events are ignored (isGenerating
// stays true) for the duration of the run.
func (w *Watcher) trigger(ctx context.Context, file string) {
	w.mu.Lock()
	if w.generating {
		w.mu.Unlock()
		return
	}
	w.generating = true
	w.lastFile = file
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.generating = false
		w.mu.Unlock()
	}()

	started := time.Now()
	content, err := os.ReadFile(file)
	if err != nil {
		w.broadcast(Event{Type: "error", File: file, Message: err.Error()})
		return
	}
	intent := strings.TrimSpace(string(content))
	if intent == "" {
		w.broadcast(Event{Type: "error", File: file, Message: "empty intent file"})
		return
	}

	w.broadcast(Event{Type: "start", File: file})

	opts := w.pipelineOpts
	opts.OnProgress = func(e pipeline.Event) {
		var score *float64
		if e.Score != nil {
			total := e.Score.Total
			score = &total
		}
		w.broadcast(Event{
			Type:      e.Type,
			File:      file,
			ElapsedMs: time.Since(started).Milliseconds(),
			Score:     score,
			Message:   e.Message,
		})
	}

	result, err := w.pipeline.Run(ctx, intent, opts)
	if err != nil {
		w.broadcast(Event{Type: "error", File: file, ElapsedMs: time.Since(started).Milliseconds(), Message: err.Error()})
		return
	}

	w.mu.Lock()
	w.latestHTML = result.HTML
	w.mu.Unlock()

	total := result.Score.Total
	w.broadcast(Event{
		Type:      "complete",
		File:      file,
		ElapsedMs: time.Since(started).Milliseconds(),
		Score:     &total,
	})
}

func (w *Watcher) broadcast(e Event) {
	if w.progress == nil {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	w.progress.Send(e.Type, string(payload), "")
}

// scan walks the target (a no-op single-entry walk if it's a file) and
// returns every watched file's modification time.
func (w *Watcher) scan() (map[string]time.Time, error) {
	info, err := os.Stat(w.target)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return map[string]time.Time{w.target: info.ModTime()}, nil
	}

	out := map[string]time.Time{}
	err = filepath.WalkDir(w.target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !watchedExt[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out[path] = info.ModTime()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// diff returns the paths present in next whose mtime differs from (or is
// absent in) prev, in map iteration order, which is undefined; callers
// that care about "most recent" use the last element as a best-effort
// signal only.
func diff(prev, next map[string]time.Time) []string {
	var changed []string
	for path, mtime := range next {
		if old, ok := prev[path]; !ok || !old.Equal(mtime) {
			changed = append(changed, path)
		}
	}
	return changed
}
