package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/floegence/forge/internal/pipeline"
	"github.com/floegence/forge/internal/providerrouter"
	"github.com/floegence/forge/internal/sse"
)

type fakeProvider struct {
	response string
}

func (f *fakeProvider) Name() string           { return "fake" }
func (f *fakeProvider) Available() bool        { return true }
func (f *fakeProvider) Timeout() time.Duration { return time.Second }
func (f *fakeProvider) ResolveModel(alias string) string { return "fake-model" }
func (f *fakeProvider) Generate(ctx context.Context, model, systemInstruction, userPrompt string, maxTokens int, temperature float64, onChunk func(string)) (string, providerrouter.Usage, error) {
	return f.response, providerrouter.Usage{InputTokens: 1, OutputTokens: 1}, nil
}

func richHTML() string {
	return `<!DOCTYPE html><html><head><title>x</title><style>.x{transition:all .2s;}</style></head>` +
		`<body><header></header><main><input placeholder="x" aria-label="x"></main></body></html>`
}

func newTestPipeline() *pipeline.Pipeline {
	router := providerrouter.NewRouter("fake")
	router.Register(&fakeProvider{response: richHTML()})
	return &pipeline.Pipeline{Router: router}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestNewRejectsMissingTarget(t *testing.T) {
	_, err := New(Options{Target: filepath.Join(t.TempDir(), "does-not-exist.txt"), Pipeline: newTestPipeline()})
	if err == nil {
		t.Fatalf("expected an error for a missing target")
	}
}

func TestRunFiresImmediatelyWhenTargetIsAFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "intent.txt")
	if err := os.WriteFile(file, []byte("build a pomodoro timer"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	w, err := New(Options{Target: file, Pipeline: newTestPipeline(), DebounceMs: 50, PollIntervalMs: 20})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go w.Run(ctx)

	waitFor(t, 400*time.Millisecond, func() bool { return w.LatestHTML() != "" })
	if w.LatestFile() != file {
		t.Fatalf("LatestFile() = %q, want %q", w.LatestFile(), file)
	}
}

func TestRunRegeneratesOnFileChangeAfterDebounce(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "intent.md")
	if err := os.WriteFile(file, []byte("first intent"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	w, err := New(Options{Target: dir, Pipeline: newTestPipeline(), DebounceMs: 50, PollIntervalMs: 20})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go w.Run(ctx)

	// A directory target never fires on its own; seed a change to trigger one.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(file, []byte("second intent"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	// Force a detectable mtime bump regardless of filesystem mtime granularity.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(file, future, future); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	waitFor(t, 1500*time.Millisecond, func() bool { return w.LatestHTML() != "" })
}

func TestRunIgnoresChangesToUnwatchedExtensions(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.json"), []byte(`{"x":1}`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	w, err := New(Options{Target: dir, Pipeline: newTestPipeline(), DebounceMs: 30, PollIntervalMs: 20})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if w.LatestHTML() != "" {
		t.Fatalf("expected no generation to have fired for a non-watched extension")
	}
}

func TestRunWithProgressChannelGeneratesSingleFileTarget(t *testing.T) {
	file := filepath.Join(t.TempDir(), "intent.txt")
	if err := os.WriteFile(file, []byte("build a timer"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	progress := sse.New(sse.Options{})
	w, err := New(Options{Target: file, Pipeline: newTestPipeline(), Progress: progress, DebounceMs: 20, PollIntervalMs: 20})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if w.LatestHTML() == "" {
		t.Fatalf("expected the single-file target to have generated once")
	}
}
