package providerrouter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/floegence/forge/internal/forgeerr"
)

type fakeProvider struct {
	name      string
	model     string
	available bool
	response  string
	chunks    []string
	err       error
	gotModel  string
}

func (f *fakeProvider) Name() string      { return f.name }
func (f *fakeProvider) Available() bool   { return f.available }
func (f *fakeProvider) Timeout() time.Duration { return time.Second }

func (f *fakeProvider) ResolveModel(alias string) string {
	if idx := strings.Index(alias, "/"); idx >= 0 {
		alias = alias[idx+1:]
	}
	if alias == "" {
		return f.model
	}
	return alias
}

func (f *fakeProvider) Generate(ctx context.Context, model, systemInstruction, userPrompt string, maxTokens int, temperature float64, onChunk func(string)) (string, Usage, error) {
	f.gotModel = model
	if f.err != nil {
		return "", Usage{}, f.err
	}
	if onChunk != nil {
		for _, c := range f.chunks {
			onChunk(c)
		}
	}
	return f.response, Usage{InputTokens: 10, OutputTokens: 20}, nil
}

func TestDetectProviderExactAndNamespaceMatch(t *testing.T) {
	r := NewRouter("openai-compatible")
	r.Register(&fakeProvider{name: "anthropic-direct", available: true})
	r.Register(&fakeProvider{name: "openai-compatible", available: true})
	r.Register(&fakeProvider{name: "gemini", available: true})
	r.Register(&fakeProvider{name: "ollama", available: true})

	cases := map[string]string{
		"anthropic-direct/claude-sonnet-4-5": "anthropic-direct",
		"claude-sonnet-4-5":                  "anthropic-direct",
		"gemini-2.0-flash":                   "gemini",
		"gpt-4o":                             "openai-compatible",
		"llama3.1":                           "ollama",
		"something-unknown":                  "openai-compatible",
	}
	for alias, want := range cases {
		if got := r.DetectProvider(alias); got != want {
			t.Errorf("DetectProvider(%q) = %q, want %q", alias, got, want)
		}
	}
}

func TestGenerateStripsFenceAndValidatesHTML(t *testing.T) {
	r := NewRouter("mock")
	r.Register(&fakeProvider{name: "mock", available: true, response: "```html\n<!DOCTYPE html><html><body>hi</body></html>\n```"})

	html, meta, err := r.Generate(context.Background(), "sys", "prompt", Options{Model: "mock/x"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Contains(html, "```") {
		t.Fatalf("fence not stripped: %q", html)
	}
	if meta.Provider != "mock" {
		t.Fatalf("meta.Provider = %q, want mock", meta.Provider)
	}
}

func TestGenerateMalformedOutput(t *testing.T) {
	r := NewRouter("mock")
	r.Register(&fakeProvider{name: "mock", available: true, response: "just some text, not html"})

	_, _, err := r.Generate(context.Background(), "sys", "prompt", Options{Model: "mock/x"})
	if !errors.Is(err, forgeerr.ErrMalformedOutput) {
		t.Fatalf("err = %v, want ErrMalformedOutput", err)
	}
}

func TestGenerateEmptyResponse(t *testing.T) {
	r := NewRouter("mock")
	r.Register(&fakeProvider{name: "mock", available: true, response: "   "})

	_, _, err := r.Generate(context.Background(), "sys", "prompt", Options{Model: "mock/x"})
	if !errors.Is(err, forgeerr.ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestGenerateUnavailableProviderIsNotConfigured(t *testing.T) {
	r := NewRouter("mock")
	r.Register(&fakeProvider{name: "mock", available: false})

	_, _, err := r.Generate(context.Background(), "sys", "prompt", Options{Model: "mock/x"})
	if !errors.Is(err, forgeerr.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestGenerateStreamsChunksToCallback(t *testing.T) {
	r := NewRouter("mock")
	r.Register(&fakeProvider{
		name:      "mock",
		available: true,
		chunks:    []string{"<!DOCTYPE html>", "<html>", "<body>ok</body></html>"},
		response:  "<!DOCTYPE html><html><body>ok</body></html>",
	})

	var got []string
	_, _, err := r.Generate(context.Background(), "sys", "prompt", Options{
		Model:   "mock/x",
		Stream:  true,
		OnChunk: func(s string) { got = append(got, s) },
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("received %d chunks, want 3", len(got))
	}
}

func TestGeneratePassesResolvedModelToProvider(t *testing.T) {
	r := NewRouter("mock")
	fp := &fakeProvider{name: "mock", available: true, response: "<!DOCTYPE html><html><body>hi</body></html>"}
	r.Register(fp)

	_, meta, err := r.Generate(context.Background(), "sys", "prompt", Options{Model: "mock/claude-opus-4-5"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if fp.gotModel != "claude-opus-4-5" {
		t.Fatalf("provider received model %q, want %q", fp.gotModel, "claude-opus-4-5")
	}
	if meta.ResolvedModel != fp.gotModel {
		t.Fatalf("meta.ResolvedModel = %q, provider got %q; must match", meta.ResolvedModel, fp.gotModel)
	}
}

func TestDetectProviderUnknownAliasFallsBackToDefault(t *testing.T) {
	r := NewRouter("openai-compatible")
	r.Register(&fakeProvider{name: "openai-compatible", available: true})

	if got := r.DetectProvider(""); got != "openai-compatible" {
		t.Fatalf("DetectProvider(\"\") = %q, want default", got)
	}
}
