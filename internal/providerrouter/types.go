// Package providerrouter routes a generation request to one of the
// configured LLM providers, shapes the request, and strictly parses the
// response into generated HTML. It has no opinion about prompt content or
// output quality; that belongs to the enhancer and validator.
package providerrouter

import (
	"context"
	"time"
)

// Options carries the per-call knobs a caller can set on Generate.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Stream      bool
	OnChunk     func(text string)
}

// Meta describes how a Generate call was actually served.
type Meta struct {
	Provider      string
	ResolvedModel string
	DurationMs    int64
	TokensInEst   int
	TokensOutEst  int
}

// Provider is the per-backend abstraction the router dispatches through.
// Implementations own their own HTTP client, auth, and wire shape; the
// router only sees ModelAlias resolution, Generate, and Available.
type Provider interface {
	// Name is the provider's wire identifier, e.g. "anthropic-direct".
	Name() string
	// ResolveModel maps a model alias (possibly empty) to the concrete
	// model string this provider should send upstream.
	ResolveModel(alias string) string
	// Available reports whether this provider has what it needs (API key,
	// reachable base URL) to attempt a request at all.
	Available() bool
	// Generate performs one request against the provider and returns the
	// raw generated text before router-level post-processing. model is
	// the concrete model string the router already resolved via
	// ResolveModel; Generate sends exactly that model upstream rather
	// than re-resolving it. onChunk, if non-nil, is invoked with
	// incremental text as it streams in; the returned string is always
	// the full aggregated text regardless of whether streaming was used.
	Generate(ctx context.Context, model, systemInstruction, userPrompt string, maxTokens int, temperature float64, onChunk func(string)) (string, Usage, error)
	// Timeout is the request deadline this provider enforces by default.
	Timeout() time.Duration
}

// Usage is a provider's best-effort token accounting for the completed call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

const (
	defaultRequestTimeout = 120 * time.Second
	ollamaRequestTimeout  = 300 * time.Second
)
