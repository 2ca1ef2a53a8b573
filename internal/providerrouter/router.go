package providerrouter

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/floegence/forge/internal/forgeerr"
)

// Router dispatches Generate calls to a registered Provider, chosen by
// DetectProvider, and applies the fence-stripping / HTML-shape validation
// every provider's output must pass regardless of backend.
type Router struct {
	providers       map[string]Provider
	defaultProvider string
}

func NewRouter(defaultProvider string) *Router {
	return &Router{providers: map[string]Provider{}, defaultProvider: defaultProvider}
}

func (r *Router) Register(p Provider) {
	if r == nil || p == nil {
		return
	}
	r.providers[p.Name()] = p
}

// DetectProvider is total over the model-alias namespace: an exact
// provider-name match wins, then a model-family prefix match against
// known namespaces, and finally the router's configured default.
// modelAlias may be bare ("gemini-2.0-flash") or namespaced
// ("gemini/gemini-2.0-flash"); only the portion before the first "/" is
// used for provider selection.
func (r *Router) DetectProvider(modelAlias string) string {
	if r == nil {
		return ""
	}
	alias := strings.TrimSpace(modelAlias)
	namespace := alias
	if idx := strings.Index(alias, "/"); idx >= 0 {
		namespace = alias[:idx]
	}
	namespace = strings.ToLower(namespace)

	if _, ok := r.providers[namespace]; ok {
		return namespace
	}
	switch {
	case strings.HasPrefix(namespace, "claude"):
		return pickIfRegistered(r, "anthropic-direct")
	case strings.HasPrefix(namespace, "gemini"):
		return pickIfRegistered(r, "gemini")
	case strings.HasPrefix(namespace, "gpt"), strings.HasPrefix(namespace, "o1"), strings.HasPrefix(namespace, "o3"):
		return pickIfRegistered(r, "openai-compatible")
	case strings.HasPrefix(namespace, "llama"), strings.HasPrefix(namespace, "mistral"), strings.HasPrefix(namespace, "qwen"):
		return pickIfRegistered(r, "ollama")
	}
	return r.defaultProvider
}

// Providers maps each registered provider name to whether it currently
// reports itself as Available.
func (r *Router) Providers() map[string]bool {
	out := map[string]bool{}
	if r == nil {
		return out
	}
	for name, p := range r.providers {
		out[name] = p.Available()
	}
	return out
}

// ProviderNames returns the registered provider names in sorted order.
func (r *Router) ProviderNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultProvider returns the router's configured fallback provider name.
func (r *Router) DefaultProvider() string {
	if r == nil {
		return ""
	}
	return r.defaultProvider
}

func pickIfRegistered(r *Router, name string) string {
	if _, ok := r.providers[name]; ok {
		return name
	}
	return r.defaultProvider
}

// Generate resolves a provider from opts.Model, shapes and sends the
// request, and post-processes the aggregated text into validated HTML.
func (r *Router) Generate(ctx context.Context, systemInstruction, userPrompt string, opts Options) (string, Meta, error) {
	if r == nil {
		return "", Meta{}, forgeerr.ErrNotConfigured
	}
	providerName := r.DetectProvider(opts.Model)
	provider, ok := r.providers[providerName]
	if !ok || provider == nil {
		return "", Meta{}, forgeerr.ErrNotConfigured
	}
	if !provider.Available() {
		return "", Meta{}, forgeerr.ErrNotConfigured
	}

	resolvedModel := provider.ResolveModel(opts.Model)
	timeout := provider.Timeout()
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxTokens := opts.MaxTokens
	temperature := opts.Temperature

	var onChunk func(string)
	if opts.Stream && opts.OnChunk != nil {
		onChunk = opts.OnChunk
	}

	start := time.Now()
	raw, usage, err := provider.Generate(rctx, resolvedModel, systemInstruction, userPrompt, maxTokens, temperature, onChunk)
	duration := time.Since(start)
	if err != nil {
		if opts.Stream && strings.TrimSpace(raw) != "" {
			return "", Meta{}, forgeerr.WithStage("provider", &streamError{cause: err})
		}
		return "", Meta{}, forgeerr.WithStage("provider", err)
	}

	html, perr := postProcess(raw)
	if perr != nil {
		return "", Meta{}, forgeerr.WithStage("provider", perr)
	}

	meta := Meta{
		Provider:      providerName,
		ResolvedModel: resolvedModel,
		DurationMs:    duration.Milliseconds(),
		TokensInEst:   usage.InputTokens,
		TokensOutEst:  usage.OutputTokens,
	}
	return html, meta, nil
}

type streamError struct {
	cause error
}

func (e *streamError) Error() string {
	if e == nil || e.cause == nil {
		return forgeerr.ErrStreamError.Error()
	}
	return forgeerr.ErrStreamError.Error() + ": " + e.cause.Error()
}

func (e *streamError) Unwrap() error { return forgeerr.ErrStreamError }

// postProcess strips a leading/trailing markdown code fence, trims
// whitespace, and validates the result looks like an HTML document.
func postProcess(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", forgeerr.ErrEmptyResponse
	}
	text = stripFence(text)
	text = strings.TrimSpace(text)
	if text == "" {
		return "", forgeerr.ErrEmptyResponse
	}

	lower := strings.ToLower(text)
	if !strings.Contains(lower, "<!doctype") && !strings.Contains(lower, "<html") {
		return "", forgeerr.ErrMalformedOutput
	}
	return text, nil
}

func stripFence(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	first := strings.TrimSpace(lines[0])
	if !strings.HasPrefix(first, "```") {
		return text
	}
	last := len(lines) - 1
	for last > 0 && strings.TrimSpace(lines[last]) == "" {
		last--
	}
	if strings.TrimSpace(lines[last]) != "```" {
		return text
	}
	return strings.Join(lines[1:last], "\n")
}
