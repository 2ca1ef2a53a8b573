package strategies

import (
	"context"
	"sort"
	"sync"

	"github.com/floegence/forge/internal/forgeerr"
	"github.com/floegence/forge/internal/validator"
)

// VariantResult is one entry's outcome in a duel.
type VariantResult struct {
	Label      string // provider/model for an A/B duel, prompt label for a prompt duel
	HTML       string
	Score      validator.Score
	TopIssues  []string // top 3 issues, populated for losers
	Failed     bool
	Err        error
}

// DuelResult is the outcome of an A/B or prompt duel.
type DuelResult struct {
	Winner   VariantResult
	Variants []VariantResult
}

// ABDuel generates the same prompt across every entry in models
// concurrently, via perModel, validates each, and returns the winner
// plus per-variant reasoning. Failed providers are omitted from
// consideration; if every provider fails, Err is ErrAllProvidersFailed.
func ABDuel(ctx context.Context, prompt, systemInstruction string, models []string, perModel func(ctx context.Context, systemInstruction, prompt, model string) (string, error)) (DuelResult, error) {
	results := make([]VariantResult, len(models))
	var wg sync.WaitGroup
	for i, model := range models {
		wg.Add(1)
		go func(i int, model string) {
			defer wg.Done()
			html, err := perModel(ctx, systemInstruction, prompt, model)
			results[i] = variantFrom(model, html, err)
		}(i, model)
	}
	wg.Wait()

	return finishDuel(results)
}

// PromptDuel runs the same structure over prompt variants against a
// single provider/model.
func PromptDuel(ctx context.Context, gen Generator, systemInstruction, model string, promptVariants map[string]string) (DuelResult, error) {
	labels := make([]string, 0, len(promptVariants))
	for label := range promptVariants {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	results := make([]VariantResult, len(labels))
	var wg sync.WaitGroup
	for i, label := range labels {
		wg.Add(1)
		go func(i int, label string) {
			defer wg.Done()
			html, err := gen.GenerateHTML(ctx, systemInstruction, promptVariants[label], model)
			results[i] = variantFrom(label, html, err)
		}(i, label)
	}
	wg.Wait()

	return finishDuel(results)
}

func variantFrom(label, html string, err error) VariantResult {
	if err != nil {
		return VariantResult{Label: label, Failed: true, Err: err}
	}
	return VariantResult{Label: label, HTML: html, Score: validator.Validate(html)}
}

func finishDuel(results []VariantResult) (DuelResult, error) {
	var winnerIdx = -1
	for i, r := range results {
		if r.Failed {
			continue
		}
		if winnerIdx == -1 || r.Score.Total > results[winnerIdx].Score.Total {
			winnerIdx = i
		}
	}
	if winnerIdx == -1 {
		return DuelResult{Variants: results}, forgeerr.ErrAllProvidersFailed
	}

	for i := range results {
		if i == winnerIdx || results[i].Failed {
			continue
		}
		results[i].TopIssues = topN(results[i].Score.Issues, 3)
	}

	return DuelResult{Winner: results[winnerIdx], Variants: results}, nil
}

func topN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

// FallbackTest runs primary; if its total is below threshold, it also
// runs fallback and returns whichever scored higher.
func FallbackTest(ctx context.Context, gen Generator, prompt, systemInstruction string, primaryModel, fallbackModel string, threshold float64) (VariantResult, error) {
	primaryHTML, primaryErr := gen.GenerateHTML(ctx, systemInstruction, prompt, primaryModel)
	primary := variantFrom(primaryModel, primaryHTML, primaryErr)

	if !primary.Failed && primary.Score.Total >= threshold {
		return primary, nil
	}

	fallbackHTML, fallbackErr := gen.GenerateHTML(ctx, systemInstruction, prompt, fallbackModel)
	fallback := variantFrom(fallbackModel, fallbackHTML, fallbackErr)

	switch {
	case primary.Failed && fallback.Failed:
		return VariantResult{}, forgeerr.ErrAllProvidersFailed
	case primary.Failed:
		return fallback, nil
	case fallback.Failed:
		return primary, nil
	case fallback.Score.Total > primary.Score.Total:
		return fallback, nil
	default:
		return primary, nil
	}
}
