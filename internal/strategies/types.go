// Package strategies implements the iteration strategies layered on top
// of the provider router and validator: Best-of-N, the refinement loop,
// the iteration chain, genetic evolution, A/B duel, prompt duel, and
// fallback test. Every strategy's only source of nondeterminism is the
// underlying LLM call; the selection and scoring logic around it is
// deterministic.
package strategies

import (
	"context"

	"github.com/floegence/forge/internal/validator"
)

// Generator is the minimal surface a strategy needs from the provider
// router: produce HTML for a prompt against a named provider/model.
type Generator interface {
	GenerateHTML(ctx context.Context, systemInstruction, prompt, model string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, systemInstruction, prompt, model string) (string, error)

func (f GeneratorFunc) GenerateHTML(ctx context.Context, systemInstruction, prompt, model string) (string, error) {
	return f(ctx, systemInstruction, prompt, model)
}

// Candidate pairs generated HTML with its score.
type Candidate struct {
	HTML  string
	Score validator.Score
	Index int // generation order, for tie-breaking
	Err   error
}

// scoreOf scores html, or returns a zero-value Score carrying err if the
// generation failed.
func scoreOf(html string, err error) Candidate {
	if err != nil {
		return Candidate{Err: err}
	}
	return Candidate{HTML: html, Score: validator.Validate(html)}
}

// bestOf picks the highest-total candidate; ties go to the earliest
// (lowest Index) generation.
func bestOf(candidates []Candidate) (Candidate, bool) {
	var best Candidate
	found := false
	for _, c := range candidates {
		if c.Err != nil {
			continue
		}
		if !found || c.Score.Total > best.Score.Total {
			best = c
			found = true
		}
	}
	return best, found
}
