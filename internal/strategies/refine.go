package strategies

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/floegence/forge/internal/validator"
)

// RefinementOptions configures a refinement loop.
type RefinementOptions struct {
	Model             string
	SystemInstruction string
	Threshold         float64
	MaxRounds         int
}

// RefinementResult is the outcome of a refinement loop.
type RefinementResult struct {
	HTML    string
	Score   validator.Score
	Rounds  int
	Stopped string // "threshold", "max_rounds", "no_improvement"
}

// Refine repeatedly asks the generator to fix the two weakest axes,
// accepting a replacement only if it strictly improves on the current
// total. It never returns HTML worse than the input.
func Refine(ctx context.Context, gen Generator, basePrompt string, html string, score validator.Score, opts RefinementOptions) RefinementResult {
	maxRounds := opts.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 3
	}

	current := RefinementResult{HTML: html, Score: score, Stopped: "max_rounds"}

	if current.Score.Total >= opts.Threshold {
		current.Stopped = "threshold"
		return current
	}

	for round := 0; round < maxRounds; round++ {
		prompt := buildRefinementPrompt(basePrompt, current.HTML, current.Score)
		next, err := gen.GenerateHTML(ctx, opts.SystemInstruction, prompt, opts.Model)
		current.Rounds++
		if err != nil {
			current.Stopped = "no_improvement"
			return current
		}
		nextScore := validator.Validate(next)
		if nextScore.Total <= current.Score.Total {
			current.Stopped = "no_improvement"
			return current
		}
		current.HTML = next
		current.Score = nextScore
		if current.Score.Total >= opts.Threshold {
			current.Stopped = "threshold"
			return current
		}
	}
	return current
}

// buildRefinementPrompt names the issues and the two lowest-scoring axes
// as the focus of the next attempt.
func buildRefinementPrompt(basePrompt, html string, score validator.Score) string {
	axes := []struct {
		name  string
		value float64
	}{
		{"agency (Conatus)", score.Conatus},
		{"structure (Ratio)", score.Ratio},
		{"beauty (Laetitia)", score.Laetitia},
		{"naturalness (Natura)", score.Natura},
	}
	sort.Slice(axes, func(i, j int) bool { return axes[i].value < axes[j].value })
	focus := []string{axes[0].name, axes[1].name}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", basePrompt)
	b.WriteString("The previous attempt at this app needs improvement. Here is the current HTML:\n\n")
	b.WriteString(html)
	b.WriteString("\n\nFocus your revision on these weak areas: ")
	b.WriteString(strings.Join(focus, ", "))
	b.WriteString(".\n")
	if len(score.Issues) > 0 {
		b.WriteString("Specifically address these missing elements: ")
		b.WriteString(strings.Join(score.Issues, ", "))
		b.WriteString(".\n")
	}
	b.WriteString("Produce the full revised HTML document, not a diff.")
	return b.String()
}
