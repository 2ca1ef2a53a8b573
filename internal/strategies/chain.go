package strategies

import (
	"context"

	"github.com/floegence/forge/internal/validator"
)

// IterationChainOptions configures an iteration chain run.
type IterationChainOptions struct {
	Model             string
	SystemInstruction string
	Threshold         float64
	Patience          int
}

// IterationRecord is one entry of the chain's history.
type IterationRecord struct {
	Iteration int
	Score     validator.Score
	Improved  bool
}

// IterationChainResult is the outcome of an iteration chain run.
type IterationChainResult struct {
	HTML    string
	Score   validator.Score
	History []IterationRecord
}

// RunIterationChain generates once, then—if below threshold—keeps
// refining until either the threshold is met or Patience consecutive
// rounds fail to improve on the current best.
func RunIterationChain(ctx context.Context, gen Generator, basePrompt string, opts IterationChainOptions) IterationChainResult {
	patience := opts.Patience
	if patience <= 0 {
		patience = 2
	}

	html, err := gen.GenerateHTML(ctx, opts.SystemInstruction, basePrompt, opts.Model)
	if err != nil {
		return IterationChainResult{}
	}
	score := validator.Validate(html)
	history := []IterationRecord{{Iteration: 1, Score: score, Improved: true}}

	if score.Total >= opts.Threshold {
		return IterationChainResult{HTML: html, Score: score, History: history}
	}

	nonImproving := 0
	iteration := 1
	for nonImproving < patience {
		iteration++
		refined := Refine(ctx, gen, basePrompt, html, score, RefinementOptions{
			Model:             opts.Model,
			SystemInstruction: opts.SystemInstruction,
			Threshold:         opts.Threshold,
			MaxRounds:         1,
		})
		improved := refined.Score.Total > score.Total
		history = append(history, IterationRecord{Iteration: iteration, Score: refined.Score, Improved: improved})

		if improved {
			html = refined.HTML
			score = refined.Score
			nonImproving = 0
		} else {
			nonImproving++
		}
		if score.Total >= opts.Threshold {
			break
		}
	}

	return IterationChainResult{HTML: html, Score: score, History: history}
}
