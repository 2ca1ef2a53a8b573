package strategies

import (
	"context"
	"sync"
)

// BestOfNOptions configures a Best-of-N run.
type BestOfNOptions struct {
	N                  int
	Model              string
	SystemInstruction  string
	MaxConcurrency     int // 0 means run all N concurrently with no cap
}

// BestOfNResult is the outcome of a Best-of-N run.
type BestOfNResult struct {
	Winner     Candidate
	Candidates []Candidate
}

// BestOfN runs N generations against prompt, bounded by a semaphore of
// size MaxConcurrency (0 = unbounded), validates each, and returns the
// highest-total candidate. A tie goes to the earliest generation.
func BestOfN(ctx context.Context, gen Generator, prompt string, opts BestOfNOptions) BestOfNResult {
	n := opts.N
	if n <= 0 {
		n = 1
	}

	var sem chan struct{}
	if opts.MaxConcurrency > 0 {
		sem = make(chan struct{}, opts.MaxConcurrency)
	}

	candidates := make([]Candidate, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			html, err := gen.GenerateHTML(ctx, opts.SystemInstruction, prompt, opts.Model)
			c := scoreOf(html, err)
			c.Index = i
			candidates[i] = c
		}(i)
	}
	wg.Wait()

	winner, _ := bestOf(candidates)
	return BestOfNResult{Winner: winner, Candidates: candidates}
}
