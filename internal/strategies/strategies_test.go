package strategies

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/floegence/forge/internal/forgeerr"
	"github.com/floegence/forge/internal/validator"
)

func htmlDoc(filler string) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><head><title>x</title><style>:root{--a:1;} .x{transition:all .2s;}</style></head><body><header></header><main><input placeholder="x" aria-label="x"><button onclick="go()">go</button></main>%s</body></html>`, filler)
}

func TestBestOfNPicksHighestScoringCandidateAndBreaksTiesEarliest(t *testing.T) {
	htmls := []string{htmlDoc(""), htmlDoc("<canvas></canvas>"), htmlDoc("<canvas></canvas>")}
	var calls int32
	gen := GeneratorFunc(func(ctx context.Context, sys, prompt, model string) (string, error) {
		i := atomic.AddInt32(&calls, 1) - 1
		return htmls[i], nil
	})

	result := BestOfN(context.Background(), gen, "make an app", BestOfNOptions{N: 3})
	// Candidates generate concurrently, so which slot receives which
	// document depends on scheduling; the expected winner is derived
	// from the candidates themselves.
	best := result.Candidates[0].Score.Total
	for _, c := range result.Candidates {
		if c.Score.Total > best {
			best = c.Score.Total
		}
	}
	if result.Winner.Score.Total != best {
		t.Fatalf("winner total = %v, want the highest total %v", result.Winner.Score.Total, best)
	}
	for _, c := range result.Candidates[:result.Winner.Index] {
		if c.Score.Total == best {
			t.Fatalf("expected earliest of the tied best candidates, got index %d but index %d ties it", result.Winner.Index, c.Index)
		}
	}
}

func TestBestOfNRespectsMaxConcurrency(t *testing.T) {
	var inFlight, maxSeen int32
	gen := GeneratorFunc(func(ctx context.Context, sys, prompt, model string) (string, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if cur <= old || atomic.CompareAndSwapInt32(&maxSeen, old, cur) {
				break
			}
		}
		atomic.AddInt32(&inFlight, -1)
		return htmlDoc(""), nil
	})

	BestOfN(context.Background(), gen, "x", BestOfNOptions{N: 10, MaxConcurrency: 2})
	if maxSeen > 2 {
		t.Fatalf("max concurrent generations = %d, want <= 2", maxSeen)
	}
}

func TestRefineAcceptsOnlyStrictImprovement(t *testing.T) {
	worse := "<html></html>"
	gen := GeneratorFunc(func(ctx context.Context, sys, prompt, model string) (string, error) {
		return worse, nil
	})

	base := htmlDoc("")
	baseScore := validator.Validate(base)
	result := Refine(context.Background(), gen, "prompt", base, baseScore, RefinementOptions{Threshold: 1.0, MaxRounds: 3})

	if result.Score.Total < baseScore.Total {
		t.Fatalf("Refine returned HTML worse than the input: %v < %v", result.Score.Total, baseScore.Total)
	}
	if result.Stopped != "no_improvement" {
		t.Fatalf("Stopped = %q, want no_improvement", result.Stopped)
	}
}

func TestRefineStopsAtThresholdWithoutCallingGenerator(t *testing.T) {
	called := false
	gen := GeneratorFunc(func(ctx context.Context, sys, prompt, model string) (string, error) {
		called = true
		return htmlDoc(""), nil
	})
	base := htmlDoc("<canvas></canvas><nav></nav><form></form>")
	baseScore := validator.Validate(base)

	result := Refine(context.Background(), gen, "prompt", base, baseScore, RefinementOptions{Threshold: 0.0, MaxRounds: 3})
	if called {
		t.Fatalf("generator should not be called when already at/above threshold")
	}
	if result.Stopped != "threshold" {
		t.Fatalf("Stopped = %q, want threshold", result.Stopped)
	}
}

func TestIterationChainStopsAfterPatienceNonImprovingRounds(t *testing.T) {
	gen := GeneratorFunc(func(ctx context.Context, sys, prompt, model string) (string, error) {
		return htmlDoc(""), nil
	})
	result := RunIterationChain(context.Background(), gen, "prompt", IterationChainOptions{Threshold: 1.0, Patience: 2})
	if len(result.History) == 0 {
		t.Fatalf("expected at least one history record")
	}
	nonImproving := 0
	for _, rec := range result.History[1:] {
		if !rec.Improved {
			nonImproving++
		} else {
			nonImproving = 0
		}
	}
	if nonImproving < 2 {
		t.Fatalf("expected the chain to stop only after reaching patience, got trailing non-improving streak %d", nonImproving)
	}
}

func TestEvolveReturnsBestIndividualAndRespectsThreshold(t *testing.T) {
	gen := GeneratorFunc(func(ctx context.Context, sys, prompt, model string) (string, error) {
		return htmlDoc("<canvas></canvas><nav></nav><form></form><script>try{1}catch(e){}</script>"), nil
	})
	result := Evolve(context.Background(), gen, "Build a tracker. It should be simple. Use local storage.", GeneticOptions{
		PopulationSize: 4,
		Generations:    3,
		Threshold:      0.0,
	})
	if result.Best.HTML == "" {
		t.Fatalf("expected a best individual with HTML set")
	}
}

func TestTokenizeGenesDropsShortFragments(t *testing.T) {
	genes := tokenizeGenes("Build an app. Ok. This one is long enough.")
	for _, g := range genes {
		if len(g) < 5 {
			t.Fatalf("gene shorter than 5 chars survived tokenization: %q", g)
		}
	}
}

func TestABDuelReturnsWinnerAndOmitsFailedProviders(t *testing.T) {
	perModel := func(ctx context.Context, sys, prompt, model string) (string, error) {
		if model == "bad" {
			return "", errors.New("boom")
		}
		if model == "rich" {
			return htmlDoc("<canvas></canvas><nav></nav>"), nil
		}
		return htmlDoc(""), nil
	}
	result, err := ABDuel(context.Background(), "prompt", "sys", []string{"plain", "bad", "rich"}, perModel)
	if err != nil {
		t.Fatalf("ABDuel() error = %v", err)
	}
	if result.Winner.Label != "rich" {
		t.Fatalf("winner = %q, want rich", result.Winner.Label)
	}
	for _, v := range result.Variants {
		if v.Label == "plain" && len(v.TopIssues) == 0 {
			t.Fatalf("expected loser to have top issues recorded")
		}
	}
}

func TestABDuelAllFailedReturnsAllProvidersFailed(t *testing.T) {
	perModel := func(ctx context.Context, sys, prompt, model string) (string, error) {
		return "", errors.New("down")
	}
	_, err := ABDuel(context.Background(), "prompt", "sys", []string{"a", "b"}, perModel)
	if !errors.Is(err, forgeerr.ErrAllProvidersFailed) {
		t.Fatalf("err = %v, want ErrAllProvidersFailed", err)
	}
}

func TestFallbackTestOnlyCallsFallbackWhenPrimaryBelowThreshold(t *testing.T) {
	called := map[string]int{}
	gen := GeneratorFunc(func(ctx context.Context, sys, prompt, model string) (string, error) {
		called[model]++
		if model == "primary" {
			return htmlDoc("<canvas></canvas><nav></nav><form></form>"), nil
		}
		return htmlDoc(""), nil
	})

	_, err := FallbackTest(context.Background(), gen, "prompt", "sys", "primary", "fallback", 0.0)
	if err != nil {
		t.Fatalf("FallbackTest() error = %v", err)
	}
	if called["fallback"] != 0 {
		t.Fatalf("fallback should not be called when primary already clears the threshold")
	}
}

func TestFallbackTestUsesFallbackWhenItScoresHigher(t *testing.T) {
	gen := GeneratorFunc(func(ctx context.Context, sys, prompt, model string) (string, error) {
		if model == "primary" {
			return htmlDoc(""), nil
		}
		return htmlDoc("<canvas></canvas><nav></nav><form></form><script>try{1}catch(e){}</script>"), nil
	})

	result, err := FallbackTest(context.Background(), gen, "prompt", "sys", "primary", "fallback", 1.0)
	if err != nil {
		t.Fatalf("FallbackTest() error = %v", err)
	}
	if result.Label != "fallback" {
		t.Fatalf("expected fallback to win, got %q", result.Label)
	}
}
