package strategies

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/floegence/forge/internal/validator"
)

// Individual is one member of a genetic population.
type Individual struct {
	Prompt     string
	HTML       string
	Fitness    validator.Score
	Generation int
	evaluated  bool
}

// GeneticOptions configures a genetic-evolution run.
type GeneticOptions struct {
	Model             string
	SystemInstruction string
	PopulationSize    int
	Generations       int
	EliteCount        int
	MutationRate      float64
	TournamentSize    int
	Threshold         float64
	MaxConcurrency    int
	// Rand, if set, drives mutation/crossover decisions deterministically
	// for tests; the default is a simple counter-based PRNG substitute so
	// the strategy never depends on math/rand's global state.
	Rand func() float64
}

// GeneticResult is the outcome of a genetic-evolution run.
type GeneticResult struct {
	Best        Individual
	Generations int
}

var sentenceSplit = regexp.MustCompile(`[.!?\n]+`)

// tokenizeGenes splits a prompt into sentence genes, dropping any gene
// shorter than 5 characters after trimming.
func tokenizeGenes(prompt string) []string {
	parts := sentenceSplit.Split(prompt, -1)
	genes := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) >= 5 {
			genes = append(genes, p)
		}
	}
	if len(genes) == 0 {
		genes = []string{strings.TrimSpace(prompt)}
	}
	return genes
}

var mutationTemplates = []string{
	"Make this more vivid and specific: %s",
	"Add more detail to: %s",
	"Simplify this to its essence: %s",
	"Rephrase with stronger verbs: %s",
}

func mutateGene(gene string, counter int) string {
	tmpl := mutationTemplates[counter%len(mutationTemplates)]
	return strings.Replace(tmpl, "%s", gene, 1)
}

// Evolve runs a genetic-evolution search seeded from basePrompt.
func Evolve(ctx context.Context, gen Generator, basePrompt string, opts GeneticOptions) GeneticResult {
	popSize := opts.PopulationSize
	if popSize <= 0 {
		popSize = 6
	}
	generations := opts.Generations
	if generations <= 0 {
		generations = 4
	}
	elite := opts.EliteCount
	if elite <= 0 {
		elite = 1
	}
	if elite > popSize {
		elite = popSize
	}
	tournamentSize := opts.TournamentSize
	if tournamentSize <= 0 {
		tournamentSize = 3
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = deterministicRand()
	}

	population := seedPopulation(basePrompt, popSize, rnd)
	evaluatePopulation(ctx, gen, population, opts, 0)

	var best Individual
	haveBest := false

	for g := 0; g < generations; g++ {
		sortByFitnessDesc(population)
		if len(population) > 0 && (!haveBest || population[0].Fitness.Total > best.Fitness.Total) {
			best = population[0]
			haveBest = true
		}
		if haveBest && best.Fitness.Total >= opts.Threshold {
			return GeneticResult{Best: best, Generations: g + 1}
		}
		if g == generations-1 {
			break
		}

		next := make([]Individual, 0, popSize)
		next = append(next, population[:elite]...)
		for len(next) < popSize {
			p1 := tournamentSelect(population, tournamentSize, rnd)
			p2 := tournamentSelect(population, tournamentSize, rnd)
			childPrompt := crossover(p1.Prompt, p2.Prompt, rnd)
			childPrompt = mutate(childPrompt, opts.MutationRate, rnd)
			next = append(next, Individual{Prompt: childPrompt, Generation: g + 1})
		}
		population = next
		evaluatePopulation(ctx, gen, population, opts, g+1)
	}

	sortByFitnessDesc(population)
	if len(population) > 0 && (!haveBest || population[0].Fitness.Total > best.Fitness.Total) {
		best = population[0]
	}
	return GeneticResult{Best: best, Generations: generations}
}

func seedPopulation(basePrompt string, size int, rnd func() float64) []Individual {
	pop := make([]Individual, size)
	pop[0] = Individual{Prompt: basePrompt, Generation: 0}
	for i := 1; i < size; i++ {
		pop[i] = Individual{Prompt: mutate(basePrompt, 1.0, rnd), Generation: 0}
	}
	return pop
}

func evaluatePopulation(ctx context.Context, gen Generator, population []Individual, opts GeneticOptions, generation int) {
	var sem chan struct{}
	if opts.MaxConcurrency > 0 {
		sem = make(chan struct{}, opts.MaxConcurrency)
	}
	var wg sync.WaitGroup
	for i := range population {
		if population[i].evaluated {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			html, err := gen.GenerateHTML(ctx, opts.SystemInstruction, population[i].Prompt, opts.Model)
			if err != nil {
				population[i].Fitness = validator.Score{}
				population[i].evaluated = true
				return
			}
			population[i].HTML = html
			population[i].Fitness = validator.Validate(html)
			population[i].Generation = generation
			population[i].evaluated = true
		}(i)
	}
	wg.Wait()
}

func sortByFitnessDesc(population []Individual) {
	for i := 1; i < len(population); i++ {
		for j := i; j > 0 && population[j].Fitness.Total > population[j-1].Fitness.Total; j-- {
			population[j], population[j-1] = population[j-1], population[j]
		}
	}
}

func tournamentSelect(population []Individual, size int, rnd func() float64) Individual {
	best := population[int(rnd()*float64(len(population)))%len(population)]
	for i := 1; i < size; i++ {
		candidate := population[int(rnd()*float64(len(population)))%len(population)]
		if candidate.Fitness.Total > best.Fitness.Total {
			best = candidate
		}
	}
	return best
}

func crossover(a, b string, rnd func() float64) string {
	genesA := tokenizeGenes(a)
	genesB := tokenizeGenes(b)
	if len(genesA) < 2 || len(genesB) < 2 {
		if rnd() < 0.5 {
			return a
		}
		return b
	}
	point := 1 + int(rnd()*float64(len(genesA)-1))
	if point >= len(genesA) {
		point = len(genesA) - 1
	}
	tail := point
	if tail > len(genesB) {
		tail = len(genesB)
	}
	combined := append(append([]string(nil), genesA[:point]...), genesB[tail:]...)
	return strings.Join(combined, ". ") + "."
}

func mutate(prompt string, rate float64, rnd func() float64) string {
	genes := tokenizeGenes(prompt)
	out := make([]string, len(genes))
	for i, g := range genes {
		if rnd() < rate {
			out[i] = mutateGene(g, i)
		} else {
			out[i] = g
		}
	}
	return strings.Join(out, ". ") + "."
}

// deterministicRand returns a cheap, seed-free PRNG substitute: a
// counter run through a fixed linear congruential step. It's good
// enough for tie-breaking mutation/crossover decisions without pulling
// in math/rand's process-global state, which would make Evolve's
// behavior depend on call order across unrelated code.
func deterministicRand() func() float64 {
	state := uint64(1442695040888963407)
	return func() float64 {
		state = state*6364136223846793005 + 1442695040888963407
		return float64(state>>11) / float64(1<<53)
	}
}
