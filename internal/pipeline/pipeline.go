// Package pipeline wires the full generation run: context gathering,
// prompt enhancement, provider dispatch (single-shot or an iteration
// chain), validation, optional sanitization, and persistence, with every
// stage wrapped in hook bus before/after callbacks.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/floegence/forge/internal/enhancer"
	"github.com/floegence/forge/internal/forgeerr"
	"github.com/floegence/forge/internal/grimoire"
	"github.com/floegence/forge/internal/history"
	"github.com/floegence/forge/internal/hookbus"
	"github.com/floegence/forge/internal/probes"
	"github.com/floegence/forge/internal/providerrouter"
	"github.com/floegence/forge/internal/sanitizer"
	"github.com/floegence/forge/internal/strategies"
	"github.com/floegence/forge/internal/telemetry"
	"github.com/floegence/forge/internal/validator"
)

const contextGatherTimeout = 10 * time.Second

// Event is one progress notification emitted during Run.
type Event struct {
	Type    string // start, progress, complete, error
	Stage   string
	Prompt  string
	Score   *validator.Score
	Message string
}

// Options configures one Run.
type Options struct {
	Style       enhancer.StylePreset
	Language    string
	ProfileHint string
	Persona     string

	Model       string
	MaxTokens   int
	Temperature float64
	Iterate     bool
	Threshold   float64
	Patience    int

	Sanitize *sanitizer.Options // nil disables sanitization entirely

	Persist          bool
	HistoryTags      []string
	InscribeGrimoire bool
	GrimoireTags     []string
	GrimoireCategory string

	OnChunk    func(text string)
	OnProgress func(Event)
}

// Result is everything Run produces about one generation.
type Result struct {
	HTML           string
	Score          validator.Score
	Validation     sanitizer.ScanResult
	Context        probes.Bundle
	Iterations     []strategies.IterationRecord
	Model          string
	Provider       string
	EnhancedPrompt string
	DurationMs     int64
	HistoryID      string
	GrimoireID     string
}

// Pipeline owns every dependency a run touches.
type Pipeline struct {
	Router    *providerrouter.Router
	Probes    *probes.Registry
	Hooks     *hookbus.Bus
	History   *history.Store
	Grimoire  *grimoire.Store
	Telemetry *telemetry.Store
}

// Run executes the full generation pipeline for intent.
func (p *Pipeline) Run(ctx context.Context, intent string, opts Options) (Result, error) {
	started := time.Now()
	emit(opts.OnProgress, Event{Type: "start", Prompt: intent})

	state := hookbus.State{Prompt: intent}

	bundle, err := p.runContextStage(ctx, state)
	if err != nil {
		return p.fail(state, "context", err, opts)
	}
	state.Context = bundle
	emit(opts.OnProgress, Event{Type: "progress", Stage: "context"})

	if strings.TrimSpace(intent) == "" {
		return p.fail(state, "enhance", forgeerr.ErrInvalidInput, opts)
	}

	enhancedPrompt, systemInstruction, err := p.runEnhanceStage(state, intent, bundle, opts)
	if err != nil {
		return p.fail(state, "enhance", err, opts)
	}
	state.Enhanced = enhancedPrompt
	emit(opts.OnProgress, Event{Type: "progress", Stage: "enhance"})

	html, provider, iterations, err := p.runGenerateStage(ctx, state, enhancedPrompt, systemInstruction, opts)
	if err != nil {
		return p.fail(state, "generate", err, opts)
	}
	state.HTML = html
	emit(opts.OnProgress, Event{Type: "progress", Stage: "generate"})

	html, score, scan, err := p.runValidateStage(state, html, opts)
	if err != nil {
		return p.fail(state, "validate", err, opts)
	}
	state.HTML = html
	state.Score = &score
	emit(opts.OnProgress, Event{Type: "progress", Stage: "validate"})

	result := Result{
		HTML:           html,
		Score:          score,
		Validation:     scan,
		Context:        bundle,
		Iterations:     iterations,
		Model:          opts.Model,
		Provider:       provider,
		EnhancedPrompt: enhancedPrompt,
		DurationMs:     time.Since(started).Milliseconds(),
	}

	// The persist stage always runs: History is written only when
	// opts.Persist is set, telemetry is recorded regardless. A persistence
	// failure is surfaced, but the generated artifact it was persisting is
	// still returned to the caller.
	historyID, grimoireID, perr := p.runPersistStage(state, intent, result, provider, opts)
	result.HistoryID = historyID
	result.GrimoireID = grimoireID
	if perr != nil {
		p.runHook(hookbus.OnError, state)
		return result, forgeerr.WithStage("persist", perr)
	}

	emit(opts.OnProgress, Event{Type: "complete", Score: &result.Score})
	return result, nil
}

func (p *Pipeline) fail(state hookbus.State, stage string, err error, opts Options) (Result, error) {
	p.runHook(hookbus.OnError, state)
	emit(opts.OnProgress, Event{Type: "error", Stage: stage, Message: err.Error()})
	return Result{}, forgeerr.WithStage(stage, err)
}

func (p *Pipeline) runHook(point hookbus.Point, state hookbus.State) hookbus.State {
	if p.Hooks == nil {
		return state
	}
	return p.Hooks.Run(point, state)
}

func (p *Pipeline) runContextStage(ctx context.Context, state hookbus.State) (probes.Bundle, error) {
	p.runHook(hookbus.BeforeContext, state)

	var bundle probes.Bundle
	if p.Probes != nil {
		gctx, cancel := context.WithTimeout(ctx, contextGatherTimeout)
		defer cancel()
		bundle = p.Probes.Gather(gctx)
	}

	p.runHook(hookbus.AfterContext, state)
	return bundle, nil
}

func (p *Pipeline) runEnhanceStage(state hookbus.State, intent string, bundle probes.Bundle, opts Options) (string, string, error) {
	p.runHook(hookbus.BeforeEnhance, state)

	enhOpts := enhancer.Options{
		StylePreset:  opts.Style,
		Language:     opts.Language,
		ContextBlock: bundle.String(),
		ProfileHint:  opts.ProfileHint,
		Persona:      opts.Persona,
	}
	prompt := enhancer.Enhance(intent, enhOpts)
	systemInstruction := enhancer.BuildSystemInstruction(enhOpts)

	p.runHook(hookbus.AfterEnhance, state)
	return prompt, systemInstruction, nil
}

func (p *Pipeline) runGenerateStage(ctx context.Context, state hookbus.State, prompt, systemInstruction string, opts Options) (string, string, []strategies.IterationRecord, error) {
	p.runHook(hookbus.BeforeGenerate, state)

	if p.Router == nil {
		return "", "", nil, forgeerr.ErrNotConfigured
	}
	provider := p.Router.DetectProvider(opts.Model)

	if opts.Iterate {
		gen := p.generatorFor(opts)
		chain := strategies.RunIterationChain(ctx, gen, prompt, strategies.IterationChainOptions{
			Model:             opts.Model,
			SystemInstruction: systemInstruction,
			Threshold:         opts.Threshold,
			Patience:          opts.Patience,
		})
		if chain.HTML == "" {
			p.runHook(hookbus.AfterGenerate, state)
			return "", provider, nil, forgeerr.ErrEmptyResponse
		}
		p.runHook(hookbus.AfterGenerate, state)
		return chain.HTML, provider, chain.History, nil
	}

	html, meta, err := p.Router.Generate(ctx, systemInstruction, prompt, providerrouter.Options{
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      opts.OnChunk != nil,
		OnChunk:     opts.OnChunk,
	})
	if err != nil {
		p.runHook(hookbus.AfterGenerate, state)
		return "", provider, nil, err
	}

	p.runHook(hookbus.AfterGenerate, state)
	return html, meta.Provider, nil, nil
}

// generatorFor adapts the Router into the strategies.Generator surface
// the iteration chain and other strategies depend on.
func (p *Pipeline) generatorFor(opts Options) strategies.GeneratorFunc {
	return func(ctx context.Context, sys, prompt, model string) (string, error) {
		html, _, err := p.Router.Generate(ctx, sys, prompt, providerrouter.Options{
			Model:       model,
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
		})
		return html, err
	}
}

func (p *Pipeline) runValidateStage(state hookbus.State, html string, opts Options) (string, validator.Score, sanitizer.ScanResult, error) {
	p.runHook(hookbus.BeforeValidate, state)

	var scan sanitizer.ScanResult
	if opts.Sanitize != nil {
		scan = sanitizer.Scan(html)
		result := sanitizer.Sanitize(html, *opts.Sanitize)
		html = result.Code
	}
	score := validator.Validate(html)

	p.runHook(hookbus.AfterValidate, state)
	return html, score, scan, nil
}

func (p *Pipeline) runPersistStage(state hookbus.State, intent string, result Result, provider string, opts Options) (string, string, error) {
	p.runHook(hookbus.BeforePersist, state)
	defer p.runHook(hookbus.AfterPersist, state)

	var historyID, grimoireID string

	if opts.Persist && p.History != nil {
		id, err := p.History.Record(history.Entry{
			Prompt:             intent,
			EnhancedPromptHash: hashPrompt(result.EnhancedPrompt),
			Model:              result.Model,
			Provider:           provider,
			Score:              result.Score,
			Style:              string(opts.Style),
			Tags:               opts.HistoryTags,
		}, result.HTML)
		if err != nil {
			p.recordTelemetry(result, provider, false)
			return "", "", err
		}
		historyID = id
	}

	if opts.InscribeGrimoire && p.Grimoire != nil {
		entry, err := p.Grimoire.Inscribe(intent, opts.GrimoireTags, opts.GrimoireCategory, nil)
		if err != nil {
			p.recordTelemetry(result, provider, false)
			return historyID, "", err
		}
		if _, err := p.Grimoire.UpdateScore(entry.ID, result.Score.Total); err != nil {
			p.recordTelemetry(result, provider, false)
			return historyID, "", err
		}
		grimoireID = entry.ID
	}

	p.recordTelemetry(result, provider, true)
	return historyID, grimoireID, nil
}

func (p *Pipeline) recordTelemetry(result Result, provider string, success bool) {
	if p.Telemetry == nil {
		return
	}
	// Best-effort: a telemetry write failure never fails the run, since
	// the generated artifact has already been produced (and possibly
	// persisted) by the time this runs.
	_ = p.Telemetry.Record(telemetry.Record{
		Model:      result.Model,
		DurationMs: result.DurationMs,
		Success:    success,
	})
}

func emit(fn func(Event), e Event) {
	if fn != nil {
		fn(e)
	}
}

func hashPrompt(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
