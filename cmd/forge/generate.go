package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/floegence/forge/internal/enhancer"
	"github.com/floegence/forge/internal/forgeerr"
	"github.com/floegence/forge/internal/pipeline"
	"github.com/floegence/forge/internal/sanitizer"
)

func generateCmd(args []string) {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)

	workspace := fs.String("workspace", "", "Project directory (default: current directory)")
	style := fs.String("style", "", "Visual style preset: cyberpunk|minimal|terminal (default: config)")
	language := fs.String("language", "", "Output language hint")
	model := fs.String("model", "", "Model alias, e.g. claude-opus-4 or gemini/gemini-2.0-flash")
	maxTokens := fs.Int("max-tokens", 0, "Max output tokens (default: config)")
	temperature := fs.Float64("temperature", -1, "Sampling temperature (default: config)")
	iterate := fs.Bool("iterate", false, "Run the refinement iteration chain instead of a single shot")
	threshold := fs.Float64("threshold", -1, "Acceptance score threshold (default: config)")
	patience := fs.Int("patience", -1, "Non-improving rounds before the iteration chain stops (default: config)")
	strict := fs.Bool("strict", false, "Exit 1 if the final score is below the threshold")
	noSanitize := fs.Bool("no-sanitize", false, "Skip the sanitizer pass even if config enables it")
	noPersist := fs.Bool("no-persist", false, "Skip writing a History entry")
	tags := fs.String("tags", "", "Comma-separated History tags")
	toGrimoire := fs.Bool("grimoire", false, "Also inscribe the prompt into the Grimoire")
	grimoireTags := fs.String("grimoire-tags", "", "Comma-separated Grimoire tags")
	grimoireCategory := fs.String("grimoire-category", "", "Grimoire category")
	out := fs.String("out", "", "Write the generated HTML to this file instead of stdout")
	asJSON := fs.Bool("json", false, "Emit a JSON result envelope instead of raw HTML")
	timeout := fs.Duration("timeout", 5*time.Minute, "Overall generation timeout")

	if err := fs.Parse(args); err != nil {
		os.Exit(exitArgError)
	}

	intent := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if intent == "" {
		fmt.Fprintln(os.Stderr, "usage: forge generate <prompt> [flags]")
		fs.PrintDefaults()
		os.Exit(exitArgError)
	}

	a, err := bootstrap(bootstrapOptions{Workspace: *workspace})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	defer a.Close()

	opts := pipeline.Options{
		Style:       enhancer.StylePreset(strings.TrimSpace(*style)),
		Language:    strings.TrimSpace(*language),
		Model:       strings.TrimSpace(*model),
		MaxTokens:   *maxTokens,
		Temperature: *temperature,
		Iterate:     *iterate,
		Threshold:   *threshold,
		Patience:    *patience,
		Persist:     !*noPersist,
	}
	if opts.Style == "" {
		opts.Style = enhancer.StylePreset(a.cfg.Generation.Style)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = a.cfg.Generation.MaxTokens
	}
	if opts.Temperature < 0 {
		opts.Temperature = a.cfg.Generation.Temperature
	}
	if opts.Threshold < 0 {
		opts.Threshold = a.cfg.Generation.Threshold
	}
	if opts.Patience < 0 {
		opts.Patience = a.cfg.Generation.Patience
	}
	if tagList := splitCSV(*tags); len(tagList) > 0 {
		opts.HistoryTags = tagList
	}
	if *toGrimoire {
		opts.InscribeGrimoire = true
		opts.GrimoireTags = splitCSV(*grimoireTags)
		opts.GrimoireCategory = strings.TrimSpace(*grimoireCategory)
	}
	if a.cfg.Security.Sanitize && !*noSanitize {
		opts.Sanitize = &sanitizer.Options{StripScripts: true, StripInlineStyles: false}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := a.pipeline.Run(ctx, intent, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate failed: %v\n", err)
		if isUnreachableProviderErr(err) {
			os.Exit(exitProviderUnreachable)
		}
		os.Exit(exitGenerationFailed)
	}

	if *strict && result.Score.Total < opts.Threshold {
		fmt.Fprintf(os.Stderr, "generation rejected: score %.2f below threshold %.2f\n", result.Score.Total, opts.Threshold)
		writeGenerateOutput(result, *out, *asJSON)
		os.Exit(exitGenerationFailed)
	}

	writeGenerateOutput(result, *out, *asJSON)
}

func writeGenerateOutput(result pipeline.Result, out string, asJSON bool) {
	if out != "" {
		if err := os.WriteFile(out, []byte(result.HTML), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", out, err)
			os.Exit(exitGenerationFailed)
		}
	}
	if asJSON {
		b, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
			os.Exit(exitGenerationFailed)
		}
		fmt.Println(string(b))
		return
	}
	if out == "" {
		fmt.Println(result.HTML)
	}
	fmt.Fprintf(os.Stderr, "grade %s (%.2f) via %s/%s in %dms\n", result.Score.Grade, result.Score.Total, result.Provider, result.Model, result.DurationMs)
}

func isUnreachableProviderErr(err error) bool {
	return errors.Is(err, forgeerr.ErrNotConfigured) || errors.Is(err, forgeerr.ErrAllProvidersFailed)
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
