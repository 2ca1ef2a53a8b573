// Package enhancer turns a raw intent into a deterministic, structured
// prompt and the matching provider system instruction. It never touches
// the network or an LLM; given the same inputs it always produces the
// same output.
package enhancer

import (
	"fmt"
	"strings"
)

// StylePreset names a visual register the generated app should aim for.
type StylePreset string

const (
	StyleCyberpunk StylePreset = "cyberpunk"
	StyleMinimal   StylePreset = "minimal"
	StyleTerminal  StylePreset = "terminal"
)

// Options captures everything Enhance and BuildSystemInstruction need
// beyond the raw intent text.
type Options struct {
	StylePreset  StylePreset
	Language     string
	ContextBlock string
	ProfileHint  string
	Persona      string
}

func normalizeStyle(s StylePreset) StylePreset {
	switch s {
	case StyleCyberpunk, StyleMinimal, StyleTerminal:
		return s
	default:
		return StyleMinimal
	}
}

// Enhance deterministically assembles the enhanced prompt the router will
// send to a provider. Same (intent, opts) in, same string out.
func Enhance(intent string, opts Options) string {
	intent = strings.TrimSpace(intent)
	style := normalizeStyle(opts.StylePreset)
	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = "en"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Build a single self-contained HTML application for this request:\n\n%s\n\n", intent)
	fmt.Fprintf(&b, "Visual style: %s. Language: %s.\n", style, language)

	if persona := strings.TrimSpace(opts.Persona); persona != "" {
		fmt.Fprintf(&b, "Voice and tone: %s.\n", persona)
	}
	if profile := strings.TrimSpace(opts.ProfileHint); profile != "" {
		fmt.Fprintf(&b, "About the person asking: %s.\n", profile)
	}
	if ctx := strings.TrimSpace(opts.ContextBlock); ctx != "" {
		fmt.Fprintf(&b, "\nAmbient context (use only what's relevant, never state it verbatim):\n%s\n", ctx)
	}

	return strings.TrimSpace(b.String())
}

// BuildSystemInstruction returns the provider-facing system prompt that
// pins down output discipline: HTML-only, no fences, self-contained,
// offline-capable, and aiming at the four-axis quality bar.
func BuildSystemInstruction(opts Options) string {
	style := normalizeStyle(opts.StylePreset)

	var b strings.Builder
	b.WriteString("You generate complete, self-contained HTML applications. Follow these rules exactly:\n")
	b.WriteString("- Output raw HTML only: start with <!DOCTYPE html> or <html, end with </html>.\n")
	b.WriteString("- Never wrap the output in markdown code fences or add commentary before or after it.\n")
	b.WriteString("- The document must be a single file: inline all CSS and JavaScript, no external script or stylesheet tags, no CDN links, no network calls.\n")
	b.WriteString("- Any persistence the app needs must use localStorage or IndexedDB; never assume a backend.\n")
	fmt.Fprintf(&b, "- Visual style: %s.\n", styleGuidance(style))
	b.WriteString("- Aim for: clear interactive controls and event handling (agency); valid structure with a doctype, closed tags, and basic error handling (structure); embedded styling with thoughtful use of transitions and color (beauty); semantic HTML and ARIA attributes so the app is usable without a visual inspection (naturalness).\n")

	return b.String()
}

func styleGuidance(style StylePreset) string {
	switch style {
	case StyleCyberpunk:
		return "cyberpunk — neon accents on a dark background, monospace or display type, glitch/scanline touches used sparingly"
	case StyleTerminal:
		return "terminal — monospace type throughout, a dark background, minimal chrome, text-first layout"
	default:
		return "minimal — generous whitespace, a restrained palette, plain sans-serif type"
	}
}
