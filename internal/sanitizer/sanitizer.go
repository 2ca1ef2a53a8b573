// Package sanitizer does a best-effort textual scan and optional strip of
// dangerous patterns in generated HTML. It is not a parser: it operates
// on regular expressions over the raw text, which is deliberately
// conservative (prefers false positives over missed patterns) since the
// router already rejected anything that isn't HTML-shaped.
package sanitizer

import (
	"regexp"
	"sort"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:       3,
}

// Issue is one pattern match found by Scan.
type Issue struct {
	Name     string
	Severity Severity
	Match    string
	Line     int
}

// ScanResult is the outcome of Scan.
type ScanResult struct {
	Safe   bool
	Issues []Issue
}

type rule struct {
	name     string
	severity Severity
	pattern  *regexp.Regexp
}

var rules = []rule{
	{"javascript-uri", SeverityHigh, regexp.MustCompile(`(?i)javascript:`)},
	{"eval-call", SeverityCritical, regexp.MustCompile(`(?i)\beval\s*\(`)},
	{"iframe", SeverityHigh, regexp.MustCompile(`(?i)<iframe\b[^>]*>.*?</iframe>`)},
	{"document-write", SeverityMedium, regexp.MustCompile(`(?i)document\.write\s*\(`)},
	{"inline-event-handler", SeverityLow, regexp.MustCompile(`(?i)\son[a-z]+\s*=\s*["']`)},
	{"external-script-src", SeverityMedium, regexp.MustCompile(`(?i)<script[^>]+src\s*=\s*["']https?://`)},
}

// Scan finds every rule match in code and reports whether it's safe:
// safe iff no match is severity high or critical.
func Scan(code string) ScanResult {
	var issues []Issue
	lineStarts := lineStartOffsets(code)

	for _, r := range rules {
		locs := r.pattern.FindAllStringIndex(code, -1)
		for _, loc := range locs {
			issues = append(issues, Issue{
				Name:     r.name,
				Severity: r.severity,
				Match:    code[loc[0]:loc[1]],
				Line:     lineForOffset(lineStarts, loc[0]),
			})
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		return severityRank[issues[i].Severity] < severityRank[issues[j].Severity]
	})

	safe := true
	for _, iss := range issues {
		if iss.Severity == SeverityHigh || iss.Severity == SeverityCritical {
			safe = false
			break
		}
	}
	return ScanResult{Safe: safe, Issues: issues}
}

// Options controls which best-effort rewrites Sanitize performs beyond
// the always-on ones (javascript: URIs, eval in inline handlers, iframes).
type Options struct {
	StripScripts       bool
	StripInlineStyles  bool
}

// SanitizeResult is the outcome of Sanitize.
type SanitizeResult struct {
	Code    string
	Removed []string
}

var (
	reJSURI          = regexp.MustCompile(`(?i)javascript:`)
	reInlineHandler  = regexp.MustCompile(`(?i)(\son[a-z]+\s*=\s*")([^"]*)(")`)
	reEvalInsideAttr = regexp.MustCompile(`(?i)\beval\s*\([^)]*\)`)
	reIframeBlock    = regexp.MustCompile(`(?is)<iframe\b[^>]*>.*?</iframe>`)
	reScriptBlock    = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	reInlineStyleAttr = regexp.MustCompile(`(?i)\sstyle\s*=\s*"[^"]*"`)
)

// Sanitize performs textual rewrites and returns the cleaned code along
// with the names of the rewrites actually applied.
func Sanitize(code string, opts Options) SanitizeResult {
	removed := map[string]bool{}

	if reJSURI.MatchString(code) {
		code = reJSURI.ReplaceAllString(code, "#")
		removed["javascript-uri"] = true
	}

	code = reInlineHandler.ReplaceAllStringFunc(code, func(m string) string {
		parts := reInlineHandler.FindStringSubmatch(m)
		if len(parts) != 4 {
			return m
		}
		if reEvalInsideAttr.MatchString(parts[2]) {
			removed["eval-in-handler"] = true
			return parts[1] + reEvalInsideAttr.ReplaceAllString(parts[2], "") + parts[3]
		}
		return m
	})

	if reIframeBlock.MatchString(code) {
		code = reIframeBlock.ReplaceAllString(code, "")
		removed["iframe"] = true
	}

	if opts.StripScripts && reScriptBlock.MatchString(code) {
		code = reScriptBlock.ReplaceAllString(code, "")
		removed["script-block"] = true
	}

	if opts.StripInlineStyles && reInlineStyleAttr.MatchString(code) {
		code = reInlineStyleAttr.ReplaceAllString(code, "")
		removed["inline-style"] = true
	}

	names := make([]string, 0, len(removed))
	for name := range removed {
		names = append(names, name)
	}
	sort.Strings(names)

	return SanitizeResult{Code: code, Removed: names}
}

func lineStartOffsets(code string) []int {
	starts := []int{0}
	for i, r := range code {
		if r == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func lineForOffset(starts []int, offset int) int {
	// starts is ascending; find the last start <= offset.
	lo, hi := 0, len(starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}
