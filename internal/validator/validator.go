// Package validator scores generated HTML against a deterministic
// four-axis quality rubric. Validate is a pure function of its input:
// the same HTML always produces the same Score.
package validator

import (
	"regexp"
)

// Axis names the four quality dimensions. The set and its weights are
// fixed. Each axis is scored from the package-level indicators table,
// which callers cannot replace.
type Axis string

const (
	Conatus Axis = "conatus" // agency: can the user act on it
	Ratio   Axis = "ratio"   // structural adequacy
	Laetitia Axis = "laetitia" // beauty
	Natura  Axis = "natura"  // naturalness / accessibility
)

// Score is the outcome of validating one HTML document.
type Score struct {
	Conatus  float64
	Ratio    float64
	Laetitia float64
	Natura   float64
	Total    float64
	Grade    string
	Issues   []string
}

// Indicator is one weighted check within an axis. Name shows up in Issues
// when the check fails; Weight contributes to the axis score when it
// passes.
type Indicator struct {
	Axis   Axis
	Name   string
	Weight float64
	Test   func(html string) bool
}

var indicators = []Indicator{
	// Conatus: agency/effect.
	{Conatus, "has input elements", 0.3, hasAny(reInputEl)},
	{Conatus, "has event handlers", 0.3, hasAny(reEventHandler)},
	{Conatus, "uses persistent storage", 0.25, hasAny(reStorageAPI)},
	{Conatus, "has canvas or visualization", 0.15, hasAny(reCanvasOrViz)},

	// Ratio: structural adequacy.
	{Ratio, "has doctype", 0.25, hasAny(reDoctype)},
	{Ratio, "has closing html/body tags", 0.2, hasAny(reClosingTags)},
	{Ratio, "has script content", 0.2, hasAny(reScript)},
	{Ratio, "has error handling", 0.15, hasAny(reErrorHandling)},
	{Ratio, "is non-trivial length", 0.2, func(html string) bool { return len(html) > 2000 }},

	// Laetitia: beauty.
	{Laetitia, "has embedded styles", 0.25, hasAny(reStyle)},
	{Laetitia, "uses CSS custom properties", 0.2, hasAny(reCSSVar)},
	{Laetitia, "uses transitions or animations", 0.3, hasAny(reTransitionOrAnim)},
	{Laetitia, "uses gradients", 0.15, hasAny(reGradient)},
	{Laetitia, "uses media queries", 0.1, hasAny(reMediaQuery)},

	// Natura: naturalness / accessibility.
	{Natura, "uses semantic elements", 0.3, hasAny(reSemanticEl)},
	{Natura, "has aria or role attributes", 0.3, hasAny(reAriaOrRole)},
	{Natura, "has input placeholders", 0.15, hasAny(rePlaceholder)},
	{Natura, "has a title", 0.15, hasAny(reTitle)},
	{Natura, "has non-ascii glyphs", 0.1, hasNonASCII},
}

var (
	reInputEl          = regexp.MustCompile(`(?i)<(input|button|select|textarea|form)\b`)
	reEventHandler     = regexp.MustCompile(`(?i)(addEventListener|onclick=|onchange=|onsubmit=|onkeyup=|oninput=)`)
	reStorageAPI       = regexp.MustCompile(`(?i)(localStorage|indexedDB|sessionStorage)`)
	reCanvasOrViz      = regexp.MustCompile(`(?i)<canvas\b|<svg\b|chart`)
	reDoctype          = regexp.MustCompile(`(?i)<!DOCTYPE`)
	reClosingTags      = regexp.MustCompile(`(?i)</html>\s*$`)
	reScript           = regexp.MustCompile(`(?i)<script\b`)
	reErrorHandling    = regexp.MustCompile(`(?i)(try\s*{|catch\s*\(|\.catch\()`)
	reStyle            = regexp.MustCompile(`(?i)<style\b`)
	reCSSVar           = regexp.MustCompile(`--[a-zA-Z0-9_-]+\s*:`)
	reTransitionOrAnim = regexp.MustCompile(`(?i)(transition\s*:|@keyframes|animation\s*:)`)
	reGradient         = regexp.MustCompile(`(?i)(linear-gradient|radial-gradient|conic-gradient)`)
	reMediaQuery       = regexp.MustCompile(`(?i)@media\b`)
	reSemanticEl       = regexp.MustCompile(`(?i)<(header|main|footer|nav|section|article|aside)\b`)
	reAriaOrRole       = regexp.MustCompile(`(?i)(aria-[a-z]+=|role=)`)
	rePlaceholder      = regexp.MustCompile(`(?i)placeholder=`)
	reTitle            = regexp.MustCompile(`(?i)<title>[^<]+</title>`)
)

func hasAny(re *regexp.Regexp) func(string) bool {
	return func(html string) bool { return re.MatchString(html) }
}

func hasNonASCII(html string) bool {
	for _, r := range html {
		if r > 127 {
			return true
		}
	}
	return false
}

// Validate scores html against the fixed four-axis rubric.
func Validate(html string) Score {
	sums := map[Axis]float64{}
	var issues []string

	for _, ind := range indicators {
		if ind.Test(html) {
			sums[ind.Axis] += ind.Weight
		} else {
			issues = append(issues, ind.Name)
		}
	}

	score := Score{
		Conatus:  clamp01(sums[Conatus]),
		Ratio:    clamp01(sums[Ratio]),
		Laetitia: clamp01(sums[Laetitia]),
		Natura:   clamp01(sums[Natura]),
		Issues:   issues,
	}
	score.Total = (score.Conatus + score.Ratio + score.Laetitia + score.Natura) / 4
	score.Grade = gradeFor(score.Total)
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func gradeFor(total float64) string {
	switch {
	case total >= 0.85:
		return "S"
	case total >= 0.70:
		return "A"
	case total >= 0.55:
		return "B"
	case total >= 0.40:
		return "C"
	default:
		return "D"
	}
}
