package enhancer

import (
	"strings"
	"testing"
)

func TestEnhanceIsDeterministic(t *testing.T) {
	opts := Options{StylePreset: StyleCyberpunk, Language: "en", Persona: "upbeat coach"}
	a := Enhance("track my cardio for 8 weeks", opts)
	b := Enhance("track my cardio for 8 weeks", opts)
	if a != b {
		t.Fatalf("Enhance is not deterministic:\n%q\nvs\n%q", a, b)
	}
}

func TestEnhanceIncludesContextOnlyWhenPresent(t *testing.T) {
	without := Enhance("plan a trip", Options{})
	if strings.Contains(without, "Ambient context") {
		t.Fatalf("unexpected context section with no ContextBlock: %q", without)
	}
	with := Enhance("plan a trip", Options{ContextBlock: "Local time: 14:00, Tuesday"})
	if !strings.Contains(with, "Ambient context") || !strings.Contains(with, "Local time: 14:00, Tuesday") {
		t.Fatalf("expected context section to be present: %q", with)
	}
}

func TestEnhanceDefaultsUnknownStyleToMinimal(t *testing.T) {
	out := Enhance("x", Options{StylePreset: "nonsense"})
	if !strings.Contains(out, "minimal") {
		t.Fatalf("expected fallback to minimal style, got %q", out)
	}
}

func TestBuildSystemInstructionForbidsFencesAndExternalDeps(t *testing.T) {
	instr := BuildSystemInstruction(Options{StylePreset: StyleTerminal})
	for _, want := range []string{"DOCTYPE", "markdown code fences", "localStorage", "terminal"} {
		if !strings.Contains(instr, want) {
			t.Fatalf("system instruction missing %q:\n%s", want, instr)
		}
	}
}
