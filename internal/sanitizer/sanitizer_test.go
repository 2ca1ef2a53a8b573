package sanitizer

import (
	"testing"
)

func TestScanFlagsJavascriptURIAsUnsafe(t *testing.T) {
	res := Scan(`<a href="javascript:alert(1)">go</a>`)
	if res.Safe {
		t.Fatalf("expected unsafe result, got %+v", res)
	}
	if len(res.Issues) == 0 || res.Issues[0].Name != "javascript-uri" {
		t.Fatalf("expected javascript-uri issue, got %+v", res.Issues)
	}
}

func TestScanIssuesAreSeverityOrdered(t *testing.T) {
	html := `<div onclick="alert(1)"></div><iframe src="x"></iframe><script>eval('x')</script>`
	res := Scan(html)
	for i := 1; i < len(res.Issues); i++ {
		if severityRank[res.Issues[i-1].Severity] > severityRank[res.Issues[i].Severity] {
			t.Fatalf("issues not severity-ordered: %+v", res.Issues)
		}
	}
}

func TestScanSafeWhenOnlyLowSeverity(t *testing.T) {
	res := Scan(`<button onclick="doThing()">Go</button>`)
	if !res.Safe {
		t.Fatalf("expected safe (only a low-severity inline handler), got %+v", res.Issues)
	}
}

func TestSanitizeReplacesJavascriptURI(t *testing.T) {
	out := Sanitize(`<a href="javascript:doEvil()">x</a>`, Options{})
	if out.Code == `<a href="javascript:doEvil()">x</a>` {
		t.Fatalf("javascript: URI was not rewritten")
	}
	if !contains(out.Removed, "javascript-uri") {
		t.Fatalf("expected javascript-uri in Removed, got %v", out.Removed)
	}
}

func TestSanitizeStripsEvalInsideHandlerButKeepsHandler(t *testing.T) {
	out := Sanitize(`<button onclick="eval('x'); doSafeThing()">go</button>`, Options{})
	if !contains(out.Removed, "eval-in-handler") {
		t.Fatalf("expected eval-in-handler in Removed, got %v", out.Removed)
	}
	if out.Code == "" {
		t.Fatalf("sanitized code is empty")
	}
}

func TestSanitizeStripsIframeBlocks(t *testing.T) {
	out := Sanitize(`before<iframe src="evil.com"></iframe>after`, Options{})
	if out.Code != "beforeafter" {
		t.Fatalf("iframe not stripped cleanly, got %q", out.Code)
	}
}

func TestSanitizeOnlyStripsScriptsWhenOptedIn(t *testing.T) {
	html := `<script>console.log(1)</script>`
	keep := Sanitize(html, Options{})
	if keep.Code != html {
		t.Fatalf("script block stripped without opt-in: %q", keep.Code)
	}
	strip := Sanitize(html, Options{StripScripts: true})
	if strip.Code != "" {
		t.Fatalf("expected script block stripped with opt-in, got %q", strip.Code)
	}
}

func contains(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}
