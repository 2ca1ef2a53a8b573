package validator

import (
	"strings"
	"testing"
)

func TestValidateMinimalDocumentGradesLow(t *testing.T) {
	html := "<!DOCTYPE html><html><body>hi</body></html>"
	score := Validate(html)
	if score.Grade != "D" {
		t.Fatalf("expected a low grade for a minimal document, got total=%v grade=%s", score.Total, score.Grade)
	}
	if score.Total < 0 || score.Total > 1 {
		t.Fatalf("total out of [0,1]: %v", score.Total)
	}
}

func TestValidateRichDocumentGradesHigh(t *testing.T) {
	html := `<!DOCTYPE html>
<html lang="en">
<head>
<title>Cardio Tracker</title>
<style>
  :root { --accent: #0af; }
  body { background: linear-gradient(45deg, #111, #222); transition: background 0.3s; }
  @keyframes pulse { from { opacity: 0; } to { opacity: 1; } }
  @media (max-width: 600px) { body { font-size: 14px; } }
</style>
</head>
<body>
<header role="banner"><h1>Cardio Tracker — émoji ready 🏃</h1></header>
<main>
  <form>
    <input type="text" placeholder="Session name" aria-label="Session name">
    <button onclick="save()">Save</button>
  </form>
  <canvas id="chart"></canvas>
</main>
<footer>done</footer>
<script>
function save() {
  try {
    localStorage.setItem('sessions', JSON.stringify([]));
  } catch (e) {
    console.error(e);
  }
}
document.querySelector('button').addEventListener('click', save);
</script>
</body>
</html>`
	score := Validate(html)
	if score.Grade == "D" || score.Grade == "C" {
		t.Fatalf("expected a high grade for a feature-rich document, got %s (total=%v, issues=%v)", score.Grade, score.Total, score.Issues)
	}
	for _, axis := range []float64{score.Conatus, score.Ratio, score.Laetitia, score.Natura} {
		if axis < 0 || axis > 1 {
			t.Fatalf("axis score out of [0,1]: %v", axis)
		}
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	html := "<!DOCTYPE html><html><body><input placeholder=\"x\"></body></html>"
	a := Validate(html)
	b := Validate(html)
	if a.Total != b.Total || strings.Join(a.Issues, ",") != strings.Join(b.Issues, ",") {
		t.Fatalf("Validate is not deterministic: %+v vs %+v", a, b)
	}
}

func TestGradeBoundaries(t *testing.T) {
	cases := []struct {
		total float64
		want  string
	}{
		{0.85, "S"}, {0.90, "S"},
		{0.70, "A"}, {0.84, "A"},
		{0.55, "B"}, {0.69, "B"},
		{0.40, "C"}, {0.54, "C"},
		{0.0, "D"}, {0.39, "D"},
	}
	for _, c := range cases {
		if got := gradeFor(c.total); got != c.want {
			t.Errorf("gradeFor(%v) = %q, want %q", c.total, got, c.want)
		}
	}
}
