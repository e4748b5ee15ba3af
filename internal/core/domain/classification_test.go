package domain

import (
	"encoding/json"
	"math"
	"testing"
)

func TestBestBreaksTiesByInsertionOrder(t *testing.T) {
	scores := NewScoreMap()
	scores.Set("a", 0.5)
	scores.Set("b", 0.5)

	best, ok := scores.Best()
	if !ok || best.Label != "a" {
		t.Fatalf("expected a, got %+v", best)
	}
}

func TestSetKeepsOriginalPosition(t *testing.T) {
	scores := NewScoreMap()
	scores.Set("x", 0.1)
	scores.Set("y", 0.2)
	scores.Set("x", 0.9)

	labels := scores.Labels()
	if len(labels) != 2 || labels[0] != "x" || labels[1] != "y" {
		t.Fatalf("unexpected order %v", labels)
	}
	if got, _ := scores.Get("x"); got != 0.9 {
		t.Fatalf("expected overwritten score 0.9, got %v", got)
	}
}

func TestMarshalJSONPreservesOrder(t *testing.T) {
	scores := NewScoreMap()
	scores.Set("quarterly filing", 0.05)
	scores.Set("financial report", 0.8)

	raw, err := json.Marshal(scores)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(raw) != `{"quarterly filing":0.05,"financial report":0.8}` {
		t.Fatalf("unexpected json %s", raw)
	}

	var decoded ScoreMap
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if labels := decoded.Labels(); labels[0] != "quarterly filing" || labels[1] != "financial report" {
		t.Fatalf("order lost after decode: %v", labels)
	}
}

func TestUniformScores(t *testing.T) {
	labels := []string{"a", "b", "c", "d"}
	scores := UniformScores(labels, "status 503")

	if !scores.Outcome.IsFallback() {
		t.Fatalf("expected fallback outcome")
	}
	if !scores.CoversExactly(labels) {
		t.Fatalf("expected keys %v, got %v", labels, scores.Labels())
	}
	sum := 0.0
	for _, entry := range scores.Entries() {
		if entry.Score != 0.25 {
			t.Fatalf("expected 0.25, got %v", entry.Score)
		}
		sum += entry.Score
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("expected sum 1, got %v", sum)
	}

	third := UniformScores([]string{"a", "b", "c"}, "")
	if got, _ := third.Get("a"); got != 0.3333 {
		t.Fatalf("expected rounded 0.3333, got %v", got)
	}
}

func TestBuildResultFallsBackToFirstCandidate(t *testing.T) {
	labels := LabelSet{Labels: []string{"invoice", "receipt"}}
	result := BuildResult(labels, NewScoreMap())
	if result.Label != "invoice" || result.Confidence != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestBuildResultSelectsArgmax(t *testing.T) {
	scores := NewScoreMap()
	scores.Set("financial report", 0.8)
	scores.Set("earnings summary", 0.15)
	scores.Set("quarterly filing", 0.05)

	result := BuildResult(LabelSet{Labels: scores.Labels()}, scores)
	if result.Label != "financial report" || result.Confidence != 0.8 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.DegradedHeader() != "" {
		t.Fatalf("expected no degraded stages, got %q", result.DegradedHeader())
	}
}

func TestFormatFromFilename(t *testing.T) {
	cases := map[string]struct {
		format DocumentFormat
		ok     bool
	}{
		"report.PDF":   {FormatPDF, true},
		"notes.md":     {FormatMarkdown, true},
		"letter.docx":  {FormatDOCX, true},
		"sheet.xlsx":   {FormatXLSX, true},
		"archive.zip":  {"zip", false},
		"no-extension": {"", false},
	}
	for name, want := range cases {
		format, ok := FormatFromFilename(name)
		if format != want.format || ok != want.ok {
			t.Fatalf("%s: expected (%s,%v), got (%s,%v)", name, want.format, want.ok, format, ok)
		}
	}
}
