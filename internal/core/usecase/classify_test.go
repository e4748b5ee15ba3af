package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kirillkom/document-classifier/internal/core/domain"
	"github.com/kirillkom/document-classifier/internal/infrastructure/extractor/multiformat"
)

func newEarningsUseCase(storage *storageFake, opts ...ClassifyOption) (*ClassifyDocumentUseCase, *labelerFake, *scorerFake) {
	labeler := &labelerFake{set: successLabels("financial report", "earnings summary", "quarterly filing")}
	scorer := &scorerFake{scores: scoreMap(
		domain.LabelScore{Label: "financial report", Score: 0.8},
		domain.LabelScore{Label: "earnings summary", Score: 0.15},
		domain.LabelScore{Label: "quarterly filing", Score: 0.05},
	)}
	return NewClassifyDocumentUseCase(storage, payloadExtractor, labeler, scorer, opts...), labeler, scorer
}

func TestClassifyEndToEnd(t *testing.T) {
	storage := newStorageFake()
	publisher := &publisherFake{}
	observer := &observerFake{}
	uc, labeler, scorer := newEarningsUseCase(storage, WithPublisher(publisher), WithObserver(observer))

	text := "Q3 revenue grew 12%... quarterly earnings report"
	result, err := uc.Classify(context.Background(), domain.Upload{Filename: "q3.txt"}, strings.NewReader(text))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	if result.Label != "financial report" || result.Confidence != 0.8 {
		t.Fatalf("unexpected result: label=%q confidence=%v", result.Label, result.Confidence)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	want := `{"label":"financial report","confidence":0.8,"all_scores":{"financial report":0.8,"earnings summary":0.15,"quarterly filing":0.05}}`
	if string(raw) != want {
		t.Fatalf("unexpected json:\n got %s\nwant %s", raw, want)
	}

	if labeler.seen != text {
		t.Fatalf("expected labeler to receive extracted text, got %q", labeler.seen)
	}
	if len(scorer.labels) != 3 || scorer.labels[0] != "financial report" {
		t.Fatalf("expected scorer to receive candidate labels, got %v", scorer.labels)
	}
	if storage.remaining() != 0 {
		t.Fatalf("expected temporary artifact to be removed")
	}
	if len(storage.saved) != 1 || !strings.HasSuffix(storage.saved[0], "_q3.txt") {
		t.Fatalf("unexpected staged keys: %v", storage.saved)
	}

	if len(publisher.records) != 1 {
		t.Fatalf("expected one published record, got %d", len(publisher.records))
	}
	record := publisher.records[0]
	if record.ID == "" || record.Mode != domain.ModeSync || record.Format != domain.FormatText || record.Label != "financial report" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.LabelsFallback || record.ScoresFallback {
		t.Fatalf("expected no fallback flags, got %+v", record)
	}

	wantStages := []domain.Stage{domain.StageExtract, domain.StageLabels, domain.StageClassify}
	if len(observer.stages) != len(wantStages) {
		t.Fatalf("unexpected observed stages: %v", observer.stages)
	}
	for i := range wantStages {
		if observer.stages[i] != wantStages[i] {
			t.Fatalf("unexpected observed stages: %v", observer.stages)
		}
	}
	if len(observer.results) != 1 || observer.results[0] != nil {
		t.Fatalf("unexpected observed results: %v", observer.results)
	}
}

func TestClassifyNoExtractableText(t *testing.T) {
	storage := newStorageFake()
	uc, labeler, scorer := newEarningsUseCase(storage)

	_, err := uc.Classify(context.Background(), domain.Upload{Filename: "blank.txt"}, strings.NewReader("  \n\t "))
	if !errors.Is(err, domain.ErrNoExtractableText) {
		t.Fatalf("expected ErrNoExtractableText, got %v", err)
	}
	if labeler.calls != 0 || scorer.calls != 0 {
		t.Fatalf("expected later stages to be skipped, labeler=%d scorer=%d", labeler.calls, scorer.calls)
	}
	if storage.remaining() != 0 || len(storage.removed) != 1 {
		t.Fatalf("expected temporary artifact to be removed after failure")
	}
}

// emptyPDF is a well-formed container whose page tree has no pages.
func emptyPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [] /Count 0 >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, offset := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offset)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestClassifyEmptyPDFHasNoExtractableText(t *testing.T) {
	storage := newStorageFake()
	labeler := &labelerFake{set: successLabels("report")}
	scorer := &scorerFake{scores: scoreMap(domain.LabelScore{Label: "report", Score: 1})}
	uc := NewClassifyDocumentUseCase(storage, multiformat.NewExtractor(30000), labeler, scorer)

	_, err := uc.Classify(context.Background(), domain.Upload{Filename: "empty.pdf"}, bytes.NewReader(emptyPDF()))
	if !errors.Is(err, domain.ErrNoExtractableText) {
		t.Fatalf("expected ErrNoExtractableText, got %v", err)
	}
	if labeler.calls != 0 || scorer.calls != 0 {
		t.Fatalf("expected later stages to be skipped, labeler=%d scorer=%d", labeler.calls, scorer.calls)
	}
	if storage.remaining() != 0 {
		t.Fatalf("expected temporary artifact to be removed")
	}
}

func TestClassifyRejectsInvalidUpload(t *testing.T) {
	storage := newStorageFake()
	uc, _, _ := newEarningsUseCase(storage)

	if _, err := uc.Classify(context.Background(), domain.Upload{Filename: "  "}, strings.NewReader("x")); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := uc.Classify(context.Background(), domain.Upload{Filename: "image.png"}, strings.NewReader("x")); !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if len(storage.saved) != 0 {
		t.Fatalf("expected nothing staged for invalid uploads, got %v", storage.saved)
	}
}

func TestClassifyStorageFailureIsFault(t *testing.T) {
	storage := newStorageFake()
	storage.openErr = errors.New("disk gone")
	uc, labeler, _ := newEarningsUseCase(storage)

	_, err := uc.Classify(context.Background(), domain.Upload{Filename: "a.md"}, strings.NewReader("# title"))
	if err == nil || !strings.Contains(err.Error(), "disk gone") {
		t.Fatalf("expected storage error, got %v", err)
	}
	if domain.IsKind(err, domain.ErrNoExtractableText) || domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("storage failure must not look like an input error: %v", err)
	}
	if labeler.calls != 0 {
		t.Fatalf("expected labeler to be skipped")
	}
	if storage.remaining() != 0 {
		t.Fatalf("expected temporary artifact to be removed")
	}
}

func TestClassifyStopsBetweenStagesWhenCanceled(t *testing.T) {
	storage := newStorageFake()
	ctx, cancel := context.WithCancel(context.Background())
	labeler := &labelerFake{set: successLabels("a", "b")}
	scorer := &scorerFake{scores: scoreMap(domain.LabelScore{Label: "a", Score: 1})}
	extractor := extractorFunc(func(_ context.Context, doc domain.Document) string {
		cancel()
		return string(doc.Payload)
	})
	uc := NewClassifyDocumentUseCase(storage, extractor, labeler, scorer)

	_, err := uc.Classify(ctx, domain.Upload{Filename: "a.txt"}, strings.NewReader("hello"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if labeler.calls != 0 {
		t.Fatalf("expected labeler to be skipped after cancellation")
	}
	if storage.remaining() != 0 {
		t.Fatalf("expected temporary artifact to be removed after cancellation")
	}
}

func TestClassifyPublishFailureDoesNotFailRequest(t *testing.T) {
	storage := newStorageFake()
	uc, _, _ := newEarningsUseCase(storage, WithPublisher(&publisherFake{err: errors.New("nats down")}))

	result, err := uc.Classify(context.Background(), domain.Upload{Filename: "q3.txt"}, strings.NewReader("earnings"))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.Label != "financial report" {
		t.Fatalf("unexpected label: %q", result.Label)
	}
}

func TestClassifyReportsDegradedStages(t *testing.T) {
	storage := newStorageFake()
	publisher := &publisherFake{}
	labels := domain.FallbackLabelSet(2, "malformed output")
	labeler := &labelerFake{set: labels}
	scorer := &scorerFake{scores: domain.UniformScores(labels.Labels, "status 503")}
	uc := NewClassifyDocumentUseCase(storage, payloadExtractor, labeler, scorer, WithPublisher(publisher))

	result, err := uc.Classify(context.Background(), domain.Upload{Filename: "notes.txt"}, strings.NewReader("notes"))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.Label != "document" || result.Confidence != 0.3333 {
		t.Fatalf("expected first default label with uniform confidence, got %q %v", result.Label, result.Confidence)
	}
	if got := result.DegradedHeader(); got != "labels,scores" {
		t.Fatalf("unexpected degraded header: %q", got)
	}
	if !publisher.records[0].LabelsFallback || !publisher.records[0].ScoresFallback {
		t.Fatalf("expected fallback flags on record: %+v", publisher.records[0])
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report 2024.pdf":        "report_2024.pdf",
		"../../etc/passwd":       "passwd",
		"отчёт.docx":             "_____.docx",
		"":                       "document.bin",
		"dir/with spaces/a b.md": "a_b.md",
	}
	for input, want := range cases {
		if got := sanitizeFilename(input); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", input, got, want)
		}
	}
}
