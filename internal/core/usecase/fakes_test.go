package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/document-classifier/internal/core/domain"
)

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	saved   []string
	removed []string
	saveErr error
	openErr error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: make(map[string][]byte)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = raw
	f.saved = append(f.saved, key)
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.removed = append(f.removed, key)
	return nil
}

func (f *storageFake) remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type extractorFunc func(ctx context.Context, doc domain.Document) string

func (f extractorFunc) Extract(ctx context.Context, doc domain.Document) string {
	return f(ctx, doc)
}

// payloadExtractor returns the payload as text, like the plain text extractor.
var payloadExtractor = extractorFunc(func(_ context.Context, doc domain.Document) string {
	return string(doc.Payload)
})

type labelerFake struct {
	set   domain.LabelSet
	calls int
	seen  string
}

func (f *labelerFake) Generate(_ context.Context, text string) domain.LabelSet {
	f.calls++
	f.seen = text
	return f.set
}

type scorerFake struct {
	scores domain.ScoreMap
	calls  int
	labels []string
}

func (f *scorerFake) Score(_ context.Context, _ string, labels []string) domain.ScoreMap {
	f.calls++
	f.labels = labels
	return f.scores
}

type publisherFake struct {
	records []domain.ClassificationRecord
	err     error
}

func (f *publisherFake) PublishClassified(_ context.Context, record domain.ClassificationRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

type observerFake struct {
	stages  []domain.Stage
	results []error
}

func (f *observerFake) ObserveStage(stage domain.Stage, _ time.Duration) {
	f.stages = append(f.stages, stage)
}

func (f *observerFake) ObserveResult(_ domain.ClassificationMode, _ *domain.ClassificationResult, err error) {
	f.results = append(f.results, err)
}

func scoreMap(entries ...domain.LabelScore) domain.ScoreMap {
	out := domain.NewScoreMap()
	for _, entry := range entries {
		out.Set(entry.Label, entry.Score)
	}
	out.Outcome = domain.Outcome{Kind: domain.OutcomeSuccess, Attempts: 1}
	return out
}

func successLabels(labels ...string) domain.LabelSet {
	return domain.LabelSet{Labels: labels, Outcome: domain.Outcome{Kind: domain.OutcomeSuccess, Attempts: 1}}
}
