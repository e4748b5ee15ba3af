package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/document-classifier/internal/core/domain"
)

// ObjectStorage holds uploaded payloads for the lifetime of one request.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// TextExtractor converts a document payload to plain text. It never fails:
// unreadable documents produce an empty string.
type TextExtractor interface {
	Extract(ctx context.Context, doc domain.Document) string
}

// LabelGenerator proposes candidate labels for a text.
type LabelGenerator interface {
	Generate(ctx context.Context, text string) domain.LabelSet
}

// ZeroShotScorer scores text against candidate labels.
type ZeroShotScorer interface {
	Score(ctx context.Context, text string, labels []string) domain.ScoreMap
}

// ChatCompleter is a generative text service.
type ChatCompleter interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

type ChatRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float32
}

// ClassificationPublisher announces finished classifications.
type ClassificationPublisher interface {
	PublishClassified(ctx context.Context, record domain.ClassificationRecord) error
}

// ClassificationSubscriber delivers announced classifications to a handler.
type ClassificationSubscriber interface {
	SubscribeClassified(ctx context.Context, handler func(context.Context, domain.ClassificationRecord) error) error
}

// PipelineObserver receives per-stage timings and final outcomes.
type PipelineObserver interface {
	ObserveStage(stage domain.Stage, duration time.Duration)
	ObserveResult(mode domain.ClassificationMode, result *domain.ClassificationResult, err error)
}
