package ports

import (
	"context"
	"io"

	"github.com/kirillkom/document-classifier/internal/core/domain"
)

// DocumentClassifier is the inbound contract for the two-stage classification pipeline.
type DocumentClassifier interface {
	Classify(ctx context.Context, upload domain.Upload, body io.Reader) (*domain.ClassificationResult, error)
	ClassifyStream(ctx context.Context, upload domain.Upload, body io.Reader, sink StageSink) error
}

// StageSink receives stage events in pipeline order. A returned error ends the stream.
type StageSink func(event domain.StageEvent) error

// ClassificationRecorder consumes classification records delivered by the event bus.
type ClassificationRecorder interface {
	Record(ctx context.Context, record domain.ClassificationRecord) error
}
