package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kirillkom/document-classifier/internal/core/domain"
	"github.com/kirillkom/document-classifier/internal/core/ports"
)

const DefaultPreviewChars = 8000

type ClassifyDocumentUseCase struct {
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	labeler   ports.LabelGenerator
	scorer    ports.ZeroShotScorer

	publisher    ports.ClassificationPublisher
	observer     ports.PipelineObserver
	previewChars int
	now          func() time.Time
}

var _ ports.DocumentClassifier = (*ClassifyDocumentUseCase)(nil)

type ClassifyOption func(*ClassifyDocumentUseCase)

// WithPublisher announces every successful classification.
func WithPublisher(publisher ports.ClassificationPublisher) ClassifyOption {
	return func(uc *ClassifyDocumentUseCase) {
		uc.publisher = publisher
	}
}

func WithObserver(observer ports.PipelineObserver) ClassifyOption {
	return func(uc *ClassifyDocumentUseCase) {
		uc.observer = observer
	}
}

func WithPreviewChars(n int) ClassifyOption {
	return func(uc *ClassifyDocumentUseCase) {
		if n > 0 {
			uc.previewChars = n
		}
	}
}

func NewClassifyDocumentUseCase(
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	labeler ports.LabelGenerator,
	scorer ports.ZeroShotScorer,
	opts ...ClassifyOption,
) *ClassifyDocumentUseCase {
	uc := &ClassifyDocumentUseCase{
		storage:      storage,
		extractor:    extractor,
		labeler:      labeler,
		scorer:       scorer,
		previewChars: DefaultPreviewChars,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *ClassifyDocumentUseCase) Classify(
	ctx context.Context,
	upload domain.Upload,
	body io.Reader,
) (*domain.ClassificationResult, error) {
	return uc.run(ctx, domain.ModeSync, upload, body, nil)
}

// ClassifyStream runs the same pipeline as Classify and reports progress to sink.
// Invalid uploads are rejected before any event is emitted.
func (uc *ClassifyDocumentUseCase) ClassifyStream(
	ctx context.Context,
	upload domain.Upload,
	body io.Reader,
	sink ports.StageSink,
) error {
	if sink == nil {
		return domain.WrapError(domain.ErrInvalidInput, "classify stream", errors.New("stage sink is nil"))
	}
	_, err := uc.run(ctx, domain.ModeStream, upload, body, sink)
	return err
}

func (uc *ClassifyDocumentUseCase) run(
	ctx context.Context,
	mode domain.ClassificationMode,
	upload domain.Upload,
	body io.Reader,
	sink ports.StageSink,
) (result *domain.ClassificationResult, err error) {
	started := uc.now()
	defer func() {
		if uc.observer != nil {
			uc.observer.ObserveResult(mode, result, err)
		}
	}()

	upload, err = normalizeUpload(upload)
	if err != nil {
		return nil, err
	}

	machine := newProgressMachine(sink)
	if err := machine.advance(stateExtracting, transitionPayload{}); err != nil {
		return nil, err
	}

	result, err = uc.pipeline(ctx, machine, upload, body)
	if err != nil {
		machine.fail(err)
		return nil, err
	}

	uc.announce(ctx, mode, upload, result, started)
	return result, nil
}

func (uc *ClassifyDocumentUseCase) pipeline(
	ctx context.Context,
	machine *progressMachine,
	upload domain.Upload,
	body io.Reader,
) (*domain.ClassificationResult, error) {
	text, err := uc.extractStage(ctx, upload, body)
	if err != nil {
		return nil, err
	}
	if err := machine.advance(stateGeneratingLabels, transitionPayload{
		TextLength: domain.RuneLen(text),
		Preview:    domain.TruncateRunes(text, uc.previewChars, domain.TruncationMarker),
	}); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generate labels: %w", err)
	}
	labels := uc.labelStage(ctx, text)
	if err := machine.advance(stateClassifying, transitionPayload{Labels: labels.Labels}); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("score labels: %w", err)
	}
	scores := uc.scoreStage(ctx, text, labels.Labels)

	result := domain.BuildResult(labels, scores)
	result.FileName = upload.Filename
	result.TextLength = domain.RuneLen(text)

	if err := machine.advance(stateDone, transitionPayload{Result: &result}); err != nil {
		return nil, err
	}
	return &result, nil
}

// extractStage stages the upload as a temporary artifact, extracts its text and
// removes the artifact before returning.
func (uc *ClassifyDocumentUseCase) extractStage(ctx context.Context, upload domain.Upload, body io.Reader) (string, error) {
	defer uc.observeStage(domain.StageExtract, uc.now())

	key := fmt.Sprintf("%s_%s", ulid.Make().String(), sanitizeFilename(upload.Filename))
	defer uc.discard(ctx, key)

	if err := uc.storage.Save(ctx, key, body); err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}

	payload, err := uc.readArtifact(ctx, key)
	if err != nil {
		return "", err
	}

	text := uc.extractor.Extract(ctx, domain.Document{
		Filename: upload.Filename,
		Format:   upload.Format,
		Payload:  payload,
	})
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrNoExtractableText, "extract text", fmt.Errorf("file %q yielded no text", upload.Filename))
	}
	return text, nil
}

func (uc *ClassifyDocumentUseCase) readArtifact(ctx context.Context, key string) ([]byte, error) {
	reader, err := uc.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open staged upload: %w", err)
	}
	defer reader.Close()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read staged upload: %w", err)
	}
	return payload, nil
}

func (uc *ClassifyDocumentUseCase) discard(ctx context.Context, key string) {
	if err := uc.storage.Remove(context.WithoutCancel(ctx), key); err != nil {
		slog.Warn("temporary_artifact_remove_failed", "key", key, "error", err)
	}
}

func (uc *ClassifyDocumentUseCase) labelStage(ctx context.Context, text string) domain.LabelSet {
	defer uc.observeStage(domain.StageLabels, uc.now())
	return uc.labeler.Generate(ctx, text)
}

func (uc *ClassifyDocumentUseCase) scoreStage(ctx context.Context, text string, labels []string) domain.ScoreMap {
	defer uc.observeStage(domain.StageClassify, uc.now())
	return uc.scorer.Score(ctx, text, labels)
}

func (uc *ClassifyDocumentUseCase) observeStage(stage domain.Stage, started time.Time) {
	if uc.observer != nil {
		uc.observer.ObserveStage(stage, uc.now().Sub(started))
	}
}

func (uc *ClassifyDocumentUseCase) announce(
	ctx context.Context,
	mode domain.ClassificationMode,
	upload domain.Upload,
	result *domain.ClassificationResult,
	started time.Time,
) {
	finished := uc.now()
	record := domain.ClassificationRecord{
		ID:             ulid.Make().String(),
		FileName:       upload.Filename,
		Format:         upload.Format,
		Mode:           mode,
		Label:          result.Label,
		Confidence:     result.Confidence,
		AllScores:      result.AllScores,
		Labels:         result.Labels.Labels,
		LabelsFallback: result.Labels.Outcome.IsFallback(),
		ScoresFallback: result.AllScores.Outcome.IsFallback(),
		TextLength:     result.TextLength,
		DurationMs:     float64(finished.Sub(started).Microseconds()) / 1000.0,
		CreatedAt:      finished.UTC(),
	}

	slog.Info("document_classified",
		"classification_id", record.ID,
		"file_name", record.FileName,
		"mode", string(mode),
		"label", record.Label,
		"confidence", record.Confidence,
		"labels_fallback", record.LabelsFallback,
		"scores_fallback", record.ScoresFallback,
		"duration_ms", record.DurationMs,
	)

	if uc.publisher == nil {
		return
	}
	if err := uc.publisher.PublishClassified(ctx, record); err != nil {
		slog.Warn("classification_publish_failed", "classification_id", record.ID, "error", err)
	}
}

func normalizeUpload(upload domain.Upload) (domain.Upload, error) {
	upload.Filename = strings.TrimSpace(upload.Filename)
	if upload.Filename == "" {
		return upload, domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("no file selected"))
	}
	if upload.Format == "" {
		format, ok := domain.FormatFromFilename(upload.Filename)
		if !ok {
			return upload, domain.WrapError(domain.ErrUnsupportedFormat, "validate upload", fmt.Errorf("file %q", upload.Filename))
		}
		upload.Format = format
	}
	if !upload.Format.IsSupported() {
		return upload, domain.WrapError(domain.ErrUnsupportedFormat, "validate upload", fmt.Errorf("format %q", upload.Format))
	}
	return upload, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "document.bin"
	}
	return base
}
