// Package labels proposes candidate category labels for a document using a
// generative text service.
package labels

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kirillkom/document-classifier/internal/core/domain"
	"github.com/kirillkom/document-classifier/internal/core/ports"
	"github.com/kirillkom/document-classifier/internal/infrastructure/resilience"
)

const (
	maxLabels = domain.MaxCandidateLabels

	DefaultMaxTokens   = 128
	DefaultTemperature = float32(0.3)
	DefaultMaxChars    = 30000

	operationName = "labels.generate"
)

type Options struct {
	MaxTokens   int
	Temperature float32
	MaxChars    int
}

type Generator struct {
	completer ports.ChatCompleter
	executor  *resilience.Executor
	opts      Options
}

var _ ports.LabelGenerator = (*Generator)(nil)

// NewGenerator expects an executor built with resilience.GenerationPolicy; the
// executor's attempt budget is the retry budget.
func NewGenerator(completer ports.ChatCompleter, executor *resilience.Executor, opts Options) *Generator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Temperature < 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	return &Generator{completer: completer, executor: executor, opts: opts}
}

// Generate never fails. After the retry budget is spent it returns the default
// label set with a fallback outcome.
func (g *Generator) Generate(ctx context.Context, text string) domain.LabelSet {
	req := ports.ChatRequest{
		System:      systemPrompt,
		User:        buildUserPrompt(domain.TruncateRunes(text, g.opts.MaxChars, "")),
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	}

	var (
		labels   []string
		attempts int
	)
	err := g.executor.Execute(ctx, operationName, func(callCtx context.Context) error {
		attempts++
		raw, err := g.completer.Complete(callCtx, req)
		if err != nil {
			slog.Warn("label_generation_failed", "attempt", attempts, "error", err)
			return err
		}
		parsed, err := parseLabels(raw)
		if err != nil {
			slog.Warn("label_generation_unparseable", "attempt", attempts, "error", err)
			return err
		}
		labels = parsed
		return nil
	}, classifyGenerationError(ctx))
	if err != nil {
		slog.Warn("label_generation_fallback", "attempts", attempts, "error", err)
		return domain.FallbackLabelSet(attempts, err.Error())
	}

	return domain.LabelSet{
		Labels:  labels,
		Outcome: domain.Outcome{Kind: domain.OutcomeSuccess, Attempts: attempts},
	}
}

// classifyGenerationError retries every failure once, network or parse, unless
// the caller gave up. Only temporary transport failures count against the breaker.
func classifyGenerationError(ctx context.Context) resilience.ErrorClassifier {
	return func(err error) resilience.ErrorClassification {
		if ctx.Err() != nil {
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
		if errors.Is(err, errMalformedOutput) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: false}
		}
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: domain.IsKind(err, domain.ErrTemporary),
		}
	}
}
