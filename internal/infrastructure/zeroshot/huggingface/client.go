// Package huggingface scores text against candidate labels with a hosted
// zero-shot classification model.
package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/document-classifier/internal/core/domain"
	"github.com/kirillkom/document-classifier/internal/core/ports"
	"github.com/kirillkom/document-classifier/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL  = "https://router.huggingface.co/hf-inference/models"
	DefaultModel    = "MoritzLaurer/mDeBERTa-v3-base-xnli-multilingual-nli-2mil7"
	DefaultMaxChars = 3000

	operationName = "zeroshot.classify"
)

type Config struct {
	BaseURL  string
	Model    string
	Token    string
	Timeout  time.Duration
	MaxChars int
}

type Scorer struct {
	endpoint   string
	token      string
	maxChars   int
	httpClient *http.Client
	executor   *resilience.Executor
}

var _ ports.ZeroShotScorer = (*Scorer)(nil)

// NewScorer expects an executor built with resilience.ScoringPolicy.
func NewScorer(cfg Config, executor *resilience.Executor) *Scorer {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.Trim(cfg.Model, "/")
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Scorer{
		endpoint:   baseURL + "/" + model,
		token:      cfg.Token,
		maxChars:   maxChars,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type classifyRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters classifyParameters `json:"parameters"`
}

type classifyParameters struct {
	CandidateLabels []string `json:"candidate_labels"`
}

// Score never fails. Unusable responses and transport errors produce a uniform
// distribution over labels with a fallback outcome.
func (s *Scorer) Score(ctx context.Context, text string, labels []string) domain.ScoreMap {
	if len(labels) == 0 {
		return domain.UniformScores(labels, "no candidate labels")
	}

	payload := classifyRequest{
		Inputs:     domain.TruncateRunes(text, s.maxChars, ""),
		Parameters: classifyParameters{CandidateLabels: labels},
	}

	var raw json.RawMessage
	err := s.executor.Execute(ctx, operationName, func(callCtx context.Context) error {
		return s.postJSON(callCtx, payload, &raw)
	}, classifyZeroShotError)
	if err != nil {
		slog.Warn("zeroshot_fallback", "reason", "request_failed", "error", err)
		return domain.UniformScores(labels, err.Error())
	}

	scores, err := normalizeResponse(raw)
	if err != nil {
		slog.Warn("zeroshot_fallback", "reason", "unrecognized_response", "error", err)
		return domain.UniformScores(labels, err.Error())
	}
	if !scores.CoversExactly(labels) {
		slog.Warn("zeroshot_fallback",
			"reason", "label_mismatch",
			"candidates", labels,
			"returned", scores.Labels(),
		)
		return domain.UniformScores(labels, "response labels do not match candidates")
	}
	scores.Outcome = domain.Outcome{Kind: domain.OutcomeSuccess, Attempts: 1}
	return scores
}

type labelScore struct {
	Label *string  `json:"label"`
	Score *float64 `json:"score"`
}

type parallelScores struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

// normalizeResponse accepts either a list of {label, score} records or a single
// record with parallel labels/scores lists.
func normalizeResponse(raw json.RawMessage) (domain.ScoreMap, error) {
	scores := domain.NewScoreMap()

	trimmed := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(trimmed, "["):
		var records []labelScore
		if err := json.Unmarshal(raw, &records); err != nil {
			return scores, fmt.Errorf("decode label/score list: %w", err)
		}
		for _, record := range records {
			if record.Label == nil || record.Score == nil {
				continue
			}
			scores.Set(*record.Label, domain.RoundScore(*record.Score))
		}
	case strings.HasPrefix(trimmed, "{"):
		var record parallelScores
		if err := json.Unmarshal(raw, &record); err != nil {
			return scores, fmt.Errorf("decode parallel labels/scores: %w", err)
		}
		for idx := 0; idx < len(record.Labels) && idx < len(record.Scores); idx++ {
			scores.Set(record.Labels[idx], domain.RoundScore(record.Scores[idx]))
		}
	}

	if scores.Len() == 0 {
		return scores, fmt.Errorf("response matched no known shape")
	}
	return scores, nil
}
