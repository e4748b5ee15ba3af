package metrics

import (
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/document-classifier/internal/core/domain"
	"github.com/kirillkom/document-classifier/internal/core/ports"
)

var _ ports.PipelineObserver = (*HTTPServerMetrics)(nil)

func (m *HTTPServerMetrics) ObserveStage(stage domain.Stage, duration time.Duration) {
	m.stageDuration.WithLabelValues(m.service, string(stage)).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) ObserveResult(mode domain.ClassificationMode, result *domain.ClassificationResult, err error) {
	status := resultStatus(err)
	m.classificationTotal.WithLabelValues(m.service, string(mode), status).Inc()
	if err != nil || result == nil {
		return
	}

	m.confidence.WithLabelValues(m.service, string(mode)).Observe(result.Confidence)
	for _, stage := range result.Degraded() {
		m.fallbackTotal.WithLabelValues(m.service, stage).Inc()
	}
}

// ObserveBreakerState has the resilience.StateObserver signature.
func (m *HTTPServerMetrics) ObserveBreakerState(operation string, state gobreaker.State) {
	var value float64
	switch state {
	case gobreaker.StateHalfOpen:
		value = 1
	case gobreaker.StateOpen:
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}

func resultStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case domain.IsKind(err, domain.ErrNoExtractableText):
		return "no_text"
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrUnsupportedFormat):
		return "invalid_input"
	default:
		return "error"
	}
}
