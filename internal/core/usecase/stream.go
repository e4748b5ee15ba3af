package usecase

import (
	"errors"
	"fmt"

	"github.com/kirillkom/document-classifier/internal/core/domain"
	"github.com/kirillkom/document-classifier/internal/core/ports"
)

type pipelineState int

const (
	stateIdle pipelineState = iota
	stateExtracting
	stateGeneratingLabels
	stateClassifying
	stateDone
	stateFailed
)

func (s pipelineState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateExtracting:
		return "extracting"
	case stateGeneratingLabels:
		return "generating_labels"
	case stateClassifying:
		return "classifying"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s pipelineState) working() bool {
	return s == stateExtracting || s == stateGeneratingLabels || s == stateClassifying
}

// transitionPayload carries the stage output that becomes visible on a transition.
type transitionPayload struct {
	TextLength int
	Preview    string
	Labels     []string
	Result     *domain.ClassificationResult
	Err        error
}

// transitionEvents returns the events emitted when the pipeline moves from one
// state to the next. It has no side effects.
func transitionEvents(from, to pipelineState, payload transitionPayload) ([]domain.StageEvent, error) {
	switch {
	case from == stateIdle && to == stateExtracting:
		return []domain.StageEvent{running(domain.StageExtract)}, nil

	case from == stateExtracting && to == stateGeneratingLabels:
		return []domain.StageEvent{
			{
				Stage:         domain.StageExtract,
				Status:        domain.StatusComplete,
				TextLength:    payload.TextLength,
				ExtractedText: payload.Preview,
			},
			running(domain.StageLabels),
		}, nil

	case from == stateGeneratingLabels && to == stateClassifying:
		return []domain.StageEvent{
			{Stage: domain.StageLabels, Status: domain.StatusComplete, Labels: payload.Labels},
			running(domain.StageClassify),
		}, nil

	case from == stateClassifying && to == stateDone:
		if payload.Result == nil {
			return nil, errors.New("completion requires a result")
		}
		allScores := payload.Result.AllScores
		confidence := payload.Result.Confidence
		return []domain.StageEvent{
			{Stage: domain.StageClassify, Status: domain.StatusComplete, AllScores: &allScores},
			{
				Stage:      domain.StageComplete,
				Status:     domain.StatusComplete,
				FileName:   payload.Result.FileName,
				Label:      payload.Result.Label,
				Confidence: &confidence,
				AllScores:  &allScores,
			},
		}, nil

	case from.working() && to == stateFailed:
		if from == stateExtracting && domain.IsKind(payload.Err, domain.ErrNoExtractableText) {
			return []domain.StageEvent{
				{Stage: domain.StageExtract, Status: domain.StatusError, Error: domain.ErrNoExtractableText.Error()},
			}, nil
		}
		return []domain.StageEvent{
			{Stage: domain.StageError, Status: domain.StatusError, Error: publicFailure(payload.Err)},
		}, nil
	}

	return nil, fmt.Errorf("invalid pipeline transition %s -> %s", from, to)
}

func publicFailure(err error) string {
	if err == nil {
		return "classification failed"
	}
	return domain.PublicMessage(err)
}

func running(stage domain.Stage) domain.StageEvent {
	return domain.StageEvent{Stage: stage, Status: domain.StatusRunning}
}

// progressMachine walks the pipeline states and hands emitted events to sink.
// A nil sink discards events, which is how synchronous mode runs.
type progressMachine struct {
	state   pipelineState
	sink    ports.StageSink
	sinkErr error
}

func newProgressMachine(sink ports.StageSink) *progressMachine {
	return &progressMachine{state: stateIdle, sink: sink}
}

func (m *progressMachine) advance(to pipelineState, payload transitionPayload) error {
	events, err := transitionEvents(m.state, to, payload)
	if err != nil {
		return err
	}
	m.state = to
	if m.sink == nil {
		return nil
	}
	for _, event := range events {
		if err := m.sink(event); err != nil {
			m.sinkErr = err
			return fmt.Errorf("emit %s/%s event: %w", event.Stage, event.Status, err)
		}
	}
	return nil
}

// fail moves a working pipeline to the failed state. Once the sink itself has
// failed no further events are attempted.
func (m *progressMachine) fail(cause error) {
	if !m.state.working() {
		return
	}
	if m.sinkErr != nil {
		m.state = stateFailed
		return
	}
	_ = m.advance(stateFailed, transitionPayload{Err: cause})
}
