package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// OutcomeKind tells a real service result apart from a locally substituted one.
type OutcomeKind string

const (
	OutcomeSuccess  OutcomeKind = "success"
	OutcomeFallback OutcomeKind = "fallback"
)

type Outcome struct {
	Kind     OutcomeKind
	Attempts int
	Reason   string
}

func (o Outcome) IsFallback() bool {
	return o.Kind == OutcomeFallback
}

// DefaultLabels replace the candidate set when nothing usable came back from the
// generative service.
var DefaultLabels = []string{"document", "text file", "general content"}

const MaxCandidateLabels = 5

type LabelSet struct {
	Labels  []string
	Outcome Outcome
}

func FallbackLabelSet(attempts int, reason string) LabelSet {
	labels := make([]string, len(DefaultLabels))
	copy(labels, DefaultLabels)
	return LabelSet{
		Labels:  labels,
		Outcome: Outcome{Kind: OutcomeFallback, Attempts: attempts, Reason: reason},
	}
}

type LabelScore struct {
	Label string
	Score float64
}

// ScoreMap is a label->score mapping that keeps insertion order. Order matters
// for Best, which breaks ties by first occurrence.
type ScoreMap struct {
	entries []LabelScore
	index   map[string]int
	Outcome Outcome
}

func NewScoreMap() ScoreMap {
	return ScoreMap{index: map[string]int{}}
}

// Set inserts label or overwrites its score in place, keeping the original position.
func (m *ScoreMap) Set(label string, score float64) {
	if m.index == nil {
		m.index = map[string]int{}
	}
	if idx, ok := m.index[label]; ok {
		m.entries[idx].Score = score
		return
	}
	m.index[label] = len(m.entries)
	m.entries = append(m.entries, LabelScore{Label: label, Score: score})
}

func (m ScoreMap) Get(label string) (float64, bool) {
	idx, ok := m.index[label]
	if !ok {
		return 0, false
	}
	return m.entries[idx].Score, true
}

func (m ScoreMap) Len() int {
	return len(m.entries)
}

func (m ScoreMap) Entries() []LabelScore {
	out := make([]LabelScore, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m ScoreMap) Labels() []string {
	out := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, entry.Label)
	}
	return out
}

// Best returns the highest scoring entry. Ties resolve to the entry inserted first.
func (m ScoreMap) Best() (LabelScore, bool) {
	if len(m.entries) == 0 {
		return LabelScore{}, false
	}
	best := m.entries[0]
	for _, entry := range m.entries[1:] {
		if entry.Score > best.Score {
			best = entry
		}
	}
	return best, true
}

// CoversExactly reports whether the map keys equal the given label set.
func (m ScoreMap) CoversExactly(labels []string) bool {
	unique := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		unique[label] = struct{}{}
	}
	if len(unique) != len(m.entries) {
		return false
	}
	for label := range unique {
		if _, ok := m.index[label]; !ok {
			return false
		}
	}
	return true
}

func (m ScoreMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for idx, entry := range m.entries {
		if idx > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Label)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(entry.Score)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *ScoreMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("score map: expected object, got %v", tok)
	}
	out := NewScoreMap()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("score map: expected string key, got %v", keyTok)
		}
		var score float64
		if err := dec.Decode(&score); err != nil {
			return fmt.Errorf("score map: value for %q: %w", key, err)
		}
		out.Set(key, score)
	}
	out.Outcome = m.Outcome
	*m = out
	return nil
}

// UniformScores assigns round4(1/len(labels)) to every distinct label.
func UniformScores(labels []string, reason string) ScoreMap {
	out := NewScoreMap()
	out.Outcome = Outcome{Kind: OutcomeFallback, Attempts: 1, Reason: reason}
	if len(labels) == 0 {
		return out
	}
	score := RoundScore(1.0 / float64(len(labels)))
	for _, label := range labels {
		out.Set(label, score)
	}
	return out
}

func RoundScore(score float64) float64 {
	return math.Round(score*10000) / 10000
}

type ClassificationResult struct {
	Label      string   `json:"label"`
	Confidence float64  `json:"confidence"`
	AllScores  ScoreMap `json:"all_scores"`

	FileName   string   `json:"-"`
	Labels     LabelSet `json:"-"`
	TextLength int      `json:"-"`
}

// BuildResult selects the best label of scores, falling back to the first
// candidate when scores is empty.
func BuildResult(labels LabelSet, scores ScoreMap) ClassificationResult {
	result := ClassificationResult{AllScores: scores, Labels: labels}
	if best, ok := scores.Best(); ok {
		result.Label = best.Label
		result.Confidence = best.Score
		return result
	}
	if len(labels.Labels) > 0 {
		result.Label = labels.Labels[0]
	}
	return result
}

// Degraded lists the stages whose output was substituted by a fallback.
func (r ClassificationResult) Degraded() []string {
	var stages []string
	if r.Labels.Outcome.IsFallback() {
		stages = append(stages, string(StageLabels))
	}
	if r.AllScores.Outcome.IsFallback() {
		stages = append(stages, "scores")
	}
	return stages
}

func (r ClassificationResult) DegradedHeader() string {
	return strings.Join(r.Degraded(), ",")
}

type ClassificationMode string

const (
	ModeSync   ClassificationMode = "sync"
	ModeStream ClassificationMode = "stream"
)

// ClassificationRecord is the audit entry emitted after a successful classification.
type ClassificationRecord struct {
	ID             string             `json:"id"`
	FileName       string             `json:"file_name"`
	Format         DocumentFormat     `json:"format"`
	Mode           ClassificationMode `json:"mode"`
	Label          string             `json:"label"`
	Confidence     float64            `json:"confidence"`
	AllScores      ScoreMap           `json:"all_scores"`
	Labels         []string           `json:"labels"`
	LabelsFallback bool               `json:"labels_fallback"`
	ScoresFallback bool               `json:"scores_fallback"`
	TextLength     int                `json:"text_length"`
	DurationMs     float64            `json:"duration_ms"`
	CreatedAt      time.Time          `json:"created_at"`
}
