package domain

type Stage string

const (
	StageExtract  Stage = "extract"
	StageLabels   Stage = "labels"
	StageClassify Stage = "classify"
	StageComplete Stage = "complete"
	StageError    Stage = "error"
)

type StageStatus string

const (
	StatusRunning  StageStatus = "running"
	StatusComplete StageStatus = "complete"
	StatusError    StageStatus = "error"
)

// StageEvent is one unit of streamed pipeline progress. Only the fields relevant
// to a given stage/status pair are populated.
type StageEvent struct {
	Stage  Stage       `json:"stage"`
	Status StageStatus `json:"status"`

	TextLength    int    `json:"text_length,omitempty"`
	ExtractedText string `json:"extracted_text,omitempty"`

	Labels []string `json:"labels,omitempty"`

	FileName   string    `json:"file_name,omitempty"`
	Label      string    `json:"label,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	AllScores  *ScoreMap `json:"all_scores,omitempty"`

	Error string `json:"error,omitempty"`
}

func (e StageEvent) IsTerminal() bool {
	return e.Stage == StageComplete || e.Status == StatusError
}
