package model

import "time"

// Mode names the top-level strategy that produced a result.
type Mode string

const (
	ModeHuggingFace Mode = "huggingface"
	ModeAnthropic   Mode = "anthropic"
	ModeGemini      Mode = "gemini"
	ModeLLMRules    Mode = "llm+rules"
)

// Run is one surviving consensus trial.
type Run struct {
	Seed  int    `json:"seed"`
	Shape string `json:"shape"`
	Codes Codes  `json:"codes"`
}

// ExtractionMetadata is attached to every result for auditability.
type ExtractionMetadata struct {
	Mode            Mode          `json:"mode"`
	Model           string        `json:"model"`
	TrialsAttempted int           `json:"llmRuns"`
	Votes           int           `json:"llmVotes"`
	Sources         []string      `json:"sources"`
	Provenance      ProvenanceMap `json:"provenance,omitempty"`
	Digest          string        `json:"digest,omitempty"`
	DurationMs      int64         `json:"durationMs"`
}

// ExtractionResult is the Orchestrator output.
type ExtractionResult struct {
	ID            string             `json:"id"`
	InteractionID string             `json:"interactionId,omitempty"`
	OASIS         Codes              `json:"oasis"`
	Summary       string             `json:"summary"`
	Meta          ExtractionMetadata `json:"meta"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// RuleOnly reports whether no model output contributed to the result.
func (r *ExtractionResult) RuleOnly() bool {
	return r.Meta.Mode == ModeLLMRules && r.Meta.Provenance.Count(SourceRules) == len(ItemKeys)
}

// TranscriptEvent is the final-transcript event emitted by the transcription service.
type TranscriptEvent struct {
	EventType     string  `json:"eventType"`
	InteractionID string  `json:"interactionId"`
	TenantID      string  `json:"tenantId"`
	Timestamp     int64   `json:"timestamp"`
	SegmentID     string  `json:"segmentId,omitempty"`
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence,omitempty"`
}
