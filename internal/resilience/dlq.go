package resilience

import (
	"time"

	"github.com/sells-group/oasis-extract/internal/model"
)

// DeadLetter is a transcript event the worker could not process.
type DeadLetter struct {
	ID            string                `json:"id"`
	InteractionID string                `json:"interactionId"`
	Event         model.TranscriptEvent `json:"event"`
	Error         string                `json:"error"`
	Class         ErrorClass            `json:"class"`
	Attempts      int                   `json:"attempts"`
	CreatedAt     time.Time             `json:"createdAt"`
}

// DeadLetterFilter narrows a dead letter listing.
type DeadLetterFilter struct {
	Class ErrorClass
	Limit int
}

// NewDeadLetter records ev failing with err after attempts tries.
func NewDeadLetter(id string, ev model.TranscriptEvent, err error, attempts int, at time.Time) DeadLetter {
	return DeadLetter{
		ID:            id,
		InteractionID: ev.InteractionID,
		Event:         ev,
		Error:         err.Error(),
		Class:         Classify(err),
		Attempts:      attempts,
		CreatedAt:     at.UTC(),
	}
}
