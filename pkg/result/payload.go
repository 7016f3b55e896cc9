package result

import (
	"time"

	"github.com/google/uuid"
)

// Payload is the caller-facing envelope of one dispatch call.
type Payload struct {
	ID        uuid.UUID       `json:"id"`
	Backend   string          `json:"backend"`
	Operation string          `json:"operation"`
	Target    string          `json:"target"`
	Outcome   Outcome         `json:"outcome"`
	Summary   Summary         `json:"summary"`
	StartedAt time.Time       `json:"started_at"`
	Duration  string          `json:"duration"`
	Data      *Aggregate[any] `json:"data"`
}

func NewPayload[T any](id uuid.UUID, backend, operation, target string, started time.Time, agg *Aggregate[T]) *Payload {
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &Payload{
		ID:        id,
		Backend:   backend,
		Operation: operation,
		Target:    target,
		Outcome:   agg.Outcome(),
		Summary:   agg.Summary(),
		StartedAt: started.UTC(),
		Duration:  time.Since(started).Round(time.Millisecond).String(),
		Data:      agg.Erased(),
	}
}
