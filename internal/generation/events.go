package generation

import (
	"context"
	"log/slog"
	"time"

	"mulmocast-backend/internal/models"
)

type EventType string

const (
	EventRequested EventType = "generation.requested"
	EventProgress  EventType = "generation.progress"
	EventCompleted EventType = "generation.completed"
	EventFailed    EventType = "generation.failed"
	EventCancelled EventType = "generation.cancelled"
)

// Event describes one lifecycle transition of a generation job.
type Event struct {
	Type         EventType               `json:"event"`
	GenerationID int64                   `json:"generation_id"`
	ProjectID    int64                   `json:"project_id"`
	Status       models.GenerationStatus `json:"status"`
	Progress     int                     `json:"progress"`
	OutputURL    *string                 `json:"output_url,omitempty"`
	ErrorMessage *string                 `json:"error_message,omitempty"`
	OccurredAt   time.Time               `json:"occurred_at"`
}

// Publisher receives every lifecycle event. Publish errors are logged and
// never affect the job.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

func NewEvent(g *models.Generation) Event {
	return Event{
		Type:         eventTypeFor(g.Status),
		GenerationID: g.ID,
		ProjectID:    g.ProjectID,
		Status:       g.Status,
		Progress:     g.Progress,
		OutputURL:    g.OutputURL,
		ErrorMessage: g.ErrorMessage,
		OccurredAt:   time.Now().UTC(),
	}
}

func eventTypeFor(status models.GenerationStatus) EventType {
	switch status {
	case models.GenerationProcessing:
		return EventProgress
	case models.GenerationCompleted:
		return EventCompleted
	case models.GenerationError:
		return EventFailed
	case models.GenerationCancelled:
		return EventCancelled
	default:
		return EventRequested
	}
}

// Payload flattens the event for transports that take loose maps.
func (e Event) Payload() map[string]interface{} {
	payload := map[string]interface{}{
		"event":         string(e.Type),
		"generation_id": e.GenerationID,
		"project_id":    e.ProjectID,
		"status":        string(e.Status),
		"progress":      e.Progress,
		"occurred_at":   e.OccurredAt,
	}
	if e.OutputURL != nil {
		payload["output_url"] = *e.OutputURL
	}
	if e.ErrorMessage != nil {
		payload["error_message"] = *e.ErrorMessage
	}
	return payload
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	attrs := []any{
		"event", event.Type,
		"generation_id", event.GenerationID,
		"project_id", event.ProjectID,
		"status", event.Status,
		"progress", event.Progress,
	}
	if event.ErrorMessage != nil {
		attrs = append(attrs, "error", *event.ErrorMessage)
	}
	p.logger.InfoContext(ctx, "generation event", attrs...)
	return nil
}
