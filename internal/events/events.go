package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeAttemptGraded = "exam.attempt_graded"

	EventSource  = "grading-service"
	EventVersion = "1.0"
)

// Event is the envelope published to the broker.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    EventSource,
		Version:   EventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// AttemptGradedData carries no user identity; consumers build aggregate statistics from it.
type AttemptGradedData struct {
	AttemptID     *uint    `json:"attempt_id,omitempty"`
	Flow          string   `json:"flow"`
	Year          string   `json:"year"`
	Section       string   `json:"section"`
	Form          string   `json:"form"`
	RawScore      int      `json:"raw_score"`
	OfficialTotal int      `json:"official_total"`
	StandardScore *float64 `json:"standard_score"`
	Percentile    *float64 `json:"percentile"`
	WrongItems    []int    `json:"wrong_items"`
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
	Close() error
}
