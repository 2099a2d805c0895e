package job

import (
	"fmt"
	"time"

	"jobkernel/pkg/cloudevent"
)

// Event types for job lifecycle notifications
const (
	EventTypeCreated = "jobkernel.job.created"
)

// Event is a job lifecycle event. Created is the only variant today.
type Event interface {
	EventType() string
	Correlation() string
	isEvent()
}

// Created is published after a job has been persisted.
type Created struct {
	CorrelationID string    `json:"correlationId"`
	JobID         int64     `json:"jobId"`
	TargetURL     string    `json:"targetUrl"`
	CreatedAt     time.Time `json:"createdAt"`
}

// EventType implements Event.
func (Created) EventType() string { return EventTypeCreated }

// Correlation implements Event.
func (e Created) Correlation() string { return e.CorrelationID }

func (Created) isEvent() {}

// EventBuilder builds CloudEvents for job lifecycle events.
type EventBuilder struct {
	source string
}

// NewEventBuilder creates a new EventBuilder.
func NewEventBuilder(source string) *EventBuilder {
	return &EventBuilder{source: source}
}

// Build converts a lifecycle event into a CloudEvent. The correlation
// identity travels as the correlationid extension attribute.
func (b *EventBuilder) Build(e Event) *cloudevent.CloudEvent {
	var (
		subject string
		data    map[string]any
	)
	switch ev := e.(type) {
	case Created:
		subject = fmt.Sprintf("%d", ev.JobID)
		data = map[string]any{
			"jobId":     ev.JobID,
			"targetUrl": ev.TargetURL,
		}
	default:
		data = map[string]any{}
	}

	eventID := fmt.Sprintf("%s-%s-%d", e.EventType(), subject, time.Now().UnixNano())
	ce := cloudevent.New(e.EventType(), b.source, subject, eventID, data)
	ce.CorrelationID = e.Correlation()
	return ce
}
