package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// Event is something that happened to a document inside an edit session
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	DocumentType  string                 `json:"document_type"`
	DocumentID    string                 `json:"document_id"`
	ActorID       string                 `json:"actor_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with generated ID and timestamp
func NewEvent(eventType Type, documentType, documentID string, payload map[string]interface{}) *Event {
	id := uuid.NewString()
	return &Event{
		ID:            id,
		Type:          eventType,
		DocumentType:  documentType,
		DocumentID:    documentID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: id,
	}
}

// WithActor returns a copy of the event attributed to actorID
func (e *Event) WithActor(actorID string) *Event {
	cp := *e
	cp.ActorID = actorID
	return &cp
}

// WithCorrelation returns a copy of the event linked to a correlation chain
func (e *Event) WithCorrelation(correlationID string) *Event {
	cp := *e
	cp.CorrelationID = correlationID
	return &cp
}

// WithPayload returns a copy of the event with key set; the receiver is not modified
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	cp := *e
	cp.Payload = newPayload
	return &cp
}

// GetPayloadString retrieves a payload value rendered as a string
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		return cast.ToString(val)
	}
	return ""
}

// GetPayloadInt retrieves a payload value as int64
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		return cast.ToInt64(val)
	}
	return 0
}
