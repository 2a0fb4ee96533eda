package entity

import "time"

// Activity is a journal entry for something that happened to a document
type Activity struct {
	ID           int64     `json:"id"`
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	DocumentType string    `json:"document_type"`
	DocumentID   string    `json:"document_id"`
	ActorID      string    `json:"actor_id,omitempty"`
	Payload      string    `json:"payload"`
	CreatedAt    time.Time `json:"created_at"`
}
