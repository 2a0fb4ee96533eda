package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garyjia/logistics-console/internal/application/port"
	"github.com/garyjia/logistics-console/internal/domain/entity"
	"github.com/garyjia/logistics-console/internal/domain/event"
)

// ActivityRecorder writes every document event to the activity journal
type ActivityRecorder struct {
	repo   port.ActivityRepository
	logger Logger
}

// NewActivityRecorder creates a recorder backed by repo
func NewActivityRecorder(repo port.ActivityRepository, logger Logger) *ActivityRecorder {
	return &ActivityRecorder{
		repo:   repo,
		logger: loggerOrNop(logger),
	}
}

// HandleEvent journals evt. It has the dispatcher's handler signature.
func (r *ActivityRecorder) HandleEvent(ctx context.Context, evt *event.Event) error {
	payload := []byte("{}")
	if len(evt.Payload) > 0 {
		b, err := json.Marshal(evt.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload of %s: %w", evt.Type, err)
		}
		payload = b
	}

	activity := &entity.Activity{
		EventID:      evt.ID,
		EventType:    evt.Type.String(),
		DocumentType: evt.DocumentType,
		DocumentID:   evt.DocumentID,
		ActorID:      evt.ActorID,
		Payload:      string(payload),
		CreatedAt:    evt.Timestamp,
	}
	if err := r.repo.Create(ctx, activity); err != nil {
		r.logger.Error("Failed to record activity", "event_id", evt.ID, "event_type", evt.Type, "error", err)
		return err
	}
	return nil
}

// List returns the newest journal entries of a document
func (r *ActivityRecorder) List(ctx context.Context, documentType, documentID string, limit int) ([]*entity.Activity, error) {
	records, err := r.repo.ListByDocument(ctx, documentType, entity.CanonicalID(documentID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	if records == nil {
		records = []*entity.Activity{}
	}
	return records, nil
}
