package metrics

import (
	"context"

	"github.com/garyjia/logistics-console/internal/domain/event"
)

// HandleEvent turns document events into counters. It is subscribed to every event type.
func (m *Metrics) HandleEvent(_ context.Context, evt *event.Event) error {
	if m == nil {
		return nil
	}

	switch evt.Type {
	case event.TypeApprovalDecided:
		m.RecordDecision(evt.DocumentType, evt.GetPayloadString("to"))
	case event.TypeLineItemAdded, event.TypeLineItemUpdated, event.TypeLineItemRemoved:
		m.RecordLineItem(evt.DocumentType, evt.Type.Action())
	case event.TypeParentMismatch:
		m.RecordParentMismatch(evt.DocumentType, int(evt.GetPayloadInt("rows")))
	case event.TypeReferenceUnavailable:
		m.RecordReferenceUnavailable(evt.GetPayloadString("kind"))
	}
	return nil
}
