package dispatcher

import (
	"context"

	"github.com/garyjia/logistics-console/internal/domain/event"
)

// Handler reacts to one event. Async handlers run on their subscriber's
// goroutine, so a slow handler delays only its own later events.
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a subscription; EventType is empty for handlers
// subscribed to every type
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
