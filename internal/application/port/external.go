package port

import (
	"context"
	"io"

	"github.com/garyjia/logistics-console/internal/domain/entity"
	"github.com/garyjia/logistics-console/internal/domain/event"
)

// IdentityProvider supplies the current user. It returns
// apperrors.ErrMissingIdentity when nobody is signed in.
type IdentityProvider interface {
	Current(ctx context.Context) (*entity.Identity, error)
}

// EventPublisher delivers domain events to subscribers without blocking the caller
type EventPublisher interface {
	DispatchAsync(ctx context.Context, evt *event.Event)
}

// MessageSender posts a plain text message to a chat
type MessageSender interface {
	SendText(ctx context.Context, chatID, text string) error
}

// LineItemExporter renders a document's line items as a spreadsheet
type LineItemExporter interface {
	Export(w io.Writer, sheet ExportSheet) error
}

// ExportSheet is the data of one exported document
type ExportSheet struct {
	Title  string
	Header [][2]string
	Lines  []entity.LineItem
	Totals entity.LineTotals
	// SalesColumns adds sales rate and sales amount columns
	SalesColumns bool
	RateLabel    string
}
