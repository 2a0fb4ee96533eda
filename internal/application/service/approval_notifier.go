package service

import (
	"context"
	"fmt"

	"github.com/garyjia/logistics-console/internal/application/port"
	"github.com/garyjia/logistics-console/internal/domain/doctype"
	"github.com/garyjia/logistics-console/internal/domain/event"
	"github.com/garyjia/logistics-console/internal/domain/workflow"
)

// ApprovalNotifier posts a chat message for every confirmed approval decision
type ApprovalNotifier struct {
	sender   port.MessageSender
	chatID   string
	registry *doctype.Registry
	logger   Logger
}

// NewApprovalNotifier creates a notifier posting to chatID. registry supplies
// document titles and may be nil.
func NewApprovalNotifier(sender port.MessageSender, chatID string, registry *doctype.Registry, logger Logger) *ApprovalNotifier {
	return &ApprovalNotifier{
		sender:   sender,
		chatID:   chatID,
		registry: registry,
		logger:   loggerOrNop(logger),
	}
}

// HandleEvent sends the message for an approval.decided event and ignores the rest
func (n *ApprovalNotifier) HandleEvent(ctx context.Context, evt *event.Event) error {
	if evt.Type != event.TypeApprovalDecided {
		return nil
	}

	text := n.message(evt)
	if err := n.sender.SendText(ctx, n.chatID, text); err != nil {
		n.logger.Warn("Approval notification not sent", "document_type", evt.DocumentType, "document_id", evt.DocumentID, "error", err)
		return fmt.Errorf("failed to notify approval decision: %w", err)
	}
	return nil
}

func (n *ApprovalNotifier) message(evt *event.Event) string {
	title := evt.DocumentType
	if n.registry != nil {
		if cfg, err := n.registry.Get(evt.DocumentType); err == nil && cfg.Title != "" {
			title = cfg.Title
		}
	}

	verb := "approved"
	if evt.GetPayloadString("trigger") != workflow.TriggerApprove.String() {
		verb = "withdrew approval of"
	}
	actor := evt.ActorID
	if actor == "" {
		actor = "unknown approver"
	}

	return fmt.Sprintf("Approver %s %s %s #%s. Document status: %s.",
		actor, verb, title, evt.DocumentID, evt.GetPayloadString("aggregate"))
}
