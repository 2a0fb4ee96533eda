package lark

import (
	"context"
	"encoding/json"
	"fmt"

	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/logistics-console/internal/application/port"
)

const (
	receiveIDTypeChat = "chat_id"
	msgTypeText       = "text"
)

// Messenger implements port.MessageSender with the im/v1 message API
type Messenger struct {
	client *Client
	logger *zap.Logger
}

// NewMessenger creates a message sender over client
func NewMessenger(client *Client, logger *zap.Logger) *Messenger {
	return &Messenger{
		client: client,
		logger: logger,
	}
}

// SendText posts text to a group chat
func (m *Messenger) SendText(ctx context.Context, chatID, text string) error {
	if chatID == "" {
		return fmt.Errorf("chat id cannot be empty")
	}
	if text == "" {
		return fmt.Errorf("message text cannot be empty")
	}

	content, err := textContent(text)
	if err != nil {
		return err
	}

	req := larkIm.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDTypeChat).
		Body(larkIm.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(msgTypeText).
			Content(content).
			Build()).
		Build()

	resp, err := m.client.sdk.Im.Message.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("chat_id", chatID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}
	if !resp.Success() {
		m.logger.Error("Lark API returned failure",
			zap.String("chat_id", chatID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("lark API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	m.logger.Debug("Message sent",
		zap.String("message_id", messageID),
		zap.String("chat_id", chatID))
	return nil
}

// textContent renders the content field of a text message
func textContent(text string) (string, error) {
	b, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	return string(b), nil
}

var _ port.MessageSender = (*Messenger)(nil)
