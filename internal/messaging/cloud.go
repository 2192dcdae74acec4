package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskerhq/taskerchat/internal/models"
	"github.com/taskerhq/taskerchat/internal/whatsapp"
)

// MessageRecorder is the slice of the store the cloud service writes to.
type MessageRecorder interface {
	SaveMessage(m *models.Message) error
	MarkMessageSent(id int64, providerID string, at time.Time) error
	MarkMessageFailed(id int64, reason string) error
}

// CloudService sends through the WhatsApp Cloud API and records every
// outbound message. The row is written as pending first; the provider id and
// sent status land after the API accepts it, and failures are recorded with
// the reason instead of retried.
type CloudService struct {
	client   *whatsapp.Client
	recorder MessageRecorder
	now      func() time.Time
}

// NewCloudService wires a Cloud API client to the message store.
func NewCloudService(client *whatsapp.Client, recorder MessageRecorder) *CloudService {
	return &CloudService{client: client, recorder: recorder, now: time.Now}
}

func (s *CloudService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	return CanonicalizePhone(recipient)
}

func (s *CloudService) SendText(ctx context.Context, conversationID int64, to, body string) error {
	if body == "" {
		return models.ErrEmptyMessageBody
	}
	return s.deliver(ctx, conversationID, to, models.MessageTypeText, body, func(ctx context.Context) (string, error) {
		return s.client.SendText(ctx, to, body)
	})
}

func (s *CloudService) SendReply(ctx context.Context, conversationID int64, to string, reply *models.Reply) error {
	msgType := models.MessageTypeText
	if reply.Kind != models.ReplyKindText {
		msgType = models.MessageTypeInteractive
	}
	return s.deliver(ctx, conversationID, to, msgType, reply.Body, func(ctx context.Context) (string, error) {
		return s.client.SendReply(ctx, to, reply)
	})
}

// deliver records the message, runs the send exactly once, and updates the
// row with the outcome. The send error is returned after the row is marked.
func (s *CloudService) deliver(ctx context.Context, conversationID int64, to string, msgType models.MessageType, content string, send func(context.Context) (string, error)) error {
	msg := &models.Message{
		ConversationID: conversationID,
		Direction:      models.DirectionOutbound,
		Type:           msgType,
		Content:        content,
		Status:         models.MessageStatusPending,
		CreatedAt:      s.now(),
	}
	if s.recorder != nil {
		if err := s.recorder.SaveMessage(msg); err != nil {
			return fmt.Errorf("failed to record outbound message: %w", err)
		}
	}

	providerID, err := send(ctx)
	if err != nil {
		slog.Error("Cloud API send failed", "to", to, "type", msgType, "error", err)
		if s.recorder != nil {
			if markErr := s.recorder.MarkMessageFailed(msg.ID, err.Error()); markErr != nil {
				slog.Error("Failed to mark message failed", "message_id", msg.ID, "error", markErr)
			}
		}
		return fmt.Errorf("failed to send %s message: %w", msgType, err)
	}

	if s.recorder != nil {
		if err := s.recorder.MarkMessageSent(msg.ID, providerID, s.now()); err != nil {
			slog.Error("Failed to mark message sent", "message_id", msg.ID, "provider_id", providerID, "error", err)
		}
	}
	slog.Info("Cloud API message sent", "to", to, "type", msgType, "provider_id", providerID)
	return nil
}
