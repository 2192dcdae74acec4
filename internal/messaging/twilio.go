package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/taskerhq/taskerchat/internal/models"
)

// TwilioService is a fallback transport through Twilio's WhatsApp channel,
// for deployments without Cloud API access. Interactive replies degrade to
// numbered text since Twilio's basic message API has no native list or
// button shapes.
type TwilioService struct {
	client   *twilio.RestClient
	from     string
	recorder MessageRecorder
	now      func() time.Time
}

// NewTwilioService builds the fallback transport. from is the Twilio
// WhatsApp sender, e.g. "whatsapp:+14155238886".
func NewTwilioService(accountSID, authToken, from string, recorder MessageRecorder) (*TwilioService, error) {
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("twilio service requires account SID and auth token")
	}
	if from == "" {
		return nil, fmt.Errorf("twilio service requires a from number")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioService{client: client, from: from, recorder: recorder, now: time.Now}, nil
}

func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	return CanonicalizePhone(recipient)
}

func (s *TwilioService) SendText(ctx context.Context, conversationID int64, to, body string) error {
	if body == "" {
		return models.ErrEmptyMessageBody
	}
	return s.deliver(conversationID, to, body)
}

func (s *TwilioService) SendReply(ctx context.Context, conversationID int64, to string, reply *models.Reply) error {
	return s.deliver(conversationID, to, FlattenReply(reply))
}

func (s *TwilioService) deliver(conversationID int64, to, body string) error {
	msg := &models.Message{
		ConversationID: conversationID,
		Direction:      models.DirectionOutbound,
		Type:           models.MessageTypeText,
		Content:        body,
		Status:         models.MessageStatusPending,
		CreatedAt:      s.now(),
	}
	if s.recorder != nil {
		if err := s.recorder.SaveMessage(msg); err != nil {
			return fmt.Errorf("failed to record outbound message: %w", err)
		}
	}

	params := &api.CreateMessageParams{}
	params.SetFrom(s.from)
	params.SetTo("whatsapp:+" + to)
	params.SetBody(body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio send failed", "to", to, "error", err)
		if s.recorder != nil {
			if markErr := s.recorder.MarkMessageFailed(msg.ID, err.Error()); markErr != nil {
				slog.Error("Failed to mark message failed", "message_id", msg.ID, "error", markErr)
			}
		}
		return fmt.Errorf("failed to send twilio message: %w", err)
	}

	providerID := ""
	if resp.Sid != nil {
		providerID = *resp.Sid
	}
	if s.recorder != nil {
		if err := s.recorder.MarkMessageSent(msg.ID, providerID, s.now()); err != nil {
			slog.Error("Failed to mark message sent", "message_id", msg.ID, "provider_id", providerID, "error", err)
		}
	}
	slog.Info("Twilio message sent", "to", to, "sid", providerID)
	return nil
}

// FlattenReply renders an interactive reply as plain numbered text for
// transports without interactive message support.
func FlattenReply(reply *models.Reply) string {
	if reply.Kind == models.ReplyKindText {
		return reply.Body
	}

	var sb strings.Builder
	if reply.Header != "" {
		sb.WriteString("*" + reply.Header + "*\n")
	}
	sb.WriteString(reply.Body)

	switch reply.Kind {
	case models.ReplyKindList:
		n := 1
		for _, section := range reply.Sections {
			for _, row := range section.Rows {
				sb.WriteString(fmt.Sprintf("\n%d. %s", n, row.Title))
				if row.Description != "" {
					sb.WriteString(" - " + row.Description)
				}
				n++
			}
		}
		sb.WriteString("\n\nReply with a number to choose.")
	case models.ReplyKindButtons:
		for i, b := range reply.Buttons {
			sb.WriteString(fmt.Sprintf("\n%d. %s", i+1, b.Title))
		}
		sb.WriteString("\n\nReply with a number to choose.")
	}

	if reply.Footer != "" {
		sb.WriteString("\n_" + reply.Footer + "_")
	}
	return sb.String()
}
