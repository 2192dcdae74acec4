// Package webhook turns validated Cloud API webhook payloads into store
// writes and bot turns.
//
// One payload can carry several entries and changes; each inbound message is
// processed independently so one bad message never drops its siblings.
// Status events are applied through the store's monotonic guard, which makes
// out-of-order provider deliveries harmless.
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/taskerhq/taskerchat/internal/bot"
	"github.com/taskerhq/taskerchat/internal/messaging"
	"github.com/taskerhq/taskerchat/internal/models"
	"github.com/taskerhq/taskerchat/internal/store"
)

// Processor consumes webhook payloads.
type Processor struct {
	store  store.Store
	bot    *bot.Bot
	sender messaging.Service
	now    func() time.Time
}

// NewProcessor wires the webhook pipeline.
func NewProcessor(st store.Store, b *bot.Bot, sender messaging.Service) *Processor {
	return &Processor{store: st, bot: b, sender: sender, now: time.Now}
}

// Process walks every entry and change in the payload. Message-level
// failures are logged and skipped; only systemic failures propagate.
func (p *Processor) Process(ctx context.Context, payload *models.WebhookPayload) error {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "" && change.Field != "messages" {
				slog.Debug("Skipping webhook change", "field", change.Field)
				continue
			}
			p.processValue(ctx, &change.Value)
		}
	}
	return nil
}

func (p *Processor) processValue(ctx context.Context, value *models.WebhookValue) {
	names := contactNames(value.Contacts)

	for i := range value.Messages {
		msg := &value.Messages[i]
		if err := p.processMessage(ctx, msg, names[msg.From]); err != nil {
			slog.Error("Failed to process inbound message", "provider_id", msg.ID, "from", msg.From, "error", err)
		}
	}

	for i := range value.Statuses {
		p.applyStatus(&value.Statuses[i])
	}

	for _, pe := range value.Errors {
		slog.Warn("Webhook carried provider error", "code", pe.Code, "title", pe.Title, "message", pe.Message)
	}
}

func contactNames(contacts []models.WebhookContact) map[string]string {
	names := make(map[string]string, len(contacts))
	for _, c := range contacts {
		if c.Profile.Name != "" {
			names[c.WaID] = c.Profile.Name
		}
	}
	return names
}

func (p *Processor) processMessage(ctx context.Context, msg *models.InboundMessage, profileName string) error {
	contact, err := p.store.GetOrCreateContact(msg.From, profileName)
	if err != nil {
		return fmt.Errorf("failed to resolve contact: %w", err)
	}
	conversation, err := p.store.ActiveConversation(contact.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve conversation: %w", err)
	}

	text, record, ok := classifyInbound(msg)
	if !ok {
		slog.Info("Skipping unsupported message type", "type", msg.Type, "provider_id", msg.ID)
		return nil
	}

	record.ConversationID = conversation.ID
	record.CreatedAt = p.now()
	if err := p.store.SaveMessage(record); err != nil {
		return fmt.Errorf("failed to persist inbound message: %w", err)
	}

	at := p.now()
	if err := p.store.TouchContact(contact.ID, at); err != nil {
		slog.Error("Failed to touch contact", "contact_id", contact.ID, "error", err)
	}
	if err := p.store.TouchConversation(conversation.ID, at); err != nil {
		slog.Error("Failed to touch conversation", "conversation_id", conversation.ID, "error", err)
	}

	// A shared location carries no menu intent; keep the row for the agent
	// and leave the chat alone.
	if record.Type == models.MessageTypeLocation {
		return nil
	}

	reply, err := p.bot.ProcessMessage(ctx, bot.Input{
		Text:         text,
		Phone:        msg.From,
		Conversation: conversation,
		Contact:      contact,
	})
	if err != nil {
		return fmt.Errorf("bot failed: %w", err)
	}
	if reply == nil {
		return nil
	}

	to, err := p.sender.ValidateAndCanonicalizeRecipient(msg.From)
	if err != nil {
		return fmt.Errorf("inbound sender is not a sendable recipient: %w", err)
	}
	if err := p.sender.SendReply(ctx, conversation.ID, to, reply); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

// classifyInbound maps a webhook message onto the text the bot sees and the
// row to persist. ok is false for types the pipeline does not handle.
func classifyInbound(msg *models.InboundMessage) (text string, record *models.Message, ok bool) {
	record = &models.Message{
		Direction:  models.DirectionInbound,
		ProviderID: msg.ID,
		Status:     models.MessageStatusDelivered,
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return "", nil, false
		}
		record.Type = models.MessageTypeText
		record.Content = msg.Text.Body
		return msg.Text.Body, record, true

	case "interactive":
		selection := msg.Interactive.SelectionID()
		if selection == "" {
			return "", nil, false
		}
		record.Type = models.MessageTypeInteractive
		record.Content = selection
		return selection, record, true

	case "image", "audio", "video":
		var media *models.InboundMedia
		switch msg.Type {
		case "image":
			media = msg.Image
		case "audio":
			media = msg.Audio
		case "video":
			media = msg.Video
		}
		if media == nil {
			return "", nil, false
		}
		record.Type = models.MessageType(msg.Type)
		record.Content = media.Caption
		record.Media = &models.MediaInfo{ProviderMediaID: media.ID, MimeType: media.MimeType, Caption: media.Caption}
		// Media carries no menu intent; the caption, possibly empty, is
		// what the bot gets.
		return media.Caption, record, true

	case "document":
		if msg.Document == nil {
			return "", nil, false
		}
		record.Type = models.MessageTypeDocument
		record.Content = msg.Document.Caption
		record.Media = &models.MediaInfo{
			ProviderMediaID: msg.Document.ID,
			MimeType:        msg.Document.MimeType,
			Caption:         msg.Document.Caption,
			Filename:        msg.Document.Filename,
		}
		return msg.Document.Caption, record, true

	case "location":
		if msg.Location == nil {
			return "", nil, false
		}
		record.Type = models.MessageTypeLocation
		record.Content = msg.Location.Name
		record.Media = &models.MediaInfo{
			Latitude:  msg.Location.Latitude,
			Longitude: msg.Location.Longitude,
			Address:   msg.Location.Address,
		}
		return "", record, true

	default:
		return "", nil, false
	}
}

func (p *Processor) applyStatus(update *models.StatusUpdate) {
	status, ok := models.ParseProviderStatus(update.Status)
	if !ok {
		slog.Warn("Unknown provider status", "status", update.Status, "provider_id", update.ID)
		return
	}

	at := p.now()
	if ts, err := strconv.ParseInt(update.Timestamp, 10, 64); err == nil && ts > 0 {
		at = time.Unix(ts, 0)
	}

	if err := p.store.UpdateMessageStatus(update.ID, status, at); err != nil {
		slog.Error("Failed to apply status update", "provider_id", update.ID, "status", status, "error", err)
		return
	}
	if status == models.MessageStatusFailed && len(update.Errors) > 0 {
		slog.Warn("Outbound message failed", "provider_id", update.ID, "code", update.Errors[0].Code, "title", update.Errors[0].Title)
	}
	slog.Debug("Applied status update", "provider_id", update.ID, "status", status)
}
