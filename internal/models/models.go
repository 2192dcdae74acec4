// Package models defines the core data structures for TaskerChat.
//
// It includes persisted conversation entities, message status handling, and
// the structured reply shapes produced by the conversation bot.
package models

import (
	"errors"
	"time"
)

// MessageDirection indicates whether a message was received or sent.
type MessageDirection string

const (
	// DirectionInbound marks a message received from a contact.
	DirectionInbound MessageDirection = "inbound"
	// DirectionOutbound marks a message sent by this system.
	DirectionOutbound MessageDirection = "outbound"
)

// MessageType identifies the payload kind of a WhatsApp message.
type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypeImage       MessageType = "image"
	MessageTypeDocument    MessageType = "document"
	MessageTypeVideo       MessageType = "video"
	MessageTypeAudio       MessageType = "audio"
	MessageTypeTemplate    MessageType = "template"
	MessageTypeInteractive MessageType = "interactive"
	MessageTypeLocation    MessageType = "location"
)

// IsValidMessageType checks if the given message type is supported.
func IsValidMessageType(mt MessageType) bool {
	switch mt {
	case MessageTypeText, MessageTypeImage, MessageTypeDocument, MessageTypeVideo,
		MessageTypeAudio, MessageTypeTemplate, MessageTypeInteractive, MessageTypeLocation:
		return true
	default:
		return false
	}
}

// MessageStatus represents the delivery status of an outbound message.
type MessageStatus string

const (
	// MessageStatusPending indicates the message has not been handed to the provider yet.
	MessageStatusPending MessageStatus = "pending"
	// MessageStatusSent indicates the provider accepted the message.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message reached the recipient's device.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the recipient read the message.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the send failed. Terminal.
	MessageStatusFailed MessageStatus = "failed"
)

// statusRanks orders the happy-path statuses. Failed is handled separately
// because it is terminal rather than ordered.
var statusRanks = map[MessageStatus]int{
	MessageStatusPending:   0,
	MessageStatusSent:      1,
	MessageStatusDelivered: 2,
	MessageStatusRead:      3,
}

// StatusRank returns the ordering rank for a status, or -1 for unknown or
// terminal statuses.
func StatusRank(s MessageStatus) int {
	if r, ok := statusRanks[s]; ok {
		return r
	}
	return -1
}

// CanTransitionStatus reports whether moving from one status to another is a
// forward transition. Regressions are rejected: provider status webhooks may
// arrive out of order, and a later "sent" must not clobber "read". Failed is
// terminal and accepts no successor; any non-terminal status may fail.
func CanTransitionStatus(from, to MessageStatus) bool {
	if from == MessageStatusFailed {
		return false
	}
	if to == MessageStatusFailed {
		return true
	}
	fromRank, toRank := StatusRank(from), StatusRank(to)
	if fromRank < 0 || toRank < 0 {
		return false
	}
	return toRank > fromRank
}

// ParseProviderStatus maps a provider status string onto a MessageStatus.
func ParseProviderStatus(s string) (MessageStatus, bool) {
	switch s {
	case "sent":
		return MessageStatusSent, true
	case "delivered":
		return MessageStatusDelivered, true
	case "read":
		return MessageStatusRead, true
	case "failed":
		return MessageStatusFailed, true
	default:
		return "", false
	}
}

// ConversationStatus represents the lifecycle state of a conversation thread.
type ConversationStatus string

const (
	ConversationOpen     ConversationStatus = "open"
	ConversationClosed   ConversationStatus = "closed"
	ConversationArchived ConversationStatus = "archived"
)

// NoteKind classifies bot-captured conversation notes.
type NoteKind string

const (
	// NoteAgentRequest marks a message the contact wanted forwarded to a human agent.
	NoteAgentRequest NoteKind = "agent_request"
	// NoteGeneralInquiry marks a free-form inquiry captured outside the menu flows.
	NoteGeneralInquiry NoteKind = "general_inquiry"
)

// Error variables for better error handling and testability.
var (
	ErrEmptyRecipient     = errors.New("recipient cannot be empty")
	ErrInvalidPhoneNumber = errors.New("invalid phone number")
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrEmptyMessageBody   = errors.New("message body cannot be empty")
	ErrContactNotFound    = errors.New("contact not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrConversationClosed = errors.New("conversation is not open")
)

// Contact represents a WhatsApp contact resolved by phone number.
type Contact struct {
	ID                int64      `json:"id"`
	PhoneNumber       string     `json:"phone_number"` // E.164, digits only
	WhatsAppName      string     `json:"whatsapp_name,omitempty"`
	CustomerID        *int64     `json:"customer_id,omitempty"` // link to the customer record when known
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Conversation identifies a chat thread with a contact. At most one open
// conversation per contact is operated on at a time; the bot always resolves
// the most recent one by LastMessageAt.
type Conversation struct {
	ID            int64              `json:"id"`
	ContactID     int64              `json:"contact_id"`
	Status        ConversationStatus `json:"status"`
	BotDisabled   bool               `json:"bot_disabled"` // staff takeover: bot must stay silent
	AssignedTo    string             `json:"assigned_to,omitempty"`
	LastMessageAt *time.Time         `json:"last_message_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// MediaInfo carries type-specific fields for non-text messages.
type MediaInfo struct {
	ProviderMediaID string  `json:"provider_media_id,omitempty"`
	MimeType        string  `json:"mime_type,omitempty"`
	Caption         string  `json:"caption,omitempty"`
	Filename        string  `json:"filename,omitempty"`
	Latitude        float64 `json:"latitude,omitempty"`
	Longitude       float64 `json:"longitude,omitempty"`
	Address         string  `json:"address,omitempty"`
}

// Message is a persisted chat message. Rows are append-only except for the
// status field and its timestamps.
type Message struct {
	ID             int64            `json:"id"`
	ConversationID int64            `json:"conversation_id"`
	Direction      MessageDirection `json:"direction"`
	Type           MessageType      `json:"type"`
	Content        string           `json:"content,omitempty"`
	Media          *MediaInfo       `json:"media,omitempty"`
	ProviderID     string           `json:"provider_id,omitempty"` // wamid assigned by the provider
	Status         MessageStatus    `json:"status"`
	FailureReason  string           `json:"failure_reason,omitempty"`
	SentAt         *time.Time       `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time       `json:"delivered_at,omitempty"`
	ReadAt         *time.Time       `json:"read_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// ConversationNote is a bot-captured note attached to a conversation, created
// by the talk-to-agent and other-inquiry flows.
type ConversationNote struct {
	ID             string    `json:"id"` // uuid
	ConversationID int64     `json:"conversation_id"`
	Kind           NoteKind  `json:"kind"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// WorkOrder is the read model for field-service orders the bot can look up.
type WorkOrder struct {
	ID          int64      `json:"id"`
	Number      string     `json:"number"` // e.g. WO-2025-00123
	CustomerID  int64      `json:"customer_id"`
	Status      string     `json:"status"`
	ServiceName string     `json:"service_name,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}
