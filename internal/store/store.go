// Package store provides storage backends for TaskerChat.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL stores with embedded migrations for deployment.
package store

import (
	"strings"
	"time"

	"github.com/taskerhq/taskerchat/internal/models"
)

// Opts holds configuration options for store construction.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the store DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the store DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-style DSNs and "sqlite"
// for anything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Store is the persistence interface used by the webhook pipeline, the
// messaging transport, and the read API.
type Store interface {
	// GetOrCreateContact resolves a contact by phone number, creating it on
	// first sight. A non-empty name updates the stored WhatsApp profile name.
	GetOrCreateContact(phone, name string) (*models.Contact, error)
	// TouchContact updates the contact's last interaction timestamp.
	TouchContact(contactID int64, at time.Time) error

	// ActiveConversation returns the contact's open conversation with the
	// most recent last_message_at, creating one when none is open.
	ActiveConversation(contactID int64) (*models.Conversation, error)
	// TouchConversation updates the conversation's last message timestamp.
	TouchConversation(conversationID int64, at time.Time) error
	// SetBotDisabled flips the staff-takeover flag on a conversation.
	SetBotDisabled(conversationID int64, disabled bool) error

	// SaveMessage persists a message row and assigns its ID.
	SaveMessage(m *models.Message) error
	// MarkMessageSent records provider acceptance of an outbound message.
	MarkMessageSent(messageID int64, providerID string, at time.Time) error
	// MarkMessageFailed records a send failure. Terminal.
	MarkMessageFailed(messageID int64, reason string) error
	// UpdateMessageStatus applies a provider status event to the message with
	// the given provider ID. Regressions are ignored, not errors: out-of-order
	// webhook deliveries must not move a message backward.
	UpdateMessageStatus(providerID string, status models.MessageStatus, at time.Time) error

	// SaveNote persists a bot-captured conversation note.
	SaveNote(n models.ConversationNote) error

	// WorkOrders returns work orders, scoped to a customer when customerID is
	// non-nil. Fuzzy number matching happens in the bot.
	WorkOrders(customerID *int64) ([]models.WorkOrder, error)

	// ListConversations returns conversations newest-first for the read API.
	ListConversations() ([]models.Conversation, error)
	// ListMessages returns a conversation's messages oldest-first.
	ListMessages(conversationID int64) ([]models.Message, error)

	Close() error
}
