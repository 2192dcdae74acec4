// Package store provides storage backends for TaskerChat.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/taskerhq/taskerchat/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetOrCreateContact(phone, name string) (*models.Contact, error) {
	c, err := scanContact(s.db.QueryRow(
		`SELECT `+contactColumns+` FROM contacts WHERE phone_number = $1`, phone))
	if err == nil {
		if name != "" && c.WhatsAppName != name {
			if _, err := s.db.Exec(`UPDATE contacts SET whatsapp_name = $1 WHERE id = $2`, name, c.ID); err != nil {
				slog.Error("PostgresStore contact name update failed", "error", err, "id", c.ID)
			} else {
				c.WhatsAppName = name
			}
		}
		return c, nil
	}
	if err != sql.ErrNoRows {
		slog.Error("PostgresStore GetOrCreateContact query failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query contact %s: %w", phone, err)
	}

	return scanContact(s.db.QueryRow(
		`INSERT INTO contacts (phone_number, whatsapp_name, created_at) VALUES ($1, $2, $3)
		 RETURNING `+contactColumns,
		phone, nilIfEmpty(name), time.Now()))
}

func (s *PostgresStore) TouchContact(contactID int64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE contacts SET last_interaction_at = $1 WHERE id = $2`, at, contactID)
	if err != nil {
		slog.Error("PostgresStore TouchContact failed", "error", err, "id", contactID)
		return fmt.Errorf("failed to touch contact %d: %w", contactID, err)
	}
	return nil
}

func (s *PostgresStore) ActiveConversation(contactID int64) (*models.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRow(
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE contact_id = $1 AND status = 'open'
		 ORDER BY last_message_at DESC NULLS LAST LIMIT 1`, contactID))
	if err == nil {
		return conv, nil
	}
	if err != sql.ErrNoRows {
		slog.Error("PostgresStore ActiveConversation query failed", "error", err, "contact_id", contactID)
		return nil, fmt.Errorf("failed to query active conversation for contact %d: %w", contactID, err)
	}

	return scanConversation(s.db.QueryRow(
		`INSERT INTO conversations (contact_id, status, created_at) VALUES ($1, 'open', $2)
		 RETURNING `+conversationColumns,
		contactID, time.Now()))
}

func (s *PostgresStore) TouchConversation(conversationID int64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE conversations SET last_message_at = $1 WHERE id = $2`, at, conversationID)
	if err != nil {
		slog.Error("PostgresStore TouchConversation failed", "error", err, "id", conversationID)
		return fmt.Errorf("failed to touch conversation %d: %w", conversationID, err)
	}
	return nil
}

func (s *PostgresStore) SetBotDisabled(conversationID int64, disabled bool) error {
	_, err := s.db.Exec(`UPDATE conversations SET bot_disabled = $1 WHERE id = $2`, disabled, conversationID)
	if err != nil {
		slog.Error("PostgresStore SetBotDisabled failed", "error", err, "id", conversationID)
		return fmt.Errorf("failed to set bot_disabled on conversation %d: %w", conversationID, err)
	}
	return nil
}

func (s *PostgresStore) SaveMessage(m *models.Message) error {
	if m.Status == "" {
		m.Status = models.MessageStatusPending
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	media, err := mediaJSON(m.Media)
	if err != nil {
		return err
	}
	err = s.db.QueryRow(
		`INSERT INTO messages (conversation_id, direction, type, content, media, provider_id, status, sent_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		m.ConversationID, m.Direction, m.Type, nilIfEmpty(m.Content), media,
		nilIfEmpty(m.ProviderID), m.Status, m.SentAt, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		slog.Error("PostgresStore SaveMessage failed", "error", err, "conversation_id", m.ConversationID)
		return fmt.Errorf("failed to insert message for conversation %d: %w", m.ConversationID, err)
	}
	slog.Debug("PostgresStore SaveMessage succeeded", "id", m.ID, "direction", m.Direction, "type", m.Type)
	return nil
}

func (s *PostgresStore) MarkMessageSent(messageID int64, providerID string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE messages SET status = 'sent', provider_id = $1, sent_at = $2
		 WHERE id = $3 AND status = 'pending'`,
		providerID, at, messageID)
	if err != nil {
		slog.Error("PostgresStore MarkMessageSent failed", "error", err, "id", messageID)
		return fmt.Errorf("failed to mark message %d sent: %w", messageID, err)
	}
	return nil
}

func (s *PostgresStore) MarkMessageFailed(messageID int64, reason string) error {
	_, err := s.db.Exec(
		`UPDATE messages SET status = 'failed', failure_reason = $1
		 WHERE id = $2 AND status != 'failed'`,
		reason, messageID)
	if err != nil {
		slog.Error("PostgresStore MarkMessageFailed failed", "error", err, "id", messageID)
		return fmt.Errorf("failed to mark message %d failed: %w", messageID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateMessageStatus(providerID string, status models.MessageStatus, at time.Time) error {
	var err error
	if status == models.MessageStatusFailed {
		_, err = s.db.Exec(
			`UPDATE messages SET status = 'failed' WHERE provider_id = $1 AND status != 'failed'`,
			providerID)
	} else {
		rank := models.StatusRank(status)
		if rank < 0 {
			return fmt.Errorf("unknown message status %q", status)
		}
		var column string
		switch status {
		case models.MessageStatusSent:
			column = "sent_at"
		case models.MessageStatusDelivered:
			column = "delivered_at"
		case models.MessageStatusRead:
			column = "read_at"
		}
		query := `UPDATE messages SET status = $1, ` + column + ` = $2
			 WHERE provider_id = $3 AND status != 'failed' AND ` + rankCase + ` < $4`
		_, err = s.db.Exec(query, status, at, providerID, rank)
	}
	if err != nil {
		slog.Error("PostgresStore UpdateMessageStatus failed", "error", err, "provider_id", providerID, "status", status)
		return fmt.Errorf("failed to update status for message %s: %w", providerID, err)
	}
	slog.Debug("PostgresStore UpdateMessageStatus applied", "provider_id", providerID, "status", status)
	return nil
}

func (s *PostgresStore) SaveNote(n models.ConversationNote) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO conversation_notes (id, conversation_id, kind, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.ConversationID, n.Kind, n.Body, n.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveNote failed", "error", err, "conversation_id", n.ConversationID)
		return fmt.Errorf("failed to insert note for conversation %d: %w", n.ConversationID, err)
	}
	return nil
}

// AddWorkOrder seeds a work order (used by tests and dev tooling).
func (s *PostgresStore) AddWorkOrder(wo models.WorkOrder) error {
	_, err := s.db.Exec(
		`INSERT INTO work_orders (number, customer_id, status, service_name, scheduled_at) VALUES ($1, $2, $3, $4, $5)`,
		wo.Number, wo.CustomerID, wo.Status, nilIfEmpty(wo.ServiceName), wo.ScheduledAt)
	if err != nil {
		return fmt.Errorf("failed to insert work order %s: %w", wo.Number, err)
	}
	return nil
}

func (s *PostgresStore) WorkOrders(customerID *int64) ([]models.WorkOrder, error) {
	var rows *sql.Rows
	var err error
	if customerID != nil {
		rows, err = s.db.Query(`SELECT `+workOrderColumns+` FROM work_orders WHERE customer_id = $1`, *customerID)
	} else {
		rows, err = s.db.Query(`SELECT ` + workOrderColumns + ` FROM work_orders`)
	}
	if err != nil {
		slog.Error("PostgresStore WorkOrders query failed", "error", err)
		return nil, fmt.Errorf("failed to query work orders: %w", err)
	}
	defer rows.Close()

	var orders []models.WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work order row: %w", err)
		}
		orders = append(orders, *wo)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) ListConversations() ([]models.Conversation, error) {
	rows, err := s.db.Query(
		`SELECT ` + conversationColumns + ` FROM conversations ORDER BY last_message_at DESC NULLS LAST`)
	if err != nil {
		slog.Error("PostgresStore ListConversations query failed", "error", err)
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListMessages(conversationID int64) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 ORDER BY id ASC`, conversationID)
	if err != nil {
		slog.Error("PostgresStore ListMessages query failed", "error", err, "conversation_id", conversationID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
