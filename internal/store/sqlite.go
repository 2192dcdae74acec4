// Package store provides storage backends for TaskerChat.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/taskerhq/taskerchat/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path; a missing parent directory is created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

const contactColumns = `id, phone_number, whatsapp_name, customer_id, last_interaction_at, created_at`

func (s *SQLiteStore) GetOrCreateContact(phone, name string) (*models.Contact, error) {
	c, err := scanContact(s.db.QueryRow(
		`SELECT `+contactColumns+` FROM contacts WHERE phone_number = ?`, phone))
	if err == nil {
		if name != "" && c.WhatsAppName != name {
			if _, err := s.db.Exec(`UPDATE contacts SET whatsapp_name = ? WHERE id = ?`, name, c.ID); err != nil {
				slog.Error("SQLiteStore contact name update failed", "error", err, "id", c.ID)
			} else {
				c.WhatsAppName = name
			}
		}
		return c, nil
	}
	if err != sql.ErrNoRows {
		slog.Error("SQLiteStore GetOrCreateContact query failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query contact %s: %w", phone, err)
	}

	res, err := s.db.Exec(
		`INSERT INTO contacts (phone_number, whatsapp_name, created_at) VALUES (?, ?, ?)`,
		phone, nilIfEmpty(name), time.Now())
	if err != nil {
		slog.Error("SQLiteStore contact insert failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to insert contact %s: %w", phone, err)
	}
	id, _ := res.LastInsertId()
	slog.Debug("SQLiteStore contact created", "phone", phone, "id", id)
	return scanContact(s.db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id))
}

func (s *SQLiteStore) TouchContact(contactID int64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE contacts SET last_interaction_at = ? WHERE id = ?`, at, contactID)
	if err != nil {
		slog.Error("SQLiteStore TouchContact failed", "error", err, "id", contactID)
		return fmt.Errorf("failed to touch contact %d: %w", contactID, err)
	}
	return nil
}

const conversationColumns = `id, contact_id, status, bot_disabled, assigned_to, last_message_at, created_at`

func (s *SQLiteStore) ActiveConversation(contactID int64) (*models.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRow(
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE contact_id = ? AND status = 'open'
		 ORDER BY last_message_at DESC NULLS LAST LIMIT 1`, contactID))
	if err == nil {
		return conv, nil
	}
	if err != sql.ErrNoRows {
		slog.Error("SQLiteStore ActiveConversation query failed", "error", err, "contact_id", contactID)
		return nil, fmt.Errorf("failed to query active conversation for contact %d: %w", contactID, err)
	}

	res, err := s.db.Exec(
		`INSERT INTO conversations (contact_id, status, created_at) VALUES (?, 'open', ?)`,
		contactID, time.Now())
	if err != nil {
		slog.Error("SQLiteStore conversation insert failed", "error", err, "contact_id", contactID)
		return nil, fmt.Errorf("failed to create conversation for contact %d: %w", contactID, err)
	}
	id, _ := res.LastInsertId()
	slog.Debug("SQLiteStore conversation created", "contact_id", contactID, "id", id)
	return scanConversation(s.db.QueryRow(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
}

func (s *SQLiteStore) TouchConversation(conversationID int64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE conversations SET last_message_at = ? WHERE id = ?`, at, conversationID)
	if err != nil {
		slog.Error("SQLiteStore TouchConversation failed", "error", err, "id", conversationID)
		return fmt.Errorf("failed to touch conversation %d: %w", conversationID, err)
	}
	return nil
}

func (s *SQLiteStore) SetBotDisabled(conversationID int64, disabled bool) error {
	_, err := s.db.Exec(`UPDATE conversations SET bot_disabled = ? WHERE id = ?`, disabled, conversationID)
	if err != nil {
		slog.Error("SQLiteStore SetBotDisabled failed", "error", err, "id", conversationID)
		return fmt.Errorf("failed to set bot_disabled on conversation %d: %w", conversationID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveMessage(m *models.Message) error {
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
	res, err := s.db.Exec(
		`INSERT INTO messages (conversation_id, direction, type, content, media, provider_id, status, sent_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ConversationID, m.Direction, m.Type, nilIfEmpty(m.Content), media,
		nilIfEmpty(m.ProviderID), m.Status, m.SentAt, m.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveMessage failed", "error", err, "conversation_id", m.ConversationID)
		return fmt.Errorf("failed to insert message for conversation %d: %w", m.ConversationID, err)
	}
	m.ID, _ = res.LastInsertId()
	slog.Debug("SQLiteStore SaveMessage succeeded", "id", m.ID, "direction", m.Direction, "type", m.Type)
	return nil
}

func (s *SQLiteStore) MarkMessageSent(messageID int64, providerID string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE messages SET status = 'sent', provider_id = ?, sent_at = ?
		 WHERE id = ? AND status = 'pending'`,
		providerID, at, messageID)
	if err != nil {
		slog.Error("SQLiteStore MarkMessageSent failed", "error", err, "id", messageID)
		return fmt.Errorf("failed to mark message %d sent: %w", messageID, err)
	}
	return nil
}

func (s *SQLiteStore) MarkMessageFailed(messageID int64, reason string) error {
	_, err := s.db.Exec(
		`UPDATE messages SET status = 'failed', failure_reason = ?
		 WHERE id = ? AND status != 'failed'`,
		reason, messageID)
	if err != nil {
		slog.Error("SQLiteStore MarkMessageFailed failed", "error", err, "id", messageID)
		return fmt.Errorf("failed to mark message %d failed: %w", messageID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateMessageStatus(providerID string, status models.MessageStatus, at time.Time) error {
	var err error
	if status == models.MessageStatusFailed {
		_, err = s.db.Exec(
			`UPDATE messages SET status = 'failed' WHERE provider_id = ? AND status != 'failed'`,
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
		// The rank guard makes the update idempotent and regression-proof
		// even under concurrent webhook deliveries.
		query := `UPDATE messages SET status = ?, ` + column + ` = ?
			 WHERE provider_id = ? AND status != 'failed' AND ` + rankCase + ` < ?`
		_, err = s.db.Exec(query, status, at, providerID, rank)
	}
	if err != nil {
		slog.Error("SQLiteStore UpdateMessageStatus failed", "error", err, "provider_id", providerID, "status", status)
		return fmt.Errorf("failed to update status for message %s: %w", providerID, err)
	}
	slog.Debug("SQLiteStore UpdateMessageStatus applied", "provider_id", providerID, "status", status)
	return nil
}

func (s *SQLiteStore) SaveNote(n models.ConversationNote) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO conversation_notes (id, conversation_id, kind, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.ConversationID, n.Kind, n.Body, n.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveNote failed", "error", err, "conversation_id", n.ConversationID)
		return fmt.Errorf("failed to insert note for conversation %d: %w", n.ConversationID, err)
	}
	slog.Debug("SQLiteStore SaveNote succeeded", "conversation_id", n.ConversationID, "kind", n.Kind)
	return nil
}

const workOrderColumns = `id, number, customer_id, status, service_name, scheduled_at`

// AddWorkOrder seeds a work order (used by tests and dev tooling).
func (s *SQLiteStore) AddWorkOrder(wo models.WorkOrder) error {
	_, err := s.db.Exec(
		`INSERT INTO work_orders (number, customer_id, status, service_name, scheduled_at) VALUES (?, ?, ?, ?, ?)`,
		wo.Number, wo.CustomerID, wo.Status, nilIfEmpty(wo.ServiceName), wo.ScheduledAt)
	if err != nil {
		return fmt.Errorf("failed to insert work order %s: %w", wo.Number, err)
	}
	return nil
}

func (s *SQLiteStore) WorkOrders(customerID *int64) ([]models.WorkOrder, error) {
	var rows *sql.Rows
	var err error
	if customerID != nil {
		rows, err = s.db.Query(`SELECT `+workOrderColumns+` FROM work_orders WHERE customer_id = ?`, *customerID)
	} else {
		rows, err = s.db.Query(`SELECT ` + workOrderColumns + ` FROM work_orders`)
	}
	if err != nil {
		slog.Error("SQLiteStore WorkOrders query failed", "error", err)
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

func (s *SQLiteStore) ListConversations() ([]models.Conversation, error) {
	rows, err := s.db.Query(
		`SELECT ` + conversationColumns + ` FROM conversations ORDER BY last_message_at DESC NULLS LAST`)
	if err != nil {
		slog.Error("SQLiteStore ListConversations query failed", "error", err)
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

const messageColumns = `id, conversation_id, direction, type, content, media, provider_id, status, failure_reason, sent_at, delivered_at, read_at, created_at`

func (s *SQLiteStore) ListMessages(conversationID int64) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY id ASC`, conversationID)
	if err != nil {
		slog.Error("SQLiteStore ListMessages query failed", "error", err, "conversation_id", conversationID)
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

// MessageByProviderID returns a message by its provider ID (for tests).
func (s *SQLiteStore) MessageByProviderID(providerID string) (*models.Message, error) {
	m, err := scanMessage(s.db.QueryRow(
		`SELECT `+messageColumns+` FROM messages WHERE provider_id = ?`, providerID))
	if err == sql.ErrNoRows {
		return nil, models.ErrMessageNotFound
	}
	return m, err
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
