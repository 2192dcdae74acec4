package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/taskerhq/taskerchat/internal/models"
)

// rankCase is the SQL expression mirroring models.StatusRank, used by the
// guarded status UPDATE so racing webhook deliveries cannot regress a row.
const rankCase = `CASE status WHEN 'pending' THEN 0 WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 WHEN 'read' THEN 3 ELSE -1 END`

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// mediaJSON serializes MediaInfo for the nullable media column.
func mediaJSON(m *models.MediaInfo) (interface{}, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal media info: %w", err)
	}
	return string(data), nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanContact(sc scanner) (*models.Contact, error) {
	var c models.Contact
	var name sql.NullString
	var customerID sql.NullInt64
	var lastInteraction sql.NullTime
	err := sc.Scan(&c.ID, &c.PhoneNumber, &name, &customerID, &lastInteraction, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.WhatsAppName = name.String
	if customerID.Valid {
		c.CustomerID = &customerID.Int64
	}
	if lastInteraction.Valid {
		c.LastInteractionAt = &lastInteraction.Time
	}
	return &c, nil
}

func scanConversation(sc scanner) (*models.Conversation, error) {
	var conv models.Conversation
	var assignedTo sql.NullString
	var lastMessage sql.NullTime
	err := sc.Scan(&conv.ID, &conv.ContactID, &conv.Status, &conv.BotDisabled, &assignedTo, &lastMessage, &conv.CreatedAt)
	if err != nil {
		return nil, err
	}
	conv.AssignedTo = assignedTo.String
	if lastMessage.Valid {
		conv.LastMessageAt = &lastMessage.Time
	}
	return &conv, nil
}

func scanMessage(sc scanner) (*models.Message, error) {
	var m models.Message
	var content, media, providerID, failureReason sql.NullString
	var sentAt, deliveredAt, readAt sql.NullTime
	err := sc.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.Type, &content, &media,
		&providerID, &m.Status, &failureReason, &sentAt, &deliveredAt, &readAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Content = content.String
	m.ProviderID = providerID.String
	m.FailureReason = failureReason.String
	if sentAt.Valid {
		m.SentAt = &sentAt.Time
	}
	if deliveredAt.Valid {
		m.DeliveredAt = &deliveredAt.Time
	}
	if readAt.Valid {
		m.ReadAt = &readAt.Time
	}
	if media.Valid && media.String != "" {
		var mi models.MediaInfo
		if err := json.Unmarshal([]byte(media.String), &mi); err != nil {
			// Keep the row readable even if the media blob is corrupt.
			slog.Error("store scanMessage media unmarshal failed", "error", err, "message_id", m.ID)
		} else {
			m.Media = &mi
		}
	}
	return &m, nil
}

func scanWorkOrder(sc scanner) (*models.WorkOrder, error) {
	var wo models.WorkOrder
	var serviceName sql.NullString
	var scheduledAt sql.NullTime
	err := sc.Scan(&wo.ID, &wo.Number, &wo.CustomerID, &wo.Status, &serviceName, &scheduledAt)
	if err != nil {
		return nil, err
	}
	wo.ServiceName = serviceName.String
	if scheduledAt.Valid {
		wo.ScheduledAt = &scheduledAt.Time
	}
	return &wo, nil
}
