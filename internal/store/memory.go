// Package store provides storage backends for TaskerChat.
//
// This file implements the in-memory store used in tests and development.
package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/taskerhq/taskerchat/internal/models"
)

// InMemoryStore is a mutex-guarded Store kept entirely in process memory.
type InMemoryStore struct {
	mu            sync.Mutex
	contacts      map[int64]*models.Contact
	conversations map[int64]*models.Conversation
	messages      map[int64]*models.Message
	notes         []models.ConversationNote
	workOrders    []models.WorkOrder
	nextID        int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		contacts:      make(map[int64]*models.Contact),
		conversations: make(map[int64]*models.Conversation),
		messages:      make(map[int64]*models.Message),
		nextID:        1,
	}
}

func (s *InMemoryStore) id() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// GetOrCreateContact resolves or creates a contact by phone number.
func (s *InMemoryStore) GetOrCreateContact(phone, name string) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if c.PhoneNumber == phone {
			if name != "" && c.WhatsAppName != name {
				c.WhatsAppName = name
			}
			cp := *c
			return &cp, nil
		}
	}
	c := &models.Contact{
		ID:           s.id(),
		PhoneNumber:  phone,
		WhatsAppName: name,
		CreatedAt:    time.Now(),
	}
	s.contacts[c.ID] = c
	slog.Debug("InMemoryStore contact created", "phone", phone, "id", c.ID)
	cp := *c
	return &cp, nil
}

// TouchContact updates the last interaction timestamp.
func (s *InMemoryStore) TouchContact(contactID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok {
		return models.ErrContactNotFound
	}
	c.LastInteractionAt = &at
	return nil
}

// LinkCustomer attaches a customer record to a contact (test/dev seeding).
func (s *InMemoryStore) LinkCustomer(contactID, customerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok {
		return models.ErrContactNotFound
	}
	c.CustomerID = &customerID
	return nil
}

// ActiveConversation returns the most recent open conversation for a contact,
// creating one when none is open.
func (s *InMemoryStore) ActiveConversation(contactID int64) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *models.Conversation
	for _, conv := range s.conversations {
		if conv.ContactID != contactID || conv.Status != models.ConversationOpen {
			continue
		}
		if best == nil || laterThan(conv.LastMessageAt, best.LastMessageAt) {
			best = conv
		}
	}
	if best != nil {
		cp := *best
		return &cp, nil
	}

	conv := &models.Conversation{
		ID:        s.id(),
		ContactID: contactID,
		Status:    models.ConversationOpen,
		CreatedAt: time.Now(),
	}
	s.conversations[conv.ID] = conv
	slog.Debug("InMemoryStore conversation created", "contact_id", contactID, "id", conv.ID)
	cp := *conv
	return &cp, nil
}

func laterThan(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}

// TouchConversation updates the last message timestamp.
func (s *InMemoryStore) TouchConversation(conversationID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return models.ErrConversationClosed
	}
	conv.LastMessageAt = &at
	return nil
}

// SetBotDisabled flips the staff-takeover flag.
func (s *InMemoryStore) SetBotDisabled(conversationID int64, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return models.ErrConversationClosed
	}
	conv.BotDisabled = disabled
	return nil
}

// SaveMessage persists a message and assigns its ID.
func (s *InMemoryStore) SaveMessage(m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Status == "" {
		m.Status = models.MessageStatusPending
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.ID = s.id()
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

// MarkMessageSent records provider acceptance.
func (s *InMemoryStore) MarkMessageSent(messageID int64, providerID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return models.ErrMessageNotFound
	}
	if !models.CanTransitionStatus(m.Status, models.MessageStatusSent) {
		slog.Debug("InMemoryStore MarkMessageSent ignored regression", "id", messageID, "current", m.Status)
		return nil
	}
	m.Status = models.MessageStatusSent
	m.ProviderID = providerID
	m.SentAt = &at
	return nil
}

// MarkMessageFailed records a terminal send failure.
func (s *InMemoryStore) MarkMessageFailed(messageID int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return models.ErrMessageNotFound
	}
	if !models.CanTransitionStatus(m.Status, models.MessageStatusFailed) {
		return nil
	}
	m.Status = models.MessageStatusFailed
	m.FailureReason = reason
	return nil
}

// UpdateMessageStatus applies a provider status event, ignoring regressions.
func (s *InMemoryStore) UpdateMessageStatus(providerID string, status models.MessageStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ProviderID != providerID {
			continue
		}
		if !models.CanTransitionStatus(m.Status, status) {
			slog.Debug("InMemoryStore UpdateMessageStatus ignored", "provider_id", providerID, "current", m.Status, "incoming", status)
			return nil
		}
		m.Status = status
		switch status {
		case models.MessageStatusDelivered:
			m.DeliveredAt = &at
		case models.MessageStatusRead:
			m.ReadAt = &at
		case models.MessageStatusSent:
			m.SentAt = &at
		}
		return nil
	}
	// Status events for unknown messages are dropped silently; the provider
	// re-delivers webhooks and rows may not exist yet in dev setups.
	slog.Debug("InMemoryStore UpdateMessageStatus no match", "provider_id", providerID)
	return nil
}

// SaveNote persists a conversation note.
func (s *InMemoryStore) SaveNote(n models.ConversationNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	s.notes = append(s.notes, n)
	return nil
}

// Notes returns all saved notes (for tests).
func (s *InMemoryStore) Notes() []models.ConversationNote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ConversationNote, len(s.notes))
	copy(out, s.notes)
	return out
}

// AddWorkOrder seeds a work order into the read model.
func (s *InMemoryStore) AddWorkOrder(wo models.WorkOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wo.ID == 0 {
		wo.ID = s.id()
	}
	s.workOrders = append(s.workOrders, wo)
}

// WorkOrders returns work orders, scoped to a customer when set.
func (s *InMemoryStore) WorkOrders(customerID *int64) ([]models.WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WorkOrder
	for _, wo := range s.workOrders {
		if customerID != nil && wo.CustomerID != *customerID {
			continue
		}
		out = append(out, wo)
	}
	return out, nil
}

// ListConversations returns conversations newest-first.
func (s *InMemoryStore) ListConversations() ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, *conv)
	}
	sort.Slice(out, func(i, j int) bool {
		return laterThan(out[i].LastMessageAt, out[j].LastMessageAt)
	})
	return out, nil
}

// ListMessages returns a conversation's messages oldest-first.
func (s *InMemoryStore) ListMessages(conversationID int64) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MessageByID returns a copy of a message (for tests).
func (s *InMemoryStore) MessageByID(id int64) (*models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, false
	}
	cp := *m
	return &cp, true
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
