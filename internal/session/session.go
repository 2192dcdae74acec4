// Package session provides the phone-keyed conversation session store.
//
// A session tracks where a contact currently is in the bot's menu state
// machine. Entries expire 30 minutes after the last explicit write; an
// absent or expired entry reads as StateNew. Concurrent writes for the same
// phone are last-write-wins: the store serves a single-operator support chat
// and does not order racing inbound messages.
package session

import (
	"log/slog"
	"sync"
	"time"
)

// State represents the bot's position in its menu state machine.
type State string

const (
	// StateNew is the implicit state of a phone with no stored session.
	StateNew State = "new"
	// StateMainMenu means the main menu was presented and a selection is expected.
	StateMainMenu State = "main_menu"
	// StateCheckStatus means the bot is waiting for an order number.
	StateCheckStatus State = "check_status"
	// StateTalkAgent means the bot is waiting for a message to forward to an agent.
	StateTalkAgent State = "talk_agent"
	// StateOtherMessage means the bot is waiting for a general inquiry.
	StateOtherMessage State = "other_message"
)

// IsValid checks if the given state is one the bot knows.
func (s State) IsValid() bool {
	switch s {
	case StateNew, StateMainMenu, StateCheckStatus, StateTalkAgent, StateOtherMessage:
		return true
	default:
		return false
	}
}

// DefaultTTL is how long a session survives after its last explicit write.
const DefaultTTL = 30 * time.Minute

// Store holds conversation sessions keyed by phone number.
type Store interface {
	// Get returns the current state for a phone. Absent or expired entries
	// read as StateNew.
	Get(phone string) State
	// Set stores a state for a phone and resets its TTL.
	Set(phone string, state State)
	// Clear removes the session for a phone.
	Clear(phone string)
}

type entry struct {
	state     State
	expiresAt time.Time
}

// MemoryStore is an in-process Store with lazy expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a MemoryStore with DefaultTTL.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithTTL(DefaultTTL)
}

// NewMemoryStoreWithTTL creates a MemoryStore with a custom TTL.
func NewMemoryStoreWithTTL(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the stored state or StateNew when absent or expired.
func (s *MemoryStore) Get(phone string) State {
	s.mu.RLock()
	e, ok := s.entries[phone]
	s.mu.RUnlock()
	if !ok {
		slog.Debug("session.Get miss", "phone", phone)
		return StateNew
	}
	if s.now().After(e.expiresAt) {
		slog.Debug("session.Get expired", "phone", phone, "state", e.state)
		s.mu.Lock()
		// Re-check under the write lock: a racing Set may have refreshed it.
		if cur, ok := s.entries[phone]; ok && s.now().After(cur.expiresAt) {
			delete(s.entries, phone)
		}
		s.mu.Unlock()
		return StateNew
	}
	slog.Debug("session.Get hit", "phone", phone, "state", e.state)
	return e.state
}

// Set stores a state and resets the TTL window. Every explicit write resets
// the expiry; reads do not (no sliding window).
func (s *MemoryStore) Set(phone string, state State) {
	s.mu.Lock()
	s.entries[phone] = entry{state: state, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	slog.Debug("session.Set", "phone", phone, "state", state)
}

// Clear removes the session for a phone.
func (s *MemoryStore) Clear(phone string) {
	s.mu.Lock()
	delete(s.entries, phone)
	s.mu.Unlock()
	slog.Debug("session.Clear", "phone", phone)
}
