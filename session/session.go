// Package session holds the identity and transcript of one widget
// conversation and mirrors them to a key-value store.
package session

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/segurbot/core/protocol"
)

// Session is an ordered, append-only transcript bound to a session id. The
// first message is always the synthetic greeting. Safe for concurrent use.
type Session struct {
	id       string
	messages []protocol.Message
	mu       sync.RWMutex
}

// New creates a session holding only the greeting.
func New(id string, greeting protocol.Message) *Session {
	return &Session{
		id:       id,
		messages: []protocol.Message{greeting},
	}
}

// NewID returns a random session identifier (UUIDv4, 122 random bits from
// crypto/rand).
func NewID() string {
	return uuid.NewString()
}

// NewMessageID returns a time-ordered message identifier (UUIDv7).
func NewMessageID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Greeting builds the synthetic greeting message.
func Greeting(content string) protocol.Message {
	return protocol.Message{
		ID:        NewMessageID(),
		Content:   content,
		IsBot:     true,
		IsInitial: true,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Append adds a message to the end of the transcript. Initial messages are
// rejected so the greeting stays unique.
func (s *Session) Append(msg protocol.Message) bool {
	if msg.IsInitial {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return true
}

// Update applies fn to the message with the given id. It reports whether
// the message was found.
func (s *Session) Update(id string, fn func(*protocol.Message)) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			fn(&s.messages[i])
			return true
		}
	}
	return false
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// Greeting returns the synthetic greeting.
func (s *Session) Greeting() protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages[0]
}

// Len returns the number of messages, greeting included.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
