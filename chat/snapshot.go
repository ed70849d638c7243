package chat

import "github.com/tailored-agentic-units/segurbot/core/protocol"

// Snapshot is an immutable copy of the manager state. Version increases
// with every state change, so a consumer can drop snapshots older than one
// it already rendered.
type Snapshot struct {
	SessionID         string
	Messages          []protocol.Message
	IsLoading         bool
	IsTyping          bool
	TypingMessageID   string
	ShowInitialTyping bool
	Version           uint64
}

// Message returns the message with the given id.
func (s Snapshot) Message(id string) (protocol.Message, bool) {
	for _, m := range s.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return protocol.Message{}, false
}

// Last returns the newest message.
func (s Snapshot) Last() (protocol.Message, bool) {
	if len(s.Messages) == 0 {
		return protocol.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Listener receives snapshots after state changes. Listeners run on the
// goroutine that caused the change and must not block; calling back into
// the Manager is allowed.
type Listener func(Snapshot)
