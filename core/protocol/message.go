package protocol

// Role identifies the sender of a history entry on the wire.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status tracks the two-phase optimistic append of user messages. A user
// message is visible as soon as it is sent (pending) and is marked confirmed
// or failed once the request resolves.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Message is a single entry of the visible transcript.
//
// IsInitial marks the synthetic greeting: it is always first, never sent to
// the chat API and never persisted. ShouldShowTyping asks the presentation
// layer to animate the message into view.
type Message struct {
	ID               string `json:"id,omitempty"`
	Content          string `json:"content"`
	IsBot            bool   `json:"isBot"`
	IsInitial        bool   `json:"isInitial,omitempty"`
	ShouldShowTyping bool   `json:"shouldShowTyping,omitempty"`
	Status           Status `json:"status,omitempty"`
}

// NewUserMessage creates a pending user-authored message.
func NewUserMessage(id, content string) Message {
	return Message{ID: id, Content: content, Status: StatusPending}
}

// NewBotMessage creates a bot-authored message.
func NewBotMessage(id, content string) Message {
	return Message{ID: id, Content: content, IsBot: true}
}

// Role maps the sender flag onto the wire role.
func (m Message) Role() Role {
	if m.IsBot {
		return RoleAssistant
	}
	return RoleUser
}

// HistoryEntry is the wire form of a transcript message.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// BuildHistory converts a transcript into outbound history. Every IsInitial
// message is dropped; all other messages keep their original order.
func BuildHistory(messages []Message) []HistoryEntry {
	history := make([]HistoryEntry, 0, len(messages))
	for _, m := range messages {
		if m.IsInitial {
			continue
		}
		history = append(history, HistoryEntry{Role: m.Role(), Content: m.Content})
	}
	return history
}

// ChatRequest is the body of a chat-completion request.
type ChatRequest struct {
	Messages  []HistoryEntry `json:"messages"`
	SessionID string         `json:"sessionId"`
}

// ResetRequest is the body of the session-reset notification.
type ResetRequest struct {
	SessionID string `json:"sessionId"`
}
