package response

import (
	"encoding/json"
	"fmt"
)

// Chat is the success payload of the chat-completion endpoint.
// Malformed is set when the body could not be decoded; Text is empty then.
type Chat struct {
	Text      string `json:"text"`
	Malformed bool   `json:"-"`
}

// Content returns the reply text. A nil reply has none.
func (c *Chat) Content() string {
	if c == nil {
		return ""
	}
	return c.Text
}

// Empty reports whether the reply carries no text.
func (c *Chat) Empty() bool {
	return c == nil || c.Text == ""
}

// ParseChat parses a chat-completion body strictly.
func ParseChat(body []byte) (*Chat, error) {
	var response Chat
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse chat response: %w", err)
	}
	return &response, nil
}

// DecodeChat parses a chat-completion body, treating an undecodable body as
// a reply without text instead of an error.
func DecodeChat(body []byte) *Chat {
	response, err := ParseChat(body)
	if err != nil {
		return &Chat{Malformed: true}
	}
	return response
}
