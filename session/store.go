package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tailored-agentic-units/segurbot/core/protocol"
	"github.com/tailored-agentic-units/segurbot/memory"
)

// Keys under which a session is mirrored.
const (
	KeyMessages  = "chatMessages"
	KeySessionID = "sessionId"
)

// Restored describes the outcome of Restore.
type Restored struct {
	// Session is never nil.
	Session *Session
	// HadMessages reports whether a non-empty transcript was found.
	HadMessages bool
	// NewID reports whether the session id had to be generated.
	NewID bool
	// Err carries a read or decode failure that was recovered from by
	// falling back to an empty transcript (or a fresh id).
	Err error
}

// Restore rebuilds a session from kv. The stored transcript never contains
// the greeting; any stored initial message is dropped, so restoring twice
// yields the same transcript. Storage failures do not abort restoration.
func Restore(ctx context.Context, kv memory.KV, greeting string) Restored {
	var result Restored

	id, ok, err := kv.Get(ctx, KeySessionID)
	if err != nil {
		result.Err = fmt.Errorf("reading session id: %w", err)
	}
	if !ok || id == "" {
		id = NewID()
		result.NewID = true
	}

	s := New(id, Greeting(greeting))
	result.Session = s

	raw, ok, err := kv.Get(ctx, KeyMessages)
	if err != nil {
		result.Err = fmt.Errorf("reading messages: %w", err)
		return result
	}
	if !ok || raw == "" {
		return result
	}

	var stored []protocol.Message
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		result.Err = fmt.Errorf("decoding messages: %w", err)
		return result
	}

	for _, msg := range stored {
		if msg.IsInitial {
			continue
		}
		if msg.ID == "" {
			msg.ID = NewMessageID()
		}
		s.Append(msg)
	}
	result.HadMessages = s.Len() > 1

	return result
}

// Save mirrors the transcript, greeting excluded, under KeyMessages.
func Save(ctx context.Context, kv memory.KV, s *Session) error {
	stored := make([]protocol.Message, 0, s.Len())
	for _, msg := range s.Messages() {
		if !msg.IsInitial {
			stored = append(stored, msg)
		}
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encoding messages: %w", err)
	}
	if err := kv.Set(ctx, KeyMessages, string(data)); err != nil {
		return fmt.Errorf("saving messages: %w", err)
	}
	return nil
}

// SaveID mirrors the session id under KeySessionID.
func SaveID(ctx context.Context, kv memory.KV, s *Session) error {
	if err := kv.Set(ctx, KeySessionID, s.ID()); err != nil {
		return fmt.Errorf("saving session id: %w", err)
	}
	return nil
}

// Clear removes the persisted transcript.
func Clear(ctx context.Context, kv memory.KV) error {
	if err := kv.Remove(ctx, KeyMessages); err != nil {
		return fmt.Errorf("removing messages: %w", err)
	}
	return nil
}
