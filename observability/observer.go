// Package observability provides event-based diagnostics for the chat
// widget. Observers are passed explicitly to the components that emit events;
// there is no process-wide registry. Level values align with OpenTelemetry
// SeverityNumbers so events translate directly into OTel log records.
package observability

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"
)

// Level represents event severity aligned with OTel SeverityNumber ranges.
type Level int

const (
	LevelVerbose Level = 5  // OTel DEBUG (5-8), maps to slog.LevelDebug
	LevelInfo    Level = 9  // OTel INFO (9-12), maps to slog.LevelInfo
	LevelWarning Level = 13 // OTel WARN (13-16), maps to slog.LevelWarn
	LevelError   Level = 17 // OTel ERROR (17-20), maps to slog.LevelError
)

// String returns the OTel severity text for the level.
func (l Level) String() string {
	switch {
	case l <= 4:
		return "TRACE"
	case l <= 8:
		return "DEBUG"
	case l <= 12:
		return "INFO"
	case l <= 16:
		return "WARN"
	case l <= 20:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// SlogLevel maps this level to the corresponding slog.Level for log emission.
func (l Level) SlogLevel() slog.Level {
	switch {
	case l <= 8:
		return slog.LevelDebug
	case l <= 12:
		return slog.LevelInfo
	case l <= 16:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// EventType identifies the kind of event. Each subsystem defines its own
// constants using this type (e.g., "chat.send.start", "chat.reset").
type EventType string

// Event is an observability event emitted by subsystems. Fields map to
// OTel LogRecord fields: Type→EventName, Level→SeverityNumber,
// Timestamp→Timestamp, Source→InstrumentationScope, Data→Attributes.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Observer receives events from subsystems. Implementations must be safe for
// concurrent use; events may arrive from timer and request goroutines.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// AttrSessionID is the Data key carrying the conversation's session id.
// Sinks list it first so log lines group by conversation.
const AttrSessionID = "session_id"

// Keys returns the keys of data in display order: AttrSessionID first when
// present, the rest sorted.
func Keys(data map[string]any) []string {
	keys := slices.Sorted(maps.Keys(data))
	if i := slices.Index(keys, AttrSessionID); i > 0 {
		copy(keys[1:i+1], keys[:i])
		keys[0] = AttrSessionID
	}
	return keys
}
