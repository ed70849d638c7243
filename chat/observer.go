package chat

import "github.com/tailored-agentic-units/segurbot/observability"

// Manager event types.
const (
	EventInitialize        observability.EventType = "chat.initialize"
	EventRestoreFailed     observability.EventType = "chat.restore_failed"
	EventSendStart         observability.EventType = "chat.send.start"
	EventSendComplete      observability.EventType = "chat.send.complete"
	EventSendFailed        observability.EventType = "chat.send.failed"
	EventSendMalformed     observability.EventType = "chat.send.malformed"
	EventStaleCompletion   observability.EventType = "chat.stale_completion"
	EventTypingShown       observability.EventType = "chat.typing.shown"
	EventTypingComplete    observability.EventType = "chat.typing.complete"
	EventReset             observability.EventType = "chat.reset"
	EventResetNotifyFailed observability.EventType = "chat.reset_notify_failed"
	EventPersistFailed     observability.EventType = "chat.persist_failed"
	EventClose             observability.EventType = "chat.close"
)
