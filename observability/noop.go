package observability

import "context"

// NoOpObserver drops chat events. Embedders that keep no diagnostics pass it
// to chat.WithObserver to silence the default slog sink.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(context.Context, Event) {}
