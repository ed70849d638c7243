package observability

import (
	"context"
	"log/slog"
)

// SlogObserver writes chat events to a slog.Logger. The event type is the
// message; the session id leads the attributes, followed by the source and
// the remaining Data keys in sorted order.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates a SlogObserver that emits to the given logger.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	return &SlogObserver{logger: logger}
}

func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	level := event.Level.SlogLevel()
	if !o.logger.Enabled(ctx, level) {
		return
	}

	keys := Keys(event.Data)
	attrs := make([]slog.Attr, 0, len(keys)+1)
	if len(keys) > 0 && keys[0] == AttrSessionID {
		attrs = append(attrs, slog.Any(AttrSessionID, event.Data[AttrSessionID]))
		keys = keys[1:]
	}
	attrs = append(attrs, slog.String("source", event.Source))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, event.Data[k]))
	}

	o.logger.LogAttrs(ctx, level, string(event.Type), attrs...)
}
