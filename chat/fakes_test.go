package chat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/segurbot/chat"
	"github.com/tailored-agentic-units/segurbot/core/protocol"
	"github.com/tailored-agentic-units/segurbot/core/response"
	"github.com/tailored-agentic-units/segurbot/memory"
	"github.com/tailored-agentic-units/segurbot/observability"
)

// fakeTransport records requests and answers with complete, or with a
// fixed reply when complete is nil.
type fakeTransport struct {
	complete func(ctx context.Context, req protocol.ChatRequest) (*response.Chat, error)
	reset    func(ctx context.Context, req protocol.ResetRequest) error

	mu       sync.Mutex
	requests []protocol.ChatRequest
	resets   []protocol.ResetRequest
}

func replyWith(text string) *fakeTransport {
	return &fakeTransport{
		complete: func(context.Context, protocol.ChatRequest) (*response.Chat, error) {
			return &response.Chat{Text: text}, nil
		},
	}
}

func failWith(err error) *fakeTransport {
	return &fakeTransport{
		complete: func(context.Context, protocol.ChatRequest) (*response.Chat, error) {
			return nil, err
		},
	}
}

func (f *fakeTransport) Complete(ctx context.Context, req protocol.ChatRequest) (*response.Chat, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.complete == nil {
		return &response.Chat{Text: "ok"}, nil
	}
	return f.complete(ctx, req)
}

func (f *fakeTransport) Reset(ctx context.Context, req protocol.ResetRequest) error {
	f.mu.Lock()
	f.resets = append(f.resets, req)
	f.mu.Unlock()

	if f.reset == nil {
		return nil
	}
	return f.reset(ctx, req)
}

func (f *fakeTransport) Requests() []protocol.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.ChatRequest(nil), f.requests...)
}

func (f *fakeTransport) Resets() []protocol.ResetRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.ResetRequest(nil), f.resets...)
}

// gate blocks Complete calls until released and reports when they start.
type gate struct {
	started chan protocol.ChatRequest
	release chan struct{}
}

func newGate() *gate {
	return &gate{
		started: make(chan protocol.ChatRequest, 8),
		release: make(chan struct{}),
	}
}

func (g *gate) transport(text string) *fakeTransport {
	return &fakeTransport{
		complete: func(ctx context.Context, req protocol.ChatRequest) (*response.Chat, error) {
			g.started <- req
			select {
			case <-g.release:
				return &response.Chat{Text: text}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}

func (g *gate) waitStarted(t *testing.T) protocol.ChatRequest {
	t.Helper()
	select {
	case req := <-g.started:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the transport")
		return protocol.ChatRequest{}
	}
}

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	done    bool
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) chat.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.done && !t.at.After(c.now) {
			t.done = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()

	for _, f := range due {
		f()
	}
}

// Pending counts timers that are neither fired nor stopped.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.stopped = true
	return true
}

type captureObserver struct {
	mu     sync.Mutex
	events []observability.Event
}

func (c *captureObserver) OnEvent(ctx context.Context, event observability.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureObserver) Find(typ observability.EventType) (observability.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.Type == typ {
			return e, true
		}
	}
	return observability.Event{}, false
}

type harness struct {
	manager  *chat.Manager
	store    *memory.MapStore
	kv       memory.KV
	clock    *fakeClock
	observer *captureObserver
}

func newHarness(t *testing.T, tr *fakeTransport, opts ...chat.Option) *harness {
	t.Helper()
	return newHarnessWithStore(t, memory.NewMapStore(), tr, opts...)
}

func newHarnessWithStore(t *testing.T, store *memory.MapStore, tr *fakeTransport, opts ...chat.Option) *harness {
	t.Helper()
	h := &harness{
		store:    store,
		kv:       memory.NewKV(store, ""),
		clock:    newFakeClock(),
		observer: &captureObserver{},
	}

	cfg := chat.DefaultConfig()
	base := []chat.Option{
		chat.WithStore(store),
		chat.WithTransport(tr),
		chat.WithObserver(h.observer),
		chat.WithClock(h.clock),
	}

	m, err := chat.New(&cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	h.manager = m
	return h
}

func (h *harness) init(t *testing.T) chat.Snapshot {
	t.Helper()
	require.NoError(t, h.manager.Initialize(context.Background()))
	return h.manager.Snapshot()
}
