// Package widget embeds a conversation manager behind a presentation layer.
//
// Each call to New produces an independent Handle; there is no package-level
// instance. The presenter is mounted once per handle and receives a View
// after every state change.
package widget

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/segurbot/chat"
)

// Options holds presentation settings. Debug asks the presenter to show
// session ids and manager events alongside the conversation.
type Options struct {
	Title    string `json:"title,omitempty" yaml:"title" toml:"title"`
	AutoOpen bool   `json:"auto_open" yaml:"auto_open" toml:"auto_open"`
	Debug    bool   `json:"debug,omitempty" yaml:"debug" toml:"debug"`
}

// DefaultOptions returns the default presentation settings.
func DefaultOptions() Options {
	return Options{
		Title:    "SegurBot",
		AutoOpen: true,
	}
}

// View is everything a presenter needs to draw the widget.
type View struct {
	chat.Snapshot
	Options Options
	Open    bool
}

// TypingNotifier receives reveal completions from the presenter.
// *chat.Manager implements it.
type TypingNotifier interface {
	OnTypingComplete(id string)
}

// Presenter draws the widget. Mount receives the notifier to call when a
// message finishes revealing. Calls are serialized. Render must not call
// the Handle or its Manager synchronously; run reveals on another
// goroutine.
type Presenter interface {
	Mount(typing TypingNotifier) error
	Render(View)
	Unmount() error
}

// Handle controls one embedded widget.
type Handle struct {
	manager   *chat.Manager
	presenter Presenter

	renderMu sync.Mutex

	mu        sync.Mutex
	options   Options
	open      bool
	last      chat.Snapshot
	destroyed bool
}

// New builds the manager from cfg, mounts the presenter, and initializes
// the conversation.
func New(ctx context.Context, cfg *chat.Config, presenter Presenter, options Options, opts ...chat.Option) (*Handle, error) {
	if presenter == nil {
		return nil, errors.New("widget: presenter is required")
	}

	h := &Handle{
		presenter: presenter,
		options:   options,
		open:      options.AutoOpen,
	}

	m, err := chat.New(cfg, append(opts, chat.WithListener(h.onSnapshot))...)
	if err != nil {
		return nil, err
	}
	h.manager = m

	if err := presenter.Mount(m); err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to mount presenter: %w", err)
	}

	if err := m.Initialize(ctx); err != nil {
		presenter.Unmount()
		m.Close()
		return nil, err
	}
	return h, nil
}

// Manager returns the conversation manager.
func (h *Handle) Manager() *chat.Manager {
	return h.manager
}

// Open shows the chat window.
func (h *Handle) Open() {
	h.setOpen(func(bool) bool { return true })
}

// Close hides the chat window. The conversation is kept.
func (h *Handle) Close() {
	h.setOpen(func(bool) bool { return false })
}

// Toggle flips the chat window between open and closed.
func (h *Handle) Toggle() {
	h.setOpen(func(open bool) bool { return !open })
}

// IsOpen reports whether the chat window is shown.
func (h *Handle) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

// Options returns the current presentation settings.
func (h *Handle) Options() Options {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.options
}

// UpdateOptions changes presentation settings and re-renders.
func (h *Handle) UpdateOptions(update func(*Options)) {
	h.renderMu.Lock()
	defer h.renderMu.Unlock()

	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	update(&h.options)
	view := h.viewLocked()
	h.mu.Unlock()

	h.presenter.Render(view)
}

// Reset starts a new conversation.
func (h *Handle) Reset(ctx context.Context) error {
	return h.manager.ResetChat(ctx)
}

// Destroy unmounts the presenter and closes the manager. Later calls are
// no-ops.
func (h *Handle) Destroy() error {
	h.renderMu.Lock()
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		h.renderMu.Unlock()
		return nil
	}
	h.destroyed = true
	h.open = false
	h.mu.Unlock()

	unmountErr := h.presenter.Unmount()
	h.renderMu.Unlock()

	closeErr := h.manager.Close()
	return errors.Join(unmountErr, closeErr)
}

func (h *Handle) setOpen(next func(bool) bool) {
	h.renderMu.Lock()
	defer h.renderMu.Unlock()

	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	open := next(h.open)
	if open == h.open {
		h.mu.Unlock()
		return
	}
	h.open = open
	view := h.viewLocked()
	h.mu.Unlock()

	h.presenter.Render(view)
}

func (h *Handle) onSnapshot(snap chat.Snapshot) {
	h.renderMu.Lock()
	defer h.renderMu.Unlock()

	h.mu.Lock()
	if h.destroyed || snap.Version <= h.last.Version {
		h.mu.Unlock()
		return
	}
	h.last = snap
	view := h.viewLocked()
	h.mu.Unlock()

	h.presenter.Render(view)
}

func (h *Handle) viewLocked() View {
	return View{Snapshot: h.last, Options: h.options, Open: h.open}
}
