// Package chat implements the conversation manager behind the support
// widget: it owns the session identity and transcript, runs each request
// against the chat API, sequences the typing indicator, and mirrors every
// change to the session store.
//
// The manager initializes from configuration via New, creating its store
// and transport internally. Functional options replace any subsystem.
//
//	m, err := chat.New(&cfg, chat.WithListener(render))
//	err = m.Initialize(ctx)
//	err = m.SendMessage(ctx, "Quiero cotizar un seguro para mi auto")
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tailored-agentic-units/segurbot/core/protocol"
	"github.com/tailored-agentic-units/segurbot/core/response"
	"github.com/tailored-agentic-units/segurbot/memory"
	"github.com/tailored-agentic-units/segurbot/observability"
	"github.com/tailored-agentic-units/segurbot/session"
	"github.com/tailored-agentic-units/segurbot/transport"
)

const (
	resetNotifyTimeout = 10 * time.Second
	storeDialTimeout   = 5 * time.Second
)

// Option configures a Manager. Options run before config-driven
// initialization; a subsystem supplied by an option is not built from
// config.
type Option func(*Manager)

// WithStore overrides the config-created store. The caller keeps ownership
// and closes it.
func WithStore(s memory.Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithKV overrides the persistence view entirely.
func WithKV(kv memory.KV) Option {
	return func(m *Manager) { m.kv = kv }
}

// WithTransport overrides the config-created transport.
func WithTransport(c transport.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithListener registers a snapshot listener.
func WithListener(l Listener) Option {
	return func(m *Manager) { m.listeners = append(m.listeners, l) }
}

// WithStrings overrides the localized strings. Empty fields keep the
// locale defaults.
func WithStrings(s Strings) Option {
	return func(m *Manager) { m.strings = s }
}

// WithTypingDelay overrides the delay before the typing indicator shows.
func WithTypingDelay(d time.Duration) Option {
	return func(m *Manager) { m.typingDelay = &d }
}

// WithSendPolicy overrides the configured send policy.
func WithSendPolicy(p SendPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithClock overrides the system clock.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// Manager is the conversation manager for one widget instance.
type Manager struct {
	store     memory.Store
	ownsStore bool
	kv        memory.KV
	client    transport.Client
	observer  observability.Observer
	listeners []Listener
	strings   Strings
	policy    SendPolicy
	clock     Clock

	typingDelay *time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu                sync.Mutex
	session           *session.Session
	initialized       bool
	closed            bool
	gen               uint64
	genCtx            context.Context
	genCancel         context.CancelFunc
	slot              chan struct{}
	inflight          int
	isTyping          bool
	typingMessageID   string
	showInitialTyping bool
	version           uint64
	timers            map[uint64]Timer
	timerSeq          uint64

	persistMu sync.Mutex

	notifyMu   sync.Mutex
	pending    *Snapshot
	delivered  uint64
	delivering bool
}

// New creates a Manager from configuration. Subsystems not supplied by an
// option are initialized from their config sections. The manager is inert
// until Initialize or the first SendMessage.
func New(cfg *Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{timers: make(map[uint64]Timer)}
	for _, opt := range opts {
		opt(m)
	}

	if m.kv == nil {
		if m.store == nil {
			ctx, cancel := context.WithTimeout(context.Background(), storeDialTimeout)
			store, err := memory.NewStore(ctx, &cfg.Memory)
			cancel()
			if err != nil {
				return nil, fmt.Errorf("failed to create memory store: %w", err)
			}
			m.store = store
			m.ownsStore = true
		}
		m.kv = memory.NewKV(m.store, cfg.Memory.Namespace)
	}

	if m.client == nil {
		client, err := transport.New(&cfg.Transport)
		if err != nil {
			m.closeStore()
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
		m.client = client
	}

	if m.observer == nil {
		m.observer = observability.NewSlogObserver(slog.Default())
	}
	if m.clock == nil {
		m.clock = systemClock{}
	}
	if m.policy == "" {
		m.policy = cfg.SendPolicy
	}
	if m.policy == "" {
		m.policy = SendPolicySerialize
	}
	if err := m.policy.Validate(); err != nil {
		m.closeStore()
		return nil, err
	}
	if m.typingDelay == nil {
		d, _ := cfg.typingDelay()
		m.typingDelay = &d
	}

	defaults := DefaultStrings(cfg.Locale)
	if cfg.Session.InitialMessage != "" {
		defaults.Greeting = cfg.Session.InitialMessage
	}
	m.strings.fill(defaults)

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.genCtx, m.genCancel = context.WithCancel(m.ctx)
	m.slot = make(chan struct{}, 1)

	return m, nil
}

// Strings returns the strings the manager synthesizes messages from.
func (m *Manager) Strings() Strings {
	return m.strings
}

// Initialize restores the session id and transcript from the store, or
// starts a fresh session when nothing was persisted. Storage failures fall
// back to an empty transcript and are reported as events. Calling it again
// is a no-op.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	restored := session.Restore(ctx, m.kv, m.strings.Greeting)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true
	m.installLocked(restored.Session, !restored.HadMessages)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if restored.Err != nil {
		m.emit(ctx, EventRestoreFailed, observability.LevelWarning, "chat.Initialize", map[string]any{
			"error": restored.Err.Error(),
		})
	}

	if restored.NewID {
		m.persistID(ctx, restored.Session)
	}
	m.persist(ctx, restored.Session)
	m.publish(snap)

	m.emit(ctx, EventInitialize, observability.LevelInfo, "chat.Initialize", map[string]any{
		observability.AttrSessionID: restored.Session.ID(),
		"new_session":               restored.NewID,
		"messages":                  restored.Session.Len() - 1,
		"show_initial":              !restored.HadMessages,
	})
	return nil
}

// SendMessage appends text as a user message and runs one chat-completion
// request for it, blocking until the turn resolves. Transport failures are
// recovered in the transcript; the returned error covers preconditions only:
// ErrEmptyMessage, ErrBusy, ErrClosed, or ctx ending while the send waits
// for its turn.
func (m *Manager) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if err := m.Initialize(ctx); err != nil {
		return err
	}

	var release func()
	for {
		slot, err := m.acquire(ctx)
		if err != nil {
			return err
		}
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			releaseSlot(slot)
			return ErrClosed
		}
		if slot == nil || slot == m.slot {
			release = func() { releaseSlot(slot) }
			break
		}
		// A reset replaced the slot while this send was waiting.
		m.mu.Unlock()
		releaseSlot(slot)
	}
	defer release()

	sess := m.session
	gen := m.gen
	genCtx := m.genCtx

	user := protocol.NewUserMessage(session.NewMessageID(), text)
	sess.Append(user)
	history := protocol.BuildHistory(sess.Messages())
	m.inflight++
	timer := m.startTypingTimerLocked(gen)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(snap)
	m.persist(ctx, sess)

	m.emit(ctx, EventSendStart, observability.LevelInfo, "chat.SendMessage", map[string]any{
		observability.AttrSessionID: sess.ID(),
		"message_id":                user.ID,
		"history_length":            len(history),
	})

	reqCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(genCtx, cancel)
	start := m.clock.Now()
	reply, sendErr := m.client.Complete(reqCtx, protocol.ChatRequest{
		Messages:  history,
		SessionID: sess.ID(),
	})
	stop()
	cancel()
	elapsed := m.clock.Now().Sub(start)
	if sendErr == nil && reply == nil {
		reply = &response.Chat{}
	}

	m.mu.Lock()
	m.stopTimerLocked(timer)
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		m.emit(ctx, EventStaleCompletion, observability.LevelWarning, "chat.SendMessage", map[string]any{
			observability.AttrSessionID: sess.ID(),
			"message_id":                user.ID,
		})
		return nil
	}

	m.isTyping = false
	m.inflight--

	var bot protocol.Message
	if sendErr != nil {
		sess.Update(user.ID, func(msg *protocol.Message) { msg.Status = protocol.StatusFailed })
		bot = protocol.NewBotMessage(session.NewMessageID(), m.strings.Error(sendErr))
	} else {
		sess.Update(user.ID, func(msg *protocol.Message) { msg.Status = protocol.StatusConfirmed })
		content := reply.Content()
		if reply.Empty() {
			content = m.strings.NoResponse
		}
		bot = protocol.NewBotMessage(session.NewMessageID(), content)
		bot.ShouldShowTyping = true
		m.typingMessageID = bot.ID
	}
	sess.Append(bot)
	snap = m.snapshotLocked()
	m.mu.Unlock()

	m.publish(snap)
	m.persist(ctx, sess)

	data := map[string]any{
		observability.AttrSessionID: sess.ID(),
		"message_id":                bot.ID,
		"duration_ms":               elapsed.Milliseconds(),
	}
	switch {
	case sendErr != nil:
		data["error"] = sendErr.Error()
		m.emit(ctx, EventSendFailed, observability.LevelError, "chat.SendMessage", data)
	case reply.Malformed:
		m.emit(ctx, EventSendMalformed, observability.LevelWarning, "chat.SendMessage", data)
	default:
		data["reply_length"] = len(reply.Content())
		m.emit(ctx, EventSendComplete, observability.LevelInfo, "chat.SendMessage", data)
	}
	return nil
}

// acquire applies the send policy. It returns the slot it filled, or nil
// under SendPolicyAllow.
func (m *Manager) acquire(ctx context.Context) (chan struct{}, error) {
	if m.policy == SendPolicyAllow {
		return nil, nil
	}

	m.mu.Lock()
	slot := m.slot
	m.mu.Unlock()

	if m.policy == SendPolicyReject {
		select {
		case slot <- struct{}{}:
			return slot, nil
		default:
			return nil, ErrBusy
		}
	}

	select {
	case slot <- struct{}{}:
		return slot, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.ctx.Done():
		return nil, ErrClosed
	}
}

func releaseSlot(slot chan struct{}) {
	if slot != nil {
		<-slot
	}
}

// OnTypingComplete tells the manager that the reveal of message id has
// finished. Ids other than the active TypingMessageID are ignored.
func (m *Manager) OnTypingComplete(id string) {
	m.mu.Lock()
	if m.closed || m.session == nil || id == "" || id != m.typingMessageID {
		m.mu.Unlock()
		return
	}
	sess := m.session
	m.typingMessageID = ""
	sess.Update(id, func(msg *protocol.Message) { msg.ShouldShowTyping = false })
	greeting := id == sess.Greeting().ID
	if greeting {
		m.showInitialTyping = false
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(snap)
	if !greeting {
		m.persist(context.Background(), sess)
	}

	m.emit(context.Background(), EventTypingComplete, observability.LevelVerbose, "chat.OnTypingComplete", map[string]any{
		observability.AttrSessionID: sess.ID(),
		"message_id":                id,
		"greeting":                  greeting,
	})
}

// ResetChat abandons the current session: a new id, a transcript holding a
// fresh greeting, no typing or loading state. Outstanding requests are
// cancelled and their results discarded. The API is told about the old
// session in the background; that notification's failure is only reported
// as an event. A manager that was never initialized restores first, so the
// persisted session is the one notified.
func (m *Manager) ResetChat(ctx context.Context) error {
	if err := m.Initialize(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	var oldID string
	if m.session != nil {
		oldID = m.session.ID()
	}
	m.initialized = true

	m.genCancel()
	m.genCtx, m.genCancel = context.WithCancel(m.ctx)
	m.slot = make(chan struct{}, 1)
	m.stopTimersLocked()
	m.inflight = 0
	m.isTyping = false

	sess := session.New(session.NewID(), session.Greeting(m.strings.Greeting))
	m.installLocked(sess, true)
	snap := m.snapshotLocked()

	if oldID != "" {
		m.wg.Add(1)
		go m.notifyReset(oldID)
	}
	m.mu.Unlock()

	m.publish(snap)

	m.persistMu.Lock()
	pctx := context.WithoutCancel(ctx)
	if err := session.Clear(pctx, m.kv); err != nil {
		m.persistFailed(ctx, "chat.ResetChat", err)
	}
	if err := session.SaveID(pctx, m.kv, sess); err != nil {
		m.persistFailed(ctx, "chat.ResetChat", err)
	}
	m.persistMu.Unlock()

	m.emit(ctx, EventReset, observability.LevelInfo, "chat.ResetChat", map[string]any{
		"old_session_id":            oldID,
		observability.AttrSessionID: sess.ID(),
	})
	return nil
}

func (m *Manager) notifyReset(oldID string) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(m.ctx, resetNotifyTimeout)
	defer cancel()

	if err := m.client.Reset(ctx, protocol.ResetRequest{SessionID: oldID}); err != nil {
		m.emit(ctx, EventResetNotifyFailed, observability.LevelWarning, "chat.ResetChat", map[string]any{
			"old_session_id": oldID,
			"error":          err.Error(),
		})
	}
}

// Flush waits until background reset notifications have finished or ctx
// ends. Call it after ResetChat has returned.
func (m *Manager) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Close stops pending timers, cancels outstanding requests and reset
// notifications, waits for the notifications to finish, and releases a
// config-created store. Subsequent calls return nil.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.stopTimersLocked()
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	err := m.closeStore()

	m.emit(context.Background(), EventClose, observability.LevelVerbose, "chat.Close", nil)
	return err
}

func (m *Manager) closeStore() error {
	if !m.ownsStore {
		return nil
	}
	if err := memory.Close(m.store); err != nil {
		return fmt.Errorf("failed to close memory store: %w", err)
	}
	return nil
}

// installLocked makes sess current. A fresh session animates its greeting.
func (m *Manager) installLocked(sess *session.Session, fresh bool) {
	m.session = sess
	m.gen++
	m.typingMessageID = ""
	m.showInitialTyping = fresh

	if fresh {
		greeting := sess.Greeting()
		sess.Update(greeting.ID, func(msg *protocol.Message) { msg.ShouldShowTyping = true })
		m.typingMessageID = greeting.ID
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	m.version++
	snap := Snapshot{
		IsLoading:         m.inflight > 0,
		IsTyping:          m.isTyping,
		TypingMessageID:   m.typingMessageID,
		ShowInitialTyping: m.showInitialTyping,
		Version:           m.version,
	}
	if m.session != nil {
		snap.SessionID = m.session.ID()
		snap.Messages = m.session.Messages()
	}
	return snap
}

// publish delivers snap to the listeners. Deliveries never overlap and never
// go backwards; a listener that changes state re-enters here and its
// snapshot is delivered after it returns.
func (m *Manager) publish(snap Snapshot) {
	if len(m.listeners) == 0 {
		return
	}

	m.notifyMu.Lock()
	if snap.Version <= m.delivered {
		m.notifyMu.Unlock()
		return
	}
	if m.pending == nil || snap.Version > m.pending.Version {
		m.pending = &snap
	}
	if m.delivering {
		m.notifyMu.Unlock()
		return
	}

	m.delivering = true
	for m.pending != nil {
		next := *m.pending
		m.pending = nil
		m.delivered = next.Version
		m.notifyMu.Unlock()

		for _, l := range m.listeners {
			l(next)
		}

		m.notifyMu.Lock()
	}
	m.delivering = false
	m.notifyMu.Unlock()
}

func (m *Manager) startTypingTimerLocked(gen uint64) uint64 {
	m.timerSeq++
	id := m.timerSeq
	m.timers[id] = m.clock.AfterFunc(*m.typingDelay, func() { m.showTyping(id, gen) })
	return id
}

func (m *Manager) showTyping(timer, gen uint64) {
	m.mu.Lock()
	if _, ok := m.timers[timer]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.timers, timer)
	if m.closed || gen != m.gen || m.inflight == 0 {
		m.mu.Unlock()
		return
	}
	m.isTyping = true
	sessionID := m.session.ID()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(snap)
	m.emit(m.ctx, EventTypingShown, observability.LevelVerbose, "chat.SendMessage", map[string]any{
		observability.AttrSessionID: sessionID,
	})
}

func (m *Manager) stopTimerLocked(id uint64) {
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}
}

func (m *Manager) stopTimersLocked() {
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

// persist mirrors the transcript of sess unless it has been replaced.
func (m *Manager) persist(ctx context.Context, sess *session.Session) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	current := m.session == sess
	m.mu.Unlock()
	if !current {
		return
	}

	if err := session.Save(context.WithoutCancel(ctx), m.kv, sess); err != nil {
		m.persistFailed(ctx, "chat.persist", err)
	}
}

func (m *Manager) persistID(ctx context.Context, sess *session.Session) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	if err := session.SaveID(context.WithoutCancel(ctx), m.kv, sess); err != nil {
		m.persistFailed(ctx, "chat.persist", err)
	}
}

func (m *Manager) persistFailed(ctx context.Context, source string, err error) {
	m.emit(ctx, EventPersistFailed, observability.LevelWarning, source, map[string]any{
		"error": err.Error(),
	})
}

func (m *Manager) emit(ctx context.Context, typ observability.EventType, level observability.Level, source string, data map[string]any) {
	m.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: m.clock.Now(),
		Source:    source,
		Data:      data,
	})
}
