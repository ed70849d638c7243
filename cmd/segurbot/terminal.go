package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/tailored-agentic-units/segurbot/core/protocol"
	"github.com/tailored-agentic-units/segurbot/markup"
	"github.com/tailored-agentic-units/segurbot/observability"
	"github.com/tailored-agentic-units/segurbot/reveal"
	"github.com/tailored-agentic-units/segurbot/widget"
)

var (
	botLabel    = color.New(color.FgCyan, color.Bold)
	userLabel   = color.New(color.FgGreen, color.Bold)
	failedLabel = color.New(color.FgRed)
	faint       = color.New(color.Faint)
)

// isTerminal reports whether stream is a file attached to a terminal.
func isTerminal(stream any) bool {
	f, ok := stream.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type job struct {
	msg     protocol.Message
	title   string
	reveal  bool
	typing  bool
	failed  bool
	session string
	debug   bool
	note    string
}

// terminal draws the widget as a scrolling transcript. Messages are printed
// once, in order, by a single worker; the message the manager is typing is
// revealed word by word. A user message that fails after it was printed
// gets a follow-up line. With Options.Debug set, manager events are
// printed inline as well.
type terminal struct {
	out       io.Writer
	wordDelay time.Duration
	echoUser  bool

	seq    *reveal.Sequencer
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	idle     *sync.Cond
	queue    []job
	busy     bool
	printed  map[string]protocol.Status
	session  string
	typing   bool
	rendered bool
	open     bool
	debug    bool
}

// newTerminal creates a presenter writing to out. User messages typed at the
// prompt are already on screen, so only restored ones are printed unless
// echoUser is set.
func newTerminal(out io.Writer, wordDelay time.Duration, echoUser bool) *terminal {
	t := &terminal{
		out:       out,
		wordDelay: wordDelay,
		echoUser:  echoUser,
		printed:   make(map[string]protocol.Status),
	}
	t.idle = sync.NewCond(&t.mu)
	return t
}

// Mount starts the print worker. Completions reach the manager on their own
// goroutine: the manager re-renders synchronously, and Unmount holds the
// widget's render lock while it waits for the worker.
func (t *terminal) Mount(typing widget.TypingNotifier) error {
	t.seq = reveal.New(t.wordDelay, func(id string) {
		go typing.OnTypingComplete(id)
	})
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.done = make(chan struct{})
	go t.run()
	return nil
}

func (t *terminal) Render(v widget.View) {
	t.mu.Lock()
	defer t.mu.Unlock()

	debugOn := v.Options.Debug && !t.debug
	t.debug = v.Options.Debug
	t.open = v.Open
	if !v.Open {
		return
	}

	first := !t.rendered
	t.rendered = true

	if v.SessionID != t.session {
		t.queue = append(t.queue, job{session: v.SessionID, title: v.Options.Title, debug: v.Options.Debug})
		t.session = v.SessionID
		t.typing = false
		t.seq.Forget()
	} else if debugOn {
		t.queue = append(t.queue, job{session: v.SessionID, title: v.Options.Title, debug: true})
	}

	for _, msg := range v.Messages {
		if status, ok := t.printed[msg.ID]; ok {
			if !msg.IsBot && status != msg.Status && msg.Status == protocol.StatusFailed {
				t.queue = append(t.queue, job{msg: msg, failed: true})
			}
			t.printed[msg.ID] = msg.Status
			continue
		}
		t.printed[msg.ID] = msg.Status
		if !msg.IsBot && !first && !t.echoUser {
			continue
		}
		t.queue = append(t.queue, job{
			msg:    msg,
			title:  v.Options.Title,
			reveal: msg.IsBot && msg.ID == v.TypingMessageID,
		})
	}

	if v.IsTyping && !t.typing {
		t.queue = append(t.queue, job{typing: true, title: v.Options.Title})
	}
	t.typing = v.IsTyping

	if len(t.queue) > 0 {
		t.idle.Broadcast()
	}
}

// OnEvent prints manager events while Options.Debug is set.
func (t *terminal) OnEvent(_ context.Context, event observability.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.debug || !t.open {
		return
	}

	var b strings.Builder
	b.WriteString(string(event.Type))
	for _, k := range observability.Keys(event.Data) {
		fmt.Fprintf(&b, " %s=%v", k, event.Data[k])
	}
	t.queue = append(t.queue, job{note: b.String()})
	t.idle.Broadcast()
}

func (t *terminal) Unmount() error {
	if t.cancel == nil {
		return nil
	}
	t.cancel()
	t.mu.Lock()
	t.idle.Broadcast()
	t.mu.Unlock()
	<-t.done
	return nil
}

// Wait blocks until every queued message has been printed.
func (t *terminal) Wait() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for (len(t.queue) > 0 || t.busy) && t.ctx.Err() == nil {
		t.idle.Wait()
	}
}

func (t *terminal) run() {
	defer close(t.done)
	for {
		t.mu.Lock()
		for len(t.queue) == 0 && t.ctx.Err() == nil {
			t.busy = false
			t.idle.Broadcast()
			t.idle.Wait()
		}
		if t.ctx.Err() != nil {
			t.busy = false
			t.idle.Broadcast()
			t.mu.Unlock()
			return
		}
		next := t.queue[0]
		t.queue = t.queue[1:]
		t.busy = true
		t.mu.Unlock()

		t.print(next)
	}
}

func (t *terminal) print(j job) {
	switch {
	case j.session != "" && j.debug:
		faint.Fprintf(t.out, "── %s · session %s ──\n", j.title, j.session)
	case j.session != "":
		faint.Fprintf(t.out, "── %s ──\n", j.title)
	case j.note != "":
		faint.Fprintf(t.out, "· %s\n", j.note)
	case j.failed:
		failedLabel.Fprintf(t.out, "✗ not delivered: %s\n", j.msg.Content)
	case j.typing:
		faint.Fprintf(t.out, "%s is typing…\n", j.title)
	case j.msg.IsBot:
		botLabel.Fprintf(t.out, "%s › ", j.title)
		text := markup.Plain(j.msg.Content)
		if !j.reveal {
			fmt.Fprintln(t.out, text)
			return
		}
		written := 0
		err := t.seq.Reveal(t.ctx, j.msg.ID, text, func(_, _ int, shown string) {
			fmt.Fprint(t.out, shown[written:])
			written = len(shown)
		})
		if err == nil && !strings.HasSuffix(text, "\n") {
			fmt.Fprintln(t.out)
		}
	default:
		userLabel.Fprint(t.out, "you › ")
		fmt.Fprint(t.out, j.msg.Content)
		if j.msg.Status == protocol.StatusFailed {
			failedLabel.Fprint(t.out, " (not delivered)")
		}
		fmt.Fprintln(t.out)
	}
}
