// Package reveal plays a bot message into view one word at a time.
//
// A Sequencer owns the reveal timing that the conversation manager leaves to
// the presentation layer. It reports each partial text through a
// ProgressFunc and, once the last word is shown, tells the manager through
// the completion callback. Completion is reported at most once per message
// id, however many times the message is revealed.
//
//	seq := reveal.New(reveal.DefaultWordDelay, manager.OnTypingComplete)
//	err := seq.Reveal(ctx, msg.ID, msg.Content, func(shown, total int, text string) {
//	    render(text)
//	})
package reveal

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"
)

// DefaultWordDelay is the pause between words.
const DefaultWordDelay = 50 * time.Millisecond

// ProgressFunc receives the text revealed so far. shown counts revealed
// words (1-indexed) out of total.
type ProgressFunc func(shown, total int, text string)

// Sequencer reveals messages word by word. Safe for concurrent use; each
// Reveal call runs on the caller's goroutine.
type Sequencer struct {
	delay    time.Duration
	complete func(id string)

	mu        sync.Mutex
	completed map[string]bool
}

// New creates a Sequencer. complete may be nil.
func New(delay time.Duration, complete func(id string)) *Sequencer {
	if delay < 0 {
		delay = 0
	}
	return &Sequencer{
		delay:     delay,
		complete:  complete,
		completed: make(map[string]bool),
	}
}

// Reveal shows text word by word, blocking until the whole message is
// visible or ctx ends. Whitespace between words is preserved. A message that
// has already completed is shown in full at once. When ctx ends mid-reveal
// the completion callback is not called and ctx.Err() is returned.
func (s *Sequencer) Reveal(ctx context.Context, id, text string, progress ProgressFunc) error {
	if progress == nil {
		progress = func(int, int, string) {}
	}

	words := Split(text)
	if s.Completed(id) || len(words) == 0 {
		progress(len(words), len(words), text)
		s.finish(id)
		return nil
	}

	var shown strings.Builder
	for i, word := range words {
		if i > 0 {
			timer := time.NewTimer(s.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		shown.WriteString(word)
		progress(i+1, len(words), shown.String())
	}

	s.finish(id)
	return nil
}

// Completed reports whether id has finished revealing.
func (s *Sequencer) Completed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[id]
}

// Forget drops completion records, typically after the session is reset.
func (s *Sequencer) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.completed)
}

func (s *Sequencer) finish(id string) {
	s.mu.Lock()
	already := s.completed[id]
	s.completed[id] = true
	s.mu.Unlock()

	if !already && s.complete != nil {
		s.complete(id)
	}
}

// Split breaks text into reveal steps. Each step is a word together with the
// whitespace that follows it, so joining the steps yields text unchanged.
func Split(text string) []string {
	var steps []string
	start := 0
	inWord := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		if !space && !inWord && i > 0 && hasWord(text[start:i]) {
			steps = append(steps, text[start:i])
			start = i
		}
		inWord = !space
	}
	if start < len(text) {
		steps = append(steps, text[start:])
	}
	return steps
}

func hasWord(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) >= 0
}
