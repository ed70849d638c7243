package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/segurbot/chat"
	"github.com/tailored-agentic-units/segurbot/core/protocol"
	"github.com/tailored-agentic-units/segurbot/markup"
	"github.com/tailored-agentic-units/segurbot/memory"
	"github.com/tailored-agentic-units/segurbot/observability"
	"github.com/tailored-agentic-units/segurbot/reveal"
	"github.com/tailored-agentic-units/segurbot/session"
	"github.com/tailored-agentic-units/segurbot/widget"
)

const replHelp = `Commands:
  /reset   start a new conversation
  /hide    hide the chat window
  /show    show the chat window
  /debug   toggle session ids and event lines
  /quit    leave
`

func newChatCmd(flags *rootFlags) *cobra.Command {
	var (
		title     string
		debug     bool
		wordDelay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			observer, err := newObserver(flags, true)
			if err != nil {
				return err
			}

			interactive := isTerminal(cmd.InOrStdin())
			if !isTerminal(cmd.OutOrStdout()) {
				wordDelay = 0
			}
			term := newTerminal(cmd.OutOrStdout(), wordDelay, !interactive)

			options := widget.DefaultOptions()
			if title != "" {
				options.Title = title
			}
			options.Debug = debug

			ctx := cmd.Context()
			h, err := widget.New(ctx, cfg, term, options,
				chat.WithObserver(observability.NewMultiObserver(observer, term)))
			if err != nil {
				return err
			}
			defer h.Destroy()

			if interactive {
				fmt.Fprint(cmd.OutOrStdout(), faint.Sprint("Type /help for commands.\n"))
			}
			return repl(ctx, h, term, cmd.InOrStdin(), cmd.OutOrStdout(), interactive)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Name shown for the bot")
	cmd.Flags().BoolVar(&debug, "debug", false, "Show session ids and manager events in the transcript")
	cmd.Flags().DurationVar(&wordDelay, "word-delay", reveal.DefaultWordDelay, "Pause between revealed words")
	return cmd
}

func repl(ctx context.Context, h *widget.Handle, term *terminal, in io.Reader, out io.Writer, prompt bool) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		term.Wait()
		if prompt {
			userLabel.Fprint(out, "› ")
		}

		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprint(out, replHelp)
			continue
		case "/hide":
			h.Close()
			continue
		case "/show":
			h.Open()
			continue
		case "/debug":
			h.UpdateOptions(func(o *widget.Options) { o.Debug = !o.Debug })
			continue
		case "/reset":
			if err := h.Reset(ctx); err != nil {
				return err
			}
			continue
		}

		if err := h.Manager().SendMessage(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			color.New(color.FgRed).Fprintf(out, "%v\n", err)
		}
	}
}

func newSendCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			observer, err := newObserver(flags, true)
			if err != nil {
				return err
			}

			m, err := chat.New(cfg, chat.WithObserver(observer))
			if err != nil {
				return err
			}
			defer m.Close()

			ctx := cmd.Context()
			if err := m.SendMessage(ctx, strings.Join(args, " ")); err != nil {
				return err
			}

			snap := m.Snapshot()
			reply, ok := snap.Last()
			if !ok || !reply.IsBot {
				return errors.New("no reply recorded")
			}
			// The reply is shown in full, so it needs no reveal next time.
			m.OnTypingComplete(reply.ID)

			fmt.Fprintln(cmd.OutOrStdout(), markup.Plain(reply.Content))
			if len(snap.Messages) >= 2 && snap.Messages[len(snap.Messages)-2].Status == protocol.StatusFailed {
				return errors.New("message was not delivered")
			}
			return nil
		},
	}
}

func newTranscriptCmd(flags *rootFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Print the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := memory.NewStore(ctx, &cfg.Memory)
			if err != nil {
				return fmt.Errorf("failed to open session store: %w", err)
			}
			defer memory.Close(store)

			greeting := chat.DefaultStrings(cfg.Locale).Greeting
			if cfg.Session.InitialMessage != "" {
				greeting = cfg.Session.InitialMessage
			}
			restored := session.Restore(ctx, memory.NewKV(store, cfg.Memory.Namespace), greeting)
			if restored.Err != nil {
				return restored.Err
			}
			if restored.NewID {
				fmt.Fprintln(cmd.ErrOrStderr(), "No stored conversation.")
				return nil
			}

			return writeTranscript(cmd.OutOrStdout(), format, restored.Session, isTerminal(cmd.OutOrStdout()))
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, markdown or json")
	return cmd
}

func writeTranscript(out io.Writer, format string, sess *session.Session, tty bool) error {
	messages := sess.Messages()

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			SessionID string             `json:"sessionId"`
			Messages  []protocol.Message `json:"messages"`
		}{sess.ID(), messages})

	case "markdown":
		doc := transcriptMarkdown(sess.ID(), messages)
		if tty {
			rendered, err := glamour.Render(doc, "dark")
			if err != nil {
				return fmt.Errorf("failed to render transcript: %w", err)
			}
			doc = rendered
		}
		_, err := io.WriteString(out, doc)
		return err

	case "text", "":
		for _, msg := range messages {
			label, c := "you", userLabel
			if msg.IsBot {
				label, c = "bot", botLabel
			}
			c.Fprintf(out, "%s › ", label)
			fmt.Fprintln(out, markup.Plain(msg.Content))
		}
		return nil

	default:
		return fmt.Errorf("unknown transcript format %q", format)
	}
}

func transcriptMarkdown(id string, messages []protocol.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session `%s`\n\n", id)
	for _, msg := range messages {
		if msg.IsBot {
			b.WriteString("**SegurBot:** ")
		} else {
			b.WriteString("**You:** ")
		}
		b.WriteString(msg.Content)
		if msg.Status == protocol.StatusFailed {
			b.WriteString(" _(not delivered)_")
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func newResetCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard the stored conversation and start a new session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			observer, err := newObserver(flags, false)
			if err != nil {
				return err
			}

			m, err := chat.New(cfg, chat.WithObserver(observer))
			if err != nil {
				return err
			}
			defer m.Close()

			ctx := cmd.Context()
			if err := m.Initialize(ctx); err != nil {
				return err
			}
			if err := m.ResetChat(ctx); err != nil {
				return err
			}
			if err := m.Flush(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "New session %s\n", m.Snapshot().SessionID)
			return nil
		},
	}
}
