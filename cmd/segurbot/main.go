package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/segurbot/chat"
	"github.com/tailored-agentic-units/segurbot/memory"
	"github.com/tailored-agentic-units/segurbot/observability"
)

type rootFlags struct {
	configFile string
	apiURL     string
	locale     string
	store      string
	storePath  string
	greeting   string
	logFormat  string
	verbose    bool
}

func main() {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "segurbot",
		Short:         "Talk to the SegurBot insurance assistant from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "Path to config file (.json, .yaml, .toml)")
	pf.StringVar(&flags.apiURL, "api-url", "", "Chat API endpoint (overrides config)")
	pf.StringVar(&flags.locale, "locale", "", "Locale for built-in strings, e.g. es or en (overrides config)")
	pf.StringVar(&flags.store, "store", "", "Session store backend: memory, file, sqlite or redis (overrides config)")
	pf.StringVar(&flags.storePath, "store-path", "", "File directory or SQLite database path (overrides config)")
	pf.StringVar(&flags.greeting, "greeting", "", "Initial bot message (overrides config)")
	pf.StringVar(&flags.logFormat, "log-format", "text", "Log output: text, json or console")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging to stderr")

	root.AddCommand(
		newChatCmd(flags),
		newSendCmd(flags),
		newTranscriptCmd(flags),
		newResetCmd(flags),
	)
	return root
}

// loadConfig layers defaults, the config file, SEGURBOT_* variables and
// flags, in that order.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*chat.Config, error) {
	cfg := chat.DefaultConfig()
	if flags.configFile != "" {
		loaded, err := chat.LoadConfig(flags.configFile)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	cfg.ApplyEnv()

	pf := cmd.Flags()
	if pf.Changed("api-url") {
		cfg.Transport.Endpoint = flags.apiURL
	}
	if pf.Changed("locale") {
		cfg.Locale = flags.locale
	}
	if pf.Changed("store") {
		cfg.Memory.Backend = flags.store
	}
	if pf.Changed("store-path") {
		cfg.Memory.Path = flags.storePath
	}
	if pf.Changed("greeting") {
		cfg.Session.InitialMessage = flags.greeting
	}

	// A terminal session outlives the process, so the in-memory default
	// becomes a SQLite file unless a backend was chosen explicitly.
	explicit := flags.configFile != "" || os.Getenv(chat.EnvStore) != "" || pf.Changed("store")
	if !explicit && cfg.Memory.Backend == memory.BackendMemory {
		path, err := defaultStorePath()
		if err != nil {
			return nil, err
		}
		cfg.Memory.Backend = memory.BackendSQLite
		if cfg.Memory.Path == "" {
			cfg.Memory.Path = path
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func defaultStorePath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate cache directory: %w", err)
	}
	dir = filepath.Join(dir, "segurbot")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	return filepath.Join(dir, "session.db"), nil
}

// newObserver builds the event sink selected by --log-format. Interactive
// use stays quiet below warnings unless --verbose is set.
func newObserver(flags *rootFlags, quiet bool) (observability.Observer, error) {
	level := slog.LevelInfo
	switch {
	case flags.verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelWarn
	}

	switch flags.logFormat {
	case "text", "":
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		return observability.NewSlogObserver(slog.New(handler)), nil
	case "json":
		handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		return observability.NewSlogObserver(slog.New(handler)), nil
	case "console":
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerologLevel(level)).
			With().Timestamp().Logger()
		return observability.NewZerologObserver(logger), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", flags.logFormat)
	}
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level <= slog.LevelDebug:
		return zerolog.DebugLevel
	case level <= slog.LevelInfo:
		return zerolog.InfoLevel
	case level <= slog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
