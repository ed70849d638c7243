// Command mockapi serves a local stand-in for the SegurBot chat API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr      string
		logFormat string
		verbose   bool
		opts      options
	)

	cmd := &cobra.Command{
		Use:           "mockapi",
		Short:         "Serve a canned SegurBot chat API for local development",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if env := os.Getenv("MOCKAPI_ADDR"); env != "" && !cmd.Flags().Changed("addr") {
				addr = env
			}
			logger, err := newLogger(logFormat, verbose)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), logger, addr, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", ":8080", "Listen address")
	f.DurationVar(&opts.Latency, "latency", 800*time.Millisecond, "Delay before each chat reply")
	f.IntVar(&opts.FailEvery, "fail-every", 0, "Fail every Nth chat request with a 500; 0 never fails")
	f.StringSliceVar(&opts.Origins, "allow-origin", []string{"*"}, "Origins allowed by CORS")
	f.StringVar(&logFormat, "log-format", "console", "Log output: console or json")
	f.BoolVarP(&verbose, "verbose", "v", false, "Log every request")
	return cmd
}

func newLogger(format string, verbose bool) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	switch format {
	case "console":
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).With().Timestamp().Logger(), nil
	case "json":
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger(), nil
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}
}

// serve runs the API until ctx ends, then shuts down gracefully.
func serve(ctx context.Context, logger zerolog.Logger, addr string, opts options) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newServer(logger, opts).routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", addr).Dur("latency", opts.Latency).Int("fail_every", opts.FailEvery).Msg("mock chat API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}
