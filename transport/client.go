// Package transport delivers chat history to the remote chat API and
// notifies it when a session is abandoned.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tailored-agentic-units/segurbot/core/protocol"
	"github.com/tailored-agentic-units/segurbot/core/response"
)

// Protocol names accepted by Config.Protocol.
const (
	ProtocolHTTP    = "http"
	ProtocolConnect = "connect"
)

const defaultTimeout = "30s"

// ErrNoEndpoint is returned when no chat endpoint is configured.
var ErrNoEndpoint = errors.New("transport: no chat endpoint configured")

// Client sends chat-completion requests and reset notifications.
type Client interface {
	// Complete posts the full history and returns the reply. Any non-nil
	// error is a failed turn; a nil error always comes with a non-nil reply.
	Complete(ctx context.Context, req protocol.ChatRequest) (*response.Chat, error)

	// Reset tells the API that the session was abandoned.
	Reset(ctx context.Context, req protocol.ResetRequest) error
}

// Config holds transport initialization parameters.
type Config struct {
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint" toml:"endpoint"`
	Protocol string `json:"protocol,omitempty" yaml:"protocol" toml:"protocol"` // "http" (default) or "connect"
	Timeout  string `json:"timeout,omitempty" yaml:"timeout" toml:"timeout"`    // per-request, e.g. "30s"
}

// DefaultConfig returns the default configuration. The endpoint has no
// default.
func DefaultConfig() Config {
	return Config{
		Protocol: ProtocolHTTP,
		Timeout:  defaultTimeout,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Endpoint != "" {
		c.Endpoint = source.Endpoint
	}
	if source.Protocol != "" {
		c.Protocol = source.Protocol
	}
	if source.Timeout != "" {
		c.Timeout = source.Timeout
	}
}

// Validate reports configuration that New would reject.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return ErrNoEndpoint
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid endpoint %q: scheme must be http or https", c.Endpoint)
	}
	switch c.Protocol {
	case "", ProtocolHTTP, ProtocolConnect:
	default:
		return fmt.Errorf("unknown transport protocol: %s", c.Protocol)
	}
	if _, err := c.timeout(); err != nil {
		return err
	}
	return nil
}

func (c *Config) timeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parsing timeout %q: %w", c.Timeout, err)
	}
	return d, nil
}

// New creates a Client from configuration.
func New(cfg *Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout, _ := cfg.timeout()
	httpClient := &http.Client{Timeout: timeout}

	if cfg.Protocol == ProtocolConnect {
		return NewConnectClient(cfg.Endpoint, httpClient), nil
	}
	return NewHTTPClient(cfg.Endpoint, httpClient), nil
}

// ResetURL derives the reset notification URL from the chat endpoint.
func ResetURL(endpoint string) string {
	return strings.TrimRight(endpoint, "/") + "/reset"
}
