package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/segurbot/memory"
	"github.com/tailored-agentic-units/segurbot/session"
	"github.com/tailored-agentic-units/segurbot/transport"
)

const (
	defaultTypingDelay = "500ms"
	defaultLocale      = "en"
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIURL         = "SEGURBOT_API_URL"
	EnvInitialMessage = "SEGURBOT_INITIAL_MESSAGE"
	EnvLocale         = "SEGURBOT_LOCALE"
	EnvStore          = "SEGURBOT_STORE"
	EnvStorePath      = "SEGURBOT_STORE_PATH"
	EnvRedisAddr      = "SEGURBOT_REDIS_ADDR"
)

// Config holds initialization parameters for the manager and its
// subsystems. Each subsystem section delegates to that subsystem's
// config-driven constructor.
type Config struct {
	Transport   transport.Config `json:"transport" yaml:"transport" toml:"transport"`
	Memory      memory.Config    `json:"memory" yaml:"memory" toml:"memory"`
	Session     session.Config   `json:"session" yaml:"session" toml:"session"`
	TypingDelay string           `json:"typing_delay,omitempty" yaml:"typing_delay" toml:"typing_delay"`
	SendPolicy  SendPolicy       `json:"send_policy,omitempty" yaml:"send_policy" toml:"send_policy"`
	Locale      string           `json:"locale,omitempty" yaml:"locale" toml:"locale"`
}

// DefaultConfig returns a Config with defaults for all subsystems. The
// chat endpoint has no default.
func DefaultConfig() Config {
	return Config{
		Transport:   transport.DefaultConfig(),
		Memory:      memory.DefaultConfig(),
		Session:     session.DefaultConfig(),
		TypingDelay: defaultTypingDelay,
		SendPolicy:  SendPolicySerialize,
		Locale:      defaultLocale,
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Transport.Merge(&source.Transport)
	c.Memory.Merge(&source.Memory)
	c.Session.Merge(&source.Session)

	if source.TypingDelay != "" {
		c.TypingDelay = source.TypingDelay
	}
	if source.SendPolicy != "" {
		c.SendPolicy = source.SendPolicy
	}
	if source.Locale != "" {
		c.Locale = source.Locale
	}
}

// Validate checks the manager-level settings. Subsystem sections are
// validated by their constructors.
func (c *Config) Validate() error {
	if _, err := c.typingDelay(); err != nil {
		return err
	}
	if c.SendPolicy != "" {
		if err := c.SendPolicy.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) typingDelay() (time.Duration, error) {
	if c.TypingDelay == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.TypingDelay)
	if err != nil {
		return 0, fmt.Errorf("parsing typing_delay %q: %w", c.TypingDelay, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("typing_delay must not be negative: %s", c.TypingDelay)
	}
	return d, nil
}

// ApplyEnv overlays settings from SEGURBOT_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.Transport.Endpoint = v
	}
	if v := os.Getenv(EnvInitialMessage); v != "" {
		c.Session.InitialMessage = v
	}
	if v := os.Getenv(EnvLocale); v != "" {
		c.Locale = v
	}
	if v := os.Getenv(EnvStore); v != "" {
		c.Memory.Backend = v
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		c.Memory.Path = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Memory.RedisAddr = v
	}
}

// LoadConfig reads a config file, merges it with defaults, and returns the
// resulting Config. The format follows the extension: .json, .yaml/.yml
// (with ${VAR} expansion) or .toml.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".json":
		err = json.Unmarshal(data, &loaded)
	case ".yaml", ".yml":
		err = yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &loaded)
	case ".toml":
		_, err = toml.Decode(string(data), &loaded)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
