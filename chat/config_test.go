package chat_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/segurbot/chat"
	"github.com/tailored-agentic-units/segurbot/memory"
	"github.com/tailored-agentic-units/segurbot/transport"
)

func TestDefaultConfig(t *testing.T) {
	cfg := chat.DefaultConfig()

	assert.Equal(t, "500ms", cfg.TypingDelay)
	assert.Equal(t, chat.SendPolicySerialize, cfg.SendPolicy)
	assert.Equal(t, "en", cfg.Locale)
	assert.Equal(t, memory.BackendMemory, cfg.Memory.Backend)
	assert.Empty(t, cfg.Transport.Endpoint)
}

func TestConfig_Merge(t *testing.T) {
	cfg := chat.DefaultConfig()

	cfg.Merge(&chat.Config{
		TypingDelay: "1s",
		Locale:      "es",
		Transport:   transport.Config{Endpoint: "https://api.example.com/chat"},
	})

	assert.Equal(t, "1s", cfg.TypingDelay)
	assert.Equal(t, "es", cfg.Locale)
	assert.Equal(t, "https://api.example.com/chat", cfg.Transport.Endpoint)
	assert.Equal(t, chat.SendPolicySerialize, cfg.SendPolicy, "zero values preserve defaults")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*chat.Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*chat.Config) {}},
		{name: "bad policy", mutate: func(c *chat.Config) { c.SendPolicy = "queue" }, wantErr: true},
		{name: "bad delay", mutate: func(c *chat.Config) { c.TypingDelay = "later" }, wantErr: true},
		{name: "negative delay", mutate: func(c *chat.Config) { c.TypingDelay = "-1s" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := chat.DefaultConfig()
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TEST_SEGURBOT_HOST", "chat.example.com")

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "json",
			file: "config.json",
			content: `{
				"transport": {"endpoint": "https://chat.example.com/api/chat"},
				"session": {"initial_message": "Bienvenido"},
				"memory": {"backend": "file", "path": "/tmp/segurbot"},
				"send_policy": "reject",
				"locale": "es"
			}`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			content: `transport:
  endpoint: https://${TEST_SEGURBOT_HOST}/api/chat
session:
  initial_message: Bienvenido
memory:
  backend: file
  path: /tmp/segurbot
send_policy: reject
locale: es
`,
		},
		{
			name: "toml",
			file: "config.toml",
			content: `send_policy = "reject"
locale = "es"

[transport]
endpoint = "https://chat.example.com/api/chat"

[session]
initial_message = "Bienvenido"

[memory]
backend = "file"
path = "/tmp/segurbot"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			cfg, err := chat.LoadConfig(path)
			require.NoError(t, err)

			assert.Equal(t, "https://chat.example.com/api/chat", cfg.Transport.Endpoint)
			assert.Equal(t, "Bienvenido", cfg.Session.InitialMessage)
			assert.Equal(t, memory.BackendFile, cfg.Memory.Backend)
			assert.Equal(t, "/tmp/segurbot", cfg.Memory.Path)
			assert.Equal(t, chat.SendPolicyReject, cfg.SendPolicy)
			assert.Equal(t, "es", cfg.Locale)
			assert.Equal(t, "500ms", cfg.TypingDelay, "defaults kept")
			assert.Equal(t, transport.ProtocolHTTP, cfg.Transport.Protocol, "defaults kept")
		})
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := chat.LoadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	ini := filepath.Join(dir, "config.ini")
	require.NoError(t, os.WriteFile(ini, []byte("x=1"), 0o600))
	_, err = chat.LoadConfig(ini)
	assert.ErrorContains(t, err, "unsupported config format")

	bad := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = chat.LoadConfig(bad)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv(chat.EnvAPIURL, "https://env.example.com/api/chat")
	t.Setenv(chat.EnvInitialMessage, "Hello from env")
	t.Setenv(chat.EnvLocale, "es-AR")
	t.Setenv(chat.EnvStore, "sqlite")
	t.Setenv(chat.EnvStorePath, "/var/lib/segurbot.db")
	t.Setenv(chat.EnvRedisAddr, "localhost:6379")

	cfg := chat.DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "https://env.example.com/api/chat", cfg.Transport.Endpoint)
	assert.Equal(t, "Hello from env", cfg.Session.InitialMessage)
	assert.Equal(t, "es-AR", cfg.Locale)
	assert.Equal(t, memory.BackendSQLite, cfg.Memory.Backend)
	assert.Equal(t, "/var/lib/segurbot.db", cfg.Memory.Path)
	assert.Equal(t, "localhost:6379", cfg.Memory.RedisAddr)
}

func TestNew_RequiresEndpoint(t *testing.T) {
	cfg := chat.DefaultConfig()

	_, err := chat.New(&cfg)
	assert.ErrorIs(t, err, transport.ErrNoEndpoint)
}

func TestNew_FromConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"¡Claro!"}`))
	}))
	defer server.Close()

	cfg := chat.DefaultConfig()
	cfg.Transport.Endpoint = server.URL
	cfg.Memory = memory.Config{Backend: memory.BackendSQLite, Path: filepath.Join(t.TempDir(), "chat.db")}
	cfg.Session.InitialMessage = "Bienvenido a SegurBot"
	cfg.Locale = "es"

	m, err := chat.New(&cfg, chat.WithObserver(&captureObserver{}))
	require.NoError(t, err)

	require.NoError(t, m.SendMessage(context.Background(), "Quiero cotizar"))
	snap := m.Snapshot()
	require.NoError(t, m.Close())

	require.Len(t, snap.Messages, 3)
	assert.Equal(t, "Bienvenido a SegurBot", snap.Messages[0].Content)
	assert.Equal(t, "¡Claro!", snap.Messages[2].Content)

	reopened, err := chat.New(&cfg, chat.WithObserver(&captureObserver{}))
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Initialize(context.Background()))

	restored := reopened.Snapshot()
	assert.Equal(t, snap.SessionID, restored.SessionID)
	assert.Equal(t, snap.Messages[1:], restored.Messages[1:])
}

func TestDefaultStrings(t *testing.T) {
	tests := []struct {
		locale     string
		noResponse string
	}{
		{locale: "", noResponse: "No response"},
		{locale: "en", noResponse: "No response"},
		{locale: "fr", noResponse: "No response"},
		{locale: "es", noResponse: "Sin respuesta"},
		{locale: "es-AR", noResponse: "Sin respuesta"},
		{locale: "ES_mx", noResponse: "Sin respuesta"},
		{locale: "est", noResponse: "No response"},
	}

	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			assert.Equal(t, tt.noResponse, chat.DefaultStrings(tt.locale).NoResponse)
		})
	}
}

func TestStrings_Error(t *testing.T) {
	es := chat.DefaultStrings("es")
	err := &transport.StatusError{StatusCode: 502, StatusText: "Bad Gateway"}

	assert.Equal(t, "Lo sentimos, hubo un error: API error: 502 Bad Gateway", es.Error(err))
}

func TestStrings_Error_CustomFormat(t *testing.T) {
	err := &transport.StatusError{StatusCode: 500, StatusText: "Internal Server Error"}

	tests := []struct {
		name   string
		format string
		want   string
	}{
		{name: "with verb", format: "Oops (%s)", want: "Oops (API error: 500 Internal Server Error)"},
		{name: "without verb", format: "Oops", want: "Oops: API error: 500 Internal Server Error"},
		{name: "trailing colon", format: "Oops: ", want: "Oops: API error: 500 Internal Server Error"},
		{name: "escaped percent only", format: "100%% broken", want: "100% broken: API error: 500 Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := chat.Strings{ErrorFormat: tt.format}
			assert.Equal(t, tt.want, s.Error(err))
		})
	}
}
