package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/segurbot/core/protocol"
	"github.com/tailored-agentic-units/segurbot/transport"
)

func newTestServer(t *testing.T, opts options) (*server, string) {
	t.Helper()
	s := newServer(zerolog.Nop(), opts)
	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	return s, ts.URL + "/api/chat"
}

func request(sessionID string, texts ...string) protocol.ChatRequest {
	req := protocol.ChatRequest{SessionID: sessionID, Messages: []protocol.HistoryEntry{}}
	for i, text := range texts {
		role := protocol.RoleUser
		if i%2 == 1 {
			role = protocol.RoleAssistant
		}
		req.Messages = append(req.Messages, protocol.HistoryEntry{Role: role, Content: text})
	}
	return req
}

func TestReply(t *testing.T) {
	tests := []struct {
		name string
		text string
		turn int
		want string
	}{
		{"car keyword", "Quiero asegurar mi auto", 1, "Para tu **auto**"},
		{"home keyword", "seguro de hogar", 3, "El seguro de **hogar**"},
		{"case insensitive", "VIDA", 2, "Los seguros de **vida**"},
		{"first turn greeting", "hola", 1, "¡Gracias por escribirnos!"},
		{"echo after first turn", "hola", 2, "Recibí tu mensaje: hola"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(reply(tt.text, tt.turn), tt.want), reply(tt.text, tt.turn))
		})
	}
}

func TestServer_HTTPTransport(t *testing.T) {
	s, endpoint := newTestServer(t, options{})
	client := transport.NewHTTPClient(endpoint, http.DefaultClient)
	ctx := context.Background()

	first, err := client.Complete(ctx, request("s1", "hola"))
	require.NoError(t, err)
	assert.Equal(t, "¡Gracias por escribirnos! ¿Qué tipo de seguro estás buscando: auto, hogar o vida?", first.Content())

	second, err := client.Complete(ctx, request("s1", "hola", first.Content(), "auto"))
	require.NoError(t, err)
	assert.Contains(t, second.Content(), "[nuestro cotizador](https://segurbot.example/auto)")
	assert.Equal(t, 2, s.Turns("s1"))

	require.NoError(t, client.Reset(ctx, protocol.ResetRequest{SessionID: "s1"}))
	assert.Equal(t, 0, s.Turns("s1"))
}

func TestServer_ConnectTransport(t *testing.T) {
	s, endpoint := newTestServer(t, options{})
	client := transport.NewConnectClient(endpoint, http.DefaultClient)
	ctx := context.Background()

	reply, err := client.Complete(ctx, request("s2", "¿Cuánto cuesta?"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply.Content(), "El precio depende"))
	assert.Equal(t, 1, s.Turns("s2"))

	require.NoError(t, client.Reset(ctx, protocol.ResetRequest{SessionID: "s2"}))
	assert.Equal(t, 0, s.Turns("s2"))
}

func TestServer_FailEvery(t *testing.T) {
	_, endpoint := newTestServer(t, options{FailEvery: 2})
	client := transport.NewHTTPClient(endpoint, http.DefaultClient)
	ctx := context.Background()

	_, err := client.Complete(ctx, request("s3", "hola"))
	require.NoError(t, err)

	_, err = client.Complete(ctx, request("s3", "hola"))
	var statusErr *transport.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestServer_LatencyHonorsCancellation(t *testing.T) {
	_, endpoint := newTestServer(t, options{Latency: time.Minute})
	client := transport.NewHTTPClient(endpoint, http.DefaultClient)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, request("s4", "hola"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServer_BadRequests(t *testing.T) {
	s := newServer(zerolog.Nop(), options{})
	h := s.routes()

	tests := []struct {
		name string
		path string
		body string
	}{
		{"chat malformed", "/api/chat", "{"},
		{"reset without session", "/api/chat/reset", "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestServer_CORS(t *testing.T) {
	s := newServer(zerolog.Nop(), options{Origins: []string{"https://shop.example"}})
	h := s.routes()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://shop.example")
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://other.example")
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_Health(t *testing.T) {
	h := newServer(zerolog.Nop(), options{}).routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RequestLogging(t *testing.T) {
	var buf bytes.Buffer
	s := newServer(zerolog.New(&buf).Level(zerolog.DebugLevel), options{})
	h := s.routes()

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"messages":[{"role":"user","content":"hola"}],"sessionId":"s5"}`)
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), `"session_id":"s5"`)
	assert.Contains(t, buf.String(), `"path":"/api/chat"`)
	assert.Contains(t, buf.String(), `"status":200`)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, zerolog.Nop(), "127.0.0.1:0", options{}) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger("json", false)
	assert.NoError(t, err)
	_, err = newLogger("xml", false)
	assert.ErrorContains(t, err, `unknown log format "xml"`)
}
