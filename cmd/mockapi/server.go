package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tailored-agentic-units/segurbot/core/protocol"
)

const maxBodySize = 1 << 20

type options struct {
	Latency   time.Duration
	FailEvery int
	Origins   []string
}

// server is a stand-in for the SegurBot chat API. It answers from canned
// replies and counts turns per session.
type server struct {
	log  zerolog.Logger
	opts options

	requests atomic.Int64

	mu       sync.Mutex
	sessions map[string]int
}

func newServer(log zerolog.Logger, opts options) *server {
	return &server{
		log:      log,
		opts:     opts,
		sessions: make(map[string]int),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(cors(s.opts.Origins))

	r.Post("/api/chat", s.handleChat)
	r.Post("/api/chat/reset", s.handleReset)
	return r
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req protocol.ChatRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n := s.requests.Add(1)
	if s.opts.FailEvery > 0 && n%int64(s.opts.FailEvery) == 0 {
		s.log.Warn().Int64("request", n).Str("session_id", req.SessionID).Msg("simulated failure")
		writeError(w, http.StatusInternalServerError, "simulated failure")
		return
	}

	if s.opts.Latency > 0 {
		select {
		case <-time.After(s.opts.Latency):
		case <-r.Context().Done():
			return
		}
	}

	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == protocol.RoleUser {
			last = req.Messages[i].Content
			break
		}
	}

	s.mu.Lock()
	s.sessions[req.SessionID]++
	turn := s.sessions[req.SessionID]
	s.mu.Unlock()

	s.log.Info().
		Str("session_id", req.SessionID).
		Int("history", len(req.Messages)).
		Int("turn", turn).
		Msg("chat request")

	writeJSON(w, http.StatusOK, map[string]string{"text": reply(last, turn)})
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req protocol.ResetRequest
	if err := decode(r, &req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	s.mu.Lock()
	turns, known := s.sessions[req.SessionID]
	delete(s.sessions, req.SessionID)
	s.mu.Unlock()

	s.log.Info().Str("session_id", req.SessionID).Bool("known", known).Int("turns", turns).Msg("session reset")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Turns returns the number of chat turns recorded for a session.
func (s *server) Turns(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionID]
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// cors allows the widget to call the API from pages on other origins.
func cors(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == "*" || o == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Connect-Protocol-Version")
					break
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var topics = []struct {
	keywords []string
	answer   string
}{
	{
		keywords: []string{"auto", "car", "coche", "vehículo", "vehiculo"},
		answer:   "Para tu **auto** tenemos tres coberturas: responsabilidad civil, terceros completo y todo riesgo. Puedes comparar los planes en [nuestro cotizador](https://segurbot.example/auto).",
	},
	{
		keywords: []string{"hogar", "casa", "home", "house"},
		answer:   "El seguro de **hogar** cubre incendio, robo y daños por agua. ¿Tu vivienda es propia o alquilada?",
	},
	{
		keywords: []string{"vida", "life"},
		answer:   "Los seguros de **vida** se cotizan según tu edad y el capital asegurado. ¿Qué capital te interesa?",
	},
	{
		keywords: []string{"precio", "cuánto", "cuanto", "price", "cost"},
		answer:   "El precio depende del tipo de seguro. Contame qué querés asegurar y te paso una cotización.",
	},
}

// reply picks a canned answer for the latest user message.
func reply(text string, turn int) string {
	lower := strings.ToLower(text)
	for _, t := range topics {
		for _, k := range t.keywords {
			if strings.Contains(lower, k) {
				return t.answer
			}
		}
	}
	if turn == 1 {
		return "¡Gracias por escribirnos! ¿Qué tipo de seguro estás buscando: auto, hogar o vida?"
	}
	return "Recibí tu mensaje: " + text
}
