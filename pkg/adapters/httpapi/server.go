// Package httpapi exposes the editing agent over REST and SSE. It is a
// thin adapter: conversation semantics live in the runner, direct reads go
// through the same dispatcher the agent uses.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
	"github.com/aretw0/deckhand/pkg/runner"
	"github.com/aretw0/deckhand/pkg/session"
)

// Runner drives one conversation exchange to completion. *runner.Loop
// satisfies it.
type Runner interface {
	Run(ctx context.Context, sessionID, documentPath, message string) (*domain.State, error)
}

// Server holds the agent pieces the HTTP surface exposes.
type Server struct {
	Runner     Runner
	Sessions   *session.Manager
	Dispatcher ports.ActionDispatcher
	Streams    *StreamManager

	metrics http.Handler
}

// Option configures the handler.
type Option func(*Server)

// WithStreams shares a stream manager constructed by the caller, so loop
// hooks built before the handler can publish to the same subscribers.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		if sm != nil {
			s.Streams = sm
		}
	}
}

// WithMetricsHandler mounts a metrics endpoint at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewHandler assembles the HTTP routes for the agent.
func NewHandler(run Runner, sessions *session.Manager, dispatcher ports.ActionDispatcher, opts ...Option) http.Handler {
	s := &Server{
		Runner:     run,
		Sessions:   sessions,
		Dispatcher: dispatcher,
		Streams:    NewStreamManager(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", s.CreateSession)
		r.Get("/sessions", s.ListSessions)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.DeleteSession)
			r.Post("/messages", s.PostMessage)
			r.Get("/events", s.SubscribeEvents)
		})
		r.Get("/read/overview", s.ReadOverview)
		r.Get("/read/detail", s.ReadDetail)
	})
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createSessionRequest struct {
	DocumentPath string `json:"document_path"`
}

type sessionSummary struct {
	SessionID    string `json:"session_id"`
	DocumentPath string `json:"document_path,omitempty"`
	Turns        int    `json:"turns"`
}

type sessionDetail struct {
	SessionID    string        `json:"session_id"`
	DocumentPath string        `json:"document_path,omitempty"`
	Turns        []domain.Turn `json:"turns"`
}

type postMessageRequest struct {
	Message      string `json:"message"`
	DocumentPath string `json:"document_path,omitempty"`
}

type postMessageResponse struct {
	SessionID        string `json:"session_id"`
	Reply            string `json:"reply"`
	Turns            int    `json:"turns"`
	TurnLimitReached bool   `json:"turn_limit_reached,omitempty"`
}

// CreateSession handles POST /api/v1/sessions. An empty body starts a
// session with no document bound yet.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		slog.Warn("CreateSession: Invalid request body", "error", err)
		return
	}

	id := uuid.NewString()
	state, err := s.Sessions.LoadOrStart(r.Context(), id, body.DocumentPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Session error: %v", err), http.StatusInternalServerError)
		slog.Error("CreateSession failed", "error", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(sessionSummary{
		SessionID:    id,
		DocumentPath: state.DocumentPath,
		Turns:        len(state.Turns),
	}); err != nil {
		slog.Error("CreateSession response encode failed", "error", err)
	}
}

// ListSessions handles GET /api/v1/sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Session error: %v", err), http.StatusInternalServerError)
		slog.Error("ListSessions failed", "error", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string][]string{"sessions": ids}); err != nil {
		slog.Error("ListSessions response encode failed", "error", err)
	}
}

// GetSession handles GET /api/v1/sessions/{sessionID}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	state, err := s.Sessions.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Session error: %v", err), http.StatusInternalServerError)
		slog.Error("GetSession failed", "error", err, "session_id", id)
		return
	}

	turns := state.Turns
	if turns == nil {
		turns = []domain.Turn{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sessionDetail{
		SessionID:    id,
		DocumentPath: state.DocumentPath,
		Turns:        turns,
	}); err != nil {
		slog.Error("GetSession response encode failed", "error", err)
	}
}

// DeleteSession handles DELETE /api/v1/sessions/{sessionID}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.Sessions.Delete(r.Context(), id); err != nil {
		http.Error(w, fmt.Sprintf("Session error: %v", err), http.StatusInternalServerError)
		slog.Error("DeleteSession failed", "error", err, "session_id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostMessage handles POST /api/v1/sessions/{sessionID}/messages. It runs
// the full decide/dispatch loop and answers with the assistant's reply.
// A conversation that hits its turn budget still answers 200; the flag
// tells the client the agent stopped early.
func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var body postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		slog.Warn("PostMessage: Invalid request body", "error", err)
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	clean, err := runner.SanitizeInput(body.Message)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid message: %v", err), http.StatusBadRequest)
		slog.Warn("PostMessage: Message rejected", "error", err, "size", len(body.Message))
		return
	}

	state, err := s.Runner.Run(r.Context(), id, body.DocumentPath, clean)
	limitReached := false
	if err != nil {
		if !errors.Is(err, domain.ErrTooManyTurns) {
			http.Error(w, fmt.Sprintf("Agent error: %v", err), http.StatusInternalServerError)
			slog.Error("PostMessage failed", "error", err, "session_id", id)
			s.Streams.publish(id, event{Type: "message_failed", SessionID: id, Error: err.Error()})
			return
		}
		limitReached = true
	}

	resp := postMessageResponse{
		SessionID:        id,
		Reply:            state.LastAssistantMessage(),
		Turns:            len(state.Turns),
		TurnLimitReached: limitReached,
	}
	s.Streams.publish(id, event{
		Type:      "message_completed",
		SessionID: id,
		Message:   resp.Reply,
		Turns:     resp.Turns,
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("PostMessage response encode failed", "error", err)
	}
}

// ReadOverview handles GET /api/v1/read/overview?path=. It serves the
// deck structure without involving the language model.
func (s *Server) ReadOverview(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "Query parameter 'path' is required", http.StatusBadRequest)
		return
	}

	result := s.Dispatcher.Dispatch(r.Context(), domain.ToolCall{
		ID:     "http-read",
		Action: domain.ActionReadOverview,
		Args:   map[string]any{},
	}, path)
	writeToolResult(w, result)
}

// ReadDetail handles GET /api/v1/read/detail?path=&indices=1,2,3.
func (s *Server) ReadDetail(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "Query parameter 'path' is required", http.StatusBadRequest)
		return
	}

	var indices []int
	if err := runtime.BindQueryParameter("form", false, true, "indices", r.URL.Query(), &indices); err != nil {
		http.Error(w, fmt.Sprintf("Invalid 'indices' parameter: %v", err), http.StatusBadRequest)
		slog.Warn("ReadDetail: Invalid indices", "error", err)
		return
	}

	result := s.Dispatcher.Dispatch(r.Context(), domain.ToolCall{
		ID:     "http-read",
		Action: domain.ActionReadDetail,
		Args:   map[string]any{"container_indices": indices},
	}, path)
	writeToolResult(w, result)
}

// writeToolResult relays a dispatch result. Successful reads already carry
// JSON bodies; failures carry the same correctable text the model sees.
func writeToolResult(w http.ResponseWriter, result domain.ToolResult) {
	if result.IsError {
		http.Error(w, result.Content, http.StatusUnprocessableEntity)
		slog.Warn("Read failed", "action", result.Action, "detail", result.Content)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(result.Content)); err != nil {
		slog.Error("Read response write failed", "error", err)
	}
}

// SubscribeEvents handles GET /api/v1/sessions/{sessionID}/events (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		slog.Error("SubscribeEvents: Streaming not supported")
		return
	}

	id := chi.URLParam(r, "sessionID")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("SSE client disconnected", "session_id", id)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
