package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/deckhand/pkg/adapters/memory"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
	"github.com/aretw0/deckhand/pkg/session"
)

type mockRunner struct {
	lastSessionID    string
	lastDocumentPath string
	lastMessage      string

	state *domain.State
	err   error
}

func (m *mockRunner) Run(ctx context.Context, sessionID, documentPath, message string) (*domain.State, error) {
	m.lastSessionID = sessionID
	m.lastDocumentPath = documentPath
	m.lastMessage = message
	return m.state, m.err
}

type mockDispatcher struct {
	lastCall domain.ToolCall
	lastPath string
	result   domain.ToolResult
}

func (m *mockDispatcher) Dispatch(ctx context.Context, call domain.ToolCall, documentPath string) domain.ToolResult {
	m.lastCall = call
	m.lastPath = documentPath
	res := m.result
	res.CallID = call.ID
	res.Action = call.Action
	return res
}

func newTestHandler(t *testing.T, run Runner, disp ports.ActionDispatcher, opts ...Option) (http.Handler, *session.Manager) {
	t.Helper()
	sessions := session.NewManager(memory.NewStore())
	return NewHandler(run, sessions, disp, opts...), sessions
}

func conversationState(reply string) *domain.State {
	state := domain.NewState("/decks/q3.pptx")
	state.Append(domain.Turn{Role: domain.RoleUser, Content: "fix the title"})
	state.Append(domain.Turn{Role: domain.RoleAssistant, Content: reply})
	return state
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestCreateSession(t *testing.T) {
	t.Run("With Document Path", func(t *testing.T) {
		handler, sessions := newTestHandler(t, &mockRunner{}, &mockDispatcher{})

		req := httptest.NewRequest("POST", "/api/v1/sessions", strings.NewReader(`{"document_path":"/decks/a.pptx"}`))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		body := decodeBody(t, w)
		id, _ := body["session_id"].(string)
		require.NotEmpty(t, id)
		assert.Equal(t, "/decks/a.pptx", body["document_path"])
		assert.Equal(t, float64(0), body["turns"])

		state, err := sessions.Load(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "/decks/a.pptx", state.DocumentPath)
	})

	t.Run("Empty Body", func(t *testing.T) {
		handler, _ := newTestHandler(t, &mockRunner{}, &mockDispatcher{})

		req := httptest.NewRequest("POST", "/api/v1/sessions", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		body := decodeBody(t, w)
		assert.NotEmpty(t, body["session_id"])
		assert.NotContains(t, body, "document_path")
	})

	t.Run("Malformed Body", func(t *testing.T) {
		handler, _ := newTestHandler(t, &mockRunner{}, &mockDispatcher{})

		req := httptest.NewRequest("POST", "/api/v1/sessions", strings.NewReader("{not json"))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSessionLifecycle(t *testing.T) {
	handler, sessions := newTestHandler(t, &mockRunner{}, &mockDispatcher{})

	state := conversationState("Done.")
	require.NoError(t, sessions.Save(context.Background(), "s1", state))

	t.Run("Get Returns The Conversation", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/sessions/s1", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody(t, w)
		assert.Equal(t, "s1", body["session_id"])
		assert.Equal(t, "/decks/q3.pptx", body["document_path"])
		turns, ok := body["turns"].([]any)
		require.True(t, ok)
		assert.Len(t, turns, 2)
	})

	t.Run("Get Unknown Session Is 404", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/sessions/missing", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "Session not found")
	})

	t.Run("List Includes The Session", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/sessions", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Contains(t, body["sessions"], "s1")
	})

	t.Run("Delete Removes The Session", func(t *testing.T) {
		req := httptest.NewRequest("DELETE", "/api/v1/sessions/s1", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusNoContent, w.Code)
		_, err := sessions.Load(context.Background(), "s1")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestPostMessage(t *testing.T) {
	postMessage := func(handler http.Handler, sessionID, payload string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/v1/sessions/"+sessionID+"/messages", strings.NewReader(payload))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	t.Run("Returns The Assistant Reply", func(t *testing.T) {
		run := &mockRunner{state: conversationState("Retitled slide 2 to \"Q3 Results\".")}
		handler, _ := newTestHandler(t, run, &mockDispatcher{})

		w := postMessage(handler, "s1", `{"message":"fix the title","document_path":"/decks/q3.pptx"}`)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody(t, w)
		assert.Equal(t, "s1", body["session_id"])
		assert.Equal(t, "Retitled slide 2 to \"Q3 Results\".", body["reply"])
		assert.Equal(t, float64(2), body["turns"])
		assert.NotContains(t, body, "turn_limit_reached")

		assert.Equal(t, "s1", run.lastSessionID)
		assert.Equal(t, "/decks/q3.pptx", run.lastDocumentPath)
		assert.Equal(t, "fix the title", run.lastMessage)
	})

	t.Run("Rejects Empty Message", func(t *testing.T) {
		handler, _ := newTestHandler(t, &mockRunner{}, &mockDispatcher{})

		w := postMessage(handler, "s1", `{"message":"  "}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Message is required")
	})

	t.Run("Rejects Malformed Body", func(t *testing.T) {
		handler, _ := newTestHandler(t, &mockRunner{}, &mockDispatcher{})

		w := postMessage(handler, "s1", "{not json")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Rejects Oversized Message", func(t *testing.T) {
		t.Setenv("DECKHAND_MAX_INPUT_SIZE", "8")
		handler, _ := newTestHandler(t, &mockRunner{}, &mockDispatcher{})

		w := postMessage(handler, "s1", `{"message":"123456789"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid message")
	})

	t.Run("Turn Limit Still Answers 200", func(t *testing.T) {
		run := &mockRunner{
			state: conversationState("I stopped before finishing."),
			err:   fmt.Errorf("%w: stopped after 24 decision rounds", domain.ErrTooManyTurns),
		}
		handler, _ := newTestHandler(t, run, &mockDispatcher{})

		w := postMessage(handler, "s1", `{"message":"do everything"}`)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody(t, w)
		assert.Equal(t, true, body["turn_limit_reached"])
		assert.Equal(t, "I stopped before finishing.", body["reply"])
	})

	t.Run("Agent Error Answers 500", func(t *testing.T) {
		run := &mockRunner{err: fmt.Errorf("decide next step: connection refused")}
		handler, _ := newTestHandler(t, run, &mockDispatcher{})

		w := postMessage(handler, "s1", `{"message":"hello"}`)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "Agent error")
	})
}

func TestReadEndpoints(t *testing.T) {
	t.Run("Overview Relays Dispatcher JSON", func(t *testing.T) {
		disp := &mockDispatcher{result: domain.ToolResult{Content: `{"TotalSlides":2,"Slides":[]}`}}
		handler, _ := newTestHandler(t, &mockRunner{}, disp)

		req := httptest.NewRequest("GET", "/api/v1/read/overview?path=/decks/a.pptx", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"TotalSlides":2,"Slides":[]}`, w.Body.String())
		assert.Equal(t, domain.ActionReadOverview, disp.lastCall.Action)
		assert.Equal(t, "/decks/a.pptx", disp.lastPath)
	})

	t.Run("Overview Requires Path", func(t *testing.T) {
		handler, _ := newTestHandler(t, &mockRunner{}, &mockDispatcher{})

		req := httptest.NewRequest("GET", "/api/v1/read/overview", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "'path' is required")
	})

	t.Run("Detail Binds Comma Separated Indices", func(t *testing.T) {
		disp := &mockDispatcher{result: domain.ToolResult{Content: `[{"SlideNumber":1}]`}}
		handler, _ := newTestHandler(t, &mockRunner{}, disp)

		req := httptest.NewRequest("GET", "/api/v1/read/detail?path=/decks/a.pptx&indices=1,3", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, domain.ActionReadDetail, disp.lastCall.Action)
		assert.Equal(t, []int{1, 3}, disp.lastCall.Args["container_indices"])
	})

	t.Run("Detail Requires Indices", func(t *testing.T) {
		handler, _ := newTestHandler(t, &mockRunner{}, &mockDispatcher{})

		req := httptest.NewRequest("GET", "/api/v1/read/detail?path=/decks/a.pptx", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "indices")
	})

	t.Run("Dispatch Failure Maps To 422", func(t *testing.T) {
		disp := &mockDispatcher{result: domain.ToolResult{
			Content: "Error: Presentation file not found at /decks/a.pptx",
			IsError: true,
		}}
		handler, _ := newTestHandler(t, &mockRunner{}, disp)

		req := httptest.NewRequest("GET", "/api/v1/read/overview?path=/decks/a.pptx", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), "Presentation file not found")
	})
}

func TestSubscribeEvents(t *testing.T) {
	run := &mockRunner{state: conversationState("All done.")}
	streams := NewStreamManager()
	handler, _ := newTestHandler(t, run, &mockDispatcher{}, WithStreams(streams))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wSub := httptest.NewRecorder()
	reqSub := httptest.NewRequest("GET", "/api/v1/sessions/s1/events", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(wSub, reqSub)
	}()

	// Wait for the subscription to register before triggering events.
	require.Eventually(t, func() bool {
		streams.mu.RLock()
		defer streams.mu.RUnlock()
		return len(streams.subscribers["s1"]) == 1
	}, time.Second, 5*time.Millisecond)

	streams.LoopHooks().TurnDecided("s1", 2)

	reqMsg := httptest.NewRequest("POST", "/api/v1/sessions/s1/messages", strings.NewReader(`{"message":"hi"}`))
	wMsg := httptest.NewRecorder()
	handler.ServeHTTP(wMsg, reqMsg)
	require.Equal(t, http.StatusOK, wMsg.Code, wMsg.Body.String())

	// Let the SSE writer drain the queued events before disconnecting,
	// otherwise the cancel races the last frame.
	require.Eventually(t, func() bool {
		streams.mu.RLock()
		defer streams.mu.RUnlock()
		for ch := range streams.subscribers["s1"] {
			if len(ch) > 0 {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	output := wSub.Body.String()
	assert.Contains(t, output, "event: ping")
	assert.Contains(t, output, `"type":"turn_decided"`)
	assert.Contains(t, output, `"tool_calls":2`)
	assert.Contains(t, output, `"type":"message_completed"`)
	assert.Contains(t, output, `"message":"All done."`)
}

func TestGetHealth(t *testing.T) {
	handler, _ := newTestHandler(t, &mockRunner{}, &mockDispatcher{})

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	handler, _ := newTestHandler(t, &mockRunner{}, &mockDispatcher{})

	req := httptest.NewRequest("OPTIONS", "/api/v1/sessions", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsMount(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "deckhand_turns_total 0")
	})
	handler, _ := newTestHandler(t, &mockRunner{}, &mockDispatcher{}, WithMetricsHandler(metrics))

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "deckhand_turns_total")
}
