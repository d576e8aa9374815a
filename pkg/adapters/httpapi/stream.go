package httpapi

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/deckhand/pkg/runner"
)

// StreamManager fans conversation progress out to active SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // session ID -> set of channels
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

// Subscribe registers a listener for one session's events. The returned
// cancel func unregisters the listener and closes the channel.
func (sm *StreamManager) Subscribe(sessionID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

// Broadcast delivers a raw payload to every subscriber of the session.
// A slow client loses the message instead of stalling the conversation.
func (sm *StreamManager) Broadcast(sessionID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	subs, ok := sm.subscribers[sessionID]
	if !ok {
		return
	}
	for ch := range subs {
		select {
		case ch <- msg:
		default:
			slog.Warn("SSE: Client buffer full, dropping message", "session_id", sessionID)
		}
	}
}

// event is the JSON payload of one SSE frame.
type event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	ToolCalls *int   `json:"tool_calls,omitempty"`
	Message   string `json:"message,omitempty"`
	Turns     int    `json:"turns,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (sm *StreamManager) publish(sessionID string, ev event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("StreamManager: event marshal failed", "error", err)
		return
	}
	sm.Broadcast(sessionID, string(payload))
}

// LoopHooks returns runner hooks that publish loop progress to this
// manager's subscribers. Callers that also record metrics should Join
// the two hook sets.
func (sm *StreamManager) LoopHooks() runner.Hooks {
	return runner.Hooks{
		TurnDecided: func(sessionID string, toolCalls int) {
			n := toolCalls
			sm.publish(sessionID, event{Type: "turn_decided", SessionID: sessionID, ToolCalls: &n})
		},
		EditRetried: func(sessionID string) {
			sm.publish(sessionID, event{Type: "edit_retried", SessionID: sessionID})
		},
	}
}
