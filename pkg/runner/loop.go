package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
	"github.com/aretw0/deckhand/pkg/session"
)

const (
	// DefaultMaxTurns bounds the decision rounds one user message may
	// consume before the loop stops it.
	DefaultMaxTurns = 24

	// DefaultMaxParallel bounds how many tool calls from one decision run
	// at the same time.
	DefaultMaxParallel = 4
)

// stopEditingNotice is injected after two consecutive rounds with a failed
// edit. The decider gets one self-corrective follow-up; this turn ends the
// streak.
const stopEditingNotice = "The last two modification attempts both failed. " +
	"Do not run execute_edit again for this request; explain to the user what " +
	"went wrong and suggest how they could rephrase."

// Hooks receives loop lifecycle notifications. The zero value is inert;
// metrics wiring fills in the fields it cares about.
type Hooks struct {
	// TurnDecided fires after every decider response with the number of
	// tool calls it proposed.
	TurnDecided func(sessionID string, toolCalls int)

	// EditRetried fires when a decision proposes an edit while the
	// previous edit round failed, i.e. the one allowed self-correction.
	EditRetried func(sessionID string)
}

// Join fans every notification out to both hook sets, so metrics and
// event streaming can observe the same loop without knowing about each
// other.
func (h Hooks) Join(other Hooks) Hooks {
	return Hooks{
		TurnDecided: func(sessionID string, toolCalls int) {
			if h.TurnDecided != nil {
				h.TurnDecided(sessionID, toolCalls)
			}
			if other.TurnDecided != nil {
				other.TurnDecided(sessionID, toolCalls)
			}
		},
		EditRetried: func(sessionID string) {
			if h.EditRetried != nil {
				h.EditRetried(sessionID)
			}
			if other.EditRetried != nil {
				other.EditRetried(sessionID)
			}
		},
	}
}

// Loop drives one session's conversation until the decider stops asking
// for tools.
type Loop struct {
	decider     ports.Decider
	dispatcher  ports.ActionDispatcher
	sessions    *session.Manager
	maxTurns    int
	maxParallel int
	log         *slog.Logger
	hooks       Hooks
}

// New wires a loop from its three collaborators.
func New(decider ports.Decider, dispatcher ports.ActionDispatcher, sessions *session.Manager, opts ...Option) (*Loop, error) {
	l := &Loop{
		decider:     decider,
		dispatcher:  dispatcher,
		sessions:    sessions,
		maxTurns:    DefaultMaxTurns,
		maxParallel: DefaultMaxParallel,
		log:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	switch {
	case l.decider == nil:
		return nil, errors.New("runner: decider is required")
	case l.dispatcher == nil:
		return nil, errors.New("runner: dispatcher is required")
	case l.sessions == nil:
		return nil, errors.New("runner: session manager is required")
	case l.maxTurns <= 0:
		return nil, fmt.Errorf("runner: max turns must be positive, got %d", l.maxTurns)
	case l.maxParallel <= 0:
		return nil, fmt.Errorf("runner: max parallel must be positive, got %d", l.maxParallel)
	}
	return l, nil
}

// Run appends one user message to the session and loops until the decider
// answers without tool calls or the turn budget runs out. The session lock is
// held for the whole run, so concurrent messages to one session serialize.
// The returned state is the persisted history, also on error; callers can
// render what happened even when the run was cut short.
func (l *Loop) Run(ctx context.Context, sessionID, documentPath, message string) (*domain.State, error) {
	var final *domain.State
	err := l.sessions.WithSession(ctx, sessionID, func(ctx context.Context) error {
		state, err := l.loadState(ctx, sessionID, documentPath)
		if err != nil {
			return err
		}
		final = state

		if message != "" {
			state.Append(domain.Turn{Role: domain.RoleUser, Content: message})
			if err := l.persist(ctx, sessionID, state); err != nil {
				return err
			}
		}

		return l.converse(ctx, sessionID, state)
	})
	return final, err
}

// loadState fetches or creates the session state. It runs under the
// session lock already, so it talks to the store directly.
func (l *Loop) loadState(ctx context.Context, sessionID, documentPath string) (*domain.State, error) {
	state, err := l.sessions.Store().Load(ctx, sessionID)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return domain.NewState(documentPath), nil
	case err != nil:
		return nil, fmt.Errorf("load session: %w", err)
	}
	state.SetDocumentPath(documentPath)
	return state, nil
}

func (l *Loop) converse(ctx context.Context, sessionID string, state *domain.State) error {
	failedEditRounds := 0

	for turn := 1; ; turn++ {
		if turn > l.maxTurns {
			state.Append(domain.Turn{Role: domain.RoleAssistant, Content: turnLimitNotice(l.maxTurns)})
			if err := l.persist(ctx, sessionID, state); err != nil {
				return err
			}
			return fmt.Errorf("%w: stopped after %d decision rounds", domain.ErrTooManyTurns, l.maxTurns)
		}

		decision, err := l.decider.Decide(ctx, state)
		if err != nil {
			return fmt.Errorf("decide next step: %w", err)
		}
		if l.hooks.TurnDecided != nil {
			l.hooks.TurnDecided(sessionID, len(decision.ToolCalls))
		}
		l.log.Debug("turn decided",
			"session_id", sessionID,
			"turn", turn,
			"tool_calls", len(decision.ToolCalls),
		)

		state.Append(decision.AssistantTurn())
		if decision.Terminal() {
			return l.persist(ctx, sessionID, state)
		}

		if failedEditRounds > 0 && hasEdit(decision.ToolCalls) && l.hooks.EditRetried != nil {
			l.hooks.EditRetried(sessionID)
		}

		results := l.dispatchRound(ctx, state.DocumentPath, decision.ToolCalls)
		for _, res := range results {
			state.Append(domain.Turn{Role: domain.RoleTool, Content: res.Content, ToolCallID: res.CallID})
		}
		if err := l.persist(ctx, sessionID, state); err != nil {
			return err
		}

		switch {
		case roundEditFailed(results):
			failedEditRounds++
		case roundHasEdit(results):
			failedEditRounds = 0
		}
		if failedEditRounds == 2 {
			state.Append(domain.Turn{Role: domain.RoleSystem, Content: stopEditingNotice})
			if err := l.persist(ctx, sessionID, state); err != nil {
				return err
			}
			l.log.Debug("edit retry budget exhausted", "session_id", sessionID, "turn", turn)
		}
	}
}

// dispatchRound runs one decision's tool calls as bounded parallel tasks
// and returns their results in request order.
func (l *Loop) dispatchRound(ctx context.Context, documentPath string, calls []domain.ToolCall) []domain.ToolResult {
	results := make([]domain.ToolResult, len(calls))

	g := new(errgroup.Group)
	g.SetLimit(l.maxParallel)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = l.dispatchOne(ctx, call, documentPath)
			return nil
		})
	}
	// Tasks never return errors; every failure is already a tool result.
	_ = g.Wait()

	return results
}

// dispatchOne routes a single call, taking the per-document lock for
// mutating actions so edits against one deck never overlap.
func (l *Loop) dispatchOne(ctx context.Context, call domain.ToolCall, documentPath string) domain.ToolResult {
	if !call.Action.Mutates() || documentPath == "" {
		return l.dispatcher.Dispatch(ctx, call, documentPath)
	}

	var res domain.ToolResult
	err := l.sessions.WithDocument(ctx, documentPath, func(ctx context.Context) error {
		res = l.dispatcher.Dispatch(ctx, call, documentPath)
		return nil
	})
	if err != nil {
		return domain.ToolResult{
			CallID:  call.ID,
			Action:  call.Action,
			Content: fmt.Sprintf("Error: internal failure: %v", err),
			IsError: true,
		}
	}
	return res
}

// persist saves under the session lock the caller already holds.
func (l *Loop) persist(ctx context.Context, sessionID string, state *domain.State) error {
	if err := l.sessions.Store().Save(ctx, sessionID, state); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	l.log.Debug("state saved", "session_id", sessionID, "turns", len(state.Turns))
	return nil
}

func turnLimitNotice(maxTurns int) string {
	return fmt.Sprintf("I stopped before finishing: this request used up its "+
		"budget of %d tool rounds. Everything attempted so far is recorded "+
		"above; send a follow-up message to continue.", maxTurns)
}

func hasEdit(calls []domain.ToolCall) bool {
	for _, c := range calls {
		if c.Action.Mutates() {
			return true
		}
	}
	return false
}

func roundHasEdit(results []domain.ToolResult) bool {
	for _, r := range results {
		if r.Action.Mutates() {
			return true
		}
	}
	return false
}

func roundEditFailed(results []domain.ToolResult) bool {
	for _, r := range results {
		if r.Action.Mutates() && r.IsError {
			return true
		}
	}
	return false
}
