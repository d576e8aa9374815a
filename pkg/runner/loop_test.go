package runner_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/deckhand/pkg/adapters/memory"
	"github.com/aretw0/deckhand/pkg/adapters/scripted"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/runner"
	"github.com/aretw0/deckhand/pkg/session"
)

type dispatched struct {
	call domain.ToolCall
	path string
}

// fakeDispatcher answers every call with a canned result and records what
// it saw. Delay and handler knobs let tests shape completion order and
// failures.
type fakeDispatcher struct {
	mu      sync.Mutex
	seen    []dispatched
	delay   func(call domain.ToolCall) time.Duration
	handler func(call domain.ToolCall, path string) domain.ToolResult

	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeDispatcher) Dispatch(_ context.Context, call domain.ToolCall, path string) domain.ToolResult {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxSeen.Load()
		if cur <= max || f.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}

	if f.delay != nil {
		time.Sleep(f.delay(call))
	}

	f.mu.Lock()
	f.seen = append(f.seen, dispatched{call: call, path: path})
	f.mu.Unlock()

	if f.handler != nil {
		return f.handler(call, path)
	}
	return domain.ToolResult{CallID: call.ID, Action: call.Action, Content: "ok " + call.ID}
}

func (f *fakeDispatcher) recorded() []dispatched {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dispatched, len(f.seen))
	copy(out, f.seen)
	return out
}

func readCall(id string) domain.ToolCall {
	return domain.ToolCall{ID: id, Action: domain.ActionReadDetail, Args: map[string]any{"container_indices": []any{float64(1)}}}
}

func editCall(id string) domain.ToolCall {
	return domain.ToolCall{ID: id, Action: domain.ActionExecuteEdit, Args: map[string]any{"code": "retitle();"}}
}

func newLoop(t *testing.T, decider *scripted.Decider, disp *fakeDispatcher, opts ...runner.Option) (*runner.Loop, *session.Manager) {
	t.Helper()
	sessions := session.NewManager(memory.NewStore())
	loop, err := runner.New(decider, disp, sessions, opts...)
	require.NoError(t, err)
	return loop, sessions
}

func toolTurns(state *domain.State) []domain.Turn {
	var out []domain.Turn
	for _, turn := range state.Turns {
		if turn.Role == domain.RoleTool {
			out = append(out, turn)
		}
	}
	return out
}

func TestLoopTerminalDecision(t *testing.T) {
	decider := scripted.New(scripted.Say("Your deck has 3 slides."))
	disp := &fakeDispatcher{}
	loop, sessions := newLoop(t, decider, disp)

	state, err := loop.Run(context.Background(), "s1", "/decks/q3.pptx", "how many slides?")
	require.NoError(t, err)

	require.Len(t, state.Turns, 2)
	assert.Equal(t, domain.RoleUser, state.Turns[0].Role)
	assert.Equal(t, "how many slides?", state.Turns[0].Content)
	assert.Equal(t, domain.RoleAssistant, state.Turns[1].Role)
	assert.Equal(t, "Your deck has 3 slides.", state.Turns[1].Content)
	assert.Empty(t, disp.recorded())

	persisted, err := sessions.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, state.Turns, persisted.Turns)
	assert.Equal(t, "/decks/q3.pptx", persisted.DocumentPath)
}

func TestLoopDispatchRound(t *testing.T) {
	t.Run("Appends Results In Request Order", func(t *testing.T) {
		decider := scripted.New(
			scripted.Call("", readCall("c1"), readCall("c2"), readCall("c3")),
			scripted.Say("done"),
		)
		// Reverse the completion order so appended order proves itself.
		disp := &fakeDispatcher{delay: func(call domain.ToolCall) time.Duration {
			switch call.ID {
			case "c1":
				return 60 * time.Millisecond
			case "c2":
				return 30 * time.Millisecond
			}
			return 0
		}}
		loop, _ := newLoop(t, decider, disp)

		state, err := loop.Run(context.Background(), "s1", "/decks/q3.pptx", "read everything")
		require.NoError(t, err)

		turns := toolTurns(state)
		require.Len(t, turns, 3)
		assert.Equal(t, "c1", turns[0].ToolCallID)
		assert.Equal(t, "c2", turns[1].ToolCallID)
		assert.Equal(t, "c3", turns[2].ToolCallID)
		assert.Equal(t, "ok c2", turns[1].Content)
	})

	t.Run("Next Decision Sees The Results", func(t *testing.T) {
		decider := scripted.New(
			scripted.Call("checking", readCall("c1")),
			scripted.Say("done"),
		)
		disp := &fakeDispatcher{}
		loop, _ := newLoop(t, decider, disp)

		_, err := loop.Run(context.Background(), "s1", "/decks/q3.pptx", "read slide 1")
		require.NoError(t, err)

		observed := decider.Observed()
		require.Len(t, observed, 2)
		last := observed[1].LastTurn()
		require.NotNil(t, last)
		assert.Equal(t, domain.RoleTool, last.Role)
		assert.Equal(t, "ok c1", last.Content)
	})
}

func TestLoopParallelReads(t *testing.T) {
	decider := scripted.New(
		scripted.Call("", readCall("c1"), readCall("c2"), readCall("c3")),
		scripted.Say("done"),
	)
	disp := &fakeDispatcher{delay: func(domain.ToolCall) time.Duration {
		return 50 * time.Millisecond
	}}
	loop, _ := newLoop(t, decider, disp, runner.WithMaxParallel(3))

	_, err := loop.Run(context.Background(), "s1", "/decks/q3.pptx", "read all")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, disp.maxSeen.Load(), int32(2), "reads should overlap")
}

func TestLoopSerializesEdits(t *testing.T) {
	decider := scripted.New(
		scripted.Call("", editCall("e1"), editCall("e2"), editCall("e3")),
		scripted.Say("done"),
	)

	var editsInFlight, maxEdits atomic.Int32
	disp := &fakeDispatcher{handler: func(call domain.ToolCall, path string) domain.ToolResult {
		cur := editsInFlight.Add(1)
		defer editsInFlight.Add(-1)
		for {
			max := maxEdits.Load()
			if cur <= max || maxEdits.CompareAndSwap(max, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return domain.ToolResult{CallID: call.ID, Action: call.Action, Content: "edited"}
	}}
	loop, _ := newLoop(t, decider, disp, runner.WithMaxParallel(3))

	_, err := loop.Run(context.Background(), "s1", "/decks/q3.pptx", "three edits")
	require.NoError(t, err)

	assert.Equal(t, int32(1), maxEdits.Load(), "edits on one document must not overlap")
}

func TestLoopRetryPolicy(t *testing.T) {
	failEdits := func(call domain.ToolCall, path string) domain.ToolResult {
		if call.Action == domain.ActionExecuteEdit {
			return domain.ToolResult{
				CallID:  call.ID,
				Action:  call.Action,
				Content: "Execution failed: Execution error: null reference",
				IsError: true,
			}
		}
		return domain.ToolResult{CallID: call.ID, Action: call.Action, Content: "ok"}
	}

	t.Run("Injects Stop Notice After Second Failed Round", func(t *testing.T) {
		decider := scripted.New(
			scripted.Call("editing", editCall("e1")),
			scripted.Call("trying again", editCall("e2")),
			scripted.Say("I could not complete the edit."),
		)
		disp := &fakeDispatcher{handler: failEdits}

		var retries atomic.Int32
		loop, _ := newLoop(t, decider, disp, runner.WithHooks(runner.Hooks{
			EditRetried: func(string) { retries.Add(1) },
		}))

		state, err := loop.Run(context.Background(), "s1", "/decks/q3.pptx", "retitle slide 2")
		require.NoError(t, err)
		assert.Equal(t, int32(1), retries.Load())

		// The explanation decision must have seen the injected notice.
		observed := decider.Observed()
		require.Len(t, observed, 3)
		last := observed[2].LastTurn()
		require.NotNil(t, last)
		assert.Equal(t, domain.RoleSystem, last.Role)
		assert.Contains(t, last.Content, "Do not run execute_edit again")

		final := state.LastTurn()
		require.NotNil(t, final)
		assert.Equal(t, "I could not complete the edit.", final.Content)
	})

	t.Run("Successful Edit Resets The Streak", func(t *testing.T) {
		attempt := 0
		disp := &fakeDispatcher{handler: func(call domain.ToolCall, path string) domain.ToolResult {
			if call.Action != domain.ActionExecuteEdit {
				return domain.ToolResult{CallID: call.ID, Action: call.Action, Content: "ok"}
			}
			attempt++
			if attempt == 1 {
				return domain.ToolResult{CallID: call.ID, Action: call.Action, Content: "Execution failed: boom", IsError: true}
			}
			return domain.ToolResult{CallID: call.ID, Action: call.Action, Content: "Code executed successfully. Output: done"}
		}}
		decider := scripted.New(
			scripted.Call("editing", editCall("e1")),
			scripted.Call("fixing", editCall("e2")),
			scripted.Say("fixed it"),
		)
		loop, _ := newLoop(t, decider, disp)

		state, err := loop.Run(context.Background(), "s1", "/decks/q3.pptx", "retitle slide 2")
		require.NoError(t, err)

		for _, turn := range state.Turns {
			if turn.Role == domain.RoleSystem {
				t.Fatalf("no stop notice expected, got %q", turn.Content)
			}
		}
	})

	t.Run("Read Rounds Do Not Reset The Streak", func(t *testing.T) {
		decider := scripted.New(
			scripted.Call("editing", editCall("e1")),
			scripted.Call("re-reading", readCall("c1")),
			scripted.Call("trying again", editCall("e2")),
			scripted.Say("giving up"),
		)
		disp := &fakeDispatcher{handler: failEdits}
		loop, _ := newLoop(t, decider, disp)

		state, err := loop.Run(context.Background(), "s1", "/decks/q3.pptx", "retitle slide 2")
		require.NoError(t, err)

		var notices int
		for _, turn := range state.Turns {
			if turn.Role == domain.RoleSystem {
				notices++
			}
		}
		assert.Equal(t, 1, notices, "two failed edit rounds straddling a read still exhaust the budget")
	})
}

func TestLoopTurnBudget(t *testing.T) {
	decider := scripted.New(
		scripted.Call("", readCall("c1")),
		scripted.Call("", readCall("c2")),
		scripted.Call("", readCall("c3")),
	)
	disp := &fakeDispatcher{}
	loop, sessions := newLoop(t, decider, disp, runner.WithMaxTurns(2))

	state, err := loop.Run(context.Background(), "s1", "/decks/q3.pptx", "loop forever")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTooManyTurns)

	last := state.LastTurn()
	require.NotNil(t, last)
	assert.Equal(t, domain.RoleAssistant, last.Role)
	assert.Contains(t, last.Content, "budget of 2 tool rounds")

	// The bounded run is still a valid, resumable session.
	persisted, err := sessions.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, state.Turns, persisted.Turns)
}

func TestLoopWithoutDocumentPath(t *testing.T) {
	const precondition = "Error: No PowerPoint file path provided in state"

	decider := scripted.New(
		scripted.Call("", editCall("e1")),
		scripted.Say("Please give me a file path first."),
	)
	disp := &fakeDispatcher{handler: func(call domain.ToolCall, path string) domain.ToolResult {
		if path == "" {
			return domain.ToolResult{CallID: call.ID, Action: call.Action, Content: precondition, IsError: true}
		}
		return domain.ToolResult{CallID: call.ID, Action: call.Action, Content: "ok"}
	}}
	loop, _ := newLoop(t, decider, disp)

	state, err := loop.Run(context.Background(), "s1", "", "edit something")
	require.NoError(t, err)

	turns := toolTurns(state)
	require.Len(t, turns, 1)
	assert.Equal(t, precondition, turns[0].Content)

	recorded := disp.recorded()
	require.Len(t, recorded, 1)
	assert.Empty(t, recorded[0].path)

	final := state.LastTurn()
	require.NotNil(t, final)
	assert.Equal(t, "Please give me a file path first.", final.Content)
}

func TestLoopDeciderError(t *testing.T) {
	decider := scripted.New(
		scripted.Call("", readCall("c1")),
		scripted.Fail(errors.New("upstream unavailable")),
	)
	disp := &fakeDispatcher{}
	loop, sessions := newLoop(t, decider, disp)

	_, err := loop.Run(context.Background(), "s1", "/decks/q3.pptx", "read slide 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decide next step")

	// Progress up to the failure survives for the next message.
	persisted, err := sessions.Load(context.Background(), "s1")
	require.NoError(t, err)
	turns := toolTurns(persisted)
	require.Len(t, turns, 1)
	assert.Equal(t, "ok c1", turns[0].Content)
}

func TestLoopDocumentPathMerge(t *testing.T) {
	t.Run("Empty Incoming Path Keeps Stored Path", func(t *testing.T) {
		decider := scripted.New(scripted.Call("", readCall("c1")), scripted.Say("done"))
		disp := &fakeDispatcher{}
		loop, sessions := newLoop(t, decider, disp)

		require.NoError(t, sessions.Save(context.Background(), "s1", domain.NewState("/decks/original.pptx")))

		state, err := loop.Run(context.Background(), "s1", "", "keep going")
		require.NoError(t, err)
		assert.Equal(t, "/decks/original.pptx", state.DocumentPath)

		recorded := disp.recorded()
		require.Len(t, recorded, 1)
		assert.Equal(t, "/decks/original.pptx", recorded[0].path)
	})

	t.Run("Incoming Path Replaces Stored Path", func(t *testing.T) {
		decider := scripted.New(scripted.Say("switched"))
		disp := &fakeDispatcher{}
		loop, sessions := newLoop(t, decider, disp)

		require.NoError(t, sessions.Save(context.Background(), "s1", domain.NewState("/decks/old.pptx")))

		state, err := loop.Run(context.Background(), "s1", "/decks/new.pptx", "use the new deck")
		require.NoError(t, err)
		assert.Equal(t, "/decks/new.pptx", state.DocumentPath)

		persisted, err := sessions.Load(context.Background(), "s1")
		require.NoError(t, err)
		assert.Equal(t, "/decks/new.pptx", persisted.DocumentPath)
	})
}

func TestLoopHooks(t *testing.T) {
	decider := scripted.New(
		scripted.Call("", readCall("c1")),
		scripted.Say("done"),
	)
	disp := &fakeDispatcher{}

	type turnRecord struct {
		session string
		calls   int
	}
	var mu sync.Mutex
	var turns []turnRecord
	loop, _ := newLoop(t, decider, disp, runner.WithHooks(runner.Hooks{
		TurnDecided: func(sessionID string, toolCalls int) {
			mu.Lock()
			turns = append(turns, turnRecord{sessionID, toolCalls})
			mu.Unlock()
		},
	}))

	_, err := loop.Run(context.Background(), "s1", "/decks/q3.pptx", "read slide 1")
	require.NoError(t, err)

	require.Len(t, turns, 2)
	assert.Equal(t, turnRecord{"s1", 1}, turns[0])
	assert.Equal(t, turnRecord{"s1", 0}, turns[1])
}

func TestLoopValidatesConstruction(t *testing.T) {
	sessions := session.NewManager(memory.NewStore())
	decider := scripted.New()
	disp := &fakeDispatcher{}

	cases := []struct {
		name string
		err  string
		make func() (*runner.Loop, error)
	}{
		{"Missing Decider", "decider is required", func() (*runner.Loop, error) {
			return runner.New(nil, disp, sessions)
		}},
		{"Missing Dispatcher", "dispatcher is required", func() (*runner.Loop, error) {
			return runner.New(decider, nil, sessions)
		}},
		{"Missing Sessions", "session manager is required", func() (*runner.Loop, error) {
			return runner.New(decider, disp, nil)
		}},
		{"Bad Turn Budget", "max turns must be positive", func() (*runner.Loop, error) {
			return runner.New(decider, disp, sessions, runner.WithMaxTurns(0))
		}},
		{"Bad Parallelism", "max parallel must be positive", func() (*runner.Loop, error) {
			return runner.New(decider, disp, sessions, runner.WithMaxParallel(-1))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.make()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestLoopConcurrentSessions(t *testing.T) {
	// Ten sessions over one manager and dispatcher; each conversation must
	// stay internally consistent.
	disp := &fakeDispatcher{}
	sessions := session.NewManager(memory.NewStore())

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			decider := scripted.New(
				scripted.Call("", readCall("c1")),
				scripted.Say("done"),
			)
			loop, err := runner.New(decider, disp, sessions)
			if err != nil {
				errs[n] = err
				return
			}
			id := fmt.Sprintf("s%d", n)
			state, err := loop.Run(context.Background(), id, "/decks/q3.pptx", "read slide 1")
			if err != nil {
				errs[n] = err
				return
			}
			if len(state.Turns) != 4 {
				errs[n] = fmt.Errorf("session %s: want 4 turns, got %d", id, len(state.Turns))
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestHooksJoin(t *testing.T) {
	var calls []string
	a := runner.Hooks{
		TurnDecided: func(id string, n int) { calls = append(calls, fmt.Sprintf("a.turn:%s:%d", id, n)) },
	}
	b := runner.Hooks{
		TurnDecided: func(id string, n int) { calls = append(calls, fmt.Sprintf("b.turn:%s:%d", id, n)) },
		EditRetried: func(id string) { calls = append(calls, "b.retry:"+id) },
	}

	joined := a.Join(b)
	joined.TurnDecided("s1", 2)
	joined.EditRetried("s1")

	assert.Equal(t, []string{"a.turn:s1:2", "b.turn:s1:2", "b.retry:s1"}, calls)
}
