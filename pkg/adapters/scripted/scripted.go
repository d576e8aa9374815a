// Package scripted provides a Decider that replays a fixed sequence of
// decisions. It drives conversations in tests and offline demos without a
// model behind them.
package scripted

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/deckhand/pkg/domain"
)

// Step is one scripted Decide response.
type Step struct {
	Decision domain.Decision
	Err      error
}

// Say scripts a terminal assistant message.
func Say(message string) Step {
	return Step{Decision: domain.Decision{Message: message}}
}

// Call scripts an assistant message with tool calls.
func Call(message string, calls ...domain.ToolCall) Step {
	return Step{Decision: domain.Decision{Message: message, ToolCalls: calls}}
}

// Fail scripts a decider failure.
func Fail(err error) Step {
	return Step{Err: err}
}

// Decider replays its steps in order. Each Decide also records a clone of
// the state it was shown, so tests can assert what the model would have
// seen. Safe for concurrent use.
type Decider struct {
	mu       sync.Mutex
	steps    []Step
	next     int
	observed []*domain.State
}

// New builds a decider from the given script.
func New(steps ...Step) *Decider {
	return &Decider{steps: steps}
}

// Decide pops the next scripted step. Running past the script is a test
// bug and comes back as an error.
func (d *Decider) Decide(_ context.Context, state *domain.State) (domain.Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.observed = append(d.observed, state.Clone())
	if d.next >= len(d.steps) {
		return domain.Decision{}, fmt.Errorf("script exhausted after %d decisions", len(d.steps))
	}
	step := d.steps[d.next]
	d.next++
	return step.Decision, step.Err
}

// Calls reports how many times Decide ran.
func (d *Decider) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.next
}

// Observed returns clones of the states each Decide saw, in order.
func (d *Decider) Observed() []*domain.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*domain.State, len(d.observed))
	copy(out, d.observed)
	return out
}
