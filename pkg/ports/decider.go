package ports

import (
	"context"

	"github.com/aretw0/deckhand/pkg/domain"
)

// Decider is the external reasoning component. Given the ordered
// conversation history it returns either a final message or a set of tool
// calls for the loop to dispatch. This is the only point where session
// state leaves the loop.
type Decider interface {
	Decide(ctx context.Context, state *domain.State) (domain.Decision, error)
}

// DeciderFunc adapts a function to the Decider interface.
type DeciderFunc func(ctx context.Context, state *domain.State) (domain.Decision, error)

func (f DeciderFunc) Decide(ctx context.Context, state *domain.State) (domain.Decision, error) {
	return f(ctx, state)
}
