package ports

import (
	"context"

	"github.com/aretw0/deckhand/pkg/domain"
)

// Executor runs one untrusted code fragment against a document inside an
// isolated child process. Execute never returns a Go error: every exit
// path, including pipeline faults, is classified into the Outcome taxonomy
// so callers always get something they can surface.
type Executor interface {
	Execute(ctx context.Context, req domain.ExecRequest) domain.Outcome
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req domain.ExecRequest) domain.Outcome

func (f ExecutorFunc) Execute(ctx context.Context, req domain.ExecRequest) domain.Outcome {
	return f(ctx, req)
}
