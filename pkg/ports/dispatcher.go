package ports

import (
	"context"

	"github.com/aretw0/deckhand/pkg/domain"
)

// ActionDispatcher maps one decider tool call to one subsystem invocation
// and packages whatever happened into a single textual result. It never
// returns an error: precondition violations, malformed arguments and every
// execution failure come back as error-flagged tool results so the loop
// can keep the conversation alive.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, call domain.ToolCall, documentPath string) domain.ToolResult
}
