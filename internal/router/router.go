package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/pkg/deck"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
)

// msgNoDocumentPath is returned by every action when the session has no
// document bound yet. The decider sees it as a tool result and can ask the
// user for a file instead of crashing the turn.
const msgNoDocumentPath = "Error: No PowerPoint file path provided in state"

// SnapshotReader is the slice of the deck reader the router needs.
type SnapshotReader interface {
	ReadOverview(ctx context.Context, path string) (*deck.Overview, error)
	ReadDetail(ctx context.Context, path string, indices []int) ([]deck.SlideResult, error)
}

// Router maps validated tool calls onto the reader and the sandbox and
// renders every result, success or failure, as conversation text. Dispatch
// never returns a Go error and never panics through; a tool call that
// cannot be served becomes an IsError result the loop can keep going with.
type Router struct {
	reader  SnapshotReader
	exec    ports.Executor
	schemas *argSchemas
	log     *slog.Logger

	// observe, when set, is called once per dispatch.
	observe func(action domain.ActionKind, isError bool, elapsed time.Duration)
}

var _ ports.ActionDispatcher = (*Router)(nil)

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}

// WithObserver registers a callback invoked after every dispatch.
func WithObserver(fn func(action domain.ActionKind, isError bool, elapsed time.Duration)) Option {
	return func(r *Router) {
		r.observe = fn
	}
}

// New builds a Router over the given reader and executor.
func New(reader SnapshotReader, exec ports.Executor, opts ...Option) (*Router, error) {
	schemas, err := loadArgSchemas()
	if err != nil {
		return nil, err
	}
	r := &Router{
		reader:  reader,
		exec:    exec,
		schemas: schemas,
		log:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Dispatch routes one tool call and packages the result.
func (r *Router) Dispatch(ctx context.Context, call domain.ToolCall, documentPath string) (result domain.ToolResult) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = r.errorResult(call, fmt.Sprintf("Error: internal failure: %v", rec))
		}
		if r.observe != nil {
			r.observe(call.Action, result.IsError, time.Since(start))
		}
		r.log.Debug("tool dispatched",
			"action", string(call.Action),
			"call_id", call.ID,
			"is_error", result.IsError,
			"elapsed", time.Since(start),
		)
	}()

	if !call.Action.IsValid() {
		r.log.Warn("unknown tool requested", "action", string(call.Action), "call_id", call.ID)
		return r.errorResult(call, fmt.Sprintf(
			"Error: unknown tool %q (available tools: %s)", call.Action, actionList()))
	}

	if strings.TrimSpace(documentPath) == "" {
		return r.errorResult(call, msgNoDocumentPath)
	}

	if err := r.schemas.check(call.Action, call.Args); err != nil {
		r.log.Warn("tool arguments rejected", "action", string(call.Action), "error", err)
		return r.errorResult(call, fmt.Sprintf("Error: invalid arguments for %s: %v", call.Action, err))
	}

	switch call.Action {
	case domain.ActionReadOverview:
		return r.readOverview(ctx, call, documentPath)
	case domain.ActionReadDetail:
		return r.readDetail(ctx, call, documentPath)
	default:
		return r.executeEdit(ctx, call, documentPath)
	}
}

func (r *Router) readOverview(ctx context.Context, call domain.ToolCall, path string) domain.ToolResult {
	overview, err := r.reader.ReadOverview(ctx, path)
	if err != nil {
		return r.errorResult(call, fmt.Sprintf("Failed to read presentation structure: %v", err))
	}
	encoded, err := json.MarshalIndent(overview, "", "  ")
	if err != nil {
		return r.errorResult(call, fmt.Sprintf("Failed to read presentation structure: %v", err))
	}
	return r.okResult(call, string(encoded))
}

func (r *Router) readDetail(ctx context.Context, call domain.ToolCall, path string) domain.ToolResult {
	var args readDetailArgs
	if err := decodeArgs(call.Args, &args); err != nil {
		return r.errorResult(call, fmt.Sprintf("Error: invalid arguments for %s: %v", call.Action, err))
	}
	results, err := r.reader.ReadDetail(ctx, path, args.ContainerIndices)
	if err != nil {
		return r.errorResult(call, fmt.Sprintf("Failed to read slide details: %v", err))
	}
	encoded, err := deck.EncodeDetail(results)
	if err != nil {
		return r.errorResult(call, fmt.Sprintf("Failed to read slide details: %v", err))
	}
	return r.okResult(call, string(encoded))
}

func (r *Router) executeEdit(ctx context.Context, call domain.ToolCall, path string) domain.ToolResult {
	var args executeEditArgs
	if err := decodeArgs(call.Args, &args); err != nil {
		return r.errorResult(call, fmt.Sprintf("Error: invalid arguments for %s: %v", call.Action, err))
	}
	outcome := r.exec.Execute(ctx, domain.ExecRequest{
		Fragment:     args.Code,
		DocumentPath: path,
		Mode:         domain.ModeModify,
	})
	content, isError := renderEditOutcome(outcome)
	if isError {
		return r.errorResult(call, content)
	}
	return r.okResult(call, content)
}

// renderEditOutcome phrases a sandbox outcome in the vocabulary the decider
// was instructed with.
func renderEditOutcome(o domain.Outcome) (content string, isError bool) {
	if o.Succeeded() {
		return fmt.Sprintf("Code executed successfully. Output: %s", o.Output), false
	}
	var msg string
	switch o.Kind {
	case domain.OutcomeRestoreFailed:
		msg = fmt.Sprintf("Package restore failed: %s", o.Diagnostic)
	case domain.OutcomeBuildFailed:
		msg = fmt.Sprintf("Build failed:\n%s\n\nGenerated code (first 50 lines):\n%s", o.Diagnostic, o.SourceListing)
	case domain.OutcomeValidationRejected:
		msg = fmt.Sprintf("Validation failed - the modifications would corrupt the PowerPoint file:\n%s", o.Diagnostic)
	case domain.OutcomeRuntimeFailed:
		msg = fmt.Sprintf("Execution error: %s", o.Diagnostic)
	default:
		// Timeouts and internal faults already carry a complete sentence.
		msg = o.Diagnostic
	}
	return fmt.Sprintf("Execution failed: %s", msg), true
}

func (r *Router) okResult(call domain.ToolCall, content string) domain.ToolResult {
	return domain.ToolResult{CallID: call.ID, Action: call.Action, Content: content}
}

func (r *Router) errorResult(call domain.ToolCall, content string) domain.ToolResult {
	return domain.ToolResult{CallID: call.ID, Action: call.Action, Content: content, IsError: true}
}

func actionList() string {
	kinds := domain.Actions()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
