package deckhand

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/internal/router"
	"github.com/aretw0/deckhand/internal/sandbox"
	"github.com/aretw0/deckhand/pkg/adapters/memory"
	"github.com/aretw0/deckhand/pkg/deck"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
	"github.com/aretw0/deckhand/pkg/runner"
	"github.com/aretw0/deckhand/pkg/session"
)

// Agent is the high-level entry point for the deckhand library.
// It wires the sandbox, the read/edit router and the conversation loop
// behind a single constructor and provides a simplified API for consumers.
type Agent struct {
	loop       *runner.Loop
	sessions   *session.Manager
	dispatcher ports.ActionDispatcher

	store       ports.StateStore
	locker      ports.DistributedLocker
	lockTTL     time.Duration
	sandboxCfg  *sandbox.Config
	maxTurns    int
	maxParallel int
	hooks       runner.Hooks
	execObs     func(mode domain.ExecMode, kind domain.OutcomeKind, elapsed time.Duration)
	dispatchObs func(action domain.ActionKind, isError bool, elapsed time.Duration)
	logger      *slog.Logger
}

// Option defines a functional option for configuring the Agent.
type Option func(*Agent)

// WithStore injects a session store, replacing the default in-memory one.
func WithStore(store ports.StateStore) Option {
	return func(a *Agent) {
		a.store = store
	}
}

// WithLocker enables distributed session locking, for deployments where
// several processes share one store.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(a *Agent) {
		a.locker = locker
	}
}

// WithLockTTL sets the distributed lock expiry. Ignored unless a locker
// is configured.
func WithLockTTL(ttl time.Duration) Option {
	return func(a *Agent) {
		a.lockTTL = ttl
	}
}

// WithSandboxConfig replaces the default toolchain profile, timeouts and
// workdir root used by the execution sandbox.
func WithSandboxConfig(cfg sandbox.Config) Option {
	return func(a *Agent) {
		a.sandboxCfg = &cfg
	}
}

// WithMaxTurns caps the number of decider rounds per request.
func WithMaxTurns(n int) Option {
	return func(a *Agent) {
		a.maxTurns = n
	}
}

// WithMaxParallel caps how many read calls from one decision round run
// concurrently.
func WithMaxParallel(n int) Option {
	return func(a *Agent) {
		a.maxParallel = n
	}
}

// WithHooks registers loop lifecycle hooks.
func WithHooks(hooks runner.Hooks) Option {
	return func(a *Agent) {
		a.hooks = hooks
	}
}

// WithExecutionObserver registers a callback invoked after every sandbox
// execution with the outcome kind and wall time.
func WithExecutionObserver(fn func(mode domain.ExecMode, kind domain.OutcomeKind, elapsed time.Duration)) Option {
	return func(a *Agent) {
		a.execObs = fn
	}
}

// WithDispatchObserver registers a callback invoked after every tool call
// dispatch.
func WithDispatchObserver(fn func(action domain.ActionKind, isError bool, elapsed time.Duration)) Option {
	return func(a *Agent) {
		a.dispatchObs = fn
	}
}

// WithLogger sets a custom structured logger for the Agent.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// New initializes a new deckhand Agent around the given decider.
// By default it keeps sessions in process memory and runs the sandbox with
// the stock dotnet profile; options swap in persistent stores, distributed
// locking and observers without changing how the loop behaves.
func New(decider ports.Decider, opts ...Option) (*Agent, error) {
	if decider == nil {
		return nil, fmt.Errorf("decider is required")
	}

	a := &Agent{}

	// Apply options first so assembly can see everything the caller chose.
	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		a.logger = logging.NewNop()
	}
	if a.store == nil {
		a.store = memory.NewStore()
	}

	cfg := sandbox.DefaultConfig()
	if a.sandboxCfg != nil {
		cfg = *a.sandboxCfg
	}
	sandboxOpts := []sandbox.Option{sandbox.WithLogger(a.logger)}
	if a.execObs != nil {
		sandboxOpts = append(sandboxOpts, sandbox.WithObserver(a.execObs))
	}
	exec, err := sandbox.New(cfg, sandboxOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialize sandbox: %w", err)
	}

	reader := deck.NewReader(exec, deck.WithLogger(a.logger))

	routerOpts := []router.Option{router.WithLogger(a.logger)}
	if a.dispatchObs != nil {
		routerOpts = append(routerOpts, router.WithObserver(a.dispatchObs))
	}
	dispatcher, err := router.New(reader, exec, routerOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialize router: %w", err)
	}
	a.dispatcher = dispatcher

	sessionOpts := []session.Option{session.WithLogger(a.logger)}
	if a.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(a.locker))
	}
	if a.lockTTL > 0 {
		sessionOpts = append(sessionOpts, session.WithLockTTL(a.lockTTL))
	}
	a.sessions = session.NewManager(a.store, sessionOpts...)

	runnerOpts := []runner.Option{
		runner.WithLogger(a.logger),
		runner.WithHooks(a.hooks),
	}
	if a.maxTurns > 0 {
		runnerOpts = append(runnerOpts, runner.WithMaxTurns(a.maxTurns))
	}
	if a.maxParallel > 0 {
		runnerOpts = append(runnerOpts, runner.WithMaxParallel(a.maxParallel))
	}
	a.loop, err = runner.New(decider, dispatcher, a.sessions, runnerOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialize loop: %w", err)
	}

	return a, nil
}

// Run processes one user message inside the given session and returns the
// state after the conversation settles. An empty documentPath keeps the
// session's current document.
func (a *Agent) Run(ctx context.Context, sessionID, documentPath, message string) (*domain.State, error) {
	return a.loop.Run(ctx, sessionID, documentPath, message)
}

// Sessions returns the session manager, for callers that list, inspect or
// delete conversations outside the loop.
func (a *Agent) Sessions() *session.Manager {
	return a.sessions
}

// Dispatcher returns the tool call dispatcher the loop uses. Serving
// adapters reuse it for direct reads so that every snapshot goes through
// the same validation and rendering path as the model's own calls.
func (a *Agent) Dispatcher() ports.ActionDispatcher {
	return a.dispatcher
}
