package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
)

// Executor runs one code fragment per call inside a throwaway toolchain
// project: prepare a scratch directory, restore packages (modify mode
// only), build, run against the document, classify the exit, and remove
// the directory. Execute never returns a Go error; every failure mode is
// folded into the returned Outcome, and the scratch directory is removed
// on all paths including panics and timeouts.
type Executor struct {
	cfg Config
	log *slog.Logger

	// observer, when set, is called once per execution with the final
	// outcome kind and total wall time.
	observer func(mode domain.ExecMode, kind domain.OutcomeKind, elapsed time.Duration)
}

var _ ports.Executor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Executor) {
		if log != nil {
			e.log = log
		}
	}
}

// WithObserver registers a callback invoked after every execution.
func WithObserver(fn func(mode domain.ExecMode, kind domain.OutcomeKind, elapsed time.Duration)) Option {
	return func(e *Executor) {
		e.observer = fn
	}
}

// New validates cfg and returns an Executor.
func New(cfg Config, opts ...Option) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sandbox config: %w", err)
	}
	e := &Executor{
		cfg: cfg,
		log: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute runs req through the pipeline and classifies the result.
func (e *Executor) Execute(ctx context.Context, req domain.ExecRequest) (out domain.Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = domain.NewInternalError(fmt.Sprintf("executor panic: %v", r))
		}
		if e.observer != nil {
			e.observer(req.Mode, out.Kind, time.Since(start))
		}
		e.log.Debug("execution finished",
			"mode", string(req.Mode),
			"outcome", string(out.Kind),
			"elapsed", time.Since(start),
		)
	}()

	if strings.TrimSpace(req.DocumentPath) == "" {
		return domain.NewInternalError("no document path provided")
	}

	dir, err := os.MkdirTemp(e.cfg.WorkdirRoot, "deckhand-exec-")
	if err != nil {
		return domain.NewInternalError(fmt.Sprintf("create scratch directory: %v", err))
	}
	// Cleanup runs on every exit path. RemoveAll on an already-removed
	// directory is a no-op, so a second invocation is harmless.
	defer os.RemoveAll(dir)

	source, err := materialize(dir, req.Mode, req.Fragment)
	if err != nil {
		return domain.NewInternalError(err.Error())
	}
	project := filepath.Join(dir, projectFileName)

	// Restore is a distinct phase only when modifying; read builds let the
	// build step restore implicitly.
	if req.Mode == domain.ModeModify {
		res := e.run(ctx, dir, e.cfg.Toolchain.Restore, project, req.DocumentPath, e.cfg.Timeouts.Restore)
		switch {
		case res.timedOut:
			return domain.NewTimedOut(timeoutMessage(e.cfg.Timeouts.Restore))
		case res.err != nil:
			return domain.NewInternalError(res.err.Error())
		case res.exit != 0:
			return domain.NewRestoreFailed(res.stderr)
		}
	}

	buildArgv := e.cfg.Toolchain.Build
	if req.Mode == domain.ModeRead {
		buildArgv = e.cfg.Toolchain.BuildRead
	}
	res := e.run(ctx, dir, buildArgv, project, req.DocumentPath, e.cfg.Timeouts.Build)
	switch {
	case res.timedOut:
		return domain.NewTimedOut(timeoutMessage(e.cfg.Timeouts.Build))
	case res.err != nil:
		return domain.NewInternalError(res.err.Error())
	case res.exit != 0:
		return domain.NewBuildFailed(res.stderr+"\n"+res.stdout, numberedSource(source, 50))
	}

	runLimit := e.cfg.runTimeout(req.Mode)
	res = e.run(ctx, dir, e.cfg.Toolchain.Run, project, req.DocumentPath, runLimit)
	switch {
	case res.timedOut:
		return domain.NewTimedOut(timeoutMessage(runLimit))
	case res.err != nil:
		return domain.NewInternalError(res.err.Error())
	case res.exit == 0:
		return domain.NewSuccess(res.stdout)
	case res.exit == e.cfg.ValidationExitCode && req.Mode == domain.ModeModify:
		// Only the modify template speaks the validation exit protocol; a
		// reader exiting with the sentinel is an ordinary runtime failure.
		return domain.NewValidationRejected(res.stdout)
	default:
		diagnostic := res.stderr
		if strings.TrimSpace(diagnostic) == "" {
			diagnostic = res.stdout
		}
		return domain.NewRuntimeFailed(diagnostic)
	}
}

type runResult struct {
	stdout   string
	stderr   string
	exit     int
	timedOut bool
	err      error
}

// run executes one toolchain phase in dir with a hard wall-clock limit.
// On timeout or caller cancellation the whole process group is killed, so
// SDK child processes do not outlive the phase.
func (e *Executor) run(ctx context.Context, dir string, argv []string, project, document string, limit time.Duration) runResult {
	argv = expandArgv(argv, project, document)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)

	e.log.Debug("running toolchain phase", "argv", argv, "limit", limit)

	if err := cmd.Start(); err != nil {
		return runResult{err: fmt.Errorf("start %s: %w", argv[0], err)}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case waitErr := <-done:
		res := runResult{stdout: stdout.String(), stderr: stderr.String()}
		var exitErr *exec.ExitError
		switch {
		case waitErr == nil:
		case errors.As(waitErr, &exitErr):
			res.exit = exitErr.ExitCode()
		default:
			res.err = waitErr
		}
		return res
	case <-timer.C:
		killProcessGroup(cmd)
		<-done
		return runResult{stdout: stdout.String(), stderr: stderr.String(), timedOut: true}
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return runResult{stdout: stdout.String(), stderr: stderr.String(), timedOut: true}
		}
		return runResult{err: fmt.Errorf("execution canceled: %w", ctx.Err())}
	}
}

func timeoutMessage(limit time.Duration) string {
	return fmt.Sprintf("Code execution timed out after %.0f seconds", limit.Seconds())
}

// numberedSource renders the first limit lines of source with 1-based line
// numbers so build diagnostics can be matched against the generated file.
func numberedSource(source string, limit int) string {
	lines := strings.Split(source, "\n")
	if len(lines) > limit {
		lines = lines[:limit]
	}
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d: %s", i+1, line)
	}
	return b.String()
}
