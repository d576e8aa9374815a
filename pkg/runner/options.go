package runner

import "log/slog"

// Option configures a Loop.
type Option func(*Loop)

// WithMaxTurns sets the decision-round budget per user message.
func WithMaxTurns(n int) Option {
	return func(l *Loop) {
		l.maxTurns = n
	}
}

// WithMaxParallel sets how many tool calls from one decision may run
// concurrently.
func WithMaxParallel(n int) Option {
	return func(l *Loop) {
		l.maxParallel = n
	}
}

// WithLogger configures the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// WithHooks installs lifecycle callbacks, typically metrics.
func WithHooks(hooks Hooks) Option {
	return func(l *Loop) {
		l.hooks = hooks
	}
}
