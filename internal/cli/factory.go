package cli

import (
	"fmt"
	"log/slog"
	"regexp"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/deckhand"
	"github.com/aretw0/deckhand/internal/router"
	"github.com/aretw0/deckhand/internal/sandbox"
	"github.com/aretw0/deckhand/pkg/adapters/file"
	"github.com/aretw0/deckhand/pkg/adapters/memory"
	"github.com/aretw0/deckhand/pkg/adapters/openai"
	"github.com/aretw0/deckhand/pkg/adapters/redis"
	"github.com/aretw0/deckhand/pkg/deck"
	"github.com/aretw0/deckhand/pkg/persistence/middleware"
	"github.com/aretw0/deckhand/pkg/ports"
)

// lockPrefix namespaces the distributed lock keys next to the session keys.
const lockPrefix = "deckhand:lock:"

// BuildDecider creates the LLM client from the model section. It fails
// fast when no API key can be resolved, before any session work starts.
func BuildDecider(cfg Config, log *slog.Logger) (ports.Decider, error) {
	key := cfg.ResolveAPIKey()
	if key == "" {
		return nil, fmt.Errorf("no API key found: set %s or %s", EnvAPIKey, cfg.Model.APIKeyEnv)
	}
	return openai.New(openai.Config{
		BaseURL: cfg.Model.BaseURL,
		APIKey:  key,
		Model:   cfg.Model.Name,
	}, openai.WithLogger(log))
}

// BuildStore creates the session backend, wrapped in whatever storage
// middleware the config asks for. The returned close function releases its
// connections; for local backends it is a no-op. The locker is nil unless
// the backend supports cross-process locking.
func BuildStore(cfg Config, log *slog.Logger) (ports.StateStore, ports.DistributedLocker, func() error, error) {
	var (
		store   ports.StateStore
		locker  ports.DistributedLocker
		closeFn = func() error { return nil }
	)

	switch cfg.Sessions.Backend {
	case "", BackendMemory:
		store = memory.NewStore()

	case BackendFile:
		fs := file.New(cfg.Sessions.Dir)
		log.Debug("file sessions enabled", "dir", fs.Dir())
		store = fs

	case BackendRedis:
		ttl, err := cfg.SessionTTL()
		if err != nil {
			return nil, nil, nil, err
		}
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Sessions.Redis.Address,
			Password: cfg.Sessions.Redis.Password,
			DB:       cfg.Sessions.Redis.DB,
		})
		storeOpts := []redis.Option{}
		if ttl > 0 {
			storeOpts = append(storeOpts, redis.WithTTL(ttl))
		}
		rs := redis.NewFromClient(client, storeOpts...)
		locker = redis.NewLocker(client, lockPrefix)
		log.Debug("redis sessions enabled", "address", cfg.Sessions.Redis.Address, "ttl", ttl)
		store, closeFn = rs, rs.Close

	default:
		return nil, nil, nil, fmt.Errorf("unknown sessions backend %q (supported: %s, %s, %s)",
			cfg.Sessions.Backend, BackendMemory, BackendFile, BackendRedis)
	}

	wrapped, err := wrapStore(cfg, store, log)
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	return wrapped, locker, closeFn, nil
}

// wrapStore applies the configured storage middleware. Masking wraps
// encryption so secrets are already gone when the envelope is sealed.
func wrapStore(cfg Config, store ports.StateStore, log *slog.Logger) (ports.StateStore, error) {
	active, fallbacks, err := cfg.EncryptionKeys()
	if err != nil {
		return nil, err
	}
	if active != nil {
		store = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallbacks,
		})(store)
		log.Debug("session encryption enabled", "fallback_keys", len(fallbacks))
	}

	if len(cfg.Sessions.MaskKeys) > 0 {
		// The middleware panics on a bad pattern; turn that into a config
		// error here.
		for _, p := range cfg.Sessions.MaskKeys {
			if _, err := regexp.Compile(p); err != nil {
				return nil, fmt.Errorf("sessions.mask_keys: %w", err)
			}
		}
		store = middleware.NewPIIMiddleware(cfg.Sessions.MaskKeys)(store)
	}
	return store, nil
}

// BuildAgent assembles the full agent per cfg: decider, session backend,
// sandbox and loop. Extra options (hooks, observers) are applied on top.
// The returned close function releases the session backend.
func BuildAgent(cfg Config, log *slog.Logger, extra ...deckhand.Option) (*deckhand.Agent, func() error, error) {
	decider, err := BuildDecider(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	store, locker, closeStore, err := BuildStore(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	sandboxCfg, err := cfg.SandboxConfig()
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	opts := []deckhand.Option{
		deckhand.WithLogger(log),
		deckhand.WithStore(store),
		deckhand.WithSandboxConfig(sandboxCfg),
	}
	if locker != nil {
		opts = append(opts, deckhand.WithLocker(locker))
	}
	if cfg.Loop.MaxTurns > 0 {
		opts = append(opts, deckhand.WithMaxTurns(cfg.Loop.MaxTurns))
	}
	if cfg.Loop.MaxParallel > 0 {
		opts = append(opts, deckhand.WithMaxParallel(cfg.Loop.MaxParallel))
	}
	opts = append(opts, extra...)

	agent, err := deckhand.New(decider, opts...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return agent, closeStore, nil
}

// BuildExecutor creates just the sandbox executor, for commands that run
// code without a conversation around it.
func BuildExecutor(cfg Config, log *slog.Logger) (*sandbox.Executor, error) {
	sandboxCfg, err := cfg.SandboxConfig()
	if err != nil {
		return nil, err
	}
	return sandbox.New(sandboxCfg, sandbox.WithLogger(log))
}

// BuildDispatcher creates the tool dispatcher without a decider behind it,
// for direct read commands that need no model and no API key.
func BuildDispatcher(cfg Config, log *slog.Logger) (ports.ActionDispatcher, error) {
	exec, err := BuildExecutor(cfg, log)
	if err != nil {
		return nil, err
	}
	reader := deck.NewReader(exec, deck.WithLogger(log))
	return router.New(reader, exec, router.WithLogger(log))
}
