package cli

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/deckhand/internal/sandbox"
	"github.com/aretw0/deckhand/pkg/adapters/openai"
)

// DefaultConfigFile is checked in the working directory when --config is
// not given.
const DefaultConfigFile = "deckhand.yaml"

// EnvAPIKey overrides every configured key source when set.
const EnvAPIKey = "DECKHAND_API_KEY"

// Session backends accepted in the config file.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is everything the deckhand binary reads from its YAML config file.
// A missing file means pure defaults; a partial file only overrides the
// fields it names.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Sessions SessionsConfig `yaml:"sessions"`
	Loop     LoopConfig     `yaml:"loop"`
	Serve    ServeConfig    `yaml:"serve"`
}

// ModelConfig selects the OpenAI-compatible endpoint behind the decider.
type ModelConfig struct {
	// BaseURL targets a compatible gateway. Empty uses the hosted API.
	BaseURL string `yaml:"base_url"`
	Name    string `yaml:"name"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
}

// SandboxConfig is the file-facing sandbox section. Budgets travel as
// duration strings ("45s", "2m") so the YAML stays readable; they are
// parsed when the executor config is resolved.
type SandboxConfig struct {
	WorkdirRoot        string            `yaml:"workdir_root"`
	Toolchain          sandbox.Toolchain `yaml:"toolchain"`
	Timeouts           TimeoutConfig     `yaml:"timeouts"`
	ValidationExitCode int               `yaml:"validation_exit_code"`
}

// TimeoutConfig carries the per-phase wall-clock budgets.
type TimeoutConfig struct {
	Restore   string `yaml:"restore"`
	Build     string `yaml:"build"`
	RunRead   string `yaml:"run_read"`
	RunModify string `yaml:"run_modify"`
}

// SessionsConfig selects where conversation state lives and how it is
// protected at rest.
type SessionsConfig struct {
	Backend string `yaml:"backend"`
	TTL     string `yaml:"ttl"`
	// Dir is the session directory for the file backend.
	Dir   string      `yaml:"dir"`
	Redis RedisConfig `yaml:"redis"`

	// EncryptionKeyEnv names the environment variable holding the AES-256
	// key. Empty disables encryption at rest.
	EncryptionKeyEnv string `yaml:"encryption_key_env"`
	// EncryptionFallbackEnvs name old keys kept readable during rotation.
	EncryptionFallbackEnvs []string `yaml:"encryption_fallback_envs"`
	// MaskKeys are regexes; tool arguments whose keys match are masked
	// before the state is persisted.
	MaskKeys []string `yaml:"mask_keys"`
}

// RedisConfig locates the Redis backend for sessions and locks.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoopConfig caps the conversation loop. Zero keeps the loop's own
// defaults.
type LoopConfig struct {
	MaxTurns    int `yaml:"max_turns"`
	MaxParallel int `yaml:"max_parallel"`
}

// ServeConfig holds the listen addresses for the serving surfaces.
type ServeConfig struct {
	Address string `yaml:"address"`
	MCPPort int    `yaml:"mcp_port"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() Config {
	return Config{
		Model: ModelConfig{
			Name:      openai.DefaultModel,
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Sessions: SessionsConfig{
			Backend: BackendMemory,
			Redis:   RedisConfig{Address: "localhost:6379"},
		},
		Serve: ServeConfig{
			Address: ":8080",
			MCPPort: 8081,
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults. An empty path
// checks DefaultConfigFile; a file that does not exist is not an error,
// the defaults simply apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ResolveAPIKey returns the model API key. DECKHAND_API_KEY wins, then the
// variable named by model.api_key_env.
func (c Config) ResolveAPIKey() string {
	if key := os.Getenv(EnvAPIKey); key != "" {
		return key
	}
	if c.Model.APIKeyEnv != "" {
		return os.Getenv(c.Model.APIKeyEnv)
	}
	return ""
}

// SandboxConfig resolves the file-facing sandbox section over the stock
// profile. Only fields the file names override the defaults.
func (c Config) SandboxConfig() (sandbox.Config, error) {
	out := sandbox.DefaultConfig()

	if c.Sandbox.WorkdirRoot != "" {
		out.WorkdirRoot = c.Sandbox.WorkdirRoot
	}
	if len(c.Sandbox.Toolchain.Restore) > 0 {
		out.Toolchain.Restore = c.Sandbox.Toolchain.Restore
	}
	if len(c.Sandbox.Toolchain.Build) > 0 {
		out.Toolchain.Build = c.Sandbox.Toolchain.Build
	}
	if len(c.Sandbox.Toolchain.BuildRead) > 0 {
		out.Toolchain.BuildRead = c.Sandbox.Toolchain.BuildRead
	}
	if len(c.Sandbox.Toolchain.Run) > 0 {
		out.Toolchain.Run = c.Sandbox.Toolchain.Run
	}
	if c.Sandbox.ValidationExitCode != 0 {
		out.ValidationExitCode = c.Sandbox.ValidationExitCode
	}

	overlays := []struct {
		dst   *time.Duration
		raw   string
		field string
	}{
		{&out.Timeouts.Restore, c.Sandbox.Timeouts.Restore, "sandbox.timeouts.restore"},
		{&out.Timeouts.Build, c.Sandbox.Timeouts.Build, "sandbox.timeouts.build"},
		{&out.Timeouts.RunRead, c.Sandbox.Timeouts.RunRead, "sandbox.timeouts.run_read"},
		{&out.Timeouts.RunModify, c.Sandbox.Timeouts.RunModify, "sandbox.timeouts.run_modify"},
	}
	for _, o := range overlays {
		if err := overlayDuration(o.dst, o.raw, o.field); err != nil {
			return out, err
		}
	}
	return out, nil
}

// EncryptionKeys resolves the at-rest encryption keys from the environment.
// A nil active key means encryption is off. A key is either 32 raw bytes or
// the base64 encoding of 32 bytes.
func (c Config) EncryptionKeys() (active []byte, fallbacks [][]byte, err error) {
	if c.Sessions.EncryptionKeyEnv == "" {
		return nil, nil, nil
	}
	active, err = readKeyEnv(c.Sessions.EncryptionKeyEnv)
	if err != nil {
		return nil, nil, fmt.Errorf("sessions.encryption_key_env: %w", err)
	}
	for _, env := range c.Sessions.EncryptionFallbackEnvs {
		key, err := readKeyEnv(env)
		if err != nil {
			return nil, nil, fmt.Errorf("sessions.encryption_fallback_envs: %w", err)
		}
		fallbacks = append(fallbacks, key)
	}
	return active, fallbacks, nil
}

func readKeyEnv(env string) ([]byte, error) {
	raw := os.Getenv(env)
	if raw == "" {
		return nil, fmt.Errorf("%s is not set", env)
	}
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("%s must hold 32 bytes, raw or base64", env)
	}
	return key, nil
}

// SessionTTL parses the configured session expiry. Empty means sessions
// never expire.
func (c Config) SessionTTL() (time.Duration, error) {
	if c.Sessions.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Sessions.TTL)
	if err != nil {
		return 0, fmt.Errorf("sessions.ttl: %w", err)
	}
	return d, nil
}

func overlayDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}
