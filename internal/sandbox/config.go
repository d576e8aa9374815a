package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/deckhand/pkg/domain"
)

// Placeholders recognized in toolchain argv templates.
const (
	// PlaceholderProject expands to the materialized project file path.
	PlaceholderProject = "{project}"

	// PlaceholderDocument expands to the target document path.
	PlaceholderDocument = "{document}"
)

// Toolchain holds the argv templates for each pipeline phase. Commands run
// with the workarea as their working directory; {project} and {document}
// are substituted per invocation.
type Toolchain struct {
	// Restore resolves build dependencies (modify mode only; read builds
	// restore implicitly).
	Restore []string `yaml:"restore"`

	// Build compiles the modify program.
	Build []string `yaml:"build"`

	// BuildRead compiles the reader program.
	BuildRead []string `yaml:"build_read"`

	// Run executes the built unit against the document.
	Run []string `yaml:"run"`
}

// Timeouts are the per-phase wall-clock budgets. RunRead is smaller than
// RunModify: reads are cheaper.
type Timeouts struct {
	Restore   time.Duration `yaml:"restore"`
	Build     time.Duration `yaml:"build"`
	RunRead   time.Duration `yaml:"run_read"`
	RunModify time.Duration `yaml:"run_modify"`
}

// Config is the full executor configuration. Nothing here has a hidden
// default inside the pipeline; use DefaultConfig for the stock dotnet
// profile and override from the config file.
type Config struct {
	// WorkdirRoot is the directory under which per-invocation workareas
	// are created. Empty means the system temp directory.
	WorkdirRoot string `yaml:"workdir_root"`

	Toolchain Toolchain `yaml:"toolchain"`
	Timeouts  Timeouts  `yaml:"timeouts"`

	// ValidationExitCode is the reserved child exit code meaning "the edit
	// would corrupt the document". Any other non-zero exit is a runtime
	// failure.
	ValidationExitCode int `yaml:"validation_exit_code"`
}

// DefaultConfig returns the dotnet/OpenXML toolchain profile used by the
// stock template assets.
func DefaultConfig() Config {
	return Config{
		Toolchain: Toolchain{
			Restore:   []string{"dotnet", "restore", PlaceholderProject},
			Build:     []string{"dotnet", "build", PlaceholderProject, "--no-restore"},
			BuildRead: []string{"dotnet", "build", PlaceholderProject, "/p:StartupObject=ReadProgram"},
			Run:       []string{"dotnet", "run", "--project", PlaceholderProject, "--no-build", "--", PlaceholderDocument},
		},
		Timeouts: Timeouts{
			Restore:   30 * time.Second,
			Build:     30 * time.Second,
			RunRead:   30 * time.Second,
			RunModify: 60 * time.Second,
		},
		ValidationExitCode: 2,
	}
}

// Validate checks that every phase has a command and every budget is
// positive.
func (c Config) Validate() error {
	var errs []error
	for phase, argv := range map[string][]string{
		"restore":    c.Toolchain.Restore,
		"build":      c.Toolchain.Build,
		"build_read": c.Toolchain.BuildRead,
		"run":        c.Toolchain.Run,
	} {
		if len(argv) == 0 {
			errs = append(errs, fmt.Errorf("toolchain %s: empty argv", phase))
		}
	}
	for phase, d := range map[string]time.Duration{
		"restore":    c.Timeouts.Restore,
		"build":      c.Timeouts.Build,
		"run_read":   c.Timeouts.RunRead,
		"run_modify": c.Timeouts.RunModify,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("timeout %s: must be positive", phase))
		}
	}
	if c.ValidationExitCode == 0 {
		errs = append(errs, errors.New("validation_exit_code: zero is reserved for success"))
	}
	return errors.Join(errs...)
}

// runTimeout selects the run budget for an execution mode.
func (c Config) runTimeout(mode domain.ExecMode) time.Duration {
	if mode == domain.ModeRead {
		return c.Timeouts.RunRead
	}
	return c.Timeouts.RunModify
}

// expandArgv substitutes the placeholders into a copy of an argv template.
func expandArgv(template []string, project, document string) []string {
	out := make([]string, len(template))
	for i, arg := range template {
		arg = strings.ReplaceAll(arg, PlaceholderProject, project)
		arg = strings.ReplaceAll(arg, PlaceholderDocument, document)
		out[i] = arg
	}
	return out
}
