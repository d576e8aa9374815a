package domain

// ExecMode selects the run timeout for a sandboxed execution. Reads are
// cheaper than edits and get the shorter budget.
type ExecMode string

const (
	ModeRead   ExecMode = "read"
	ModeModify ExecMode = "modify"
)

// ExecRequest is one sandbox invocation: an untrusted code fragment and the
// deck it targets. It lives only for the duration of the call.
type ExecRequest struct {
	// Fragment is inserted verbatim at the template's substitution marker.
	Fragment string

	// DocumentPath is passed to the child process as its sole positional
	// argument.
	DocumentPath string

	Mode ExecMode
}

// OutcomeKind is the closed classification of a sandboxed execution.
type OutcomeKind string

const (
	// OutcomeSuccess means the child exited zero; Output holds its stdout.
	OutcomeSuccess OutcomeKind = "success"

	// OutcomeRestoreFailed means dependency restore failed before build.
	OutcomeRestoreFailed OutcomeKind = "restore_failed"

	// OutcomeBuildFailed means compilation failed; SourceListing carries a
	// numbered excerpt of the generated source.
	OutcomeBuildFailed OutcomeKind = "build_failed"

	// OutcomeValidationRejected means the child ran but refused the edit
	// because the document would become structurally invalid. A semantic
	// failure, not a crash.
	OutcomeValidationRejected OutcomeKind = "validation_rejected"

	// OutcomeRuntimeFailed means the child exited non-zero outside the
	// validation sentinel.
	OutcomeRuntimeFailed OutcomeKind = "runtime_failed"

	// OutcomeTimedOut means the run exceeded its wall-clock budget and the
	// process group was killed.
	OutcomeTimedOut OutcomeKind = "timed_out"

	// OutcomeInternalError covers faults in the pipeline itself (workarea
	// I/O, spawn failures). Nothing escapes unclassified.
	OutcomeInternalError OutcomeKind = "internal_error"
)

func (k OutcomeKind) String() string { return string(k) }

// Outcome is the classified result of one sandbox invocation.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// Output is the child's stdout on success.
	Output string `json:"output,omitempty"`

	// Diagnostic carries the failure detail for every non-success kind.
	Diagnostic string `json:"diagnostic,omitempty"`

	// SourceListing is the numbered source excerpt attached to build
	// failures.
	SourceListing string `json:"source_listing,omitempty"`
}

// Succeeded reports whether the execution completed cleanly.
func (o Outcome) Succeeded() bool { return o.Kind == OutcomeSuccess }

// NewSuccess builds a success outcome carrying the child's stdout.
func NewSuccess(output string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Output: output}
}

// NewRestoreFailed builds a restore failure with its diagnostic.
func NewRestoreFailed(diagnostic string) Outcome {
	return Outcome{Kind: OutcomeRestoreFailed, Diagnostic: diagnostic}
}

// NewBuildFailed builds a build failure with compiler output and the
// numbered source excerpt.
func NewBuildFailed(diagnostic, sourceListing string) Outcome {
	return Outcome{Kind: OutcomeBuildFailed, Diagnostic: diagnostic, SourceListing: sourceListing}
}

// NewValidationRejected builds the structural-rejection outcome carrying
// the validator's diagnostics verbatim.
func NewValidationRejected(diagnostic string) Outcome {
	return Outcome{Kind: OutcomeValidationRejected, Diagnostic: diagnostic}
}

// NewRuntimeFailed builds a generic runtime failure.
func NewRuntimeFailed(diagnostic string) Outcome {
	return Outcome{Kind: OutcomeRuntimeFailed, Diagnostic: diagnostic}
}

// NewTimedOut builds the timeout outcome.
func NewTimedOut(diagnostic string) Outcome {
	return Outcome{Kind: OutcomeTimedOut, Diagnostic: diagnostic}
}

// NewInternalError classifies an unanticipated pipeline fault.
func NewInternalError(diagnostic string) Outcome {
	return Outcome{Kind: OutcomeInternalError, Diagnostic: diagnostic}
}
