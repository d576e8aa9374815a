package deck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
)

// Reader produces read-only snapshots of a document by running the reader
// toolchain in the sandbox. Both operations are side-effect-free: the child
// opens the document read-only, traverses, prints JSON and exits.
type Reader struct {
	exec ports.Executor
	log  *slog.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithLogger sets the reader's logger. The default discards everything.
func WithLogger(log *slog.Logger) ReaderOption {
	return func(r *Reader) {
		if log != nil {
			r.log = log
		}
	}
}

// NewReader wires a Reader over the given executor.
func NewReader(exec ports.Executor, opts ...ReaderOption) *Reader {
	r := &Reader{exec: exec, log: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadOverview returns the whole-deck structure snapshot: slide count and,
// per slide, title, element count and element anchors. Repeated calls on an
// unmodified document return identical anchors.
func (r *Reader) ReadOverview(ctx context.Context, path string) (*Overview, error) {
	fragment := "string result = PptxReader.ReadStructure(filePath);\nConsole.WriteLine(result);"
	raw, err := r.run(ctx, path, fragment)
	if err != nil {
		return nil, err
	}
	overview, err := DecodeOverview(raw)
	if err != nil {
		return nil, err
	}
	r.log.Debug("overview read", "path", path, "slides", overview.TotalSlides)
	return overview, nil
}

// ReadDetail returns the full element tree for each requested slide. The
// result preserves the request order, duplicates included; an out-of-range
// index is reported in its own entry without failing the rest of the batch.
func (r *Reader) ReadDetail(ctx context.Context, path string, indices []int) ([]SlideResult, error) {
	fragment := fmt.Sprintf(
		"int[] slideNumbers = new int[] { %s };\nstring result = PptxReader.ReadSlideDetails(filePath, slideNumbers);\nConsole.WriteLine(result);",
		joinInts(indices),
	)
	raw, err := r.run(ctx, path, fragment)
	if err != nil {
		return nil, err
	}
	results, err := DecodeDetail(raw)
	if err != nil {
		return nil, err
	}
	r.log.Debug("slide details read", "path", path, "requested", len(indices), "returned", len(results))
	return results, nil
}

// FindByAnchor fetches the slide an anchor addresses and resolves the anchor
// against its current content. A nil element with a nil error means the
// content changed since the anchor was minted; a missing slide fails with
// domain.ErrContainerNotFound.
func (r *Reader) FindByAnchor(ctx context.Context, path string, a Anchor) (*Element, error) {
	ref, err := Parse(a)
	if err != nil {
		return nil, err
	}
	results, err := r.ReadDetail(ctx, path, []int{ref.Container})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 || results[0].NotFound() {
		return nil, fmt.Errorf("%w: slide %d", domain.ErrContainerNotFound, ref.Container)
	}
	return Resolve([]Slide{*results[0].Slide}, a)
}

func (r *Reader) run(ctx context.Context, path, fragment string) ([]byte, error) {
	outcome := r.exec.Execute(ctx, domain.ExecRequest{
		Fragment:     fragment,
		DocumentPath: path,
		Mode:         domain.ModeRead,
	})
	if !outcome.Succeeded() {
		return nil, outcomeError(outcome)
	}
	return []byte(strings.TrimSpace(outcome.Output)), nil
}

// outcomeError renders a failed outcome as an error in the toolchain's own
// vocabulary so callers can pass the text straight to the decider.
func outcomeError(o domain.Outcome) error {
	switch o.Kind {
	case domain.OutcomeRestoreFailed:
		return fmt.Errorf("Package restore failed: %s", o.Diagnostic)
	case domain.OutcomeBuildFailed:
		return fmt.Errorf("Build failed: %s", o.Diagnostic)
	case domain.OutcomeValidationRejected:
		return fmt.Errorf("Validation failed: %s", o.Diagnostic)
	case domain.OutcomeTimedOut:
		return errors.New(o.Diagnostic)
	default:
		return fmt.Errorf("Execution error: %s", o.Diagnostic)
	}
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
