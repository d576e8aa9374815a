package tui

import (
	"strings"

	"github.com/muesli/termenv"

	"github.com/aretw0/deckhand/pkg/domain"
)

// outcomeColors maps each execution outcome to its display color.
var outcomeColors = map[domain.OutcomeKind]string{
	domain.OutcomeSuccess:             "#4ade80",
	domain.OutcomeValidationRejected:  "#c084fc",
	domain.OutcomeBuildFailed:         "#fbbf24",
	domain.OutcomeRestoreFailed:       "#fbbf24",
	domain.OutcomeRuntimeFailed:       "#f87171",
	domain.OutcomeTimedOut:            "#f87171",
	domain.OutcomeInternalError:       "#f87171",
}

// OutcomeLabel renders a colored status label for an execution outcome,
// e.g. "SUCCESS" in green or "VALIDATION_REJECTED" in purple.
func OutcomeLabel(kind domain.OutcomeKind) string {
	label := strings.ToUpper(string(kind))
	hex, ok := outcomeColors[kind]
	if !ok {
		return label
	}
	p := termenv.ColorProfile()
	return termenv.String(label).Foreground(p.Color(hex)).Bold().String()
}
