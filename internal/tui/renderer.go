package tui

import (
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// Interactive reports whether stdout is a terminal. Piped output gets
// plain text; banners and markdown rendering are terminal-only.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// NewRenderer returns a function that renders assistant markdown for the
// terminal. When stdout is not a terminal the replies pass through
// unchanged.
func NewRenderer() func(string) (string, error) {
	if !Interactive() {
		return func(markdown string) (string, error) {
			return markdown, nil
		}
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // detect light/dark background
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(markdown string) (string, error) {
			return markdown, nil
		}
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}
