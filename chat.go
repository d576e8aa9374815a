package deckhand

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/runner"
)

// Chat handles the interactive message loop of an Agent using provided IO.
// This allows for easy testing and integration with different frontends
// (plain terminal, TUI, etc).
type Chat struct {
	Input    io.Reader
	Output   io.Writer
	Renderer ContentRenderer
}

// ContentRenderer transforms an assistant reply before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the
// core package.
type ContentRenderer func(string) (string, error)

// Run reads user messages line by line and relays each one to the agent,
// printing the reply, until EOF or an explicit exit command.
func (c *Chat) Run(ctx context.Context, agent *Agent, sessionID, documentPath string) error {
	if c.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if c.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	lineReader := bufio.NewReader(c.Input)

	for {
		fmt.Fprint(c.Output, "> ")
		text, err := lineReader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// Graceful exit on EOF
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}
		input := strings.TrimSpace(text)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Fprintln(c.Output, "Bye!")
			return nil
		}

		input, err = runner.SanitizeInput(input)
		if err != nil {
			fmt.Fprintf(c.Output, "Error: %v. Please try again.\n", err)
			continue
		}

		state, err := agent.Run(ctx, sessionID, documentPath, input)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrTooManyTurns):
			// The loop already appended an explanatory turn; render it
			// like any other reply and keep the session open.
		default:
			return fmt.Errorf("agent error: %w", err)
		}

		reply := state.LastAssistantMessage()
		if reply == "" {
			continue
		}
		output := reply
		if c.Renderer != nil {
			if rendered, rerr := c.Renderer(reply); rerr == nil {
				output = rendered
			}
		}
		fmt.Fprintln(c.Output, strings.TrimSpace(output))
	}
}
