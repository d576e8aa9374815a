package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/aretw0/deckhand"
	"github.com/aretw0/deckhand/internal/tui"
	"github.com/aretw0/deckhand/pkg/domain"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	ConfigPath string
	Debug      bool
	SessionID  string
	Document   string
	Message    string // empty means interactive chat
	Resume     bool
	Fresh      bool
}

// Run handles the 'run' command logic: one-shot when a message was given
// on the command line, interactive chat otherwise.
func Run(opts RunOptions) error {
	logger := NewLogger(opts.Debug)

	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	agentOpts := []deckhand.Option{}
	if opts.Debug {
		agentOpts = append(agentOpts, deckhand.WithHooks(debugHooks(logger)))
	}
	agent, closeStore, err := BuildAgent(cfg, logger, agentOpts...)
	if err != nil {
		return err
	}
	defer closeStore()

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	sessionID, resumed, err := resolveSessionID(opts)
	if err != nil {
		return err
	}

	if opts.Fresh {
		if err := agent.Sessions().Delete(sigCtx, sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("failed to reset session: %w", err)
		}
		resumed = false
	}

	var runErr error
	if opts.Message != "" {
		runErr = runOnce(sigCtx, agent, sessionID, opts)
	} else {
		runErr = runInteractive(sigCtx, agent, sessionID, opts, resumed)
	}

	if err := SaveLastSession(sessionID); err != nil {
		logger.Warn("Failed to record last session", "error", err)
	}

	if sigCtx.Err() != nil && runErr == nil {
		runErr = sigCtx.Err()
	}
	return handleExecutionError(runErr)
}

// resolveSessionID picks the session for this run: the explicit flag wins,
// then --resume reads the recorded one, otherwise a fresh ID is minted.
func resolveSessionID(opts RunOptions) (sessionID string, resumed bool, err error) {
	if opts.SessionID != "" {
		return opts.SessionID, false, nil
	}
	if opts.Resume {
		last, err := LoadLastSession()
		if err != nil {
			return "", false, fmt.Errorf("failed to read last session: %w", err)
		}
		if last == "" {
			return "", false, errors.New("no previous session recorded; run without --resume first")
		}
		return last, true, nil
	}
	return uuid.NewString(), false, nil
}

func runOnce(ctx context.Context, agent *deckhand.Agent, sessionID string, opts RunOptions) error {
	state, err := agent.Run(ctx, sessionID, opts.Document, opts.Message)
	if err != nil && !errors.Is(err, domain.ErrTooManyTurns) {
		return err
	}

	reply := strings.TrimSpace(state.LastAssistantMessage())
	if reply == "" {
		return nil
	}
	if rendered, rerr := tui.NewRenderer()(reply); rerr == nil {
		reply = rendered
	}
	fmt.Println(strings.TrimSpace(reply))
	return nil
}

func runInteractive(sigCtx *SignalContext, agent *deckhand.Agent, sessionID string, opts RunOptions, resumed bool) error {
	if tui.Interactive() {
		tui.PrintBanner(deckhand.Version)
	}
	if resumed {
		printSystemMessage("Resuming session '%s'.", sessionID)
	} else {
		printSystemMessage("Session '%s' active.", sessionID)
	}
	if opts.Document != "" {
		printSystemMessage("Editing '%s'. Type 'exit' to quit.", opts.Document)
	} else {
		printSystemMessage("No document bound; pass --file to edit a deck. Type 'exit' to quit.")
	}

	chat := &deckhand.Chat{
		Input:    NewInterruptibleReader(os.Stdin, sigCtx.Done()),
		Output:   os.Stdout,
		Renderer: tui.NewRenderer(),
	}
	err := chat.Run(sigCtx, agent, sessionID, opts.Document)

	if isInterrupted(err) || (err == nil && sigCtx.Err() != nil) {
		if sigCtx.Signal() == os.Interrupt {
			fmt.Printf("[CTRL+C]\n")
		}
		printSystemMessage("Session '%s' saved.", sessionID)
	}
	return err
}
