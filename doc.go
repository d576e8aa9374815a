/*
Package deckhand is an agent loop for editing PowerPoint decks through
natural language, pairing an LLM decider with a sandboxed code-execution
toolchain.

It implements a "plan in the model, act in the sandbox" architecture: the
decider only ever sees conversation history and tool results, while every
document read and edit happens as a short generated code fragment compiled
and run in an isolated working directory.

# Concept

Deckhand treats a user request as a conversation that settles. Each turn the
decider either answers in plain text or proposes tool calls: read_overview
and read_detail produce structure snapshots with stable element anchors, and
execute_edit runs a code fragment against a copy-on-entry document. The loop
dispatches calls, feeds results back, and persists the whole history per
session. This hexagonal layout keeps the loop independent from any concrete
LLM provider, store or serving surface: the same Agent sits behind a CLI, an
HTTP API and an MCP server.

# Key Features

  - Anchored addressing: reads return per-element anchors that survive
    re-reads of an unmodified document, so the model can target elements
    without guessing indices.
  - Sandboxed edits: every fragment is validated, compiled and run under
    timeouts; a failed edit restores the document and reports a classified
    outcome instead of corrupting the deck.
  - Durable sessions: conversation state lives behind a store port, with
    in-memory and Redis implementations and optional distributed locking.
  - Self-correction budget: an edit may be retried once after a failure;
    the second consecutive failure stops the loop with an explanation.

# Usage

Construct an Agent around a decider and relay user messages to it. The
decider is the only component the caller must provide; everything else has
a working default.

	package main

	import (
		"context"
		"fmt"
		"log"
		"os"

		"github.com/aretw0/deckhand"
		"github.com/aretw0/deckhand/pkg/adapters/openai"
	)

	func main() {
		decider, err := openai.New(openai.Config{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  "gpt-4o",
		})
		if err != nil {
			log.Fatal(err)
		}

		agent, err := deckhand.New(decider)
		if err != nil {
			log.Fatal(err)
		}

		state, err := agent.Run(context.Background(),
			"session-123", "/decks/q3.pptx",
			"Retitle slide 2 to 'Q3 Results'")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(state.LastAssistantMessage())
	}
*/
package deckhand
