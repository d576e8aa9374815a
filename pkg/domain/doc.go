/*
Package domain contains the core domain models for the deckhand agent.

It defines the entities shared by the control loop, the tool router and the
sandbox executor. This package is kept pure and free of external dependencies
like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - State: the conversation snapshot for one session (turns plus the target
    document path).
  - Turn: one conversation entry (user, assistant, tool result or system).
  - ActionKind: the closed set of tool actions the agent can dispatch.
  - Decision: what the decider proposed for the current turn.
  - Outcome: the classified result of one sandboxed execution.
*/
package domain
