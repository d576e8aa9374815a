/*
Package ports defines the driven ports (interfaces) for the deckhand agent.

These interfaces decouple the control loop from external implementations,
allowing it to work with different model backends, execution toolchains and
storage backends.

# Key Interfaces

  - Decider: the reasoning model that proposes the next tool calls.
  - Executor: the sandboxed toolchain that builds and runs code fragments.
  - ActionDispatcher: the router that turns one tool call into one result.
  - StateStore: persistence for session conversation state.
  - DistributedLocker: cross-replica serialization of document edits.
*/
package ports
