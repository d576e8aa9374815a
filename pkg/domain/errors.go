package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrUnknownAction is returned when a tool call names something outside the
// closed action set.
var ErrUnknownAction = errors.New("unknown action")

// ErrMalformedAnchor is returned when an anchor token does not match the
// container_kindindex_digest grammar.
var ErrMalformedAnchor = errors.New("malformed anchor")

// ErrContainerNotFound is returned when a read references a slide index
// outside the document.
var ErrContainerNotFound = errors.New("container not found")

// ErrTooManyTurns is returned when a single user request exceeds the
// configured decision-round budget.
var ErrTooManyTurns = errors.New("too many turns")
