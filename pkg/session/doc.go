// Package session serializes access to conversation state and to the
// documents edits run against. Locks are reference counted and scoped by
// key, so two sessions editing the same deck are serialized while sessions
// on different decks proceed in parallel. An optional DistributedLocker
// extends the same guarantee across replicas.
package session
