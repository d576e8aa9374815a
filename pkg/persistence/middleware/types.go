// Package middleware wraps a StateStore with storage-side behavior such as
// encryption at rest and masking of sensitive tool arguments. Wrappers
// compose; apply masking outside encryption so the masked state is what
// gets encrypted.
package middleware

import "github.com/aretw0/deckhand/pkg/ports"

// Middleware allows wrapping a StateStore to add behavior.
type Middleware func(ports.StateStore) ports.StateStore
