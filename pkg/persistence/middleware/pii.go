package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
)

const maskedValue = "***"

type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks tool-call argument
// values whose keys match any of the patterns, nested maps included.
// Masking happens on save only; the in-memory state the loop works with is
// never touched. Invalid patterns panic.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, state *domain.State) error {
	// Clone first. The caller keeps using its state after Save returns and
	// must never observe the masking.
	cloned := state.Clone()
	for i := range cloned.Turns {
		for j := range cloned.Turns[i].ToolCalls {
			call := &cloned.Turns[i].ToolCalls[j]
			call.Args = m.maskedCopy(call.Args)
		}
	}
	return m.next.Save(ctx, sessionID, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.State, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// maskedCopy rebuilds the argument map with matching keys masked. It copies
// nested maps as it walks them; State.Clone copies the top level only, and
// deeper levels still alias the caller's state.
func (m *piiMiddleware) maskedCopy(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if m.matches(k) {
			out[k] = maskedValue
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			out[k] = m.maskedCopy(sub)
			continue
		}
		out[k] = v
	}
	return out
}

func (m *piiMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
