package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/deckhand/pkg/domain"
)

type nopStore struct{}

func (nopStore) Save(ctx context.Context, sessionID string, state *domain.State) error { return nil }
func (nopStore) Load(ctx context.Context, sessionID string) (*domain.State, error) {
	return nil, domain.ErrSessionNotFound
}
func (nopStore) Delete(ctx context.Context, sessionID string) error { return nil }
func (nopStore) List(ctx context.Context) ([]string, error)         { return nil, nil }

func TestLockTableDoesNotLeak(t *testing.T) {
	mgr := NewManager(nopStore{})
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		sid := fmt.Sprintf("session-%d", i)
		_ = mgr.Save(ctx, sid, &domain.State{})
		_ = mgr.Delete(ctx, sid)
		_ = mgr.WithDocument(ctx, fmt.Sprintf("/decks/%d.pptx", i), func(context.Context) error { return nil })
	}

	if remaining := len(mgr.locks); remaining != 0 {
		t.Errorf("lock table leak: %d entries remain after all work finished", remaining)
	}
}
