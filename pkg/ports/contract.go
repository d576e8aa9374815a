package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore
// implementation adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save And Load", func(t *testing.T) {
		state := domain.NewState("/tmp/deck.pptx")
		state.Append(
			domain.Turn{Role: domain.RoleUser, Content: "retitle slide 1"},
			domain.Turn{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{
				ID:     "c1",
				Action: domain.ActionReadDetail,
				Args:   map[string]any{"container_indices": []any{float64(1)}},
			}}},
		)

		err := store.Save(ctx, sessionID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.DocumentPath, loaded.DocumentPath)
		require.Len(t, loaded.Turns, 2)
		assert.Equal(t, domain.RoleUser, loaded.Turns[0].Role)
		require.Len(t, loaded.Turns[1].ToolCalls, 1)
		assert.Equal(t, domain.ActionReadDetail, loaded.Turns[1].ToolCalls[0].Action)
	})

	t.Run("Load Is Isolated From Later Mutation", func(t *testing.T) {
		id := sessionID + "-isolation"
		state := domain.NewState("/tmp/deck.pptx")
		state.Append(domain.Turn{Role: domain.RoleUser, Content: "original"})
		require.NoError(t, store.Save(ctx, id, state))

		// Mutating what we saved or what we loaded must not leak into the
		// store.
		state.Turns[0].Content = "mutated after save"

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "original", loaded.Turns[0].Content)

		loaded.Turns[0].Content = "mutated after load"
		again, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "original", again.Turns[0].Content)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewState("/tmp/deck.pptx"))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewState("/tmp/a.pptx"))
		_ = store.Save(ctx, id2, domain.NewState("/tmp/b.pptx"))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
