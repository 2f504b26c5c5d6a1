package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idoracle/pkg/domain"
	audit "idoracle/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	alice := domain.AccountIDFromSeed("alice")
	bob := domain.AccountIDFromSeed("bob")

	t.Run("repeated ids are appended once", func(t *testing.T) {
		s := NewInMemoryStore()
		event := audit.Event{ID: uuid.New(), Account: alice, Action: string(audit.EventIdentityBound)}
		require.NoError(t, s.Append(ctx, event))
		require.NoError(t, s.Append(ctx, event))

		events, err := s.ListByAccount(ctx, alice)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("recent is newest first and bounded", func(t *testing.T) {
		s := NewInMemoryStore()
		for i := range 3 {
			require.NoError(t, s.Append(ctx, audit.Event{ID: uuid.New(), Account: bob, Height: uint64(i)}))
		}
		recent, err := s.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, uint64(2), recent[0].Height)
		assert.Equal(t, uint64(1), recent[1].Height)

		all, err := s.ListRecent(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}
