package minicron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("newest first", func(t *testing.T) {
		store := NewMemoryStore(4)
		for _, c := range []string{"a", "b", "c"} {
			run := &Run{Command: c}
			require.NoError(t, store.Record(ctx, run))
			assert.NotNil(t, run.ID)
		}

		runs, err := store.Recent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "c", runs[0].Command)
		assert.Equal(t, "b", runs[1].Command)
		assert.Equal(t, 3, store.Len())
	})

	t.Run("evicts oldest", func(t *testing.T) {
		store := NewMemoryStore(2)
		for _, c := range []string{"a", "b", "c"} {
			require.NoError(t, store.Record(ctx, &Run{Command: c}))
		}

		runs, _ := store.Recent(ctx, 0)
		require.Len(t, runs, 2)
		assert.Equal(t, "c", runs[0].Command)
		assert.Equal(t, "b", runs[1].Command)
		assert.Equal(t, 3, runs[0].ID)
	})

	t.Run("stores a copy", func(t *testing.T) {
		store := NewMemoryStore(1)
		run := &Run{Command: "a", Args: []string{"a"}}
		require.NoError(t, store.Record(ctx, run))
		run.Args[0] = "changed"
		run.Command = "changed"

		runs, _ := store.Recent(ctx, 1)
		assert.Equal(t, "a", runs[0].Command)
		assert.Equal(t, []string{"a"}, runs[0].Args)
	})

	t.Run("default size", func(t *testing.T) {
		store := NewMemoryStore(0)
		runs, err := store.Recent(ctx, 5)
		require.NoError(t, err)
		assert.Empty(t, runs)
		assert.Len(t, store.runs, DefaultHistory)
	})
}
