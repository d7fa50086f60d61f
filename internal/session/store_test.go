// internal/session/store_test.go
package session

import (
	"context"
	"testing"
	"time"

	"answer-engine/internal/common/database"
	"answer-engine/internal/pipeline"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxHistory int) *RedisStore {
	mr := miniredis.RunT(t)
	rdb := &database.RedisClient{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb, maxHistory)
}

func makeTurn(query string) pipeline.Turn {
	return pipeline.Turn{
		Query:         query,
		ResolvedQuery: query,
		Intent:        pipeline.IntentGeneric,
		Filters:       map[string]string{},
		Timestamp:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRedisStore_AppendAndGet(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "conv-1", makeTurn("first")))
	require.NoError(t, store.AppendTurn(ctx, "conv-1", makeTurn("second")))

	turns, err := store.GetTurns(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Query)
	assert.Equal(t, "second", turns[1].Query)
}

func TestRedisStore_EmptyConversation(t *testing.T) {
	store := newTestStore(t, 10)

	turns, err := store.GetTurns(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestRedisStore_ConversationsAreIsolated(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "conv-a", makeTurn("from a")))
	require.NoError(t, store.AppendTurn(ctx, "conv-b", makeTurn("from b")))

	turnsA, err := store.GetTurns(ctx, "conv-a")
	require.NoError(t, err)
	require.Len(t, turnsA, 1)
	assert.Equal(t, "from a", turnsA[0].Query)
}

func TestRedisStore_HistoryIsBounded(t *testing.T) {
	store := newTestStore(t, 3)
	ctx := context.Background()

	for _, q := range []string{"one", "two", "three", "four", "five"} {
		require.NoError(t, store.AppendTurn(ctx, "conv-1", makeTurn(q)))
	}

	turns, err := store.GetTurns(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	// Oldest turns are trimmed first.
	assert.Equal(t, "three", turns[0].Query)
	assert.Equal(t, "five", turns[2].Query)
}

func TestRedisStore_SkipsCorruptEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := &database.RedisClient{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { rdb.Close() })
	store := NewRedisStore(rdb, 10)
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "conv-1", makeTurn("good")))
	_, err := mr.Push(turnsKey("conv-1"), "{not json")
	require.NoError(t, err)

	turns, err := store.GetTurns(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "good", turns[0].Query)
}
