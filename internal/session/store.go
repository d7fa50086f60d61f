// Package session resolves follow-up queries against prior turns of the
// same conversation and persists the append-only turn history.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"answer-engine/internal/common/database"
	"answer-engine/internal/pipeline"
)

// Store is the conversation turn history contract. Writes are append-only;
// prior turns are never mutated.
type Store interface {
	GetTurns(ctx context.Context, conversationID string) ([]pipeline.Turn, error)
	AppendTurn(ctx context.Context, conversationID string, turn pipeline.Turn) error
}

// RedisStore keeps each conversation's turns in a redis list. RPUSH is
// atomic, which serializes concurrent appends to the same conversation.
type RedisStore struct {
	redis      *database.RedisClient
	maxHistory int
}

func NewRedisStore(rdb *database.RedisClient, maxHistory int) *RedisStore {
	return &RedisStore{redis: rdb, maxHistory: maxHistory}
}

func turnsKey(conversationID string) string {
	return "session:turns:" + conversationID
}

func (s *RedisStore) GetTurns(ctx context.Context, conversationID string) ([]pipeline.Turn, error) {
	raw, err := s.redis.Client.LRange(ctx, turnsKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("session store read: %w", err)
	}

	turns := make([]pipeline.Turn, 0, len(raw))
	for _, item := range raw {
		var turn pipeline.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			// Skip entries written by an incompatible version rather than
			// failing the whole conversation.
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *RedisStore) AppendTurn(ctx context.Context, conversationID string, turn pipeline.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("session store encode: %w", err)
	}

	key := turnsKey(conversationID)
	if err := s.redis.Client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("session store append: %w", err)
	}
	if s.maxHistory > 0 {
		_ = s.redis.Client.LTrim(ctx, key, int64(-s.maxHistory), -1).Err()
	}
	return nil
}
