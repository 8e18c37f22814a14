package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	historyKeyPrefix = "ema-sonic:history:"
	defaultTTL       = 24 * time.Hour
)

// RedisStore keeps each session's turns in a Redis list. The TTL is refreshed
// on every append.
type RedisStore struct {
	client   redis.UniversalClient
	ttl      time.Duration
	maxTurns int64
}

type RedisOption func(*RedisStore)

func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithRedisMaxTurns trims each list to the most recent turns.
func WithRedisMaxTurns(maxTurns int) RedisOption {
	return func(s *RedisStore) {
		s.maxTurns = int64(maxTurns)
	}
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, ttl: defaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	return s
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, turn Turn) (err error) {
	ctx, span := tracer.Start(ctx, "append history turn")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	value, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to encode turn: %w", err)
	}

	key := s.key(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, value)
		if s.maxTurns > 0 {
			pipe.LTrim(ctx, key, -s.maxTurns, -1)
		}
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

func (s *RedisStore) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	values, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}
	return decodeTurns(values)
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(sessionID string) string {
	return historyKeyPrefix + sessionID
}

func decodeTurns(values []string) ([]Turn, error) {
	turns := make([]Turn, 0, len(values))
	for i, value := range values {
		var turn Turn
		if err := json.Unmarshal([]byte(value), &turn); err != nil {
			logger.Warn("skipping undecodable history entry", "index", i, "error", err)
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}
