package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hirewire/authcore/internal/domain"
)

// RedisSessionRepo implements domain.SessionRepository using Redis.
// Key patterns: "session:<id>" holds the JSON record with a TTL at the
// session's expiry; "user_sessions:<userID>" is a set indexing the user's
// session ids. Redis expires the record keys itself; PruneExpired trims the
// index sets behind them.
type RedisSessionRepo struct {
	client *redis.Client
}

// NewRedisSessionRepo creates a new repository instance.
func NewRedisSessionRepo(client *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{client: client}
}

func sessionKey(id string) string { return fmt.Sprintf("session:%s", id) }

func userIndexKey(userID string) string { return fmt.Sprintf("user_sessions:%s", userID) }

// Save writes the session record and indexes it under its user. The record
// TTL tracks ExpiresAt so even an unswept session disappears on time.
func (r *RedisSessionRepo) Save(ctx context.Context, session *domain.EnhancedSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		// Already past expiry; keep it just long enough for in-flight readers.
		ttl = time.Minute
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), payload, ttl)
	pipe.SAdd(ctx, userIndexKey(session.UserID), session.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

// Get loads one session by id.
func (r *RedisSessionRepo) Get(ctx context.Context, sessionID string) (*domain.EnhancedSession, error) {
	payload, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}

	session := &domain.EnhancedSession{}
	if err := json.Unmarshal(payload, session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return session, nil
}

// ListByUser returns every live session indexed for the user. Index entries
// whose record key has already expired are dropped from the index as a side
// effect.
func (r *RedisSessionRepo) ListByUser(ctx context.Context, userID string) ([]*domain.EnhancedSession, error) {
	ids, err := r.client.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}

	sessions := make([]*domain.EnhancedSession, 0, len(ids))
	for _, id := range ids {
		session, err := r.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			_ = r.client.SRem(ctx, userIndexKey(userID), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// PruneExpired walks the user index sets and removes entries whose session
// record has expired out of Redis. Safe to run repeatedly and concurrently;
// a second sweep simply finds nothing left to remove.
func (r *RedisSessionRepo) PruneExpired(ctx context.Context) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, "user_sessions:*", 100).Iterator()
	for iter.Next(ctx) {
		indexKey := iter.Val()
		ids, err := r.client.SMembers(ctx, indexKey).Result()
		if err != nil {
			return removed, fmt.Errorf("redis error: %w", err)
		}
		for _, id := range ids {
			exists, err := r.client.Exists(ctx, sessionKey(id)).Result()
			if err != nil {
				return removed, fmt.Errorf("redis error: %w", err)
			}
			if exists == 0 {
				if err := r.client.SRem(ctx, indexKey, id).Err(); err != nil {
					return removed, fmt.Errorf("redis error: %w", err)
				}
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan error: %w", err)
	}
	return removed, nil
}
