package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/teamspace-service/internal/domain"
)

// CachedStore decorates a Store with a Redis list per project holding the
// most recent events, newest first. Cache writes are best-effort: a Redis
// failure is logged and the durable store remains authoritative.
type CachedStore struct {
	inner  Store
	client *redis.Client
	limit  int
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedStore wraps inner with a recent-history cache sized to limit.
func NewCachedStore(inner Store, client *redis.Client, limit int, ttl time.Duration, logger *zap.Logger) *CachedStore {
	return &CachedStore{inner: inner, client: client, limit: limit, ttl: ttl, logger: logger}
}

func historyKey(projectID int64) string {
	return fmt.Sprintf("chat:history:%d", projectID)
}

func (s *CachedStore) Append(ctx context.Context, event *domain.ChatEvent) error {
	if err := s.inner.Append(ctx, event); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("cache encode failed", zap.Error(err))
		return nil
	}

	key := historyKey(event.ProjectID)
	pipe := s.client.TxPipeline()
	// Only lists created by primeCache are extended: LPushX on a cold
	// key is a no-op, so an append after expiry or a Redis restart can
	// never seed a list holding less than the real recent page.
	pipe.LPushX(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(s.limit)-1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("cache append failed", zap.Int64("project_id", event.ProjectID), zap.Error(err))
	}
	return nil
}

func (s *CachedStore) Recent(ctx context.Context, projectID int64, limit int) ([]domain.ChatEvent, error) {
	if limit <= s.limit {
		if events, ok := s.readCache(ctx, projectID, limit); ok {
			return events, nil
		}
	}

	events, err := s.inner.Recent(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	if limit >= s.limit || len(events) < limit {
		s.primeCache(ctx, projectID, events)
	}
	return events, nil
}

// readCache serves a page from the Redis list. The list exists only
// when primeCache wrote a complete page, and Append keeps it contiguous
// newest-first, so a non-empty read shorter than limit means the
// project's whole history fits in it.
func (s *CachedStore) readCache(ctx context.Context, projectID int64, limit int) ([]domain.ChatEvent, bool) {
	raw, err := s.client.LRange(ctx, historyKey(projectID), 0, int64(limit)-1).Result()
	if err != nil || len(raw) == 0 {
		if err != nil && err != redis.Nil {
			s.logger.Warn("cache read failed", zap.Int64("project_id", projectID), zap.Error(err))
		}
		return nil, false
	}

	events := make([]domain.ChatEvent, 0, len(raw))
	for _, item := range raw {
		var ev domain.ChatEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, false
		}
		events = append(events, ev)
	}
	return events, true
}

func (s *CachedStore) primeCache(ctx context.Context, projectID int64, events []domain.ChatEvent) {
	if len(events) == 0 {
		return
	}

	key := historyKey(projectID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	// Events arrive newest first; RPUSH preserves that order in the list.
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		pipe.RPush(ctx, key, payload)
	}
	pipe.LTrim(ctx, key, 0, int64(s.limit)-1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("cache prime failed", zap.Int64("project_id", projectID), zap.Error(err))
	}
}
