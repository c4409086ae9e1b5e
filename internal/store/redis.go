package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/snapshot"
)

const (
	defaultPrefix = "snapshot:page"
	defaultTTL    = 30 * time.Minute
	scanBatch     = 200
)

// RedisStore shares the latest snapshot of each page between worker
// processes. Each page is one JSON value under prefix:pageID, so a Put is a
// single SET and replaces the whole generation.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store. An empty prefix and a non-positive ttl fall
// back to defaults.
func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	normalized := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if normalized == "" {
		normalized = defaultPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, prefix: normalized, ttl: ttl}
}

func (s *RedisStore) key(pageID string) string {
	return s.prefix + ":" + pageID
}

func (s *RedisStore) Put(ctx context.Context, pageID string, snap *snapshot.Snapshot) error {
	if err := validatePageID(pageID); err != nil {
		return err
	}
	if snap == nil {
		return s.RemoveByPageID(ctx, pageID)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.ID, err)
	}
	if err := s.client.Set(ctx, s.key(pageID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("snapshot put %s: %w", pageID, err)
	}
	return nil
}

func (s *RedisStore) GetByPageID(ctx context.Context, pageID string) (*snapshot.Snapshot, bool, error) {
	if err := validatePageID(pageID); err != nil {
		return nil, false, err
	}
	raw, err := s.client.Get(ctx, s.key(pageID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("snapshot get %s: %w", pageID, err)
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false, fmt.Errorf("decode snapshot for %s: %w", pageID, err)
	}
	return &snap, true, nil
}

func (s *RedisStore) RemoveByPageID(ctx context.Context, pageID string) error {
	if err := validatePageID(pageID); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key(pageID)).Err(); err != nil {
		return fmt.Errorf("snapshot remove %s: %w", pageID, err)
	}
	return nil
}

// Clear deletes every key under the store prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("snapshot clear: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("snapshot clear: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
