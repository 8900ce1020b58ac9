// Package cache wraps Redis with JSON serialization for the read-side
// metadata the warmer precomputes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Keys for warmed datasets. Per-highway km lists append the highway name.
const (
	KeyFilterOptions    = "radars:filter-options:v2"
	KeyHighwayKmsPrefix = "radars:highway-kms:v2:"
	KeyAllLocations     = "radars:locations:v2"
)

func HighwayKmsKey(highway string) string {
	return KeyHighwayKmsPrefix + highway
}

type Store struct {
	rdb redis.UniversalClient
	log zerolog.Logger
}

func NewStore(rdb redis.UniversalClient, log zerolog.Logger) *Store {
	return &Store{rdb: rdb, log: log}
}

// GetJSON loads and unmarshals a cached value. The second return reports
// whether the key was present.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Evict(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache evict: %w", err)
	}
	return nil
}
