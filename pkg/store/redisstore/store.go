// Package redisstore persists overrides as Redis string keys, so several
// processes can share one set of overrides.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	override "github.com/goliatone/go-override"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces override keys.
const DefaultPrefix = "override:"

const scanCount = 100

// Option configures a Store.
type Option func(*Store)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// Store is an override.Store backed by Redis. Values are "ON" or "OFF";
// saving Default deletes the key.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New wraps an existing client. The caller keeps ownership of it.
func New(client redis.UniversalClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("redisstore: client is required")
	}
	s := &Store{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Dial connects to addr, selects db and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisstore: connect %s: %w", addr, err)
	}
	return New(client, opts...)
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Load(ctx context.Context, key string) (override.OverrideState, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return override.Default, nil
	}
	if err != nil {
		return override.Default, fmt.Errorf("redisstore: get %s: %w", key, err)
	}
	return override.ParseOverrideState(value), nil
}

func (s *Store) Save(ctx context.Context, key string, state override.OverrideState) error {
	if !state.Valid() {
		return override.ErrInvalidOverrideState
	}
	if state == override.Default {
		if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
			return fmt.Errorf("redisstore: del %s: %w", key, err)
		}
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+key, state.String(), 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set %s: %w", key, err)
	}
	return nil
}

// Keys scans the prefix and returns the feature keys, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		if key := strings.TrimPrefix(iter.Val(), s.prefix); key != "" {
			keys = append(keys, key)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redisstore: scan %s*: %w", s.prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}
