// Package redisstore persists token sets in a Redis hash per client context.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-gateway/token"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix    = "gateway:tokens:"
	DefaultNamespace = "default"
)

type Store struct {
	rdb    redis.UniversalClient
	prefix string
	key    string
	ttl    time.Duration
}

var _ token.Store = (*Store)(nil)

type Option func(*Store)

// WithTTL expires the whole set ttl after its last save.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

func New(rdb redis.UniversalClient, namespace string, opts ...Option) (*Store, error) {
	if rdb == nil {
		return nil, fmt.Errorf("[redisstore.New] redis client is required")
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	s := &Store{rdb: rdb, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	s.key = s.prefix + namespace
	return s, nil
}

// Key returns the Redis key holding the set.
func (s *Store) Key() string {
	return s.key
}

func (s *Store) Load(ctx context.Context) (token.Set, error) {
	values, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return token.Set{}, fmt.Errorf("failed to load tokens[%s]: %w", s.key, err)
	}
	return token.SetFromValues(values), nil
}

func (s *Store) Save(ctx context.Context, set token.Set) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		fields := make([]any, 0, len(token.Keys)*2)
		for _, key := range token.Keys {
			if value := set.Values()[key]; value != "" {
				fields = append(fields, key, value)
			}
		}
		if len(fields) > 0 {
			pipe.HSet(ctx, s.key, fields...)
			if s.ttl > 0 {
				pipe.Expire(ctx, s.key, s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save tokens[%s]: %w", s.key, err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear tokens[%s]: %w", s.key, err)
	}
	return nil
}
