package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis. Each collection lives under a
// single key:
//
//	<prefix>collection:<name>  => encoded payload
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "flowgate:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "flowgate:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) keyCollection(c Collection) string {
	return s.prefix + "collection:" + string(c)
}

func (s *RedisStore) ReadCollection(ctx context.Context, c Collection) ([]byte, error) {
	payload, err := s.client.Get(ctx, s.keyCollection(c)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return payload, nil
}

func (s *RedisStore) WriteCollection(ctx context.Context, c Collection, payload []byte) error {
	return s.client.Set(ctx, s.keyCollection(c), payload, 0).Err()
}
