package persistence

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/petrijr/flowgate/internal/testutil"
)

const prefix = "flowgate:test:"

type RedisStoreTestSuite struct {
	suite.Suite
	client *redis.Client
	store  *RedisStore
}

func TestRedisStoreTestSuite(t *testing.T) {
	addr := testutil.GetRedisAddress(t)

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}

	suite.Run(t, &RedisStoreTestSuite{
		client: client,
		store:  NewRedisStore(client, prefix),
	})
}

func (r *RedisStoreTestSuite) SetupTest() {
	ctx := context.Background()

	// Clean up all keys with this prefix.
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		err := r.client.Del(ctx, iter.Val()).Err()
		r.NoErrorf(err, "redis DEL %q failed: %v", iter.Val(), err)
	}
	r.NoError(iter.Err(), "redis SCAN failed")
}

func (r *RedisStoreTestSuite) TestContract() {
	testStoreContract(r.T(), r.store)
}

func (r *RedisStoreTestSuite) TestKeyLayout() {
	ctx := context.Background()
	r.Require().NoError(r.store.WriteCollection(ctx, CollectionWorkflows, []byte("payload")))

	val, err := r.client.Get(ctx, prefix+"collection:workflows").Result()
	r.Require().NoError(err)
	r.Equal("payload", val)
}

func (r *RedisStoreTestSuite) TestDefaultPrefix() {
	s := NewRedisStore(r.client, "")
	r.Equal("flowgate:collection:operations", s.keyCollection(CollectionOperations))
}
