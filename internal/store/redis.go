package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradectl/internal/errs"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tradectl:params:"

// kv RedisStore 用到的命令，*redis.Client 直接满足
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore 按 symbol + timeframe 镜像参数集
type RedisStore struct {
	client    kv
	symbol    string
	timeframe string
}

func NewRedisStore(client kv, symbol, timeframe string) *RedisStore {
	return &RedisStore{client: client, symbol: symbol, timeframe: timeframe}
}

func Key(symbol, timeframe string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, symbol, timeframe)
}

func (s *RedisStore) Load(ctx context.Context) (*ParameterSet, error) {
	key := Key(s.symbol, s.timeframe)
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errs.Configurationf("load parameters", "redis key %q not found, run with -optimize first", key)
	}
	if err != nil {
		return nil, errs.Transient("load parameters", err)
	}
	return Decode(data)
}

func (s *RedisStore) Save(ctx context.Context, ps *ParameterSet) error {
	data, err := Encode(ps)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, Key(s.symbol, s.timeframe), data, 0).Err()
}
