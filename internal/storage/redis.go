package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "anypush/pkg/logx"
)

const defaultRedisKey = "anypush:settings"

// redisStore keeps every settings key as a field of one Redis hash, so
// several anypush instances can share one settings blob.
type redisStore struct {
	client *redis.Client
	key    string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("storage.redis.addr is required for redis driver")
	}
	key := strings.TrimSpace(cfg.RedisKey)
	if key == "" {
		key = defaultRedisKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable(fmt.Errorf("redis ping %s: %w", addr, err))
	}
	log.Debug("redis store opened", logx.String("addr", addr), logx.String("key", key))
	return &redisStore{client: client, key: key, log: log}, nil
}

func (s *redisStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	if len(keys) == 0 {
		all, err := s.client.HGetAll(ctx, s.key).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		for k, v := range all {
			out[k] = json.RawMessage(v)
		}
		return out, nil
	}

	vals, err := s.client.HMGet(ctx, s.key, keys...).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	for i, v := range vals {
		// Missing fields come back as nil.
		if sv, ok := v.(string); ok {
			out[keys[i]] = json.RawMessage(sv)
		}
	}
	return out, nil
}

func (s *redisStore) Set(ctx context.Context, items map[string]json.RawMessage) error {
	if err := validate(items); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	fields := make(map[string]any, len(items))
	for k, v := range items {
		fields[k] = string(v)
	}
	// MULTI/EXEC so all aggregates of one save land together.
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.key, fields)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *redisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
