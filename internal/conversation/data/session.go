package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lk2023060901/consensus-backend/internal/conversation/biz"
	"github.com/lk2023060901/consensus-backend/internal/pkg/redis"
)

const (
	sessionPrefix     = "consensus:session:"
	DefaultSessionTTL = 24 * time.Hour
)

// RedisSessionCache 将会话状态保存在 redis 中，任一副本都能处理该会话
type RedisSessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionCache(client *redis.Client, ttl time.Duration) *RedisSessionCache {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionCache{client: client, ttl: ttl}
}

func (c *RedisSessionCache) Load(ctx context.Context, sessionID string) (*biz.SessionState, error) {
	raw, err := c.client.Get(ctx, sessionPrefix+sessionID)
	if redis.IsNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var state biz.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &state, nil
}

// Save 覆盖会话状态并重置过期时间
func (c *RedisSessionCache) Save(ctx context.Context, sessionID string, state biz.SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := c.client.Set(ctx, sessionPrefix+sessionID, raw, c.ttl); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
