package data

import (
	"context"

	apperrors "github.com/lk2023060901/consensus-backend/internal/pkg/errors"
	"github.com/lk2023060901/consensus-backend/internal/pkg/redis"
)

const saveLockPrefix = "consensus:save:"

// RedisSaveGuard 保存对话期间持有该对话的 redis 锁
type RedisSaveGuard struct {
	client *redis.Client
}

func NewRedisSaveGuard(client *redis.Client) *RedisSaveGuard {
	return &RedisSaveGuard{client: client}
}

// Guard 持有 key 的保存锁执行 fn
func (g *RedisSaveGuard) Guard(ctx context.Context, key string, fn func() error) error {
	err := g.client.WithLock(ctx, saveLockPrefix+key, g.client.LockTTL(), fn)
	if redis.IsLockHeld(err) {
		return apperrors.Wrap(err, apperrors.ErrSaveInProgress, key)
	}
	return err
}
