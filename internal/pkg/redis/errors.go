package redis

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNil            = redis.Nil
	ErrLockHeld       = errors.New("redis: lock is held by another owner")
	ErrLockNotOwned   = errors.New("redis: lock token mismatch or lock expired")
	ErrNotInitialized = errors.New("redis: client not initialized")
)

// IsNil reports whether err is a missing-key error
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// IsLockHeld reports whether err means the lock is owned elsewhere
func IsLockHeld(err error) bool {
	return errors.Is(err, ErrLockHeld)
}
