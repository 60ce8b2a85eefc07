package redis

import (
	"errors"
	"time"
)

// Config redis connection settings
type Config struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"` // host:port
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`

	// LockTTL bounds how long a distributed lock is held before it expires on its own
	LockTTL time.Duration `mapstructure:"lock_ttl"`
	// SessionTTL is how long an untouched shared session survives
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// DefaultConfig returns a disabled single-node configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:      false,
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
		LockTTL:      30 * time.Second,
		SessionTTL:   24 * time.Hour,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("redis addr is required")
	}
	if c.DB < 0 || c.DB > 15 {
		return errors.New("redis db must be between 0 and 15")
	}
	if c.PoolSize <= 0 {
		return errors.New("redis pool_size must be > 0")
	}
	if c.MinIdleConns > c.PoolSize {
		return errors.New("redis min_idle_conns cannot exceed pool_size")
	}
	if c.LockTTL <= 0 {
		return errors.New("redis lock_ttl must be > 0")
	}
	if c.SessionTTL <= 0 {
		return errors.New("redis session_ttl must be > 0")
	}
	return nil
}
