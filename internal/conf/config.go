package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/consensus-backend/internal/pkg/database"
	"github.com/lk2023060901/consensus-backend/internal/pkg/redis"
	"github.com/lk2023060901/consensus-backend/internal/pkg/workerpool"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. CONSENSUS_SERVER_PORT
const EnvPrefix = "CONSENSUS"

type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Log        LogConfig         `mapstructure:"log"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Redis      redis.Config      `mapstructure:"redis"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Fanout     workerpool.Config `mapstructure:"fanout"`
	Pagination PaginationConfig  `mapstructure:"pagination"`
	Providers  []ProviderConfig  `mapstructure:"providers"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level            string        `mapstructure:"level"`
	Format           string        `mapstructure:"format"`
	Output           string        `mapstructure:"output"`
	File             FileLogConfig `mapstructure:"file"`
	EnableCaller     bool          `mapstructure:"enablecaller"`
	EnableStacktrace bool          `mapstructure:"enablestacktrace"`
}

type FileLogConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxsize"`
	MaxAge     int    `mapstructure:"maxage"`
	MaxBackups int    `mapstructure:"maxbackups"`
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig embeds the gorm settings plus an on/off switch
type DatabaseConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	database.Config `mapstructure:",squash"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

type PaginationConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// ProviderConfig is one entry of the provider catalog
type ProviderConfig struct {
	ID        string        `mapstructure:"id"`
	Name      string        `mapstructure:"name"`
	URL       string        `mapstructure:"url"`
	Kind      string        `mapstructure:"kind"` // openai, anthropic, static
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Grounding bool          `mapstructure:"grounding"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Reply     string        `mapstructure:"reply"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file.filename", "logs/consensus.log")
	v.SetDefault("log.file.maxsize", 100)
	v.SetDefault("log.file.maxage", 30)
	v.SetDefault("log.file.maxbackups", 10)
	v.SetDefault("log.file.compress", true)
	v.SetDefault("log.enablecaller", true)
	v.SetDefault("log.enablestacktrace", false)

	db := database.DefaultConfig()
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.user", db.User)
	v.SetDefault("database.password", db.Password)
	v.SetDefault("database.dbname", db.DBName)
	v.SetDefault("database.sslmode", db.SSLMode)
	v.SetDefault("database.timezone", db.Timezone)
	v.SetDefault("database.maxidleconns", db.MaxIdleConns)
	v.SetDefault("database.maxopenconns", db.MaxOpenConns)
	v.SetDefault("database.connmaxlifetime", db.ConnMaxLifetime)
	v.SetDefault("database.connmaxidletime", db.ConnMaxIdleTime)
	v.SetDefault("database.loglevel", db.LogLevel)
	v.SetDefault("database.slowthreshold", db.SlowThreshold)
	v.SetDefault("database.preparestmt", db.PrepareStmt)
	v.SetDefault("database.automigrate", db.AutoMigrate)

	rd := redis.DefaultConfig()
	v.SetDefault("redis.enabled", rd.Enabled)
	v.SetDefault("redis.addr", rd.Addr)
	v.SetDefault("redis.db", rd.DB)
	v.SetDefault("redis.pool_size", rd.PoolSize)
	v.SetDefault("redis.min_idle_conns", rd.MinIdleConns)
	v.SetDefault("redis.dial_timeout", rd.DialTimeout)
	v.SetDefault("redis.read_timeout", rd.ReadTimeout)
	v.SetDefault("redis.write_timeout", rd.WriteTimeout)
	v.SetDefault("redis.max_retries", rd.MaxRetries)
	v.SetDefault("redis.lock_ttl", rd.LockTTL)
	v.SetDefault("redis.session_ttl", rd.SessionTTL)

	v.SetDefault("auth.jwt_issuer", "consensus-backend")

	pool := workerpool.DefaultConfig()
	v.SetDefault("fanout.workers", pool.Workers)
	v.SetDefault("fanout.queue_size", pool.QueueSize)

	v.SetDefault("pagination.page_size", 20)
}

// LoadConfig reads the YAML file at path and applies CONSENSUS_* env overrides
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyProviderDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyProviderDefaults() {
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Name == "" {
			p.Name = p.ID
		}
		if p.Kind == "" {
			p.Kind = "openai"
		}
		if p.Timeout <= 0 {
			p.Timeout = 60 * time.Second
		}
	}
}

// Validate fails fast on settings the server cannot start with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Pagination.PageSize <= 0 {
		return errors.New("pagination.page_size must be > 0")
	}
	if c.Fanout.Workers <= 0 {
		return errors.New("fanout.workers must be > 0")
	}
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	seen := make(map[string]struct{}, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("providers[%d].id is required", i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate provider id %q", p.ID)
		}
		seen[p.ID] = struct{}{}

		switch p.Kind {
		case "openai", "anthropic":
			if p.Model == "" {
				return fmt.Errorf("provider %q: model is required", p.ID)
			}
		case "static":
		default:
			return fmt.Errorf("provider %q: unknown kind %q", p.ID, p.Kind)
		}
	}

	if c.Database.Enabled {
		if err := c.Database.Config.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.Redis.Enabled {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	return nil
}
