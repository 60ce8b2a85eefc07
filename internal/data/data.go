package data

import (
	"fmt"

	"github.com/lk2023060901/consensus-backend/internal/conf"
	"github.com/lk2023060901/consensus-backend/internal/conversation/models"
	"github.com/lk2023060901/consensus-backend/internal/pkg/database"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"github.com/lk2023060901/consensus-backend/internal/pkg/redis"
	"go.uber.org/zap"
)

// Data holds the durable connections. DB and Redis are nil when disabled in config;
// without DB the service runs local-only.
type Data struct {
	DB     *database.DB
	Redis  *redis.Client
	Logger *logger.Logger
}

func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	d := &Data{Logger: log}

	if config.Database.Enabled {
		db, err := initDB(&config.Database.Config, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init database: %w", err)
		}
		d.DB = db
	} else {
		log.Warn("database disabled, conversations are kept in memory only")
	}

	if config.Redis.Enabled {
		client, err := redis.New(&config.Redis, log)
		if err != nil {
			if d.DB != nil {
				_ = d.DB.Close()
			}
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		d.Redis = client
	}

	cleanup := func() {
		log.Info("cleaning up data resources")

		if d.DB != nil {
			if err := d.DB.Close(); err != nil {
				log.Warn("failed to close database", zap.Error(err))
			}
		}

		if d.Redis != nil {
			if err := d.Redis.Close(); err != nil {
				log.Warn("failed to close redis", zap.Error(err))
			}
		}
	}

	return d, cleanup, nil
}

func initDB(config *database.Config, log *logger.Logger) (*database.DB, error) {
	db, err := database.New(config, log)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	log.Info("database initialized successfully")
	return db, nil
}
