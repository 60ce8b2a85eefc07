package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lk2023060901/consensus-backend/internal/conf"
	"github.com/lk2023060901/consensus-backend/internal/pkg/injector"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

var (
	configFile  = flag.String("config", "config.yaml", "config file path")
	evictEvery  = flag.Duration("evict-interval", 5*time.Minute, "how often idle sessions are evicted")
	sessionIdle = flag.Duration("session-idle", time.Hour, "idle time after which a session is dropped")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := newLogger(config)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	// Initialize global logger
	logger.InitGlobal(log)

	log.Info("config loaded successfully", zap.Int("providers", len(config.Providers)))

	app, cleanup, err := injector.InitializeApp(config, log)
	if err != nil {
		log.Fatal("failed to initialize application", zap.Error(err))
	}
	defer cleanup()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go app.EvictIdleWorkspaces(ctx, *evictEvery, *sessionIdle)

	// Start server in goroutine
	go func() {
		if err := app.HTTPServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()

	if err := app.HTTPServer.Stop(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

// newLogger builds the process logger from the log section of config
func newLogger(config *conf.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:            config.Log.Level,
		Format:           config.Log.Format,
		Output:           config.Log.Output,
		EnableCaller:     config.Log.EnableCaller,
		EnableStacktrace: config.Log.EnableStacktrace,
		File: logger.FileConfig{
			Filename:   config.Log.File.Filename,
			MaxSize:    config.Log.File.MaxSize,
			MaxAge:     config.Log.File.MaxAge,
			MaxBackups: config.Log.File.MaxBackups,
			Compress:   config.Log.File.Compress,
		},
	})
}
