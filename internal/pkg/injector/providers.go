package injector

import (
	"time"

	"github.com/lk2023060901/consensus-backend/internal/ai/provider/metrics"
	"github.com/lk2023060901/consensus-backend/internal/ai/provider/registry"
	ptypes "github.com/lk2023060901/consensus-backend/internal/ai/provider/types"
	"github.com/lk2023060901/consensus-backend/internal/auth"
	"github.com/lk2023060901/consensus-backend/internal/conf"
	convbiz "github.com/lk2023060901/consensus-backend/internal/conversation/biz"
	convdata "github.com/lk2023060901/consensus-backend/internal/conversation/data"
	"github.com/lk2023060901/consensus-backend/internal/conversation/store"
	"github.com/lk2023060901/consensus-backend/internal/data"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"github.com/lk2023060901/consensus-backend/internal/pkg/sse"
	"github.com/lk2023060901/consensus-backend/internal/pkg/workerpool"
	quizbiz "github.com/lk2023060901/consensus-backend/internal/quiz/biz"
	"github.com/lk2023060901/consensus-backend/internal/quiz/board"
	"github.com/lk2023060901/consensus-backend/internal/quiz/layout"
	"github.com/lk2023060901/consensus-backend/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Data layer helpers

func provideData(config *conf.Config, log *logger.Logger) (*data.Data, func(), error) {
	return data.NewData(config, log)
}

// provideBackend returns nil when no database is configured, which makes every Sync local-only
func provideBackend(d *data.Data) *convbiz.Backend {
	if d.DB == nil {
		return nil
	}
	backend := &convbiz.Backend{
		Conversations: convdata.NewConversationRepo(d.DB.DB),
		Messages:      convdata.NewMessageRepo(d.DB.DB),
	}
	if d.Redis != nil {
		backend.Guard = convdata.NewRedisSaveGuard(d.Redis)
	}
	return backend
}

func provideZapLogger(log *logger.Logger) *zap.Logger {
	return log.Logger
}

// Metrics

func provideMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideRegisterer(reg *prometheus.Registry) prometheus.Registerer {
	return reg
}

func provideGatherer(reg *prometheus.Registry) prometheus.Gatherer {
	return reg
}

// Providers and fan-out

func provideProviderRegistry(config *conf.Config, collector *metrics.Collector, log *logger.Logger) (*registry.Registry, error) {
	specs := make([]ptypes.Spec, 0, len(config.Providers))
	for _, p := range config.Providers {
		specs = append(specs, ptypes.Spec{
			ID:        p.ID,
			Name:      p.Name,
			URL:       p.URL,
			Kind:      ptypes.Kind(p.Kind),
			Model:     p.Model,
			BaseURL:   p.BaseURL,
			APIKey:    p.APIKey,
			Grounding: p.Grounding,
			Timeout:   p.Timeout,
			Reply:     p.Reply,
		})
	}
	return registry.New(specs, collector, log.Named("provider"))
}

func provideWorkerPool(config *conf.Config, log *zap.Logger) (*workerpool.Pool, func(), error) {
	pool, err := workerpool.New(&config.Fanout, log.Named("fanout"))
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := pool.Shutdown(10 * time.Second); err != nil {
			log.Warn("fan-out pool did not drain", zap.Error(err))
		}
	}
	return pool, cleanup, nil
}

func provideLayoutEngine() *layout.Engine {
	return layout.NewEngine(layout.DefaultMetrics())
}

func provideAggregator(
	b *board.Board,
	catalog quizbiz.Catalog,
	pool quizbiz.Submitter,
	merges quizbiz.MergeRecorder,
	engine *layout.Engine,
	hub *sse.Hub,
	log *logger.Logger,
) *quizbiz.Aggregator {
	a := quizbiz.NewAggregator(b, catalog, pool, merges, engine, log.Named("quiz"))
	a.SetPublisher(hub)
	return a
}

// Conversations

// provideWorkspaces shares session stores through redis when it is enabled
func provideWorkspaces(config *conf.Config, d *data.Data, backend *convbiz.Backend, providers *registry.Registry, log *logger.Logger) *convbiz.Workspaces {
	log = log.Named("conversation")
	factory := func(st *store.Store) *convbiz.Sync {
		return convbiz.NewSync(st, backend, providers, log, convbiz.WithPageSize(config.Pagination.PageSize))
	}
	var opts []convbiz.WorkspacesOption
	if d.Redis != nil {
		opts = append(opts, convbiz.WithSessionCache(convdata.NewRedisSessionCache(d.Redis, config.Redis.SessionTTL)))
	}
	return convbiz.NewWorkspaces(factory, log, opts...)
}

func provideJWTManager(config *conf.Config) *auth.JWTManager {
	return auth.NewJWTManager(config.Auth.JWTSecret, config.Auth.JWTIssuer)
}

// Servers

func provideHealthChecks(d *data.Data) []server.HealthCheck {
	var checks []server.HealthCheck
	if d.DB != nil {
		checks = append(checks, server.HealthCheck{Name: "database", Check: d.DB.HealthCheck})
	}
	if d.Redis != nil {
		checks = append(checks, server.HealthCheck{Name: "redis", Check: d.Redis.Ping})
	}
	return checks
}

func newApp(
	config *conf.Config,
	log *logger.Logger,
	httpServer *server.HTTPServer,
	workspaces *convbiz.Workspaces,
	pool *workerpool.Pool,
) *App {
	return &App{
		Config:     config,
		Logger:     log,
		HTTPServer: httpServer,
		Workspaces: workspaces,
		Pool:       pool,
	}
}
