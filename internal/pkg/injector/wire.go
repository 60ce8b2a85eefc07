//go:build wireinject
// +build wireinject

package injector

import (
	"github.com/google/wire"
	"github.com/lk2023060901/consensus-backend/internal/ai/provider/metrics"
	"github.com/lk2023060901/consensus-backend/internal/ai/provider/registry"
	"github.com/lk2023060901/consensus-backend/internal/conf"
	convservice "github.com/lk2023060901/consensus-backend/internal/conversation/service"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"github.com/lk2023060901/consensus-backend/internal/pkg/sse"
	"github.com/lk2023060901/consensus-backend/internal/pkg/workerpool"
	quizbiz "github.com/lk2023060901/consensus-backend/internal/quiz/biz"
	"github.com/lk2023060901/consensus-backend/internal/quiz/board"
	quizservice "github.com/lk2023060901/consensus-backend/internal/quiz/service"
	"github.com/lk2023060901/consensus-backend/internal/server"
)

// ProviderSet is the Wire provider set for all dependencies
var ProviderSet = wire.NewSet(
	// Data layer
	dataProviderSet,

	// Providers and fan-out
	providerProviderSet,

	// Use cases
	useCaseProviderSet,

	// HTTP services
	httpServiceProviderSet,

	// Servers
	serverProviderSet,
)

// Data layer providers
var dataProviderSet = wire.NewSet(
	provideData,
	provideBackend,
)

// Provider catalog, metrics and worker pool
var providerProviderSet = wire.NewSet(
	provideZapLogger,
	provideMetricsRegistry,
	provideRegisterer,
	provideGatherer,
	metrics.NewCollector,
	provideProviderRegistry,
	provideWorkerPool,
	wire.Bind(new(quizbiz.Catalog), new(*registry.Registry)),
	wire.Bind(new(quizbiz.Submitter), new(*workerpool.Pool)),
	wire.Bind(new(quizbiz.MergeRecorder), new(*metrics.Collector)),
)

// Use case providers
var useCaseProviderSet = wire.NewSet(
	board.New,
	sse.NewHub,
	provideLayoutEngine,
	provideAggregator,
	provideWorkspaces,
)

// HTTP service providers
var httpServiceProviderSet = wire.NewSet(
	convservice.NewConversationService,
	quizservice.NewQuizService,
	provideJWTManager,
)

// Server providers
var serverProviderSet = wire.NewSet(
	provideHealthChecks,
	server.NewHTTPServer,
)

// InitializeApp initializes the application with Wire
func InitializeApp(config *conf.Config, log *logger.Logger) (*App, func(), error) {
	wire.Build(ProviderSet, newApp)
	return nil, nil, nil
}
