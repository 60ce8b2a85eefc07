package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/consensus-backend/internal/auth"
	"github.com/lk2023060901/consensus-backend/internal/auth/middleware"
	"github.com/lk2023060901/consensus-backend/internal/conf"
	convservice "github.com/lk2023060901/consensus-backend/internal/conversation/service"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	quizservice "github.com/lk2023060901/consensus-backend/internal/quiz/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthCheck is one dependency checked by /health
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type HTTPServer struct {
	server *http.Server
	router *gin.Engine
	logger *logger.Logger
}

func NewHTTPServer(
	config *conf.Config,
	log *logger.Logger,
	jwtManager *auth.JWTManager,
	conversationService *convservice.ConversationService,
	quizService *quizservice.QuizService,
	gatherer prometheus.Gatherer,
	checks []HealthCheck,
) *HTTPServer {
	if config.Server.Mode != "" {
		gin.SetMode(config.Server.Mode)
	}

	router := gin.New()
	router.Use(logger.GinRecovery(log))
	router.Use(logger.GinLogger(log, "/health", "/metrics"))
	router.Use(middleware.CORS())

	router.GET("/health", healthHandler(checks))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// API routes; every route works anonymously, a valid token adds an owner
	api := router.Group("/api/v1", middleware.OptionalJWTAuth(jwtManager, log))
	conversationService.RegisterRoutes(api)
	quizService.RegisterRoutes(api)

	return &HTTPServer{
		server: &http.Server{
			Addr:              config.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router: router,
		logger: log,
	}
}

func healthHandler(checks []HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := gin.H{}
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				deps[hc.Name] = err.Error()
				continue
			}
			deps[hc.Name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":       state,
			"time":         time.Now().Format(time.RFC3339),
			"dependencies": deps,
		})
	}
}

// Handler exposes the router, mainly for tests
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}
