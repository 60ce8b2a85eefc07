package injector

import (
	"context"
	"time"

	"github.com/lk2023060901/consensus-backend/internal/conf"
	convbiz "github.com/lk2023060901/consensus-backend/internal/conversation/biz"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"github.com/lk2023060901/consensus-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/consensus-backend/internal/server"
	"go.uber.org/zap"
)

// App encapsulates all application dependencies
type App struct {
	Config     *conf.Config
	Logger     *logger.Logger
	HTTPServer *server.HTTPServer
	Workspaces *convbiz.Workspaces
	Pool       *workerpool.Pool
}

// EvictIdleWorkspaces drops idle sessions every interval until ctx ends
func (a *App) EvictIdleWorkspaces(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.Workspaces.EvictIdle(maxIdle); n > 0 {
				a.Logger.Debug("idle sessions evicted",
					zap.Int("evicted", n),
					zap.Int("live", a.Workspaces.Len()))
			}
		}
	}
}
