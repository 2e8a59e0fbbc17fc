package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/billsync/docs"
	"github.com/fatflowers/billsync/internal/app/api/handlers"
	mw "github.com/fatflowers/billsync/internal/app/api/middleware"
	nh "github.com/fatflowers/billsync/internal/app/service/notification_handler"
	notificationlog "github.com/fatflowers/billsync/internal/app/service/notification_log"
	"github.com/fatflowers/billsync/internal/app/service/profile"
	"github.com/fatflowers/billsync/internal/app/service/statistics"
	subsvc "github.com/fatflowers/billsync/internal/app/service/subscription"
	cfgpkg "github.com/fatflowers/billsync/pkg/config"
	"github.com/fatflowers/billsync/pkg/metrics"
)

const metricsSubsystem = "billsync"

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	if cfg != nil && cfg.Env == cfgpkg.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Request logger & access log are attached per group in registerRoutes.
	r.Use(mw.TraceMiddleware())
	return r
}

func newPrometheus(cfg *cfgpkg.Config, log *zap.SugaredLogger) *metrics.Prometheus {
	p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
		Subsystem: metricsSubsystem,
		Logger:    log,
	})
	if cfg != nil && cfg.MetricsAddr != "" {
		p.SetListenAddress(cfg.MetricsAddr)
	}
	return p
}

type routeParams struct {
	fx.In

	Engine        *gin.Engine
	Log           *zap.SugaredLogger
	Cfg           *cfgpkg.Config
	DB            *gorm.DB
	Prometheus    *metrics.Prometheus
	Notifications *nh.NotificationHandler
	Subscriptions *subsvc.Service
	Profiles      *profile.Service
	EventLog      *notificationlog.Service
	Statistics    *statistics.Service
}

func registerRoutes(p routeParams) {
	r, log := p.Engine, p.Log
	p.Prometheus.Use(r)

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterHealthRoutes(pub, p.DB)
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Provider webhooks: signature checked by the handler, no auth middleware.
	hooks := r.Group("/api/webhooks")
	hooks.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterWebhookRoutes(hooks, p.Notifications, log)

	admin := r.Group("/api/v1/admin")
	admin.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log), mw.AdminAuthMiddleware(p.Cfg.Admin.JWTSecret, log))
	handlers.RegisterAdminRoutes(admin, handlers.AdminDeps{
		Subscriptions: p.Subscriptions,
		Profiles:      p.Profiles,
		EventLog:      p.EventLog,
		Statistics:    p.Statistics,
		Resyncer:      p.Notifications,
	})
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine, shutdowner fx.Shutdowner) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	appendServerHook(lc, log, shutdowner, "http", srv, 30*time.Second)
}

func runMetricsServer(lc fx.Lifecycle, log *zap.SugaredLogger, p *metrics.Prometheus, shutdowner fx.Shutdowner) {
	srv := p.Server()
	if srv == nil {
		return
	}
	appendServerHook(lc, log, shutdowner, "metrics", srv, 5*time.Second)
}

// appendServerHook serves srv for the app lifetime. A listener failure stops the app.
func appendServerHook(lc fx.Lifecycle, log *zap.SugaredLogger, shutdowner fx.Shutdowner, name string, srv *http.Server, grace time.Duration) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting server", "server", name, "addr", srv.Addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("server error", "server", name, "err", err)
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping server", "server", name)
			shutdownCtx, cancel := context.WithTimeout(ctx, grace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Provide(newPrometheus),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
	fx.Invoke(runMetricsServer),
)
