package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mariks1/unipeople-notify/internal/cache"
	"github.com/mariks1/unipeople-notify/internal/config"
	"github.com/mariks1/unipeople-notify/internal/http/middleware"
	"github.com/mariks1/unipeople-notify/internal/logger"
	"github.com/mariks1/unipeople-notify/internal/metrics"
	"github.com/mariks1/unipeople-notify/internal/repository"
	inboxSvc "github.com/mariks1/unipeople-notify/internal/service/inbox"
	"github.com/mariks1/unipeople-notify/internal/title"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (MySQL)
	inboxRepo := repository.NewInboxRepository(mysqlDB)

	// repos (ClickHouse)
	chDeliveriesRepo := repository.NewCHDeliveriesRepository(clickhouseDB)

	// services
	unread := cache.NewUnreadCache(rds, cfg.Cache.UnreadTTL)
	svc := inboxSvc.New(inboxRepo, unread, title.NewDefaultRegistry(), cfg.Auth.AdminRoles)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	identityMW := middleware.IdentityMiddleware()
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:emp:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", identityMW, rlMW)
	v1.GET("/inbox", listInboxHandler(svc))
	v1.GET("/inbox/unread-count", unreadCountHandler(svc))
	v1.POST("/inbox/read-all", readAllHandler(svc))
	v1.POST("/inbox/:id/read", markReadHandler(svc))
	v1.DELETE("/inbox/:id", deleteHandler(svc))

	admin := v1.Group("/admin")
	admin.GET("/employees/:employeeId/inbox", adminInboxHandler(svc))
	admin.GET("/employees/:employeeId/inbox/unread-count", adminUnreadCountHandler(svc))
	admin.GET("/reports/deliveries", adminReportsHandler(chDeliveriesRepo, svc))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	logger.Log.Info("http: listening on " + addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
