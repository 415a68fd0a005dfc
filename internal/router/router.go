package router

import (
	"fmt"
	"strings"

	"github.com/parcelsync/internal/cache"
	"github.com/parcelsync/internal/config"
	adminhandlers "github.com/parcelsync/internal/http/handlers/admin"
	publichandlers "github.com/parcelsync/internal/http/handlers/public"
	"github.com/parcelsync/internal/logger"
	"github.com/parcelsync/internal/metrics"
	"github.com/parcelsync/internal/provider"

	"github.com/gin-gonic/gin"
)

const (
	defaultRedisPrefix = "ps"
	defaultMetricsPath = "/metrics"
	healthPath         = "/healthz"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = defaultRedisPrefix
	}
	webhookRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:webhook", redisPrefix),
		WindowSeconds: cfg.Webhook.RateLimit.WindowSeconds,
		MaxRequests:   cfg.Webhook.RateLimit.MaxRequests,
	}
	metricsPath := strings.TrimSpace(cfg.Metrics.Path)
	if metricsPath == "" {
		metricsPath = defaultMetricsPath
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))
	if cfg.Metrics.Enabled {
		r.Use(metrics.GinMiddleware(metricsPath, healthPath))
		r.GET(metricsPath, gin.WrapH(metrics.Handler()))
	}

	apiV1 := r.Group("/api/v1")
	{
		// 承运商回调
		webhooks := apiV1.Group("/webhooks")
		webhooks.POST("/carrier", RateLimitMiddleware(cache.Client(), webhookRule, KeyByIP), publicHandler.CarrierWebhook)

		// 运营接口
		admin := apiV1.Group("/admin")
		admin.Use(OperatorAuthMiddleware(c.OperatorAuthService), OperatorRBACMiddleware(c.AuthzService))
		{
			admin.GET("/orders", adminHandler.ListOrders)
			admin.GET("/orders/:id/tracking", adminHandler.GetOrderTracking)
			admin.POST("/orders/:id/shipment", adminHandler.CreateShipment)
			admin.POST("/orders/:id/reconcile", adminHandler.ReconcileOrder)
			admin.POST("/reconcile/run", adminHandler.TriggerReconcileRun)
			admin.GET("/reconcile/last", adminHandler.GetLastReconcileRun)
			admin.GET("/me/permissions", adminHandler.GetMyPermissions)
		}
	}

	// 健康检查
	r.GET(healthPath, func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
