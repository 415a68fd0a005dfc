package provider

import (
	"errors"
	"fmt"
	"time"

	"github.com/parcelsync/internal/authz"
	"github.com/parcelsync/internal/cache"
	"github.com/parcelsync/internal/carrier"
	"github.com/parcelsync/internal/config"
	"github.com/parcelsync/internal/job"
	"github.com/parcelsync/internal/logger"
	"github.com/parcelsync/internal/models"
	"github.com/parcelsync/internal/notify"
	"github.com/parcelsync/internal/queue"
	"github.com/parcelsync/internal/repository"
	"github.com/parcelsync/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	OrderRepo         repository.OrderRepository
	ShipmentEventRepo repository.ShipmentEventRepository

	// Infrastructure
	CarrierClient   *carrier.Client
	NotifySender    notify.Sender
	LocalDispatcher *service.LocalNotificationDispatcher
	Dispatcher      service.NotificationDispatcher

	// Services
	AuthzService          *authz.Service
	OperatorAuthService   *service.OperatorAuthService
	NotificationGuard     *service.NotificationGuard
	ShipmentStatusService *service.ShipmentStatusService
	WebhookService        *service.TrackingWebhookService
	ReconcileService      *service.ReconcileService
	ShipmentService       *service.ShipmentService
	ReconcileJob          *job.ReconcileJob
}

// NewContainer 初始化容器，使用全局数据库连接
func NewContainer(cfg *config.Config) (*Container, error) {
	return NewContainerWithDB(cfg, models.DB)
}

// NewContainerWithDB 使用指定数据库连接初始化容器
func NewContainerWithDB(cfg *config.Config, db *gorm.DB) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if db == nil {
		return nil, errors.New("database is not initialized")
	}

	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient, _ = queue.NewClient(nil)
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories(db)

	// 2. 初始化外部依赖
	if err := c.initInfrastructure(); err != nil {
		return nil, err
	}

	// 3. 初始化运营权限
	authzService, err := authz.NewService(db)
	if err != nil {
		return nil, fmt.Errorf("init authz service: %w", err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		return nil, fmt.Errorf("bootstrap authz roles: %w", err)
	}
	c.AuthzService = authzService

	// 4. 初始化 Services
	c.initServices()

	return c, nil
}

func (c *Container) initRepositories(db *gorm.DB) {
	c.OrderRepo = repository.NewOrderRepository(db)
	c.ShipmentEventRepo = repository.NewShipmentEventRepository(db)
}

func (c *Container) initInfrastructure() error {
	carrierCfg := c.Config.Carrier
	client, err := carrier.NewClient(carrier.Config{
		Name:     carrierCfg.Name,
		BaseURL:  carrierCfg.BaseURL,
		Email:    carrierCfg.Email,
		Password: carrierCfg.Password,
		Timeout:  seconds(carrierCfg.TimeoutSeconds),
		TokenTTL: time.Duration(carrierCfg.TokenTTLMinutes) * time.Minute,
		Breaker: carrier.BreakerSettings{
			MaxRequests:         carrierCfg.Breaker.MaxRequests,
			Interval:            seconds(carrierCfg.Breaker.IntervalSeconds),
			OpenTimeout:         seconds(carrierCfg.Breaker.OpenTimeoutSeconds),
			ConsecutiveFailures: carrierCfg.Breaker.ConsecutiveFailures,
		},
	})
	if err != nil {
		return fmt.Errorf("init carrier client: %w", err)
	}
	c.CarrierClient = client

	sender, err := notify.NewSender(&c.Config.Notification)
	if err != nil {
		return fmt.Errorf("init notification sender: %w", err)
	}
	c.NotifySender = sender

	dispatcherCfg := c.Config.Notification.Dispatcher
	c.LocalDispatcher = service.NewLocalNotificationDispatcher(
		sender,
		dispatcherCfg.Workers,
		dispatcherCfg.BufferSize,
		seconds(c.Config.Notification.TimeoutSeconds),
	)
	c.Dispatcher = c.LocalDispatcher
	if c.QueueClient.Enabled() {
		c.Dispatcher = service.NewQueueNotificationDispatcher(c.QueueClient, c.LocalDispatcher)
	}
	logger.Infow("provider_notification_ready",
		"channel", sender.Channel(),
		"queue_enabled", c.QueueClient.Enabled(),
	)
	return nil
}

func (c *Container) initServices() {
	cfg := c.Config
	c.OperatorAuthService = service.NewOperatorAuthService(cfg.JWT)
	c.NotificationGuard = service.NewNotificationGuard(c.OrderRepo, c.Dispatcher, cfg.Notification.Templates)
	c.ShipmentStatusService = service.NewShipmentStatusService(c.OrderRepo, c.ShipmentEventRepo, c.NotificationGuard)
	c.WebhookService = service.NewTrackingWebhookService(c.OrderRepo, c.ShipmentStatusService, cfg.Carrier)
	c.ReconcileService = service.NewReconcileService(c.OrderRepo, c.CarrierClient, c.ShipmentStatusService, service.ReconcileOptions{
		BatchSize:    cfg.Reconcile.BatchSize,
		Concurrency:  cfg.Reconcile.Concurrency,
		OrderTimeout: seconds(cfg.Reconcile.OrderTimeoutSeconds),
		CarrierName:  cfg.Carrier.Name,
	})
	c.ShipmentService = service.NewShipmentService(c.OrderRepo, c.ShipmentEventRepo, c.CarrierClient, c.ShipmentStatusService, cfg.Carrier)
	c.ReconcileJob = job.NewReconcileJob(c.ReconcileService, seconds(cfg.Reconcile.LockTTLSeconds))
}

// Close 释放容器持有的外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
