package app

import (
	"errors"
	"time"

	"github.com/parcelsync/internal/config"
	"github.com/parcelsync/internal/job"
	"github.com/parcelsync/internal/logger"
	"github.com/parcelsync/internal/provider"
	"github.com/parcelsync/internal/router"
	"github.com/parcelsync/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, container *provider.Container, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if container == nil {
		return nil, errors.New("container is nil")
	}

	var services []Service

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(cfg.Server, engine))
	}

	// 初始化 Worker 服务，队列未启用时通知走进程内派发
	if (mode == ModeAll || mode == ModeWorker) && container.QueueClient.Enabled() {
		consumer := worker.NewConsumer(container)
		workerService, err := worker.NewService(&cfg.Queue, consumer)
		if err != nil {
			return nil, err
		}
		services = append(services, workerService)
	}

	// 对账轮询
	if (mode == ModeAll || mode == ModeWorker) && cfg.Reconcile.Enabled {
		runTimeout := time.Duration(cfg.Reconcile.RunTimeoutSeconds) * time.Second
		scheduler := job.NewScheduler(runTimeout)
		services = append(services, job.NewService(scheduler, job.Entry{
			Spec:     cfg.Reconcile.Spec,
			Runnable: container.ReconcileJob,
		}))
	}

	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}

	// 状态变更可能发生在任意模式下，派发器总是启动
	services = append(services, NewDispatcherService(container.LocalDispatcher))

	return NewRunner(services...), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	container, err := provider.NewContainer(opts.Config)
	if err != nil {
		return err
	}
	defer container.Close()

	runner, err := BuildRunner(opts.Config, container, opts.Mode)
	if err != nil {
		return err
	}

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start",
		"addr", addr,
		"mode", opts.Mode,
		"queue_enabled", container.QueueClient.Enabled(),
		"reconcile_enabled", opts.Config.Reconcile.Enabled,
		"notification_channel", container.NotifySender.Channel(),
	)
	err = RunWithOptions(runner, opts)
	logger.Infow("app_stopped", "mode", opts.Mode)
	return err
}
