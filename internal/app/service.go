package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"time"

	"go.uber.org/zap"
)

// Service 服务接口
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Runner 运行一组服务。任一服务退出即进入停机：按注册顺序逐个停止，
// 共用同一个停机期限。通知派发器注册在最后，入口都关闭后它才排空缓冲。
type Runner struct {
	services []Service
}

type serviceExit struct {
	name string
	err  error
}

// NewRunner 创建服务运行器
func NewRunner(services ...Service) *Runner {
	return &Runner{services: services}
}

// RunWithOptions 运行服务，收到 opts.Signals 中的信号后停机
func RunWithOptions(runner *Runner, opts Options) error {
	if runner == nil {
		return errors.New("runner is nil")
	}
	opts = normalizeOptions(opts)
	ctx := context.Background()
	if len(opts.Signals) > 0 {
		var cancel context.CancelFunc
		ctx, cancel = signal.NotifyContext(ctx, opts.Signals...)
		defer cancel()
	}
	return runner.Run(ctx, opts.ShutdownTimeout, opts.Logger)
}

// Run 启动全部服务并阻塞到停机完成。
// 首个以错误退出的服务决定返回值；正常停机时返回各服务 Stop 的错误。
func (r *Runner) Run(ctx context.Context, stopTimeout time.Duration, logger *zap.SugaredLogger) error {
	if r == nil || len(r.services) == 0 {
		return errors.New("no services to run")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	for i, svc := range r.services {
		if svc == nil {
			return fmt.Errorf("service #%d is nil", i)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exits := make(chan serviceExit, len(r.services))
	for _, svc := range r.services {
		go func(svc Service) {
			logger.Infow("service_start", "service", svc.Name())
			exits <- serviceExit{name: svc.Name(), err: svc.Start(runCtx)}
		}(svc)
	}

	var runErr error
	running := len(r.services)
	select {
	case <-ctx.Done():
		logger.Infow("shutdown_requested", "reason", context.Cause(ctx))
	case exit := <-exits:
		running--
		if exit.err != nil {
			runErr = exit.err
			logger.Errorw("service_failed", "service", exit.name, "error", exit.err)
		} else {
			logger.Warnw("service_exit_early", "service", exit.name)
		}
	}
	cancel()

	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()

	var stopErrs []error
	for _, svc := range r.services {
		started := time.Now()
		err := svc.Stop(stopCtx)
		if err != nil {
			stopErrs = append(stopErrs, fmt.Errorf("stop %s: %w", svc.Name(), err))
			logger.Errorw("service_stop_failed", "service", svc.Name(), "error", err)
			continue
		}
		logger.Infow("service_stopped", "service", svc.Name(), "elapsed_ms", time.Since(started).Milliseconds())
	}

	// 等待 Start 协程返回，超过停机期限的只记录
	for running > 0 {
		select {
		case exit := <-exits:
			running--
			if exit.err != nil && runErr == nil && !errors.Is(exit.err, context.Canceled) {
				logger.Warnw("service_exit_error", "service", exit.name, "error", exit.err)
			}
		case <-stopCtx.Done():
			logger.Warnw("service_exit_timeout", "pending", running)
			running = 0
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return errors.Join(stopErrs...)
}
