package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/parcelsync/internal/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runnable 由调度器触发的后台任务
type Runnable interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler 封装 cron，同一任务上一轮未结束时跳过本轮
type Scheduler struct {
	cron    *cron.Cron
	log     *zap.SugaredLogger
	timeout time.Duration
	mu      sync.Mutex
	started bool
}

const defaultJobTimeout = 30 * time.Minute

// cronLogger 将 cron 内部日志桥接到 zap
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron_"+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron_"+msg, append(keysAndValues, "error", err)...)
}

// NewScheduler 构建调度器，支持可选秒字段与 @every 描述
func NewScheduler(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	log := logger.Component("scheduler")
	bridge := cronLogger{log: log}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(bridge),
		cron.WithChain(cron.Recover(bridge), cron.SkipIfStillRunning(bridge)),
	)
	return &Scheduler{cron: c, log: log, timeout: timeout}
}

// Register 绑定 cron 表达式与任务
func (s *Scheduler) Register(spec string, runnable Runnable) (cron.EntryID, error) {
	if runnable == nil {
		return 0, fmt.Errorf("scheduler: runnable is required")
	}
	if spec == "" {
		return 0, fmt.Errorf("scheduler: spec is required")
	}
	entryID, err := s.cron.AddFunc(spec, s.wrap(runnable))
	if err != nil {
		return 0, err
	}
	s.log.Infow("job_registered", "job", runnable.Name(), "spec", spec)
	return entryID, nil
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.cron.Start()
	s.started = true
}

// Stop 停止调度器，返回的 context 在执行中的任务结束后关闭
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	s.started = false
	return s.cron.Stop()
}

func (s *Scheduler) wrap(runnable Runnable) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		start := time.Now()
		if err := runnable.Run(ctx); err != nil {
			s.log.Errorw("job_failed", "job", runnable.Name(), "error", err, "elapsed", time.Since(start).String())
			return
		}
		s.log.Debugw("job_completed", "job", runnable.Name(), "elapsed", time.Since(start).String())
	}
}
