package job

import (
	"context"
	"time"

	"github.com/parcelsync/internal/cache"
	"github.com/parcelsync/internal/logger"
	"github.com/parcelsync/internal/service"
)

const (
	reconcileLockKey = "reconcile:run"
	lastRunCacheKey  = "reconcile:last_run"
	lastRunCacheTTL  = 7 * 24 * time.Hour
	defaultLockTTL   = 30 * time.Minute
	reconcileJobName = "reconcile_shipments"
)

// Reconciler 执行一轮对账
type Reconciler interface {
	RunOnce(ctx context.Context) (service.ReconcileReport, error)
}

// RunRecord 最近一轮对账记录
type RunRecord struct {
	Report     service.ReconcileReport `json:"report"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Error      string                  `json:"error,omitempty"`
}

// ReconcileJob 定时对账任务，多实例部署时由 Redis 锁保证同一时刻只有一个实例运行
type ReconcileJob struct {
	reconciler Reconciler
	lockTTL    time.Duration
}

// NewReconcileJob 创建对账任务
func NewReconcileJob(reconciler Reconciler, lockTTL time.Duration) *ReconcileJob {
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &ReconcileJob{reconciler: reconciler, lockTTL: lockTTL}
}

// Name 任务名称
func (j *ReconcileJob) Name() string {
	return reconcileJobName
}

// Run 抢锁后执行一轮对账并记录结果
func (j *ReconcileJob) Run(ctx context.Context) error {
	lock, ok, err := cache.TryLock(ctx, reconcileLockKey, j.lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		logger.Infow("reconcile_run_skipped_locked")
		return nil
	}
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Warnw("reconcile_lock_release_failed", "error", err)
		}
	}()

	record := RunRecord{StartedAt: time.Now()}
	report, runErr := j.reconciler.RunOnce(ctx)
	record.Report = report
	record.FinishedAt = time.Now()
	if runErr != nil {
		record.Error = runErr.Error()
	}
	if err := cache.SetJSON(context.WithoutCancel(ctx), lastRunCacheKey, record, lastRunCacheTTL); err != nil {
		logger.Warnw("reconcile_last_run_store_failed", "error", err)
	}
	return runErr
}

// LastRun 读取最近一轮对账记录，Redis 未启用时返回 false
func LastRun(ctx context.Context) (*RunRecord, bool, error) {
	var record RunRecord
	found, err := cache.GetJSON(ctx, lastRunCacheKey, &record)
	if err != nil || !found {
		return nil, false, err
	}
	return &record, true, nil
}
