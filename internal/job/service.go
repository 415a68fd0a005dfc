package job

import (
	"context"
	"errors"
)

// Entry 一条调度配置
type Entry struct {
	Spec     string
	Runnable Runnable
}

// Service 将调度器接入应用运行器
type Service struct {
	scheduler *Scheduler
	entries   []Entry
}

// NewService 创建调度服务
func NewService(scheduler *Scheduler, entries ...Entry) *Service {
	return &Service{scheduler: scheduler, entries: entries}
}

// Name 服务名称
func (s *Service) Name() string {
	return "scheduler"
}

// Start 注册任务并阻塞到 ctx 结束
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.scheduler == nil {
		return errors.New("scheduler not initialized")
	}
	for _, entry := range s.entries {
		if _, err := s.scheduler.Register(entry.Spec, entry.Runnable); err != nil {
			return err
		}
	}
	s.scheduler.Start()
	<-ctx.Done()
	return nil
}

// Stop 停止调度，等待执行中的任务结束或超时
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.scheduler == nil {
		return nil
	}
	select {
	case <-s.scheduler.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
