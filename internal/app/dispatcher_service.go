package app

import (
	"context"
	"errors"

	"github.com/parcelsync/internal/service"
)

// DispatcherService 进程内通知派发服务
type DispatcherService struct {
	dispatcher *service.LocalNotificationDispatcher
}

// NewDispatcherService 创建派发服务
func NewDispatcherService(dispatcher *service.LocalNotificationDispatcher) *DispatcherService {
	return &DispatcherService{dispatcher: dispatcher}
}

// Name 服务名称
func (s *DispatcherService) Name() string {
	return "notification_dispatcher"
}

// Start 启动派发协程并阻塞到 ctx 结束
func (s *DispatcherService) Start(ctx context.Context) error {
	if s == nil || s.dispatcher == nil {
		return errors.New("notification dispatcher not initialized")
	}
	s.dispatcher.Start()
	<-ctx.Done()
	return nil
}

// Stop 排空缓冲区后停止
func (s *DispatcherService) Stop(ctx context.Context) error {
	if s == nil || s.dispatcher == nil {
		return nil
	}
	return s.dispatcher.Stop(ctx)
}
