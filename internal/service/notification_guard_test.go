package service

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/parcelsync/internal/config"
	"github.com/parcelsync/internal/constants"
	"github.com/parcelsync/internal/notify"
	"github.com/parcelsync/internal/queue"
	"github.com/parcelsync/internal/repository"
)

func TestMaybeNotifySendsOncePerKind(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	order := h.createOrder(t, "NOTIFY-1", constants.OrderStatusShipped, "AWB-N1")

	if !h.guard.MaybeNotify(ctx, order, constants.OrderStatusConfirmed, constants.OrderStatusShipped) {
		t.Fatalf("first call should dispatch")
	}
	if order.NotifiedFlags&constants.NotifiedFlagShipped == 0 {
		t.Fatalf("claimed flag should be reflected on the in-memory order")
	}
	if h.guard.MaybeNotify(ctx, order, constants.OrderStatusConfirmed, constants.OrderStatusShipped) {
		t.Fatalf("order already carrying the flag must not dispatch")
	}
	stale := *order
	stale.NotifiedFlags = 0
	if h.guard.MaybeNotify(ctx, &stale, constants.OrderStatusConfirmed, constants.OrderStatusShipped) {
		t.Fatalf("second call must not dispatch even with a stale in-memory flag")
	}

	jobs := h.dispatcher.snapshot()
	if len(jobs) != 1 {
		t.Fatalf("want 1 job got %d", len(jobs))
	}
	msg := jobs[0].Message
	if msg.Kind != constants.NotificationKindShipped || msg.Phone != "9876543210" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Body != "Hi Asha, order NOTIFY-1 shipped (AWB-N1)" || msg.Subject != "Order NOTIFY-1 shipped" {
		t.Fatalf("unexpected rendering: %q / %q", msg.Body, msg.Subject)
	}
	if !h.reload(t, order.ID).HasNotified(constants.NotifiedFlagShipped) {
		t.Fatalf("shipped flag should be persisted")
	}
}

func TestMaybeNotifyIgnoresNonQualifyingTransitions(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	order := h.createOrder(t, "NOTIFY-2", constants.OrderStatusConfirmed, "AWB-N2")

	if h.guard.MaybeNotify(ctx, order, constants.OrderStatusPending, constants.OrderStatusConfirmed) {
		t.Fatalf("confirmed must not notify")
	}
	if h.guard.MaybeNotify(ctx, order, constants.OrderStatusShipped, constants.OrderStatusCancelled) {
		t.Fatalf("cancelled must not notify")
	}
	if n := len(h.dispatcher.snapshot()); n != 0 {
		t.Fatalf("want no jobs got %d", n)
	}
}

func TestMaybeNotifyInTransitCoversSkippedShipped(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	order := h.createOrder(t, "NOTIFY-3", constants.OrderStatusConfirmed, "AWB-N3")

	if _, err := h.machine.Observe(ctx, order, constants.OrderStatusInTransit, time.Now(), constants.ObserveSourcePoller); err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	if _, err := h.machine.Observe(ctx, order, constants.OrderStatusDelivered, time.Now(), constants.ObserveSourcePoller); err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	if h.dispatcher.count(constants.NotificationKindShipped) != 1 || h.dispatcher.count(constants.NotificationKindDelivered) != 1 {
		t.Fatalf("unexpected jobs: %+v", h.dispatcher.snapshot())
	}
}

func TestMaybeNotifyDispatchFailureKeepsStatusAndFlag(t *testing.T) {
	h := newServiceHarness(t)
	h.dispatcher.err = errBoom
	ctx := context.Background()
	order := h.createOrder(t, "NOTIFY-4", constants.OrderStatusShipped, "AWB-N4")

	result, err := h.machine.Observe(ctx, order, constants.OrderStatusDelivered, time.Now(), constants.ObserveSourceWebhook)
	if err != nil || !result.Applied() {
		t.Fatalf("dispatch failure must not fail the transition: %+v %v", result, err)
	}
	stored := h.reload(t, order.ID)
	if stored.Status != constants.OrderStatusDelivered || !stored.HasNotified(constants.NotifiedFlagDelivered) {
		t.Fatalf("status and flag must stay set: %+v", stored)
	}
}

func TestLocalDispatcherBoundedBuffer(t *testing.T) {
	sender := &recordingSender{}
	d := NewLocalNotificationDispatcher(sender, 1, 1, time.Second)
	job := NotificationJob{OrderID: 1, Message: notify.Message{Kind: constants.NotificationKindShipped, Phone: "1"}}

	if err := d.Dispatch(context.Background(), job); err != nil {
		t.Fatalf("first dispatch should fit the buffer: %v", err)
	}
	if err := d.Dispatch(context.Background(), job); !errors.Is(err, ErrDispatchQueueFull) {
		t.Fatalf("want ErrDispatchQueueFull got %v", err)
	}

	d.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if sender.count() != 1 {
		t.Fatalf("buffered job should be delivered before stop returns, sent=%d", sender.count())
	}
	if err := d.Dispatch(context.Background(), job); !errors.Is(err, ErrDispatcherStopped) {
		t.Fatalf("want ErrDispatcherStopped got %v", err)
	}
}

func TestDeliverNotificationReturnsSenderError(t *testing.T) {
	sender := &recordingSender{err: errBoom}
	err := DeliverNotification(context.Background(), sender, NotificationJob{OrderID: 9, Message: notify.Message{Kind: "shipped"}})
	if !errors.Is(err, errBoom) {
		t.Fatalf("sender error should be returned to the caller for logging, got %v", err)
	}
}

// cancelAfterStatusRepo 在状态条件更新提交后立即取消调用方的 context
type cancelAfterStatusRepo struct {
	*repository.GormOrderRepository
	cancel context.CancelFunc
}

func (r *cancelAfterStatusRepo) ConditionalUpdateStatus(ctx context.Context, id uint, update repository.StatusUpdate) (bool, error) {
	applied, err := r.GormOrderRepository.ConditionalUpdateStatus(ctx, id, update)
	if applied {
		r.cancel()
	}
	return applied, err
}

func TestObserveNotifiesWhenCallerCancelsAfterCommit(t *testing.T) {
	h := newServiceHarness(t)
	order := h.createOrder(t, "NOTIFY-6", constants.OrderStatusConfirmed, "AWB-N6")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := &cancelAfterStatusRepo{GormOrderRepository: h.orderRepo, cancel: cancel}
	guard := NewNotificationGuard(repo, h.dispatcher, testTemplates)
	machine := NewShipmentStatusService(repo, h.eventRepo, guard)

	result, err := machine.Observe(ctx, order, constants.OrderStatusShipped, time.Now(), constants.ObserveSourceWebhook)
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	if !result.Applied() {
		t.Fatalf("transition should apply, got %+v", result)
	}
	if ctx.Err() == nil {
		t.Fatalf("caller context should be cancelled after commit")
	}

	stored := h.reload(t, order.ID)
	if stored.Status != constants.OrderStatusShipped || !stored.HasNotified(constants.NotifiedFlagShipped) {
		t.Fatalf("status and shipped flag must both persist: %+v", stored)
	}
	if n := h.dispatcher.count(constants.NotificationKindShipped); n != 1 {
		t.Fatalf("shipped notification should be dispatched once, got %d", n)
	}

	// 之后对账再次观测到 shipped 只会被忽略，不会补发也不会重复
	h.tracker.set("AWB-N6", "PKD", time.Now())
	again, err := h.reconciler.ReconcileOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if again.Applied() {
		t.Fatalf("second observation must be ignored, got %+v", again)
	}
	if n := h.dispatcher.count(constants.NotificationKindShipped); n != 1 {
		t.Fatalf("shipped notification must not repeat, got %d", n)
	}
}

func TestQueueDispatcherFallsBackWhenRedisStalls(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	accepted := make(chan net.Conn, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- conn
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		for {
			select {
			case conn := <-accepted:
				_ = conn.Close()
			default:
				return
			}
		}
	})
	host, portText, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portText)

	client, err := queue.NewClient(&config.QueueConfig{Enabled: true, Host: host, Port: port, EnqueueTimeoutMs: 200})
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}
	defer client.Close()
	local := &recordingDispatcher{}
	d := NewQueueNotificationDispatcher(client, local)

	started := time.Now()
	job := NotificationJob{OrderID: 5, Message: notify.Message{Kind: constants.NotificationKindDelivered, Phone: "1"}}
	if err := d.Dispatch(context.Background(), job); err != nil {
		t.Fatalf("dispatch should fall back to the local dispatcher: %v", err)
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("stalled redis must not hold the caller, took %s", elapsed)
	}
	if local.count(constants.NotificationKindDelivered) != 1 {
		t.Fatalf("job should reach the local dispatcher: %+v", local.snapshot())
	}
}
