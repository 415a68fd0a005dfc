package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parcelsync/internal/carrier"
	"github.com/parcelsync/internal/config"
	"github.com/parcelsync/internal/models"
	"github.com/parcelsync/internal/notify"
	"github.com/parcelsync/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const testWebhookSecret = "s3cret"

var testTemplates = config.TemplateConfig{
	Shipped:          "Hi {name}, order {order_no} shipped ({tracking_ref})",
	Delivered:        "Hi {name}, order {order_no} delivered",
	ShippedSubject:   "Order {order_no} shipped",
	DeliveredSubject: "Order {order_no} delivered",
}

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []NotificationJob
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job NotificationJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *recordingDispatcher) count(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, job := range d.jobs {
		if job.Message.Kind == kind {
			n++
		}
	}
	return n
}

func (d *recordingDispatcher) snapshot() []NotificationJob {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]NotificationJob(nil), d.jobs...)
}

type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (s *recordingSender) Channel() string { return "test" }

func (s *recordingSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeTracker struct {
	mu        sync.Mutex
	snapshots map[string]*carrier.TrackingSnapshot
	errs      map[string]error
	calls     int32
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		snapshots: map[string]*carrier.TrackingSnapshot{},
		errs:      map[string]error{},
	}
}

func (f *fakeTracker) set(ref, code string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[ref] = &carrier.TrackingSnapshot{
		TrackingRef: ref,
		StatusCode:  code,
		Events:      []carrier.TrackingEvent{{StatusCode: code, EventTime: at}},
	}
}

func (f *fakeTracker) fail(ref string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[ref] = err
}

func (f *fakeTracker) FetchTracking(_ context.Context, ref string) (*carrier.TrackingSnapshot, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[ref]; ok {
		return nil, err
	}
	snapshot, ok := f.snapshots[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", carrier.ErrNotFound, ref)
	}
	return snapshot, nil
}

type fakeCreator struct {
	result *carrier.ShipmentResult
	err    error
	calls  int32
	last   carrier.ShipmentRequest
}

func (f *fakeCreator) CreateShipment(_ context.Context, req carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
	atomic.AddInt32(&f.calls, 1)
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type serviceHarness struct {
	db         *gorm.DB
	orderRepo  *repository.GormOrderRepository
	eventRepo  *repository.GormShipmentEventRepository
	dispatcher *recordingDispatcher
	guard      *NotificationGuard
	machine    *ShipmentStatusService
	webhook    *TrackingWebhookService
	tracker    *fakeTracker
	reconciler *ReconcileService
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()
	dsn := fmt.Sprintf("file:service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	// sqlite 共享内存库在并发写入时会报表锁，测试中串行化连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := models.Migrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	h := &serviceHarness{
		db:         db,
		orderRepo:  repository.NewOrderRepository(db),
		eventRepo:  repository.NewShipmentEventRepository(db),
		dispatcher: &recordingDispatcher{},
		tracker:    newFakeTracker(),
	}
	h.guard = NewNotificationGuard(h.orderRepo, h.dispatcher, testTemplates)
	h.machine = NewShipmentStatusService(h.orderRepo, h.eventRepo, h.guard)
	h.webhook = NewTrackingWebhookService(h.orderRepo, h.machine, config.CarrierConfig{
		Name:          "xpressbees",
		WebhookSecret: testWebhookSecret,
	})
	h.reconciler = NewReconcileService(h.orderRepo, h.tracker, h.machine, ReconcileOptions{
		BatchSize:    2,
		Concurrency:  3,
		OrderTimeout: time.Second,
		CarrierName:  "xpressbees",
	})
	return h
}

func (h *serviceHarness) createOrder(t *testing.T, orderNo, status, ref string) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNo:       orderNo,
		Status:        status,
		ShipmentRef:   ref,
		CustomerName:  "Asha",
		CustomerPhone: "9876543210",
		CustomerEmail: "asha@example.com",
		Quantity:      1,
	}
	if ref != "" {
		order.Carrier = "xpressbees"
	}
	if err := h.orderRepo.Create(context.Background(), order); err != nil {
		t.Fatalf("create order %s failed: %v", orderNo, err)
	}
	return order
}

func (h *serviceHarness) reload(t *testing.T, id uint) *models.Order {
	t.Helper()
	order, err := h.orderRepo.GetByID(context.Background(), id)
	if err != nil || order == nil {
		t.Fatalf("reload order %d failed: %v", id, err)
	}
	return order
}

func (h *serviceHarness) webhookBody(ref, code, at string) []byte {
	return []byte(fmt.Sprintf(`{"awb_number":%q,"history":[{"status_code":%q,"event_time":%q}]}`, ref, code, at))
}

var errBoom = errors.New("boom")
