package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/parcelsync/internal/carrier"
	"github.com/parcelsync/internal/constants"
)

func TestReconcileRunOnceAppliesAndIsolatesFailures(t *testing.T) {
	h := newServiceHarness(t)
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	shipped := h.createOrder(t, "REC-1", constants.OrderStatusConfirmed, "AWB-R1")
	h.tracker.set("AWB-R1", "PKD", at)
	delivered := h.createOrder(t, "REC-2", constants.OrderStatusInTransit, "AWB-R2")
	h.tracker.set("AWB-R2", "DL", at)
	unchanged := h.createOrder(t, "REC-3", constants.OrderStatusShipped, "AWB-R3")
	h.tracker.set("AWB-R3", "PKD", at)
	broken := h.createOrder(t, "REC-4", constants.OrderStatusShipped, "AWB-R4")
	h.tracker.fail("AWB-R4", fmt.Errorf("%w: connection reset", carrier.ErrNetwork))
	h.createOrder(t, "REC-5", constants.OrderStatusShipped, "AWB-R5") // 承运商查无此单
	h.createOrder(t, "REC-6", constants.OrderStatusDelivered, "AWB-R6")
	h.createOrder(t, "REC-7", constants.OrderStatusConfirmed, "")

	report, err := h.reconciler.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once failed: %v", err)
	}
	want := ReconcileReport{Scanned: 5, Applied: 2, Ignored: 1, Failed: 2}
	if report != want {
		t.Fatalf("want %+v got %+v", want, report)
	}
	if got := h.reload(t, shipped.ID).Status; got != constants.OrderStatusShipped {
		t.Fatalf("REC-1 want shipped got %s", got)
	}
	if got := h.reload(t, delivered.ID).Status; got != constants.OrderStatusDelivered {
		t.Fatalf("REC-2 want delivered got %s", got)
	}
	if got := h.reload(t, unchanged.ID).Status; got != constants.OrderStatusShipped {
		t.Fatalf("REC-3 want shipped got %s", got)
	}
	if got := h.reload(t, broken.ID).Status; got != constants.OrderStatusShipped {
		t.Fatalf("failed order must be left untouched, got %s", got)
	}
}

func TestReconcileRunOnceIsIdempotent(t *testing.T) {
	h := newServiceHarness(t)
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	h.createOrder(t, "IDEM-R1", constants.OrderStatusConfirmed, "AWB-IR1")
	h.tracker.set("AWB-IR1", "PKD", at)

	for i := 0; i < 2; i++ {
		if _, err := h.reconciler.RunOnce(context.Background()); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
	}
	if n := h.dispatcher.count(constants.NotificationKindShipped); n != 1 {
		t.Fatalf("want 1 shipped notification across runs got %d", n)
	}
}

func TestReconcileOrder(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	order := h.createOrder(t, "ONE-1", constants.OrderStatusShipped, "AWB-ONE")
	h.tracker.set("AWB-ONE", "OFD", time.Now())

	result, err := h.reconciler.ReconcileOrder(ctx, order.ID)
	if err != nil || !result.Applied() || result.To != constants.OrderStatusInTransit {
		t.Fatalf("unexpected result: %+v %v", result, err)
	}
	if _, err := h.reconciler.ReconcileOrder(ctx, 9999); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("want ErrOrderNotFound got %v", err)
	}
	unshipped := h.createOrder(t, "ONE-2", constants.OrderStatusConfirmed, "")
	if _, err := h.reconciler.ReconcileOrder(ctx, unshipped.ID); !errors.Is(err, ErrOrderNoShipment) {
		t.Fatalf("want ErrOrderNoShipment got %v", err)
	}
}

func TestReconcileRunOnceHonoursCancellation(t *testing.T) {
	h := newServiceHarness(t)
	h.createOrder(t, "CTX-1", constants.OrderStatusShipped, "AWB-CTX")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.reconciler.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled got %v", err)
	}
	if calls := h.tracker.calls; calls != 0 {
		t.Fatalf("cancelled run must not call the carrier, calls=%d", calls)
	}
}
