//go:build integration
// +build integration

package repository

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parcelsync/internal/constants"
	"github.com/parcelsync/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := []interface{}{
		&models.ShipmentEvent{},
		&models.Order{},
	}
	_ = db.Migrator().DropTable(cleanupModels...)

	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func TestPostgresConditionalUpdateStatusSingleWinner(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	order := &models.Order{OrderNo: "PG-1", Status: constants.OrderStatusConfirmed, ShipmentRef: "PG-AWB-1", Quantity: 1}
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.ConditionalUpdateStatus(ctx, order.ID, StatusUpdate{
				From:           constants.OrderStatusConfirmed,
				To:             constants.OrderStatusShipped,
				LastObservedAt: time.Now(),
			})
			if err != nil {
				t.Errorf("conditional update failed: %v", err)
				return
			}
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("exactly one update should win, got %d", wins)
	}

	first, err := repo.SetNotifiedFlag(ctx, order.ID, constants.NotifiedFlagShipped)
	if err != nil || !first {
		t.Fatalf("first flag set should win: %v %v", first, err)
	}
	second, err := repo.SetNotifiedFlag(ctx, order.ID, constants.NotifiedFlagShipped)
	if err != nil || second {
		t.Fatalf("second flag set must lose: %v %v", second, err)
	}
}

func TestPostgresListAdminKeywordIsCaseInsensitive(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	order := &models.Order{OrderNo: "PG-2", Status: constants.OrderStatusShipped, ShipmentRef: "PG-AWB-2", CustomerName: "Asha Rao", Quantity: 1}
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	orders, total, err := repo.ListAdmin(ctx, OrderListFilter{Keyword: "asha"})
	if err != nil {
		t.Fatalf("list admin failed: %v", err)
	}
	if total != 1 || len(orders) != 1 || orders[0].ID != order.ID {
		t.Fatalf("keyword should match customer name, got total=%d %+v", total, orders)
	}
}
