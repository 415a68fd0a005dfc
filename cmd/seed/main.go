package main

import (
	"github.com/parcelsync/internal/config"
	"github.com/parcelsync/internal/constants"
	"github.com/parcelsync/internal/logger"
	"github.com/parcelsync/internal/models"

	"github.com/shopspring/decimal"
)

// 写入一批待发货的演示订单，便于本地联调承运商沙箱
func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	orders := []models.Order{
		{
			OrderNo:       "DEMO-1001",
			Status:        constants.OrderStatusPending,
			CustomerName:  "Asha Rao",
			CustomerPhone: "9876543210",
			CustomerEmail: "asha@example.com",
			Delivery: models.Address{
				Line1:   "12 MG Road",
				City:    "Bengaluru",
				State:   "Karnataka",
				Pincode: "560001",
			},
			ItemName:    "Ceramic Mug",
			ItemSKU:     "MUG-001",
			Quantity:    2,
			TotalAmount: models.NewMoney(decimal.NewFromInt(598)),
			WeightGrams: 800,
		},
		{
			OrderNo:       "DEMO-1002",
			Status:        constants.OrderStatusPending,
			CustomerName:  "Rahul Mehta",
			CustomerPhone: "9123456780",
			CustomerEmail: "rahul@example.com",
			Delivery: models.Address{
				Line1:   "4 Marine Drive",
				Line2:   "Flat 9B",
				City:    "Mumbai",
				State:   "Maharashtra",
				Pincode: "400002",
			},
			ItemName:    "Cotton Tote",
			ItemSKU:     "TOTE-002",
			Quantity:    1,
			TotalAmount: models.NewMoney(decimal.RequireFromString("349.50")),
			WeightGrams: 300,
		},
		{
			OrderNo:       "DEMO-1003",
			Status:        constants.OrderStatusPending,
			CustomerName:  "Meera Iyer",
			CustomerPhone: "9988776655",
			Delivery: models.Address{
				Line1:   "27 Anna Salai",
				City:    "Chennai",
				State:   "Tamil Nadu",
				Pincode: "600002",
			},
			ItemName:    "Brass Lamp",
			ItemSKU:     "LAMP-003",
			Quantity:    1,
			TotalAmount: models.NewMoney(decimal.NewFromInt(1450)),
			WeightGrams: 1500,
		},
	}

	for _, order := range orders {
		var existing models.Order
		if err := models.DB.Where("order_no = ?", order.OrderNo).First(&existing).Error; err != nil {
			// 不存在则创建
			if err := models.DB.Create(&order).Error; err != nil {
				stdLog.Printf("Failed to create order %s: %v", order.OrderNo, err)
			} else {
				stdLog.Printf("Created order: %s (id=%d)", order.OrderNo, order.ID)
			}
		} else {
			stdLog.Printf("Order already exists: %s (status=%s)", order.OrderNo, existing.Status)
		}
	}
}
