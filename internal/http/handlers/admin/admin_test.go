package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/parcelsync/internal/authz"
	"github.com/parcelsync/internal/config"
	"github.com/parcelsync/internal/constants"
	"github.com/parcelsync/internal/models"
	"github.com/parcelsync/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func fakeCarrierServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":true,"data":"token-1"}`)
	})
	mux.HandleFunc("/shipments2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":true,"data":{"awb_number":"AWB-ADM-1","label":"https://label/AWB-ADM-1"}}`)
	})
	mux.HandleFunc("/shipments2/track/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":true,"data":{"awb_number":"AWB-ADM-1","history":[
			{"status_code":"DL","location":"Pune","event_time":"2026-05-02 10:00"},
			{"status_code":"IT","location":"Mumbai","event_time":"2026-05-01 18:00"}
		]}}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func setupAdminTest(t *testing.T) (*gin.Engine, *provider.Container) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:admin_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.Migrate(db))

	server := fakeCarrierServer(t)
	cfg := &config.Config{
		Carrier: config.CarrierConfig{
			Name:          "xpressbees",
			BaseURL:       server.URL,
			Email:         "ops@example.com",
			Password:      "pw",
			WebhookSecret: "s3cret",
			Pickup: config.AddressConfig{
				Name: "Warehouse", Phone: "9000000000", Line1: "1 Dock Rd",
				City: "Pune", State: "MH", Pincode: "411001",
			},
		},
		Notification: config.NotificationConfig{Channel: "log"},
	}
	c, err := provider.NewContainerWithDB(cfg, db)
	require.NoError(t, err)

	h := New(c)
	r := gin.New()
	r.GET("/orders", h.ListOrders)
	r.GET("/orders/:id/tracking", h.GetOrderTracking)
	r.POST("/orders/:id/shipment", h.CreateShipment)
	r.POST("/orders/:id/reconcile", h.ReconcileOrder)
	r.GET("/reconcile/last", h.GetLastReconcileRun)
	r.GET("/me/permissions", func(c *gin.Context) {
		if operator := c.Query("as"); operator != "" {
			c.Set(operatorKey, operator)
		}
		h.GetMyPermissions(c)
	})
	return r, c
}

func createShippableOrder(t *testing.T, c *provider.Container, orderNo string) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNo:       orderNo,
		Status:        constants.OrderStatusPending,
		CustomerName:  "Asha",
		CustomerPhone: "9876543210",
		Quantity:      2,
		TotalAmount:   models.NewMoney(decimal.RequireFromString("998.00")),
		Delivery: models.Address{
			Line1: "12 MG Road", City: "Pune", State: "MH", Pincode: "411001",
		},
	}
	require.NoError(t, c.OrderRepo.Create(context.Background(), order))
	return order
}

func doRequest(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(""))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateShipmentFlow(t *testing.T) {
	r, c := setupAdminTest(t)
	order := createShippableOrder(t, c, "ADM-1")

	w := doRequest(r, http.MethodPost, fmt.Sprintf("/orders/%d/shipment", order.ID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := c.OrderRepo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, "AWB-ADM-1", stored.ShipmentRef)
	require.Equal(t, constants.OrderStatusConfirmed, stored.Status)

	w = doRequest(r, http.MethodPost, fmt.Sprintf("/orders/%d/shipment", order.ID))
	require.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(r, http.MethodPost, "/orders/9999/shipment")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(r, http.MethodPost, "/orders/abc/shipment")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateShipmentRejectsIncompleteAddress(t *testing.T) {
	r, c := setupAdminTest(t)
	order := &models.Order{OrderNo: "ADM-2", Status: constants.OrderStatusPending, Quantity: 1}
	require.NoError(t, c.OrderRepo.Create(context.Background(), order))

	w := doRequest(r, http.MethodPost, fmt.Sprintf("/orders/%d/shipment", order.ID))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcileOrderRunsInlineWithoutQueue(t *testing.T) {
	r, c := setupAdminTest(t)
	order := createShippableOrder(t, c, "ADM-3")
	require.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, fmt.Sprintf("/orders/%d/shipment", order.ID)).Code)

	w := doRequest(r, http.MethodPost, fmt.Sprintf("/orders/%d/reconcile", order.ID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Data struct {
			Queued bool `json:"queued"`
			Result struct {
				Outcome string `json:"outcome"`
				To      string `json:"to"`
			} `json:"result"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.False(t, body.Data.Queued)
	require.Equal(t, "applied", body.Data.Result.Outcome)
	require.Equal(t, constants.OrderStatusDelivered, body.Data.Result.To)

	w = doRequest(r, http.MethodGet, fmt.Sprintf("/orders/%d/tracking", order.ID))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"delivered"`)
}

func TestReconcileOrderWithoutShipmentConflicts(t *testing.T) {
	r, c := setupAdminTest(t)
	order := createShippableOrder(t, c, "ADM-4")
	w := doRequest(r, http.MethodPost, fmt.Sprintf("/orders/%d/reconcile", order.ID))
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestListOrdersValidatesStatus(t *testing.T) {
	r, c := setupAdminTest(t)
	createShippableOrder(t, c, "ADM-5")
	createShippableOrder(t, c, "ADM-6")

	w := doRequest(r, http.MethodGet, "/orders?status=pending&page_size=1")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data       []models.Order `json:"data"`
		Pagination struct {
			Total     int64 `json:"total"`
			TotalPage int64 `json:"total_page"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.EqualValues(t, 2, body.Pagination.Total)
	require.EqualValues(t, 2, body.Pagination.TotalPage)

	w = doRequest(r, http.MethodGet, "/orders?status=returned")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetLastReconcileRunWithoutRedis(t *testing.T) {
	r, _ := setupAdminTest(t)
	w := doRequest(r, http.MethodGet, "/reconcile/last")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"found":false`)
}

func TestGetMyPermissions(t *testing.T) {
	r, c := setupAdminTest(t)
	require.NoError(t, c.AuthzService.AssignRoles("ravi", []string{authz.RoleShipper}))

	w := doRequest(r, http.MethodGet, "/me/permissions?as=ravi")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.String()
	require.Contains(t, body, `"roles":["shipper"]`)
	require.Contains(t, body, `/admin/orders/:id/shipment`)
	require.Contains(t, body, `/admin/orders/:id/tracking`)

	w = doRequest(r, http.MethodGet, "/me/permissions")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
