package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCarrierRequest(t *testing.T) {
	before := testutil.ToFloat64(CarrierRequests.WithLabelValues("fetch_tracking", "ok"))
	ObserveCarrierRequest("fetch_tracking", "ok", time.Now())
	after := testutil.ToFloat64(CarrierRequests.WithLabelValues("fetch_tracking", "ok"))
	if after-before != 1 {
		t.Fatalf("counter should increase by 1, got %v", after-before)
	}
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware("/metrics"))
	r.GET("/orders/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/42", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status want 204 got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	if !strings.Contains(body, `parcelsync_http_requests_total{method="GET",path="/orders/:id",status="204"}`) {
		t.Fatalf("expected templated path metric, got:\n%s", body)
	}
}
