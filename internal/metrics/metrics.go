package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parcelsync"

var (
	// StatusObservations 状态机观测结果
	StatusObservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_observations_total",
			Help:      "Status observations by source and outcome (applied / ignored / error).",
		},
		[]string{"source", "outcome"},
	)

	// Notifications 通知派发结果
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Customer notifications by kind and result.",
		},
		[]string{"kind", "result"},
	)

	// CarrierRequests 承运商接口调用结果
	CarrierRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "carrier",
			Name:      "requests_total",
			Help:      "Carrier API calls by operation and result.",
		},
		[]string{"operation", "result"},
	)

	// CarrierRequestDuration 承运商接口耗时
	CarrierRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "carrier",
			Name:      "request_duration_seconds",
			Help:      "Carrier API latency in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"operation"},
	)

	// ReconcileOrders 对账单笔结果
	ReconcileOrders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "orders_total",
			Help:      "Orders processed by the reconciliation poller by outcome.",
		},
		[]string{"outcome"},
	)

	// ReconcileRunDuration 对账整轮耗时
	ReconcileRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full reconciliation run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// WebhookRequests 回调处理结果
	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "requests_total",
			Help:      "Carrier webhook deliveries by HTTP status.",
		},
		[]string{"status"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Request latency in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)

// ObserveCarrierRequest 记录一次承运商调用
func ObserveCarrierRequest(operation, result string, started time.Time) {
	CarrierRequests.WithLabelValues(operation, result).Inc()
	CarrierRequestDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Handler 暴露 /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinMiddleware 记录 HTTP 请求指标，path 使用路由模板避免基数膨胀
func GinMiddleware(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
