package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "joya_checkout"

var (
	cartSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cart_syncs_total",
		Help:      "Cart sync requests by result (ok, error, stale, skipped_locked).",
	}, []string{"result"})

	orderLocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_locks_total",
		Help:      "Order lock attempts by result.",
	}, []string{"result"})

	paymentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_outcomes_total",
		Help:      "Charge submissions by normalized outcome.",
	}, []string{"outcome"})

	recoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recoveries_total",
		Help:      "Classified checkout errors by remedy.",
	}, []string{"remedy"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Checkout sessions held by the host.",
	})
)

// 同步结果标签
const (
	SyncOK            = "ok"
	SyncError         = "error"
	SyncStale         = "stale"
	SyncSkippedLocked = "skipped_locked"
)

// ObserveSync 记录一次购物车同步
func ObserveSync(result string) {
	cartSyncs.WithLabelValues(result).Inc()
}

// ObserveLock 记录一次锁单
func ObserveLock(ok bool) {
	if ok {
		orderLocks.WithLabelValues("ok").Inc()
		return
	}
	orderLocks.WithLabelValues("error").Inc()
}

// ObservePayment 记录一次扣款结果
func ObservePayment(outcome string) {
	paymentOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveRecovery 记录一次错误分类
func ObserveRecovery(remedy string) {
	recoveries.WithLabelValues(remedy).Inc()
}

// SetActiveSessions 设置活跃会话数
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
