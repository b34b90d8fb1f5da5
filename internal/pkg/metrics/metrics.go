// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrderTransitions 统计每条状态边的执行结果（ok / error）
	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sale",
		Name:      "order_transitions_total",
		Help:      "Number of order status transitions by transition and result.",
	}, []string{"transition", "result"})

	// Compensations 统计补偿执行情况，result=failed 意味着需要人工对账
	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sale",
		Name:      "compensations_total",
		Help:      "Number of compensating writes by transition and result.",
	}, []string{"transition", "result"})

	RemoteCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sale",
		Name:      "remote_call_duration_seconds",
		Help:      "Latency of calls to wallet and destination services.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service", "result"})

	LockWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sale",
		Name:      "order_lock_wait_seconds",
		Help:      "Time spent waiting for an order lock.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"backend"})

	WalletOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wallet",
		Name:      "operations_total",
		Help:      "Number of balance operations by kind and result.",
	}, []string{"kind", "result"})
)

// Result 把 error 折叠成标签值
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
