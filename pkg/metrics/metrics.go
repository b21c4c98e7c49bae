// Package metrics 导出同步客户端的 Prometheus 指标
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	streamAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "farm",
			Subsystem: "stream",
			Name:      "attempts_total",
			Help:      "SSE connection attempts by outcome.",
		},
		[]string{"outcome"},
	)
	streamReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "farm",
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Scheduled SSE reconnects.",
		},
	)
	streamDecodeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "farm",
			Subsystem: "stream",
			Name:      "decode_failures_total",
			Help:      "SSE payloads that failed to decode.",
		},
	)
	streamSnapshots = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "farm",
			Subsystem: "stream",
			Name:      "snapshots_total",
			Help:      "Decoded snapshots handed to the dispatcher.",
		},
	)
	reconcilePlants = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "farm",
			Subsystem: "reconcile",
			Name:      "plants_total",
			Help:      "Plant mutations applied by reconciliation.",
		},
		[]string{"op"},
	)
	reconcilePasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "farm",
			Subsystem: "reconcile",
			Name:      "passes_total",
			Help:      "Snapshots applied to the grid.",
		},
	)
	dispatcherPanics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "farm",
			Subsystem: "dispatcher",
			Name:      "panics_total",
			Help:      "Callbacks that panicked during drain.",
		},
	)
	dispatcherQueue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "farm",
			Subsystem: "dispatcher",
			Name:      "queue_depth",
			Help:      "Callbacks waiting for the next drain.",
		},
	)
)

// Register 注册所有指标，可重复调用
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			streamAttempts,
			streamReconnects,
			streamDecodeFailures,
			streamSnapshots,
			reconcilePlants,
			reconcilePasses,
			dispatcherPanics,
			dispatcherQueue,
		)
	})
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

// RecordStreamAttempt outcome: "connected" / "failed"
func RecordStreamAttempt(outcome string) {
	Register()
	streamAttempts.WithLabelValues(outcome).Inc()
}

func RecordStreamReconnect() {
	Register()
	streamReconnects.Inc()
}

func RecordDecodeFailure() {
	Register()
	streamDecodeFailures.Inc()
}

func RecordSnapshot() {
	Register()
	streamSnapshots.Inc()
}

// RecordReconcile 记录一次快照应用的结果
func RecordReconcile(created, updated, harvested, skipped int) {
	Register()
	reconcilePasses.Inc()
	reconcilePlants.WithLabelValues("created").Add(float64(created))
	reconcilePlants.WithLabelValues("updated").Add(float64(updated))
	reconcilePlants.WithLabelValues("harvested").Add(float64(harvested))
	reconcilePlants.WithLabelValues("skipped").Add(float64(skipped))
}

func RecordDispatcherPanic() {
	Register()
	dispatcherPanics.Inc()
}

func SetDispatcherQueueDepth(n int) {
	Register()
	dispatcherQueue.Set(float64(n))
}
