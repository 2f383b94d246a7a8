package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 予約操作の結果（status: created, confirmed, payment_failed, cancelled, conflict, insufficient_seats, error）
	ReservationsTotal *prometheus.CounterVec

	// 座席在庫操作（operation: reserve/release/update, result: success/insufficient/over_release/transient/error）
	SeatOperationsTotal *prometheus.CounterVec

	// 不変条件違反の検出数（kind: over_release, double_confirm, seat_drift, compensation_failed）
	InvariantViolationsTotal *prometheus.CounterVec

	// 分散ロックの操作時間（operation: acquire/release, status: success/failed）
	DistributedLockDuration *prometheus.HistogramVec

	// アウトボックス配信（result: published/failed）
	OutboxMessagesTotal *prometheus.CounterVec
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ReservationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservations_total",
				Help: "Total number of reservation operations by outcome",
			},
			[]string{"status"},
		),
		SeatOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_operations_total",
				Help: "Total number of seat inventory operations",
			},
			[]string{"operation", "result"},
		),
		InvariantViolationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invariant_violations_total",
				Help: "Total number of detected invariant violations",
			},
			[]string{"kind"},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
		OutboxMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbox_messages_total",
				Help: "Total number of outbox messages processed by the relay",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReservationsTotal,
		m.SeatOperationsTotal,
		m.InvariantViolationsTotal,
		m.DistributedLockDuration,
		m.OutboxMessagesTotal,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Get はデフォルトのメトリクスインスタンスを返す（未初期化なら nil）
func Get() *Metrics {
	return defaultMetrics
}

// Set はデフォルトのメトリクスインスタンスを設定する
func Set(m *Metrics) {
	defaultMetrics = m
}

// 以下はデフォルトインスタンスへの記録。未初期化の場合は何もしない

func RecordReservation(status string) {
	if m := defaultMetrics; m != nil {
		m.ReservationsTotal.WithLabelValues(status).Inc()
	}
}

func RecordSeatOperation(operation, result string) {
	if m := defaultMetrics; m != nil {
		m.SeatOperationsTotal.WithLabelValues(operation, result).Inc()
	}
}

func RecordInvariantViolation(kind string) {
	if m := defaultMetrics; m != nil {
		m.InvariantViolationsTotal.WithLabelValues(kind).Inc()
	}
}

func ObserveLock(operation, status string, seconds float64) {
	if m := defaultMetrics; m != nil {
		m.DistributedLockDuration.WithLabelValues(operation, status).Observe(seconds)
	}
}

func RecordOutbox(result string, n int) {
	if m := defaultMetrics; m != nil && n > 0 {
		m.OutboxMessagesTotal.WithLabelValues(result).Add(float64(n))
	}
}
