package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/xela07ax/latch-escrow/internal/domain"
	"github.com/xela07ax/latch-escrow/internal/query"
)

type Metrics struct {
	// Latency: сколько заняла операция (проверка политики + мутация + журнал)
	OperationDuration *prometheus.HistogramVec

	// Traffic: попытки по операциям и исходу (allowed/denied)
	OperationsTotal *prometheus.CounterVec

	// Заблокированный баланс и общий объем (индикатор Locked Balance)
	LockedBalance prometheus.Gauge
	TotalVolume   prometheus.Gauge

	VaultsByStatus *prometheus.GaugeVec

	// Saturation: состояние Circuit Breaker исходящих интеграций (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера архиватора (backpressure)
	AuditBufferFill prometheus.Gauge

	// Dropped: события/снимки, сброшенные из-за переполнения очередей
	DroppedTotal *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		OperationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "escrow_operation_duration_seconds",
			Help:    "Histogram of lifecycle operation latencies.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}, []string{"operation", "outcome"}),

		OperationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_operations_total",
			Help: "Total number of lifecycle operation attempts.",
		}, []string{"operation", "outcome"}),

		LockedBalance: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "escrow_locked_balance_sol",
			Help: "Sum of amounts held in Funded vaults.",
		}),

		TotalVolume: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "escrow_total_volume_sol",
			Help: "Sum of amounts across all vaults.",
		}),

		VaultsByStatus: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "escrow_vaults",
			Help: "Number of vaults by status.",
		}, []string{"status"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "escrow_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open).",
		}, []string{"target"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "escrow_archive_buffer_utilization",
			Help: "Current number of activity entries waiting for archive.",
		}),

		DroppedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_dropped_total",
			Help: "Items dropped because an outbound queue was full.",
		}, []string{"queue"}),
	}
}

func (m *Metrics) observeOperation(op domain.Operation, outcome domain.Outcome, seconds float64) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(string(op), string(outcome)).Inc()
	m.OperationDuration.WithLabelValues(string(op), string(outcome)).Observe(seconds)
}

func (m *Metrics) observeBalance(b query.Balance) {
	if m == nil {
		return
	}
	m.LockedBalance.Set(b.Locked.InexactFloat64())
	m.TotalVolume.Set(b.Total.InexactFloat64())
	for st, n := range b.ByStatus {
		m.VaultsByStatus.WithLabelValues(string(st)).Set(float64(n))
	}
}

func (m *Metrics) dropped(queue string) {
	if m == nil {
		return
	}
	m.DroppedTotal.WithLabelValues(queue).Inc()
}

func (m *Metrics) breakerState(target string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.CircuitBreakerState.WithLabelValues(target).Set(v)
}
