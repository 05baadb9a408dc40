package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового движка
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах

// ============ Метрики ордеров ============

// OrdersSubmitted - принятые к исполнению ордера
var OrdersSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "orders",
		Name:      "submitted_total",
		Help:      "Orders accepted for execution",
	},
	[]string{"symbol", "side"},
)

// OrdersCompleted - завершенные ордера по финальному статусу
var OrdersCompleted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "orders",
		Name:      "completed_total",
		Help:      "Orders reaching a terminal status",
	},
	[]string{"symbol", "status"},
)

// OrderSubmitRetries - повторные попытки отправки на биржу
var OrderSubmitRetries = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "orders",
		Name:      "submit_retries_total",
		Help:      "Retried order submissions",
	},
)

// OrderExecutionLatency - время от отправки до финального статуса
var OrderExecutionLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "sentinel",
		Subsystem: "orders",
		Name:      "execution_latency_seconds",
		Help:      "Time from submission to terminal status in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
	},
	[]string{"symbol"},
)

// OrderSlippage - фактическое проскальзывание исполнения, в процентах
var OrderSlippage = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "sentinel",
		Subsystem: "orders",
		Name:      "slippage_percent",
		Help:      "Observed fill slippage in percent",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	},
	[]string{"symbol"},
)

// ============ Метрики сигналов ============

// SignalsReceived - принятые в пул сигналы
var SignalsReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "signals",
		Name:      "received_total",
		Help:      "Signals accepted into the resonance pool",
	},
	[]string{"strategy"},
)

// SignalsExpired - сигналы, вытесненные по TTL
var SignalsExpired = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "signals",
		Name:      "expired_total",
		Help:      "Signals dropped after TTL expiry",
	},
)

// SignalPoolSize - текущий размер пула сигналов
var SignalPoolSize = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "signals",
		Name:      "pool_size",
		Help:      "Pending signals currently held in the pool",
	},
)

// ============ Метрики защиты ============

// BreakerTrips - срабатывания предохранителя по причине
var BreakerTrips = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "breaker",
		Name:      "trips_total",
		Help:      "Circuit breaker trips by cause",
	},
	[]string{"cause"},
)

// BreakerState - 1 если предохранитель сработал
var BreakerState = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "breaker",
		Name:      "tripped",
		Help:      "1 when the circuit breaker is tripped",
	},
)

// MacroSeason - подтвержденный макро-сезон (-1 BEAR, 0 NEUTRAL, 1 BULL)
var MacroSeason = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "macro",
		Name:      "season",
		Help:      "Confirmed macro season: -1 bear, 0 neutral, 1 bull",
	},
)

// ============ Метрики алертов ============

// AlertsDispatched - отправленные алерты по severity
var AlertsDispatched = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "alerts",
		Name:      "dispatched_total",
		Help:      "Alerts dispatched to the webhook by severity",
	},
	[]string{"severity"},
)

// AlertsSuppressed - алерты, подавленные cooldown-окном
var AlertsSuppressed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "alerts",
		Name:      "suppressed_total",
		Help:      "Alerts suppressed by the per-type cooldown",
	},
	[]string{"type"},
)
