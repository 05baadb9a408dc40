package api

import (
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sentinel/internal/api/handlers"
	"sentinel/internal/api/middleware"
	"sentinel/internal/telemetry"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Mode     string
	Engine   handlers.OrderEngine
	State    handlers.SystemState
	Pool     handlers.SignalPool
	Executor handlers.SignalExecutor
	PoolSize handlers.PoolGauge
	Breaker  handlers.BreakerControl
	Macro    handlers.MacroStatus
	Alerts   handlers.AlertLog
	Book     handlers.PositionReader
	Scoring  handlers.ScoringHealth
	Settings handlers.SettingsStore
	Hub      *telemetry.Hub

	// bcrypt-хеш shared-secret токена webhook'ов, пустой = без проверки
	WebhookTokenHash string

	Logger *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /webhook/ (shared-secret токен)
//
//	├── POST /signal - входящий торговый сигнал
//	└── POST /headline - входящий новостной заголовок
//
// /api/v1/
//
//	├── GET /status - сводка состояния системы
//	├── GET /positions - открытые позиции
//	├── POST /system/pause - приостановить торговлю
//	├── POST /system/resume - возобновить торговлю
//	├── /orders
//	│   ├── POST / - подать рыночный ордер
//	│   ├── GET / - активные ордера
//	│   ├── GET /{id} - состояние ордера
//	│   └── DELETE /{id} - отменить ордер
//	├── GET /signals - снимок пула сигналов
//	├── POST /signals/{symbol}/{strategy}/execute - исполнить сигнал
//	├── DELETE /signals/{symbol}/{strategy} - удалить сигнал
//	├── /breaker
//	│   ├── GET / - состояние предохранителя
//	│   └── POST /reset - ручной сброс
//	├── /alerts
//	│   ├── GET / - история оповещений
//	│   ├── GET /status - сводка по неразрешённым
//	│   ├── POST /{type}/resolve - пометить тип разрешённым
//	│   └── DELETE /resolved - убрать разрешённые
//	└── /settings
//	    ├── GET /{key} - значение настройки
//	    └── PUT /{key} - установка значения
//
// /ws/stream - WebSocket телеметрия
// /metrics  - Prometheus
// /health   - liveness probe
// /debug/pprof/* - профилировщик (Basic Auth)
//
// Middleware: Recovery -> Logging -> CORS глобально,
// WebhookAuth только на /webhook/*.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logging(deps.Logger))
	router.Use(middleware.CORS)

	// Webhook intake (защищён shared-secret токеном)
	webhook := router.PathPrefix("/webhook").Subrouter()
	webhook.Use(middleware.WebhookAuth(deps.WebhookTokenHash))

	api := router.PathPrefix("/api/v1").Subrouter()

	// Signal routes
	if deps.Pool != nil {
		signalHandler := handlers.NewSignalHandler(deps.Pool, deps.Executor)
		webhook.HandleFunc("/signal", signalHandler.IntakeSignal).Methods("POST")
		api.HandleFunc("/signals", signalHandler.GetSignals).Methods("GET")
		// Шаблон {symbol:.+} пропускает слэш в тикерах вида BTC/USDT
		if deps.Executor != nil {
			api.HandleFunc("/signals/{symbol:.+}/{strategy}/execute", signalHandler.ExecuteSignal).Methods("POST")
		}
		api.HandleFunc("/signals/{symbol:.+}/{strategy}", signalHandler.RemoveSignal).Methods("DELETE")
	}

	// Order routes
	if deps.Engine != nil {
		orderHandler := handlers.NewOrderHandler(deps.Engine)
		api.HandleFunc("/orders", orderHandler.CreateOrder).Methods("POST")
		api.HandleFunc("/orders", orderHandler.GetOrders).Methods("GET")
		api.HandleFunc("/orders/{id}", orderHandler.GetOrder).Methods("GET")
		api.HandleFunc("/orders/{id}", orderHandler.CancelOrder).Methods("DELETE")
	}

	// Status routes
	if deps.State != nil {
		statusHandler := handlers.NewStatusHandler(
			deps.Mode, deps.State, deps.Breaker, deps.Macro,
			deps.Alerts, deps.Book, deps.PoolSize, deps.Scoring,
		)
		api.HandleFunc("/status", statusHandler.GetStatus).Methods("GET")
		api.HandleFunc("/positions", statusHandler.GetPositions).Methods("GET")
		api.HandleFunc("/system/pause", statusHandler.PauseTrading).Methods("POST")
		api.HandleFunc("/system/resume", statusHandler.ResumeTrading).Methods("POST")
	}

	// Breaker routes
	if deps.Breaker != nil {
		breakerHandler := handlers.NewBreakerHandler(deps.Breaker)
		api.HandleFunc("/breaker", breakerHandler.GetBreaker).Methods("GET")
		api.HandleFunc("/breaker/reset", breakerHandler.ResetBreaker).Methods("POST")
		webhook.HandleFunc("/headline", breakerHandler.IntakeHeadline).Methods("POST")
	}

	// Alert routes
	if deps.Alerts != nil {
		alertHandler := handlers.NewAlertHandler(deps.Alerts)
		api.HandleFunc("/alerts", alertHandler.GetAlerts).Methods("GET")
		api.HandleFunc("/alerts/status", alertHandler.GetAlertStatus).Methods("GET")
		api.HandleFunc("/alerts/{type}/resolve", alertHandler.ResolveAlerts).Methods("POST")
		api.HandleFunc("/alerts/resolved", alertHandler.PurgeResolved).Methods("DELETE")
	}

	// Settings routes
	if deps.Settings != nil {
		settingsHandler := handlers.NewSettingsHandler(deps.Settings)
		api.HandleFunc("/settings/{key}", settingsHandler.GetSetting).Methods("GET")
		api.HandleFunc("/settings/{key}", settingsHandler.UpdateSetting).Methods("PUT")
	}

	// WebSocket телеметрия
	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			telemetry.ServeWS(deps.Hub, w, r)
		})
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// pprof за Basic Auth
	debug := router.PathPrefix("/debug/pprof").Subrouter()
	debug.Use(middleware.DebugAuth)
	debug.HandleFunc("/", pprof.Index)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.PathPrefix("/").Handler(http.HandlerFunc(pprof.Index))

	return router
}
