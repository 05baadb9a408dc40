package models

import "time"

// Alert представляет событие, отправляемое в канал оповещений
type Alert struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message"`
	Resolved  bool                   `json:"resolved"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// Типы оповещений
const (
	AlertTypeOrderFailed       = "ORDER_FAILED"       // исчерпаны попытки подачи ордера
	AlertTypeOrderTimeout      = "ORDER_TIMEOUT"      // ордер не исполнен за отведённое время
	AlertTypePartialFill       = "PARTIAL_FILL"       // частичное исполнение выше порога
	AlertTypeInsufficientFunds = "INSUFFICIENT_FUNDS" // недостаточно средств до обращения к бирже
	AlertTypeHighSlippage      = "HIGH_SLIPPAGE"      // отклонение цены исполнения выше порога
	AlertTypeExchangeError     = "EXCHANGE_ERROR"     // биржа недоступна или вернула ошибку
	AlertTypeStrategyError     = "STRATEGY_ERROR"     // внутренняя ошибка стратегии
	AlertTypeLiquidation       = "LIQUIDATION"        // директива ликвидации при смене сезона
	AlertTypeDailyLossLimit    = "DAILY_LOSS_LIMIT"   // достигнут дневной лимит убытка
	AlertTypeCircuitBreaker    = "CIRCUIT_BREAKER"    // сработал предохранитель
	AlertTypeScoringDegraded   = "SCORING_DEGRADED"   // сервис оценки недоступен, уверенность 0.5
)

// Уровни важности оповещений
const (
	SeverityEmergency = "EMERGENCY"
	SeverityWarning   = "WARNING"
	SeverityInfo      = "INFO"
)
