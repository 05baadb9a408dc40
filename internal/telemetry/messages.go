package telemetry

import (
	"time"

	"sentinel/internal/models"
)

// MessageType определяет тип телеметрического сообщения
type MessageType string

// Типы телеметрических сообщений
const (
	// MessageTypeAlert - новое оповещение от диспетчера
	// Отправляется при срабатывании любого риск-события
	MessageTypeAlert MessageType = "alert"

	// MessageTypeOrderUpdate - изменение состояния ордера
	// Отправляется при подаче, частичном исполнении и финализации
	MessageTypeOrderUpdate MessageType = "orderUpdate"

	// MessageTypeStateChange - переход системы между состояниями
	// Отправляется при каждом переходе конечного автомата
	MessageTypeStateChange MessageType = "stateChange"

	// MessageTypeBreakerUpdate - изменение состояния предохранителя
	MessageTypeBreakerUpdate MessageType = "breakerUpdate"

	// MessageTypeMacroUpdate - смена подтверждённого рыночного сезона
	MessageTypeMacroUpdate MessageType = "macroUpdate"
)

// BaseMessage - базовая структура для всех телеметрических сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// AlertMessage - сообщение о новом оповещении
//
// Содержит данные события риск-контроля:
// - Тип события (ORDER_TIMEOUT, HIGH_SLIPPAGE, CIRCUIT_BREAKER и т.д.)
// - Уровень важности (EMERGENCY, WARNING, INFO)
// - Текст и метаданные
type AlertMessage struct {
	BaseMessage
	Data *AlertData `json:"data"`
}

// AlertData - данные оповещения
type AlertData struct {
	// Идентификатор оповещения
	ID string `json:"id"`

	// Тип оповещения
	Type string `json:"type"`

	// Уровень важности (EMERGENCY, WARNING, INFO)
	Severity string `json:"severity"`

	// Текст сообщения
	Message string `json:"message"`

	// Дополнительные метаданные (символ, цены, проценты)
	Meta map[string]interface{} `json:"meta,omitempty"`

	// Время возникновения события
	Timestamp time.Time `json:"timestamp"`
}

// OrderUpdateMessage - сообщение об изменении ордера
//
// Отправляется супервизором жизненного цикла при каждом
// значимом переходе: подача, частичное исполнение, финализация.
type OrderUpdateMessage struct {
	BaseMessage
	Data *OrderUpdateData `json:"data"`
}

// OrderUpdateData - данные обновления ордера
type OrderUpdateData struct {
	// Внутренний идентификатор ордера
	ID string `json:"id"`

	// Идентификатор на бирже
	ExchangeID string `json:"exchange_id,omitempty"`

	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Strategy string `json:"strategy,omitempty"`

	// Статус (pending, open, partial, filled, cancelled, expired, rejected)
	Status string `json:"status"`

	Quantity     float64 `json:"quantity"`
	FilledQty    float64 `json:"filled_qty"`
	AvgFillPrice float64 `json:"avg_fill_price"`

	// Причина отказа (для rejected)
	ErrorMessage string `json:"error_message,omitempty"`
}

// StateChangeMessage - сообщение о переходе системы
type StateChangeMessage struct {
	BaseMessage
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// BreakerUpdateMessage - сообщение о состоянии предохранителя
type BreakerUpdateMessage struct {
	BaseMessage
	Tripped bool   `json:"tripped"`
	Cause   string `json:"cause,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// MacroUpdateMessage - сообщение о смене подтверждённого сезона
type MacroUpdateMessage struct {
	BaseMessage
	From      string `json:"from"`
	To        string `json:"to"`
	Directive string `json:"directive,omitempty"`
}

// ============ Фабричные функции для создания сообщений ============

// NewAlertMessage создает сообщение оповещения
func NewAlertMessage(a *models.Alert) *AlertMessage {
	return &AlertMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeAlert,
			Timestamp: time.Now(),
		},
		Data: &AlertData{
			ID:        a.ID,
			Type:      a.Type,
			Severity:  a.Severity,
			Message:   a.Message,
			Meta:      a.Meta,
			Timestamp: a.Timestamp,
		},
	}
}

// NewOrderUpdateMessage создает сообщение обновления ордера
func NewOrderUpdateMessage(o *models.Order) *OrderUpdateMessage {
	return &OrderUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeOrderUpdate,
			Timestamp: time.Now(),
		},
		Data: &OrderUpdateData{
			ID:           o.ID,
			ExchangeID:   o.ExchangeID,
			Symbol:       o.Symbol,
			Side:         o.Side,
			Strategy:     o.Strategy,
			Status:       o.Status,
			Quantity:     o.Quantity,
			FilledQty:    o.FilledQty,
			AvgFillPrice: o.AvgFillPrice,
			ErrorMessage: o.ErrorMessage,
		},
	}
}

// NewStateChangeMessage создает сообщение перехода системы
func NewStateChangeMessage(from, to, reason string) *StateChangeMessage {
	return &StateChangeMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeStateChange,
			Timestamp: time.Now(),
		},
		From:   from,
		To:     to,
		Reason: reason,
	}
}

// NewBreakerUpdateMessage создает сообщение о состоянии предохранителя
func NewBreakerUpdateMessage(tripped bool, cause, reason string) *BreakerUpdateMessage {
	return &BreakerUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeBreakerUpdate,
			Timestamp: time.Now(),
		},
		Tripped: tripped,
		Cause:   cause,
		Reason:  reason,
	}
}

// NewMacroUpdateMessage создает сообщение о смене сезона
func NewMacroUpdateMessage(from, to, directive string) *MacroUpdateMessage {
	return &MacroUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeMacroUpdate,
			Timestamp: time.Now(),
		},
		From:      from,
		To:        to,
		Directive: directive,
	}
}
