package models

import "time"

// Order представляет ордер в течение его жизненного цикла
type Order struct {
	ID             string     `json:"id" db:"id"`                   // внутренний идентификатор (uuid)
	ExchangeID     string     `json:"exchange_id" db:"exchange_id"` // идентификатор на бирже
	Symbol         string     `json:"symbol" db:"symbol"`
	Side           string     `json:"side" db:"side"` // buy, sell
	Type           string     `json:"type" db:"type"` // market, limit
	Strategy       string     `json:"strategy,omitempty" db:"strategy"`
	Quantity       float64    `json:"quantity" db:"quantity"`
	FilledQty      float64    `json:"filled_qty" db:"filled_qty"`
	RequestedPrice float64    `json:"requested_price" db:"requested_price"` // цена на момент подачи
	AvgFillPrice   float64    `json:"avg_fill_price" db:"avg_fill_price"`   // средняя цена исполнения
	Status         string     `json:"status" db:"status"`
	ErrorMessage   string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	FilledAt       *time.Time `json:"filled_at,omitempty" db:"filled_at"`
}

// Статусы ордера
const (
	OrderStatusPending   = "pending"   // подан, исполнение не подтверждено
	OrderStatusOpen      = "open"      // принят биржей, ожидает исполнения
	OrderStatusPartial   = "partial"   // частично исполнен
	OrderStatusFilled    = "filled"    // полностью исполнен
	OrderStatusCancelled = "cancelled" // отменён (вручную или по таймауту)
	OrderStatusExpired   = "expired"   // истёк на стороне биржи
	OrderStatusRejected  = "rejected"  // отклонён биржей
)

// Направления ордера
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Типы ордера
const (
	OrderKindMarket = "market"
	OrderKindLimit  = "limit"
)

// IsTerminal возвращает true если ордер больше не изменится
func IsTerminal(status string) bool {
	switch status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired, OrderStatusRejected:
		return true
	}
	return false
}

// FillFraction возвращает долю исполненного объёма [0, 1]
func (o *Order) FillFraction() float64 {
	if o.Quantity <= 0 {
		return 0
	}
	return o.FilledQty / o.Quantity
}
