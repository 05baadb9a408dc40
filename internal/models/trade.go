package models

import "time"

// Trade представляет запись в журнале сделок (append-only)
type Trade struct {
	ID         int        `json:"id" db:"id"`
	Symbol     string     `json:"symbol" db:"symbol"`
	Side       string     `json:"side" db:"side"` // long, short
	Strategy   string     `json:"strategy,omitempty" db:"strategy"`
	Quantity   float64    `json:"quantity" db:"quantity"`
	EntryPrice float64    `json:"entry_price" db:"entry_price"`
	ExitPrice  *float64   `json:"exit_price,omitempty" db:"exit_price"`
	Pnl        *float64   `json:"pnl,omitempty" db:"pnl"`
	Status     string     `json:"status" db:"status"` // OPEN, CLOSED
	OpenedAt   time.Time  `json:"opened_at" db:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty" db:"closed_at"`
}

// Статусы сделки
const (
	TradeStatusOpen   = "OPEN"
	TradeStatusClosed = "CLOSED"
)
