package models

import "time"

// Signal представляет торговый сигнал в пуле ожидания подтверждения
type Signal struct {
	ID        int       `json:"id" db:"id"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Side      string    `json:"side" db:"side"` // buy, sell
	Strategy  string    `json:"strategy" db:"strategy"`
	Price     float64   `json:"price" db:"price"` // цена на момент поступления
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// Статусы сигнала
const (
	SignalStatusPending   = "PENDING"   // ожидает подтверждения
	SignalStatusConfirmed = "CONFIRMED" // подтверждён, готов к исполнению
	SignalStatusExecuted  = "EXECUTED"  // исполнен
	SignalStatusExpired   = "EXPIRED"   // истёк по TTL
)

// Key возвращает ключ дедупликации: один PENDING сигнал на symbol+strategy
func (s *Signal) Key() string {
	return s.Symbol + ":" + s.Strategy
}

// Expired возвращает true если сигнал истёк к моменту now
func (s *Signal) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
