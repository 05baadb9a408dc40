package models

import "time"

// Position представляет чистую позицию по символу.
//
// Amount знаковый: положительный - long, отрицательный - short.
// EntryPrice - средневзвешенная цена входа по объёму.
type Position struct {
	Symbol     string    `json:"symbol" db:"symbol"`
	Amount     float64   `json:"amount" db:"amount"`
	EntryPrice float64   `json:"entry_price" db:"entry_price"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// IsFlat возвращает true если позиции нет
func (p Position) IsFlat() bool {
	return p.Amount == 0
}

// IsLong возвращает true для длинной позиции
func (p Position) IsLong() bool {
	return p.Amount > 0
}

// IsShort возвращает true для короткой позиции
func (p Position) IsShort() bool {
	return p.Amount < 0
}

// Side возвращает направление позиции ("long", "short" или "flat")
func (p Position) Side() string {
	switch {
	case p.Amount > 0:
		return "long"
	case p.Amount < 0:
		return "short"
	default:
		return "flat"
	}
}
