package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Client определяет унифицированный интерфейс для работы с биржей.
//
// Live и simulate реализации выбираются один раз при старте процесса,
// весь остальной код работает только через этот интерфейс.
type Client interface {
	// Name возвращает имя площадки
	Name() string

	// FetchTicker получает текущую цену актива
	FetchTicker(ctx context.Context, symbol string) (*Ticker, error)

	// FetchBalance получает свободный баланс в котируемой валюте (USDT)
	FetchBalance(ctx context.Context) (float64, error)

	// CreateOrder размещает ордер (рыночный или лимитный)
	CreateOrder(ctx context.Context, params OrderParams) (*Order, error)

	// FetchOrder получает актуальный статус ордера
	FetchOrder(ctx context.Context, symbol, orderID string) (*Order, error)

	// CancelOrder отменяет ордер (best-effort: уже исполненный ордер не ошибка)
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// Ping проверяет доступность биржи
	Ping(ctx context.Context) error

	// Close закрывает соединения
	Close() error
}

// RunMode - режим исполнения, фиксируется при конструировании движка
type RunMode int

const (
	ModeSimulate RunMode = iota
	ModeLive
)

// String возвращает текстовое представление режима
func (m RunMode) String() string {
	if m == ModeLive {
		return "live"
	}
	return "simulate"
}

// ParseRunMode разбирает значение RUN_MODE из конфигурации
func ParseRunMode(s string) (RunMode, error) {
	switch strings.ToLower(s) {
	case "simulate":
		return ModeSimulate, nil
	case "live":
		return ModeLive, nil
	default:
		return ModeSimulate, fmt.Errorf("unknown run mode: %q", s)
	}
}

// OrderParams - параметры размещаемого ордера
type OrderParams struct {
	Symbol   string
	Side     string // "buy" или "sell"
	Kind     string // "market" или "limit"; пустое значение - market
	Quantity float64
	Price    float64 // лимитная цена, обязательна для limit
}

// Ticker содержит информацию о текущей цене
type Ticker struct {
	Symbol    string    `json:"symbol"`
	BidPrice  float64   `json:"bid_price"`
	AskPrice  float64   `json:"ask_price"`
	LastPrice float64   `json:"last_price"`
	Volume1h  float64   `json:"volume_1h"`
	Volume24h float64   `json:"volume_24h"`
	Change4h  float64   `json:"change_4h"` // относительное изменение за 4 часа
	Timestamp time.Time `json:"timestamp"`
}

// Order представляет ордер на стороне биржи
type Order struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`
	Kind         string    `json:"kind"`
	Price        float64   `json:"price,omitempty"` // лимитная цена
	Quantity     float64   `json:"quantity"`
	FilledQty    float64   `json:"filled_qty"`
	AvgFillPrice float64   `json:"avg_fill_price"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Side constants
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order kind constants
const (
	KindMarket = "market"
	KindLimit  = "limit"
)

// Order status constants
const (
	OrderStatusOpen      = "open"
	OrderStatusPartial   = "partial"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
	OrderStatusExpired   = "expired"
	OrderStatusRejected  = "rejected"
)

// Error представляет ошибку от биржи
type Error struct {
	Venue     string
	Code      string
	Message   string
	Transient bool // можно ли повторить запрос
	Original  error
}

func (e *Error) Error() string {
	return e.Venue + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *Error) Unwrap() error {
	return e.Original
}

// Retryable сообщает retry-логике, временная ли это ошибка
func (e *Error) Retryable() bool {
	return e.Transient
}
