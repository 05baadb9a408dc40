package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FillMode - поведение симулятора при размещении ордера
type FillMode int

const (
	// FillInstant - ордер исполняется полностью сразу (режим по умолчанию)
	FillInstant FillMode = iota

	// FillPartial - исполняется доля PartialFraction, остаток висит открытым
	FillPartial

	// FillNever - ордер остаётся открытым до ручного Fill или отмены
	FillNever
)

// SimulatorConfig - настройки симулятора
type SimulatorConfig struct {
	Balance  float64
	Slippage float64 // доля отклонения цены исполнения (0.001 = 0.1%)

	Mode            FillMode
	PartialFraction float64 // доля исполнения для FillPartial
}

// Simulator - биржа в памяти для режима simulate и тестов.
//
// Исполняет рыночные ордера мгновенно по последней известной цене
// с настраиваемым проскальзыванием. Лимитные ордера исполняются
// сразу, если цена их пересекает, иначе висят в стакане и сводятся
// при движении цены через SetPrice/SetTicker. Поведение исполнения
// можно переключать для проверки надзора за ордерами.
type Simulator struct {
	mu sync.Mutex

	balance  float64
	tickers  map[string]*Ticker
	orders   map[string]*Order
	cfg      SimulatorConfig
	down     bool // Ping/запросы возвращают ошибку
	failNext int  // сколько ближайших CreateOrder вернут временную ошибку
}

// NewSimulator создаёт симулятор
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Mode == FillPartial && cfg.PartialFraction <= 0 {
		cfg.PartialFraction = 0.5
	}
	return &Simulator{
		balance: cfg.Balance,
		tickers: make(map[string]*Ticker),
		orders:  make(map[string]*Order),
		cfg:     cfg,
	}
}

// Name возвращает имя площадки
func (s *Simulator) Name() string { return "simulator" }

// SetTicker задаёт рыночные данные символа
func (s *Simulator) SetTicker(symbol string, t Ticker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Symbol = symbol
	t.Timestamp = time.Now()
	s.tickers[symbol] = &t
	s.matchRestingOrders(symbol, t.LastPrice)
}

// SetPrice задаёт только последнюю цену символа
func (s *Simulator) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickers[symbol]
	if !ok {
		t = &Ticker{Symbol: symbol}
		s.tickers[symbol] = t
	}
	t.LastPrice = price
	t.BidPrice = price
	t.AskPrice = price
	t.Timestamp = time.Now()
	s.matchRestingOrders(symbol, price)
}

// matchRestingOrders исполняет лимитные ордера, пересечённые новой ценой.
// Вызывается под mu. Исполнение по заявленной лимитной цене.
func (s *Simulator) matchRestingOrders(symbol string, last float64) {
	now := time.Now()
	for _, o := range s.orders {
		if o.Symbol != symbol || o.Kind != KindLimit || o.Status != OrderStatusOpen {
			continue
		}
		if (o.Side == SideBuy && last <= o.Price) || (o.Side == SideSell && last >= o.Price) {
			o.FilledQty = o.Quantity
			o.AvgFillPrice = o.Price
			o.Status = OrderStatusFilled
			o.UpdatedAt = now
		}
	}
}

// SetBalance задаёт доступный баланс
func (s *Simulator) SetBalance(balance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = balance
}

// SetDown переводит симулятор в недоступное состояние
func (s *Simulator) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// FailNextSubmits заставляет следующие n CreateOrder вернуть временную ошибку
func (s *Simulator) FailNextSubmits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// SetFillMode переключает поведение исполнения
func (s *Simulator) SetFillMode(mode FillMode, partialFraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Mode = mode
	if partialFraction > 0 {
		s.cfg.PartialFraction = partialFraction
	}
}

// Fill вручную доисполняет открытый ордер (для тестов надзора)
func (s *Simulator) Fill(orderID string, qty, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return &Error{Venue: s.Name(), Code: "ORDER_NOT_FOUND", Message: "unknown order " + orderID}
	}

	total := o.FilledQty + qty
	if total > o.Quantity {
		total = o.Quantity
	}
	// Средневзвешенная цена исполнения
	if total > 0 {
		o.AvgFillPrice = (o.AvgFillPrice*o.FilledQty + price*qty) / total
	}
	o.FilledQty = total
	if o.FilledQty >= o.Quantity {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartial
	}
	o.UpdatedAt = time.Now()
	return nil
}

// ============================================================
// Реализация Client
// ============================================================

// FetchTicker возвращает рыночные данные символа
func (s *Simulator) FetchTicker(ctx context.Context, symbol string) (*Ticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.down {
		return nil, s.unavailable()
	}

	t, ok := s.tickers[symbol]
	if !ok {
		return nil, &Error{Venue: s.Name(), Code: "UNKNOWN_SYMBOL", Message: "no market data for " + symbol}
	}
	copied := *t
	return &copied, nil
}

// FetchBalance возвращает доступный баланс
func (s *Simulator) FetchBalance(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.down {
		return 0, s.unavailable()
	}
	return s.balance, nil
}

// CreateOrder размещает рыночный или лимитный ордер
func (s *Simulator) CreateOrder(ctx context.Context, params OrderParams) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.down {
		return nil, s.unavailable()
	}

	if s.failNext > 0 {
		s.failNext--
		return nil, &Error{Venue: s.Name(), Code: "SIM_INJECTED", Message: "injected submit failure", Transient: true}
	}

	if params.Quantity <= 0 {
		return nil, &Error{Venue: s.Name(), Code: "INVALID_QTY", Message: "quantity must be positive"}
	}
	kind := params.Kind
	if kind == "" {
		kind = KindMarket
	}
	if kind != KindMarket && kind != KindLimit {
		return nil, &Error{Venue: s.Name(), Code: "INVALID_KIND", Message: "unknown order kind " + kind}
	}
	if kind == KindLimit && params.Price <= 0 {
		return nil, &Error{Venue: s.Name(), Code: "INVALID_PRICE", Message: "limit order requires a positive price"}
	}

	t, ok := s.tickers[params.Symbol]
	if !ok {
		return nil, &Error{Venue: s.Name(), Code: "UNKNOWN_SYMBOL", Message: "no market data for " + params.Symbol}
	}

	now := time.Now()
	order := &Order{
		ID:        uuid.NewString(),
		Symbol:    params.Symbol,
		Side:      params.Side,
		Kind:      kind,
		Price:     params.Price,
		Quantity:  params.Quantity,
		Status:    OrderStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}

	fillPrice := s.executionPrice(t.LastPrice, params.Side)

	if kind == KindLimit {
		// Немаркетабельный лимит остаётся в стакане до движения цены
		if (params.Side == SideBuy && t.LastPrice > params.Price) ||
			(params.Side == SideSell && t.LastPrice < params.Price) {
			s.orders[order.ID] = order
			copied := *order
			return &copied, nil
		}
		// Маркетабельный лимит исполняется не хуже заявленной цены
		if params.Side == SideBuy && fillPrice > params.Price {
			fillPrice = params.Price
		}
		if params.Side == SideSell && fillPrice < params.Price {
			fillPrice = params.Price
		}
	}

	switch s.cfg.Mode {
	case FillInstant:
		order.FilledQty = params.Quantity
		order.AvgFillPrice = fillPrice
		order.Status = OrderStatusFilled
	case FillPartial:
		order.FilledQty = params.Quantity * s.cfg.PartialFraction
		order.AvgFillPrice = fillPrice
		order.Status = OrderStatusPartial
	case FillNever:
		// остаётся open
	}

	s.orders[order.ID] = order
	copied := *order
	return &copied, nil
}

// FetchOrder возвращает актуальный статус ордера
func (s *Simulator) FetchOrder(ctx context.Context, symbol, orderID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.down {
		return nil, s.unavailable()
	}

	o, ok := s.orders[orderID]
	if !ok {
		return nil, &Error{Venue: s.Name(), Code: "ORDER_NOT_FOUND", Message: "unknown order " + orderID}
	}
	copied := *o
	return &copied, nil
}

// CancelOrder отменяет ордер. Уже исполненный ордер не ошибка.
func (s *Simulator) CancelOrder(ctx context.Context, symbol, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.down {
		return s.unavailable()
	}

	o, ok := s.orders[orderID]
	if !ok {
		return &Error{Venue: s.Name(), Code: "ORDER_NOT_FOUND", Message: "unknown order " + orderID}
	}

	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired, OrderStatusRejected:
		return nil
	}
	o.Status = OrderStatusCancelled
	o.UpdatedAt = time.Now()
	return nil
}

// Ping проверяет доступность
func (s *Simulator) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return s.unavailable()
	}
	return nil
}

// Close ничего не освобождает в симуляторе
func (s *Simulator) Close() error { return nil }

// executionPrice применяет проскальзывание против нас:
// покупка дороже, продажа дешевле
func (s *Simulator) executionPrice(last float64, side string) float64 {
	if side == SideBuy {
		return last * (1 + s.cfg.Slippage)
	}
	return last * (1 - s.cfg.Slippage)
}

func (s *Simulator) unavailable() error {
	return &Error{
		Venue:     s.Name(),
		Code:      "UNAVAILABLE",
		Message:   fmt.Sprintf("%s is down", s.Name()),
		Transient: true,
	}
}
