package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"sentinel/internal/models"
	"sentinel/pkg/utils"
)

// TradeLog - журнал сделок. Реализуется репозиторием поверх PostgreSQL.
type TradeLog interface {
	LogTrade(ctx context.Context, trade *models.Trade) (int, error)
	CloseTrade(ctx context.Context, id int, exitPrice, pnl float64) error
	ReduceTrade(ctx context.Context, id int, qty, exitPrice, pnl float64) error
	OpenTrades(ctx context.Context) ([]*models.Trade, error)
	DailyPnl(ctx context.Context, day time.Time) (float64, error)
}

// PositionBook - реестр открытых позиций по символам.
//
// Правило разворота: ордер против текущей позиции сначала закрывает её
// (с фиксацией PnL в журнале сделок), и только остаток открывает позицию
// в противоположную сторону. Усреднение входа при доборе - по объёму.
type PositionBook struct {
	mu        sync.Mutex
	positions map[string]*models.Position
	openIDs   map[string]int // symbol → id открытой записи в журнале
	trades    TradeLog
	logger    *zap.Logger
}

// NewPositionBook создает пустой реестр позиций
func NewPositionBook(trades TradeLog, logger *zap.Logger) *PositionBook {
	return &PositionBook{
		positions: make(map[string]*models.Position),
		openIDs:   make(map[string]int),
		trades:    trades,
		logger:    logger,
	}
}

// Restore загружает открытые сделки из журнала после перезапуска
func (pb *PositionBook) Restore(ctx context.Context) error {
	open, err := pb.trades.OpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore positions: %w", err)
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()
	for _, tr := range open {
		amount := tr.Quantity
		if tr.Side == models.SideSell {
			amount = -amount
		}
		pb.positions[tr.Symbol] = &models.Position{
			Symbol:     tr.Symbol,
			Amount:     amount,
			EntryPrice: tr.EntryPrice,
			UpdatedAt:  tr.OpenedAt,
		}
		pb.openIDs[tr.Symbol] = tr.ID
	}
	pb.logger.Info("positions restored", zap.Int("count", len(open)))
	return nil
}

// Get возвращает копию позиции по символу (flat если позиции нет)
func (pb *PositionBook) Get(symbol string) models.Position {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if p, ok := pb.positions[symbol]; ok {
		return *p
	}
	return models.Position{Symbol: symbol}
}

// All возвращает копии всех открытых позиций
func (pb *PositionBook) All() []models.Position {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	out := make([]models.Position, 0, len(pb.positions))
	for _, p := range pb.positions {
		if !p.IsFlat() {
			out = append(out, *p)
		}
	}
	return out
}

// Apply применяет исполненный объём к позиции и возвращает
// реализованный PnL (0 если позиция только открывалась или добиралась).
func (pb *PositionBook) Apply(ctx context.Context, symbol, side, strategy string, qty, price float64) (float64, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}

	signed := qty
	if side == models.SideSell {
		signed = -qty
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()

	pos, ok := pb.positions[symbol]
	if !ok {
		pos = &models.Position{Symbol: symbol}
		pb.positions[symbol] = pos
	}

	switch {
	case pos.IsFlat():
		// Открытие новой позиции
		pos.Amount = signed
		pos.EntryPrice = price
		pos.UpdatedAt = time.Now()
		return 0, pb.openTradeLocked(ctx, symbol, side, strategy, qty, price)

	case sameDirection(pos.Amount, signed):
		// Добор: вход усредняется по объёму
		pos.EntryPrice = utils.WeightedAverage(pos.EntryPrice, math.Abs(pos.Amount), price, qty)
		pos.Amount += signed
		pos.UpdatedAt = time.Now()
		return 0, nil

	case math.Abs(signed) < math.Abs(pos.Amount):
		// Частичное сокращение: реализованная часть фиксируется в журнале,
		// объём открытой записи уменьшается
		realized := realizedPnl(pos.Amount, pos.EntryPrice, price, qty)
		pos.Amount += signed
		pos.UpdatedAt = time.Now()
		return realized, pb.reduceTradeLocked(ctx, symbol, qty, price, realized)

	default:
		// Полное закрытие, остаток (если есть) открывает разворот
		closedQty := math.Abs(pos.Amount)
		realized := realizedPnl(pos.Amount, pos.EntryPrice, price, closedQty)
		remainder := math.Abs(signed) - closedQty

		if err := pb.closeTradeLocked(ctx, symbol, price, realized); err != nil {
			return realized, err
		}

		if remainder > 0 {
			pos.Amount = math.Copysign(remainder, signed)
			pos.EntryPrice = price
			pos.UpdatedAt = time.Now()
			if err := pb.openTradeLocked(ctx, symbol, side, strategy, remainder, price); err != nil {
				return realized, err
			}
			pb.logger.Info("position flipped",
				zap.String("symbol", symbol),
				zap.String("side", side),
				zap.Float64("remainder", remainder))
		} else {
			pos.Amount = 0
			pos.EntryPrice = 0
			pos.UpdatedAt = time.Now()
		}
		return realized, nil
	}
}

// Matching возвращает открытые позиции, подходящие под фильтр.
// Используется макро-директивами LIQUIDATE_ALL_SHORTS / LIQUIDATE_ALL_LONGS.
func (pb *PositionBook) Matching(filter func(models.Position) bool) []models.Position {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	var out []models.Position
	for _, p := range pb.positions {
		if !p.IsFlat() && filter(*p) {
			out = append(out, *p)
		}
	}
	return out
}

func (pb *PositionBook) openTradeLocked(ctx context.Context, symbol, side, strategy string, qty, price float64) error {
	id, err := pb.trades.LogTrade(ctx, &models.Trade{
		Symbol:     symbol,
		Side:       side,
		Strategy:   strategy,
		Quantity:   qty,
		EntryPrice: price,
		Status:     models.TradeStatusOpen,
		OpenedAt:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to log trade: %w", err)
	}
	pb.openIDs[symbol] = id
	return nil
}

func (pb *PositionBook) reduceTradeLocked(ctx context.Context, symbol string, qty, exitPrice, pnl float64) error {
	id, ok := pb.openIDs[symbol]
	if !ok {
		return nil
	}
	if err := pb.trades.ReduceTrade(ctx, id, qty, exitPrice, pnl); err != nil {
		return fmt.Errorf("failed to reduce trade: %w", err)
	}
	return nil
}

func (pb *PositionBook) closeTradeLocked(ctx context.Context, symbol string, exitPrice, pnl float64) error {
	id, ok := pb.openIDs[symbol]
	if !ok {
		return nil
	}
	delete(pb.openIDs, symbol)
	if err := pb.trades.CloseTrade(ctx, id, exitPrice, pnl); err != nil {
		return fmt.Errorf("failed to close trade: %w", err)
	}
	return nil
}

func sameDirection(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// realizedPnl считает PnL закрываемого объёма qty позиции amount
func realizedPnl(amount, entry, exit, qty float64) float64 {
	if amount > 0 {
		return (exit - entry) * qty
	}
	return (entry - exit) * qty
}
