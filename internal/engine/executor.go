package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sentinel/internal/exchange"
	"sentinel/internal/models"
	"sentinel/internal/scoring"
)

// SignalScorer - источник уверенности в сигнале [0, 1]
type SignalScorer interface {
	Score(ctx context.Context, summary scoring.Summary) float64
}

// SeasonSource - источник подтвержденного макро-сезона
type SeasonSource interface {
	Confirmed() string
}

// Executor превращает ожидающие сигналы в ордера.
//
// Конвейер исполнения одного сигнала: проверка состояния системы →
// оценка уверенности → расчёт целевого размера по сезону, резонансу
// и просадке → извлечение сигнала из пула → подача ордера. Нулевой
// целевой размер - вето: сигнал остаётся в пуле и ждёт смены условий
// либо истекает по TTL.
type Executor struct {
	pool   *ResonancePool
	eng    *Engine
	scorer SignalScorer
	season SeasonSource
	logger *zap.Logger
}

// NewExecutor создает исполнителя сигналов
func NewExecutor(pool *ResonancePool, eng *Engine, scorer SignalScorer, season SeasonSource, logger *zap.Logger) *Executor {
	return &Executor{
		pool:   pool,
		eng:    eng,
		scorer: scorer,
		season: season,
		logger: logger,
	}
}

// ExecuteSignal проводит сигнал через конвейер исполнения.
//
// Возвращает поданный ордер либо ошибку: ErrSignalNotFound если
// сигнала нет в пуле, ErrTradingHalted если система не принимает
// ордера, ErrSignalVetoed если размер позиции получился нулевым.
func (x *Executor) ExecuteSignal(ctx context.Context, symbol, strategy string) (*models.Order, error) {
	if !x.eng.state.IsTradingAllowed() {
		return nil, fmt.Errorf("%w: system state is %s", ErrTradingHalted, x.eng.state.Current())
	}

	sig, ok := x.pool.Peek(symbol, strategy)
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", ErrSignalNotFound, symbol, strategy)
	}

	season := x.season.Confirmed()
	resonance := x.pool.Resonance(symbol)
	confidence := x.scorer.Score(ctx, scoring.Summary{
		Symbol:    sig.Symbol,
		Side:      sig.Side,
		Strategy:  sig.Strategy,
		Price:     sig.Price,
		Season:    season,
		Resonance: resonance,
	})

	equity, err := x.eng.exchange.FetchBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}

	target := TargetValue(SizingInput{
		Equity:     equity,
		Symbol:     symbol,
		Season:     season,
		Confidence: confidence,
		Drawdown:   x.dailyDrawdown(ctx, equity),
		Resonance:  resonance,
	})
	if target <= 0 {
		return nil, fmt.Errorf("%w: season %s, confidence %.2f", ErrSignalVetoed, season, confidence)
	}
	// Спот: плечо ограничено свободным балансом
	if target > equity {
		target = equity
	}

	ticker, err := x.eng.exchange.FetchTicker(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticker for %s: %w", symbol, err)
	}
	if ticker.LastPrice <= 0 {
		return nil, fmt.Errorf("%w: no price for %s", ErrInvalidOrder, symbol)
	}
	quantity := target / ticker.LastPrice

	// Сигнал извлекается только после прохождения всех ворот
	taken, ok := x.pool.Take(ctx, symbol, strategy)
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", ErrSignalNotFound, symbol, strategy)
	}

	x.logger.Info("executing signal",
		zap.Int("signal_id", taken.ID),
		zap.String("symbol", symbol),
		zap.String("side", taken.Side),
		zap.String("season", season),
		zap.Float64("confidence", confidence),
		zap.Int("resonance", resonance),
		zap.Float64("target_value", target))

	order, err := x.eng.Submit(ctx, exchange.OrderParams{
		Symbol:   symbol,
		Side:     taken.Side,
		Kind:     models.OrderKindMarket,
		Quantity: quantity,
	}, strategy)
	if err != nil {
		return nil, fmt.Errorf("signal %d execution failed: %w", taken.ID, err)
	}
	return order, nil
}

// Run периодически проходит по пулу и исполняет готовые сигналы.
// Вето и остановка торговли не ошибки: сигнал остаётся в пуле.
func (x *Executor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			x.sweep(ctx)
		}
	}
}

func (x *Executor) sweep(ctx context.Context) {
	for _, s := range x.pool.Pending() {
		_, err := x.ExecuteSignal(ctx, s.Symbol, s.Strategy)
		switch {
		case err == nil:
		case errors.Is(err, ErrSignalVetoed),
			errors.Is(err, ErrTradingHalted),
			errors.Is(err, ErrSignalNotFound):
			continue
		default:
			x.logger.Warn("signal execution failed",
				zap.String("symbol", s.Symbol),
				zap.String("strategy", s.Strategy),
				zap.Error(err))
		}
	}
}

// dailyDrawdown оценивает текущую просадку по дневному PnL
func (x *Executor) dailyDrawdown(ctx context.Context, equity float64) float64 {
	if equity <= 0 {
		return 0
	}
	pnl, err := x.eng.trades.DailyPnl(ctx, time.Now())
	if err != nil {
		x.logger.Warn("daily pnl lookup failed, assuming no drawdown", zap.Error(err))
		return 0
	}
	if pnl >= 0 {
		return 0
	}
	return -pnl / equity
}
