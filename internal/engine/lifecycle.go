package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sentinel/internal/exchange"
	"sentinel/internal/models"
	"sentinel/pkg/retry"
	"sentinel/pkg/utils"
)

// Notifier - канал доставки алертов. Реализуется диспетчером оповещений.
// Вызов никогда не блокирует и не возвращает ошибку: доставка асинхронная.
type Notifier interface {
	Trigger(alertType, severity, message string, meta map[string]interface{})
}

// Config - параметры жизненного цикла ордеров
type Config struct {
	// Количество попыток подачи ордера на биржу
	MaxRetries int

	// База линейного backoff между попытками (base, 2*base, 3*base...)
	RetryBase time.Duration

	// Таймаут ожидания исполнения, по истечении ордер отменяется
	OrderTimeout time.Duration

	// Интервал опроса статуса ордера супервизором
	PollInterval time.Duration

	// Порог алерта HIGH_SLIPPAGE, в процентах
	SlippageThreshold float64

	// Минимальная доля исполнения для учёта частичного филла
	MinPartialFill float64

	// Дневной лимит убытка в процентах от баланса
	MaxDailyLoss float64
}

// Engine - движок жизненного цикла ордеров.
//
// Конвейер Submit: проверка состояния системы → проверка баланса →
// подача с retry → супервизор исполнения → применение филла к позиции.
// Каждый принятый ордер получает собственную горутину-супервизора,
// которая опрашивает биржу с интервалом PollInterval и отменяет ордер
// по таймауту OrderTimeout.
type Engine struct {
	exchange exchange.Client
	mode     exchange.RunMode
	state    *StateMachine
	book     *PositionBook
	trades   TradeLog
	notifier Notifier
	cfg      Config
	logger   *zap.Logger

	// Реестр ордеров, ключ - внутренний ID
	ordersMu sync.RWMutex
	orders   map[string]*models.Order

	// Сериализует применение филлов и остановку торговли: halt не может
	// прервать мутацию позиции посередине
	execMu sync.Mutex

	// Супервизоры по внутреннему ID ордера, для ручной отмены
	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc

	// Наблюдатель изменений ордеров (телеметрия). Устанавливается до старта.
	onUpdate func(models.Order)

	wg sync.WaitGroup
}

// NewEngine создает движок. Режим исполнения фиксируется на всё время жизни.
func NewEngine(
	client exchange.Client,
	mode exchange.RunMode,
	state *StateMachine,
	book *PositionBook,
	trades TradeLog,
	notifier Notifier,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		exchange: client,
		mode:     mode,
		state:    state,
		book:     book,
		trades:   trades,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		orders:   make(map[string]*models.Order),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// OnOrderUpdate регистрирует наблюдателя изменений ордеров.
// Вызывается до запуска движка, наблюдатель не должен блокировать.
func (e *Engine) OnOrderUpdate(fn func(models.Order)) {
	e.onUpdate = fn
}

// Mode возвращает режим исполнения движка
func (e *Engine) Mode() exchange.RunMode { return e.mode }

// Book возвращает реестр позиций
func (e *Engine) Book() *PositionBook { return e.book }

// Submit проводит ордер через полный конвейер подачи.
//
// Возвращает принятый ордер со статусом open/partial/filled либо ошибку:
// ErrTradingHalted если система не принимает ордера, ErrInsufficientFunds
// если баланса не хватает, ErrInvalidOrder при некорректных параметрах.
// Исполнение после принятия отслеживается асинхронно.
func (e *Engine) Submit(ctx context.Context, params exchange.OrderParams, strategy string) (*models.Order, error) {
	if !e.state.IsTradingAllowed() {
		return nil, fmt.Errorf("%w: system state is %s", ErrTradingHalted, e.state.Current())
	}
	if params.Kind == "" {
		params.Kind = models.OrderKindMarket
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}

	ticker, err := e.exchange.FetchTicker(ctx, params.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticker for %s: %w", params.Symbol, err)
	}

	// Ориентир стоимости: для лимитного ордера заявленная цена,
	// для рыночного последняя цена
	refPrice := ticker.LastPrice
	if params.Kind == models.OrderKindLimit {
		refPrice = params.Price
	}

	// Проверка баланса до подачи: требуемый объём в котируемой валюте
	required := params.Quantity * refPrice
	balance, err := e.exchange.FetchBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}
	if required > balance {
		e.notifier.Trigger(models.AlertTypeInsufficientFunds, models.SeverityWarning,
			fmt.Sprintf("Недостаточно средств: требуется %.2f, доступно %.2f", required, balance),
			map[string]interface{}{"symbol": params.Symbol, "required": required, "available": balance})
		return nil, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientFunds, required, balance)
	}

	order := &models.Order{
		ID:             uuid.New().String(),
		Symbol:         params.Symbol,
		Side:           params.Side,
		Type:           params.Kind,
		Strategy:       strategy,
		Quantity:       params.Quantity,
		RequestedPrice: refPrice,
		Status:         models.OrderStatusPending,
		CreatedAt:      time.Now(),
	}
	e.register(order)

	exchOrder, err := e.submitWithRetry(ctx, params, order.ID)
	if err != nil {
		e.update(order.ID, func(o *models.Order) {
			o.Status = models.OrderStatusRejected
			o.ErrorMessage = err.Error()
		})
		OrdersCompleted.WithLabelValues(order.Symbol, models.OrderStatusRejected).Inc()
		e.notifier.Trigger(models.AlertTypeOrderFailed, models.SeverityEmergency,
			fmt.Sprintf("Ордер %s %s %s отклонён после %d попыток: %v",
				params.Side, params.Symbol, order.ID, e.cfg.MaxRetries, err),
			map[string]interface{}{"order_id": order.ID, "symbol": params.Symbol})
		return nil, fmt.Errorf("order submission failed: %w", err)
	}

	e.update(order.ID, func(o *models.Order) {
		o.ExchangeID = exchOrder.ID
		o.Status = exchOrder.Status
		o.FilledQty = exchOrder.FilledQty
		o.AvgFillPrice = exchOrder.AvgFillPrice
	})
	OrdersSubmitted.WithLabelValues(params.Symbol, params.Side).Inc()

	if models.IsTerminal(exchOrder.Status) {
		e.finalize(ctx, order.ID, exchOrder)
	} else {
		e.superviseAsync(order.ID)
	}
	return e.Get(order.ID)
}

// Cancel запрашивает отмену активного ордера
func (e *Engine) Cancel(ctx context.Context, orderID string) error {
	order, err := e.Get(orderID)
	if err != nil {
		return err
	}
	if models.IsTerminal(order.Status) {
		return nil
	}
	if err := e.exchange.CancelOrder(ctx, order.Symbol, order.ExchangeID); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	e.stopSupervisor(orderID)

	final, err := e.exchange.FetchOrder(ctx, order.Symbol, order.ExchangeID)
	if err != nil {
		e.update(orderID, func(o *models.Order) { o.Status = models.OrderStatusCancelled })
		return nil
	}
	e.finalize(ctx, orderID, final)
	return nil
}

// Get возвращает копию ордера из реестра
func (e *Engine) Get(orderID string) (*models.Order, error) {
	e.ordersMu.RLock()
	defer e.ordersMu.RUnlock()
	o, ok := e.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	cp := *o
	return &cp, nil
}

// Active возвращает ордера, ещё не достигшие финального статуса
func (e *Engine) Active() []*models.Order {
	e.ordersMu.RLock()
	defer e.ordersMu.RUnlock()
	var out []*models.Order
	for _, o := range e.orders {
		if !models.IsTerminal(o.Status) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out
}

// Halt останавливает торговлю. Захватывает execMu: остановка дожидается
// завершения текущей мутации позиции и блокирует следующие.
func (e *Engine) Halt(reason string) error {
	e.execMu.Lock()
	defer e.execMu.Unlock()
	return e.state.Transition(models.StateHalted, reason)
}

// Resume возвращает систему в активное состояние после ручного сброса
func (e *Engine) Resume(reason string) error {
	return e.state.Transition(models.StateActive, reason)
}

// Liquidate закрывает позиции, подходящие под фильтр, рыночными ордерами.
// Используется макро-директивами и аварийными сценариями. Ордера
// ликвидации обходят проверку IsTradingAllowed.
func (e *Engine) Liquidate(ctx context.Context, filter func(models.Position) bool, reason string) error {
	positions := e.book.Matching(filter)
	var firstErr error
	for _, pos := range positions {
		side := models.SideSell
		if pos.IsShort() {
			side = models.SideBuy
		}
		params := exchange.OrderParams{
			Symbol:   pos.Symbol,
			Side:     side,
			Kind:     models.OrderKindMarket,
			Quantity: math.Abs(pos.Amount),
		}
		exchOrder, err := e.submitWithRetry(ctx, params, "")
		if err != nil {
			e.logger.Error("liquidation order failed",
				zap.String("symbol", pos.Symbol),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		order := &models.Order{
			ID:             uuid.New().String(),
			ExchangeID:     exchOrder.ID,
			Symbol:         pos.Symbol,
			Side:           side,
			Type:           models.OrderKindMarket,
			Strategy:       "liquidation",
			Quantity:       params.Quantity,
			RequestedPrice: pos.EntryPrice,
			Status:         exchOrder.Status,
			FilledQty:      exchOrder.FilledQty,
			AvgFillPrice:   exchOrder.AvgFillPrice,
			CreatedAt:      time.Now(),
		}
		e.register(order)
		if models.IsTerminal(exchOrder.Status) {
			e.finalize(ctx, order.ID, exchOrder)
		} else {
			e.superviseAsync(order.ID)
		}
	}
	e.notifier.Trigger(models.AlertTypeLiquidation, models.SeverityEmergency,
		fmt.Sprintf("Ликвидация позиций: %s (%d шт.)", reason, len(positions)),
		map[string]interface{}{"reason": reason, "count": len(positions)})
	return firstErr
}

// RunHealthCheck периодически проверяет доступность биржи
func (e *Engine) RunHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := e.exchange.Ping(pingCtx)
			cancel()
			if err != nil {
				e.logger.Warn("exchange health check failed", zap.Error(err))
				e.notifier.Trigger(models.AlertTypeExchangeError, models.SeverityWarning,
					fmt.Sprintf("Биржа %s недоступна: %v", e.exchange.Name(), err),
					map[string]interface{}{"venue": e.exchange.Name()})
			}
		}
	}
}

// Wait блокирует до завершения всех супервизоров (graceful shutdown)
func (e *Engine) Wait() {
	e.wg.Wait()
}

// ============================================================
// Внутренний конвейер
// ============================================================

func (e *Engine) submitWithRetry(ctx context.Context, params exchange.OrderParams, orderID string) (*exchange.Order, error) {
	cfg := retry.SubmitConfig(e.cfg.MaxRetries, e.cfg.RetryBase)
	cfg.RetryIf = retry.IsRetryable
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		OrderSubmitRetries.Inc()
		e.logger.Warn("order submission retry",
			zap.String("order_id", orderID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	return retry.DoWithResult(ctx, func() (*exchange.Order, error) {
		return e.exchange.CreateOrder(ctx, params)
	}, cfg)
}

// superviseAsync запускает супервизора исполнения для принятого ордера
func (e *Engine) superviseAsync(orderID string) {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancelMu.Lock()
	e.cancels[orderID] = cancel
	e.cancelMu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.stopSupervisor(orderID)
		e.supervise(ctx, orderID)
	}()
}

// supervise опрашивает биржу до финального статуса или таймаута.
//
// Частичное исполнение выше MinPartialFill поднимает алерт PARTIAL_FILL
// один раз за жизнь ордера. По таймауту ордер отменяется на бирже,
// после чего статус запрашивается ещё раз: поздний филл, пришедший
// между таймаутом и отменой, учитывается в позиции.
func (e *Engine) supervise(ctx context.Context, orderID string) {
	order, err := e.Get(orderID)
	if err != nil {
		return
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(e.cfg.OrderTimeout)
	defer deadline.Stop()

	partialAlerted := false

	for {
		select {
		case <-ctx.Done():
			return

		case <-deadline.C:
			e.logger.Warn("order timed out, cancelling",
				zap.String("order_id", orderID),
				zap.Duration("timeout", e.cfg.OrderTimeout))
			e.timeoutCancel(orderID, order.Symbol, order.ExchangeID)
			return

		case <-ticker.C:
			pollCtx, cancel := context.WithTimeout(ctx, e.cfg.PollInterval*2)
			current, err := e.exchange.FetchOrder(pollCtx, order.Symbol, order.ExchangeID)
			cancel()
			if err != nil {
				e.logger.Warn("order poll failed",
					zap.String("order_id", orderID),
					zap.Error(err))
				continue
			}

			e.update(orderID, func(o *models.Order) {
				o.Status = current.Status
				o.FilledQty = current.FilledQty
				o.AvgFillPrice = current.AvgFillPrice
			})

			if !partialAlerted && current.Status == models.OrderStatusPartial &&
				current.Quantity > 0 && current.FilledQty/current.Quantity >= e.cfg.MinPartialFill {
				partialAlerted = true
				e.notifier.Trigger(models.AlertTypePartialFill, models.SeverityInfo,
					fmt.Sprintf("Частичное исполнение %s: %.4f из %.4f",
						order.Symbol, current.FilledQty, current.Quantity),
					map[string]interface{}{"order_id": orderID, "fraction": current.FilledQty / current.Quantity})
			}

			if models.IsTerminal(current.Status) {
				e.finalize(ctx, orderID, current)
				return
			}
		}
	}
}

// timeoutCancel отменяет просроченный ордер и учитывает поздний филл
func (e *Engine) timeoutCancel(orderID, symbol, exchangeID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.exchange.CancelOrder(ctx, symbol, exchangeID); err != nil {
		e.logger.Error("timeout cancel failed",
			zap.String("order_id", orderID),
			zap.Error(err))
	}

	final, err := e.exchange.FetchOrder(ctx, symbol, exchangeID)
	if err != nil {
		e.update(orderID, func(o *models.Order) { o.Status = models.OrderStatusExpired })
		OrdersCompleted.WithLabelValues(symbol, models.OrderStatusExpired).Inc()
	} else {
		if final.Status == models.OrderStatusCancelled {
			final.Status = models.OrderStatusExpired
		}
		e.finalize(ctx, orderID, final)
	}

	e.notifier.Trigger(models.AlertTypeOrderTimeout, models.SeverityWarning,
		fmt.Sprintf("Ордер %s (%s) не исполнен за %s и отменён", orderID, symbol, e.cfg.OrderTimeout),
		map[string]interface{}{"order_id": orderID, "symbol": symbol})
}

// finalize фиксирует финальный статус, применяет филл к позиции
// и проверяет проскальзывание и дневной лимит убытка
func (e *Engine) finalize(ctx context.Context, orderID string, final *exchange.Order) {
	order, err := e.Get(orderID)
	if err != nil {
		return
	}

	now := time.Now()
	e.update(orderID, func(o *models.Order) {
		o.Status = final.Status
		o.FilledQty = final.FilledQty
		o.AvgFillPrice = final.AvgFillPrice
		if final.Status == models.OrderStatusFilled {
			o.FilledAt = &now
		}
	})

	OrdersCompleted.WithLabelValues(order.Symbol, final.Status).Inc()
	OrderExecutionLatency.WithLabelValues(order.Symbol).Observe(now.Sub(order.CreatedAt).Seconds())

	if final.FilledQty <= 0 {
		return
	}

	// Проскальзывание считается от цены на момент подачи
	if order.RequestedPrice > 0 && final.AvgFillPrice > 0 {
		slip := math.Abs(utils.PercentChange(order.RequestedPrice, final.AvgFillPrice))
		OrderSlippage.WithLabelValues(order.Symbol).Observe(slip)
		if slip > e.cfg.SlippageThreshold {
			e.notifier.Trigger(models.AlertTypeHighSlippage, models.SeverityWarning,
				fmt.Sprintf("Проскальзывание %.2f%% на %s: запрошено %.4f, исполнено %.4f",
					slip, order.Symbol, order.RequestedPrice, final.AvgFillPrice),
				map[string]interface{}{"order_id": orderID, "slippage": slip})
		}
	}

	e.execMu.Lock()
	realized, err := e.book.Apply(ctx, order.Symbol, order.Side, order.Strategy, final.FilledQty, final.AvgFillPrice)
	e.execMu.Unlock()
	if err != nil {
		e.logger.Error("failed to apply fill to position",
			zap.String("order_id", orderID),
			zap.Error(err))
		return
	}

	if realized != 0 {
		e.checkDailyLoss(ctx)
	}
}

// checkDailyLoss сверяет дневной PnL с лимитом и ставит систему на паузу
func (e *Engine) checkDailyLoss(ctx context.Context) {
	pnl, err := e.trades.DailyPnl(ctx, time.Now())
	if err != nil {
		e.logger.Warn("daily pnl check failed", zap.Error(err))
		return
	}
	balance, err := e.exchange.FetchBalance(ctx)
	if err != nil || balance <= 0 {
		return
	}
	lossPct := -pnl / balance * 100
	if lossPct >= e.cfg.MaxDailyLoss {
		e.notifier.Trigger(models.AlertTypeDailyLossLimit, models.SeverityEmergency,
			fmt.Sprintf("Дневной убыток %.2f%% превысил лимит %.2f%%, торговля на паузе", lossPct, e.cfg.MaxDailyLoss),
			map[string]interface{}{"loss_pct": lossPct, "limit": e.cfg.MaxDailyLoss})
		if err := e.state.Transition(models.StatePaused, "daily loss limit reached"); err != nil {
			e.logger.Error("failed to pause on daily loss", zap.Error(err))
		}
	}
}

func (e *Engine) register(o *models.Order) {
	e.ordersMu.Lock()
	e.orders[o.ID] = o
	e.ordersMu.Unlock()
	e.notifyUpdate(*o)
}

func (e *Engine) update(orderID string, fn func(*models.Order)) {
	var snapshot models.Order
	var found bool
	e.ordersMu.Lock()
	if o, ok := e.orders[orderID]; ok {
		fn(o)
		snapshot, found = *o, true
	}
	e.ordersMu.Unlock()
	if found {
		e.notifyUpdate(snapshot)
	}
}

func (e *Engine) notifyUpdate(o models.Order) {
	if e.onUpdate != nil {
		e.onUpdate(o)
	}
}

func (e *Engine) stopSupervisor(orderID string) {
	e.cancelMu.Lock()
	if cancel, ok := e.cancels[orderID]; ok {
		cancel()
		delete(e.cancels, orderID)
	}
	e.cancelMu.Unlock()
}

func validateParams(p exchange.OrderParams) error {
	if p.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidOrder)
	}
	if p.Side != models.SideBuy && p.Side != models.SideSell {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, p.Side)
	}
	switch p.Kind {
	case models.OrderKindMarket:
	case models.OrderKindLimit:
		if p.Price <= 0 {
			return fmt.Errorf("%w: limit order requires a positive price", ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: unknown order kind %q", ErrInvalidOrder, p.Kind)
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	return nil
}
