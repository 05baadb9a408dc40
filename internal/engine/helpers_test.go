package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"sentinel/internal/models"
)

// fakeNotifier записывает алерты для проверок в тестах
type fakeNotifier struct {
	mu     sync.Mutex
	alerts []recordedAlert
}

type recordedAlert struct {
	Type     string
	Severity string
	Message  string
}

func (f *fakeNotifier) Trigger(alertType, severity, message string, meta map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, recordedAlert{Type: alertType, Severity: severity, Message: message})
}

func (f *fakeNotifier) count(alertType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.alerts {
		if a.Type == alertType {
			n++
		}
	}
	return n
}

// fakeSettings - хранилище настроек в памяти
type fakeSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{values: make(map[string]string)}
}

func (f *fakeSettings) Get(ctx context.Context, key, defaultValue string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	f.values[key] = defaultValue
	return defaultValue, nil
}

func (f *fakeSettings) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

// fakeTradeLog - журнал сделок в памяти
type fakeTradeLog struct {
	mu     sync.Mutex
	nextID int
	trades map[int]*models.Trade
	pnl    float64
}

func newFakeTradeLog() *fakeTradeLog {
	return &fakeTradeLog{trades: make(map[int]*models.Trade)}
}

func (f *fakeTradeLog) LogTrade(ctx context.Context, trade *models.Trade) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cp := *trade
	cp.ID = f.nextID
	f.trades[f.nextID] = &cp
	return f.nextID, nil
}

func (f *fakeTradeLog) CloseTrade(ctx context.Context, id int, exitPrice, pnl float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tr, ok := f.trades[id]; ok {
		now := time.Now()
		tr.Status = models.TradeStatusClosed
		tr.ExitPrice = &exitPrice
		tr.Pnl = &pnl
		tr.ClosedAt = &now
		f.pnl += pnl
	}
	return nil
}

func (f *fakeTradeLog) ReduceTrade(ctx context.Context, id int, qty, exitPrice, pnl float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tr, ok := f.trades[id]
	if !ok || tr.Status != models.TradeStatusOpen || tr.Quantity <= qty {
		return errors.New("trade not found")
	}
	tr.Quantity -= qty

	now := time.Now()
	f.nextID++
	f.trades[f.nextID] = &models.Trade{
		ID:         f.nextID,
		Symbol:     tr.Symbol,
		Side:       tr.Side,
		Strategy:   tr.Strategy,
		Quantity:   qty,
		EntryPrice: tr.EntryPrice,
		ExitPrice:  &exitPrice,
		Pnl:        &pnl,
		Status:     models.TradeStatusClosed,
		OpenedAt:   tr.OpenedAt,
		ClosedAt:   &now,
	}
	f.pnl += pnl
	return nil
}

func (f *fakeTradeLog) OpenTrades(ctx context.Context) ([]*models.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Trade
	for _, tr := range f.trades {
		if tr.Status == models.TradeStatusOpen {
			cp := *tr
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeTradeLog) DailyPnl(ctx context.Context, day time.Time) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pnl, nil
}

// fakeSignalStore - хранилище сигналов в памяти
type fakeSignalStore struct {
	mu       sync.Mutex
	nextID   int
	statuses map[int]string
	deleted  []int
}

func newFakeSignalStore() *fakeSignalStore {
	return &fakeSignalStore{statuses: make(map[int]string)}
}

func (f *fakeSignalStore) SaveSignal(ctx context.Context, s *models.Signal) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.statuses[f.nextID] = s.Status
	return f.nextID, nil
}

func (f *fakeSignalStore) DeleteSignal(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.statuses, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeSignalStore) UpdateSignalStatus(ctx context.Context, id int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

func (f *fakeSignalStore) LoadPendingSignals(ctx context.Context) ([]*models.Signal, error) {
	return nil, nil
}

func (f *fakeSignalStore) status(id int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}

// waitFor опрашивает условие до истечения таймаута
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
