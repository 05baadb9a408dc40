package handlers

import (
	"context"
	"fmt"
	"time"

	"sentinel/internal/alert"
	"sentinel/internal/engine"
	"sentinel/internal/exchange"
	"sentinel/internal/models"
)

// ============ Mock SignalPool ============

type MockSignalPool struct {
	signals map[string]*models.Signal
	nextID  int
	closed  bool
	failErr error
}

func NewMockSignalPool() *MockSignalPool {
	return &MockSignalPool{signals: make(map[string]*models.Signal)}
}

func (m *MockSignalPool) Add(ctx context.Context, s *models.Signal) error {
	if m.closed {
		return engine.ErrPoolClosed
	}
	if m.failErr != nil {
		return m.failErr
	}
	m.nextID++
	s.ID = m.nextID
	s.Status = models.SignalStatusPending
	s.CreatedAt = time.Now()
	s.ExpiresAt = s.CreatedAt.Add(5 * time.Minute)
	m.signals[s.Key()] = s
	return nil
}

func (m *MockSignalPool) Snapshot() ([]models.Signal, int) {
	out := make([]models.Signal, 0, len(m.signals))
	for _, s := range m.signals {
		out = append(out, *s)
	}
	return out, len(out)
}

func (m *MockSignalPool) Remove(ctx context.Context, symbol, strategy string) bool {
	key := symbol + ":" + strategy
	if _, ok := m.signals[key]; !ok {
		return false
	}
	delete(m.signals, key)
	return true
}

func (m *MockSignalPool) Resonance(symbol string) int {
	n := 0
	for _, s := range m.signals {
		if s.Symbol == symbol {
			n++
		}
	}
	return n
}

func (m *MockSignalPool) Size() int { return len(m.signals) }

// ============ Mock OrderEngine ============

// MockSignalExecutor фиксирует вызов и возвращает заготовленный результат
type MockSignalExecutor struct {
	order    *models.Order
	err      error
	symbol   string
	strategy string
}

func (m *MockSignalExecutor) ExecuteSignal(ctx context.Context, symbol, strategy string) (*models.Order, error) {
	m.symbol, m.strategy = symbol, strategy
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

type MockOrderEngine struct {
	orders     map[string]*models.Order
	submitErr  error
	cancelErr  error
	nextID     int
	lastParams exchange.OrderParams
}

func NewMockOrderEngine() *MockOrderEngine {
	return &MockOrderEngine{orders: make(map[string]*models.Order)}
}

func (m *MockOrderEngine) Submit(ctx context.Context, params exchange.OrderParams, strategy string) (*models.Order, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.lastParams = params
	kind := params.Kind
	if kind == "" {
		kind = models.OrderKindMarket
	}
	m.nextID++
	order := &models.Order{
		ID:        fmt.Sprintf("order-%d", m.nextID),
		Symbol:    params.Symbol,
		Side:      params.Side,
		Type:      kind,
		Strategy:  strategy,
		Quantity:  params.Quantity,
		Status:    models.OrderStatusOpen,
		CreatedAt: time.Now(),
	}
	m.orders[order.ID] = order
	return order, nil
}

func (m *MockOrderEngine) Cancel(ctx context.Context, orderID string) error {
	if _, ok := m.orders[orderID]; !ok {
		return engine.ErrOrderNotFound
	}
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.orders[orderID].Status = models.OrderStatusCancelled
	return nil
}

func (m *MockOrderEngine) Get(orderID string) (*models.Order, error) {
	order, ok := m.orders[orderID]
	if !ok {
		return nil, engine.ErrOrderNotFound
	}
	return order, nil
}

func (m *MockOrderEngine) Active() []*models.Order {
	out := make([]*models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if !models.IsTerminal(o.Status) {
			out = append(out, o)
		}
	}
	return out
}

// ============ Mock SystemState ============

type MockSystemState struct {
	state         string
	transitionErr error
}

func NewMockSystemState(state string) *MockSystemState {
	return &MockSystemState{state: state}
}

func (m *MockSystemState) Current() string { return m.state }

func (m *MockSystemState) Transition(to, reason string) error {
	if m.transitionErr != nil {
		return m.transitionErr
	}
	m.state = to
	return nil
}

// ============ Mock BreakerControl ============

type MockBreaker struct {
	tripped   bool
	reason    string
	headlines []string
}

func (m *MockBreaker) Tripped() bool  { return m.tripped }
func (m *MockBreaker) Reason() string { return m.reason }

func (m *MockBreaker) Reset(ctx context.Context) error {
	if !m.tripped {
		return engine.ErrBreakerNotTripped
	}
	m.tripped = false
	m.reason = ""
	return nil
}

func (m *MockBreaker) ReportHeadline(ctx context.Context, level, summary string) {
	m.headlines = append(m.headlines, level)
}

// ============ Mock MacroStatus ============

type MockMacro struct {
	state models.MacroState
}

func (m *MockMacro) State() models.MacroState { return m.state }

// ============ Mock AlertLog ============

type MockAlertLog struct {
	alerts []*models.Alert
}

func (m *MockAlertLog) Add(alertType, severity, message string) {
	m.alerts = append(m.alerts, &models.Alert{
		ID:        fmt.Sprintf("alert-%d", len(m.alerts)+1),
		Timestamp: time.Now(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
	})
}

func (m *MockAlertLog) History(limit int) []*models.Alert {
	out := make([]*models.Alert, 0, len(m.alerts))
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.alerts[i])
	}
	return out
}

func (m *MockAlertLog) Resolve(alertType string) int {
	n := 0
	for _, a := range m.alerts {
		if a.Type == alertType && !a.Resolved {
			a.Resolved = true
			n++
		}
	}
	return n
}

func (m *MockAlertLog) PurgeResolved() int {
	kept := m.alerts[:0]
	purged := 0
	for _, a := range m.alerts {
		if a.Resolved {
			purged++
			continue
		}
		kept = append(kept, a)
	}
	m.alerts = kept
	return purged
}

func (m *MockAlertLog) Status() alert.AlertStatus {
	st := alert.AlertStatus{BySeverity: make(map[string]int)}
	for _, a := range m.alerts {
		if a.Resolved {
			continue
		}
		st.Active++
		st.BySeverity[a.Severity]++
	}
	if len(m.alerts) > 0 {
		st.LastAlert = m.alerts[len(m.alerts)-1]
	}
	return st
}

// ============ Mock PositionReader ============

type MockPositionReader struct {
	positions []models.Position
}

func (m *MockPositionReader) All() []models.Position { return m.positions }

// ============ Mock ScoringHealth ============

type MockScoring struct {
	degraded bool
}

func (m *MockScoring) Degraded() bool { return m.degraded }

// ============ Mock SettingsStore ============

type MockSettings struct {
	values map[string]string
	getErr error
	setErr error
}

func NewMockSettings() *MockSettings {
	return &MockSettings{values: make(map[string]string)}
}

func (m *MockSettings) Get(ctx context.Context, key, defaultValue string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	m.values[key] = defaultValue
	return defaultValue, nil
}

func (m *MockSettings) Set(ctx context.Context, key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}
