package handlers

import (
	"errors"
	"net/http"
	"time"

	"sentinel/internal/alert"
	"sentinel/internal/engine"
	"sentinel/internal/models"
)

// SystemState - интерфейс конечного автомата системы для API
type SystemState interface {
	Current() string
	Transition(to, reason string) error
}

// BreakerStatus - read-only интерфейс предохранителя для статуса
type BreakerStatus interface {
	Tripped() bool
	Reason() string
}

// MacroStatus - интерфейс макро-автомата для статуса
type MacroStatus interface {
	State() models.MacroState
}

// AlertLog - интерфейс журнала оповещений диспетчера
type AlertLog interface {
	History(limit int) []*models.Alert
	Resolve(alertType string) int
	PurgeResolved() int
	Status() alert.AlertStatus
}

// PositionReader - интерфейс реестра позиций для API
type PositionReader interface {
	All() []models.Position
}

// PoolGauge - размер пула сигналов для статуса
type PoolGauge interface {
	Size() int
}

// ScoringHealth - флаг деградации сервиса оценки
type ScoringHealth interface {
	Degraded() bool
}

// StatusHandler отвечает за сводку состояния системы
//
// Endpoints:
// - GET /api/v1/status - полная сводка: состояние, предохранитель, сезон, пул, оповещения
// - GET /api/v1/positions - открытые позиции
// - POST /api/v1/system/pause - перевод в PAUSED
// - POST /api/v1/system/resume - возврат в ACTIVE
type StatusHandler struct {
	mode      string
	state     SystemState
	breaker   BreakerStatus
	macro     MacroStatus
	alerts    AlertLog
	positions PositionReader
	pool      PoolGauge
	scoring   ScoringHealth
	startedAt time.Time
}

// NewStatusHandler создает новый StatusHandler с внедрением зависимостей
func NewStatusHandler(
	mode string,
	state SystemState,
	breaker BreakerStatus,
	macro MacroStatus,
	alerts AlertLog,
	positions PositionReader,
	pool PoolGauge,
	scoring ScoringHealth,
) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		state:     state,
		breaker:   breaker,
		macro:     macro,
		alerts:    alerts,
		positions: positions,
		pool:      pool,
		scoring:   scoring,
		startedAt: time.Now(),
	}
}

// StatusResponse представляет полную сводку состояния системы
type StatusResponse struct {
	State           string            `json:"state"`
	Mode            string            `json:"mode"`
	UptimeSeconds   int64             `json:"uptime_seconds"`
	BreakerTripped  bool              `json:"breaker_tripped"`
	BreakerReason   string            `json:"breaker_reason,omitempty"`
	Macro           models.MacroState `json:"macro"`
	PendingSignals  int               `json:"pending_signals"`
	OpenPositions   int               `json:"open_positions"`
	ScoringDegraded bool              `json:"scoring_degraded"`
	Alerts          alert.AlertStatus `json:"alerts"`
}

// GetStatus возвращает сводку состояния системы
//
// GET /api/v1/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, StatusResponse{
		State:           h.state.Current(),
		Mode:            h.mode,
		UptimeSeconds:   int64(time.Since(h.startedAt).Seconds()),
		BreakerTripped:  h.breaker.Tripped(),
		BreakerReason:   h.breaker.Reason(),
		Macro:           h.macro.State(),
		PendingSignals:  h.pool.Size(),
		OpenPositions:   len(h.positions.All()),
		ScoringDegraded: h.scoring.Degraded(),
		Alerts:          h.alerts.Status(),
	})
}

// GetPositions возвращает все открытые позиции
//
// GET /api/v1/positions
func (h *StatusHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.positions.All()

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"total":     len(positions),
	})
}

// PauseTrading переводит систему в PAUSED
//
// POST /api/v1/system/pause
//
// HTTP коды:
// - 200 OK: торговля приостановлена
// - 409 Conflict: переход из текущего состояния недопустим
func (h *StatusHandler) PauseTrading(w http.ResponseWriter, r *http.Request) {
	if err := h.state.Transition(models.StatePaused, "manual pause via API"); err != nil {
		h.respondTransitionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Trading paused"})
}

// ResumeTrading возвращает систему в ACTIVE
//
// POST /api/v1/system/resume
//
// Из HALTED возврат возможен только после ручного сброса предохранителя.
func (h *StatusHandler) ResumeTrading(w http.ResponseWriter, r *http.Request) {
	if h.breaker.Tripped() {
		respondWithError(w, http.StatusConflict, "Circuit breaker is tripped, reset it first")
		return
	}
	if err := h.state.Transition(models.StateActive, "manual resume via API"); err != nil {
		h.respondTransitionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Trading resumed"})
}

func (h *StatusHandler) respondTransitionError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrInvalidTransition) {
		respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	respondWithError(w, http.StatusInternalServerError, err.Error())
}
