package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"sentinel/internal/engine"
)

// BreakerControl - интерфейс аварийного предохранителя для API
type BreakerControl interface {
	Tripped() bool
	Reason() string
	Reset(ctx context.Context) error
	ReportHeadline(ctx context.Context, level, summary string)
}

// BreakerHandler отвечает за аварийный предохранитель
//
// Endpoints:
// - GET /api/v1/breaker - текущее состояние
// - POST /api/v1/breaker/reset - ручной сброс (единственный способ взвести заново)
// - POST /webhook/headline - входящий новостной заголовок
//
// Назначение:
// Предохранитель срабатывает автоматически (обвал, перегрев, новости),
// но взводится обратно ТОЛЬКО вручную через этот endpoint. Автоматического
// восстановления нет.
type BreakerHandler struct {
	breaker BreakerControl
}

// NewBreakerHandler создает новый BreakerHandler с внедрением зависимости
func NewBreakerHandler(breaker BreakerControl) *BreakerHandler {
	return &BreakerHandler{breaker: breaker}
}

// BreakerResponse представляет состояние предохранителя
type BreakerResponse struct {
	Tripped bool   `json:"tripped"`
	Reason  string `json:"reason,omitempty"`
}

// GetBreaker возвращает состояние предохранителя
//
// GET /api/v1/breaker
func (h *BreakerHandler) GetBreaker(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, BreakerResponse{
		Tripped: h.breaker.Tripped(),
		Reason:  h.breaker.Reason(),
	})
}

// ResetBreaker вручную взводит предохранитель обратно
//
// POST /api/v1/breaker/reset
//
// HTTP коды:
// - 200 OK: предохранитель взведён, торговлю можно возобновлять
// - 409 Conflict: предохранитель не срабатывал
func (h *BreakerHandler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	if err := h.breaker.Reset(r.Context()); err != nil {
		if errors.Is(err, engine.ErrBreakerNotTripped) {
			respondWithError(w, http.StatusConflict, "Circuit breaker is not tripped")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Reset failed: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Circuit breaker reset"})
}

// HeadlineRequest представляет входящий новостной заголовок
type HeadlineRequest struct {
	Level   string `json:"level"`
	Summary string `json:"summary"`
}

// IntakeHeadline принимает новостной заголовок от внешнего фида
//
// POST /webhook/headline
//
// Уровень CRITICAL учитывается в скользящем окне новостного предохранителя,
// остальные уровни игнорируются.
func (h *BreakerHandler) IntakeHeadline(w http.ResponseWriter, r *http.Request) {
	var req HeadlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Level == "" {
		respondWithError(w, http.StatusBadRequest, "level is required")
		return
	}

	h.breaker.ReportHeadline(r.Context(), strings.ToUpper(req.Level), req.Summary)

	respondWithJSON(w, http.StatusAccepted, SuccessResponse{Message: "Headline recorded"})
}
