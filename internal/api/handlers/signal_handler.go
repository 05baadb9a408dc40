package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"sentinel/internal/engine"
	"sentinel/internal/models"
)

// SignalPool - интерфейс пула резонансных сигналов для API
type SignalPool interface {
	Add(ctx context.Context, s *models.Signal) error
	Snapshot() ([]models.Signal, int)
	Remove(ctx context.Context, symbol, strategy string) bool
	Resonance(symbol string) int
}

// SignalExecutor - конвейер исполнения сигнала (оценка, расчёт размера, подача)
type SignalExecutor interface {
	ExecuteSignal(ctx context.Context, symbol, strategy string) (*models.Order, error)
}

// SignalHandler отвечает за приём и исполнение торговых сигналов
//
// Endpoints:
// - POST /webhook/signal - входящий сигнал от внешней стратегии
// - GET /api/v1/signals - снимок пула ожидающих сигналов
// - POST /api/v1/signals/{symbol}/{strategy}/execute - исполнить сигнал
// - DELETE /api/v1/signals/{symbol}/{strategy} - ручное удаление сигнала
//
// Назначение:
// Точка входа конвейера: внешние стратегии шлют сигналы на webhook,
// сигнал попадает в пул резонанса и ждёт исполнения - фонового либо
// по явному запросу оператора через execute.
// Повторный сигнал по той же паре symbol+strategy перезаписывает предыдущий.
type SignalHandler struct {
	pool     SignalPool
	executor SignalExecutor
}

// NewSignalHandler создает новый SignalHandler с внедрением зависимостей
func NewSignalHandler(pool SignalPool, executor SignalExecutor) *SignalHandler {
	return &SignalHandler{pool: pool, executor: executor}
}

// IntakeSignalRequest представляет тело входящего сигнала
type IntakeSignalRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Strategy string  `json:"strategy"`
	Price    float64 `json:"price"`
}

// IntakeSignalResponse представляет ответ на принятый сигнал
type IntakeSignalResponse struct {
	ID        int    `json:"id"`
	Status    string `json:"status"`
	Resonance int    `json:"resonance"`
}

// IntakeSignal принимает торговый сигнал от внешней стратегии
//
// POST /webhook/signal
//
// Тело запроса: {"symbol": "BTCUSDT", "side": "buy", "strategy": "momentum", "price": 50000}
//
// HTTP коды:
// - 202 Accepted: сигнал помещён в пул
// - 400 Bad Request: невалидное тело
// - 503 Service Unavailable: пул остановлен
func (h *SignalHandler) IntakeSignal(w http.ResponseWriter, r *http.Request) {
	var req IntakeSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := validateSignal(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	signal := &models.Signal{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Strategy: req.Strategy,
		Price:    req.Price,
	}

	if err := h.pool.Add(r.Context(), signal); err != nil {
		if errors.Is(err, engine.ErrPoolClosed) {
			respondWithError(w, http.StatusServiceUnavailable, "Signal pool is not accepting signals")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to store signal: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusAccepted, IntakeSignalResponse{
		ID:        signal.ID,
		Status:    signal.Status,
		Resonance: h.pool.Resonance(signal.Symbol),
	})
}

// GetSignalsResponse представляет снимок пула сигналов
type GetSignalsResponse struct {
	Signals []models.Signal `json:"signals"`
	Pending int             `json:"pending"`
	AsOf    time.Time       `json:"as_of"`
}

// GetSignals возвращает снимок пула ожидающих сигналов
//
// GET /api/v1/signals
func (h *SignalHandler) GetSignals(w http.ResponseWriter, r *http.Request) {
	signals, pending := h.pool.Snapshot()

	respondWithJSON(w, http.StatusOK, GetSignalsResponse{
		Signals: signals,
		Pending: pending,
		AsOf:    time.Now(),
	})
}

// ExecuteSignal проводит ожидающий сигнал через конвейер исполнения
//
// POST /api/v1/signals/{symbol}/{strategy}/execute
//
// HTTP коды:
// - 201 Created: ордер подан, тело - принятый ордер
// - 404 Not Found: сигнала нет в пуле
// - 409 Conflict: торговля остановлена
// - 422 Unprocessable Entity: вето по размеру либо недостаточно средств
// - 502 Bad Gateway: подача ордера не удалась
func (h *SignalHandler) ExecuteSignal(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	order, err := h.executor.ExecuteSignal(r.Context(), vars["symbol"], vars["strategy"])
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrSignalNotFound):
			respondWithError(w, http.StatusNotFound, "Signal not found")
		case errors.Is(err, engine.ErrTradingHalted):
			respondWithError(w, http.StatusConflict, "Trading is not allowed in the current system state")
		case errors.Is(err, engine.ErrSignalVetoed):
			respondWithError(w, http.StatusUnprocessableEntity, "Signal vetoed by position sizing: "+err.Error())
		case errors.Is(err, engine.ErrInsufficientFunds):
			respondWithError(w, http.StatusUnprocessableEntity, "Insufficient balance for the computed position size")
		default:
			respondWithError(w, http.StatusBadGateway, "Signal execution failed: "+err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, order)
}

// RemoveSignal удаляет ожидающий сигнал из пула
//
// DELETE /api/v1/signals/{symbol}/{strategy}
//
// HTTP коды:
// - 204 No Content: сигнал удалён
// - 404 Not Found: сигнала нет в пуле
func (h *SignalHandler) RemoveSignal(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if !h.pool.Remove(r.Context(), vars["symbol"], vars["strategy"]) {
		respondWithError(w, http.StatusNotFound, "Signal not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func validateSignal(req *IntakeSignalRequest) error {
	if req.Symbol == "" {
		return errors.New("symbol is required")
	}
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		return errors.New("side must be 'buy' or 'sell'")
	}
	if req.Strategy == "" {
		return errors.New("strategy is required")
	}
	if req.Price <= 0 {
		return errors.New("price must be positive")
	}
	return nil
}
