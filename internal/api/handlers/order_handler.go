package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"sentinel/internal/engine"
	"sentinel/internal/exchange"
	"sentinel/internal/models"
)

// OrderEngine - интерфейс движка жизненного цикла ордеров для API
type OrderEngine interface {
	Submit(ctx context.Context, params exchange.OrderParams, strategy string) (*models.Order, error)
	Cancel(ctx context.Context, orderID string) error
	Get(orderID string) (*models.Order, error)
	Active() []*models.Order
}

// OrderHandler отвечает за ручное управление ордерами
//
// Endpoints:
// - POST /api/v1/orders - подать рыночный или лимитный ордер
// - GET /api/v1/orders - активные ордера
// - GET /api/v1/orders/{id} - состояние ордера
// - DELETE /api/v1/orders/{id} - отменить ордер
//
// Назначение:
// Прямой доступ оператора к конвейеру подачи. Проходит те же проверки,
// что и автоматическое исполнение: состояние системы, баланс, retry,
// супервизор исполнения.
type OrderHandler struct {
	engine OrderEngine
}

// NewOrderHandler создает новый OrderHandler с внедрением зависимости
func NewOrderHandler(engine OrderEngine) *OrderHandler {
	return &OrderHandler{engine: engine}
}

// CreateOrderRequest представляет тело запроса подачи ордера
type CreateOrderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Kind     string  `json:"kind,omitempty"` // market (по умолчанию) или limit
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price,omitempty"` // лимитная цена
	Strategy string  `json:"strategy,omitempty"`
}

// CreateOrder подаёт ордер через полный конвейер
//
// POST /api/v1/orders
//
// HTTP коды:
// - 201 Created: ордер принят биржей (open/partial/filled)
// - 400 Bad Request: невалидные параметры
// - 409 Conflict: торговля остановлена (PAUSED/HALTED/EMERGENCY)
// - 422 Unprocessable Entity: недостаточно средств
// - 502 Bad Gateway: все попытки подачи исчерпаны
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	order, err := h.engine.Submit(r.Context(), exchange.OrderParams{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Kind:     req.Kind,
		Quantity: req.Quantity,
		Price:    req.Price,
	}, req.Strategy)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidOrder):
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, engine.ErrTradingHalted):
			respondWithError(w, http.StatusConflict, "Trading is not allowed in the current system state")
		case errors.Is(err, engine.ErrInsufficientFunds):
			respondWithError(w, http.StatusUnprocessableEntity, "Insufficient balance for the requested order")
		default:
			respondWithError(w, http.StatusBadGateway, "Order submission failed: "+err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, order)
}

// GetOrders возвращает все незавершённые ордера
//
// GET /api/v1/orders
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.engine.Active()

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"total":  len(orders),
	})
}

// GetOrder возвращает состояние ордера по внутреннему ID
//
// GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	order, err := h.engine.Get(vars["id"])
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Order not found")
		return
	}

	respondWithJSON(w, http.StatusOK, order)
}

// CancelOrder отменяет ордер вручную
//
// DELETE /api/v1/orders/{id}
//
// HTTP коды:
// - 200 OK: запрос на отмену принят
// - 404 Not Found: ордер неизвестен
// - 502 Bad Gateway: биржа отклонила отмену
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.engine.Cancel(r.Context(), vars["id"]); err != nil {
		if errors.Is(err, engine.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		respondWithError(w, http.StatusBadGateway, "Cancel failed: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Order cancellation requested"})
}
