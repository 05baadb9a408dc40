package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// AlertHandler отвечает за журнал оповещений
//
// Endpoints:
// - GET /api/v1/alerts - история оповещений (новые первыми)
// - GET /api/v1/alerts/status - сводка по неразрешённым
// - POST /api/v1/alerts/{type}/resolve - пометить тип разрешённым
// - DELETE /api/v1/alerts/resolved - убрать разрешённые из истории
type AlertHandler struct {
	alerts AlertLog
}

// NewAlertHandler создает новый AlertHandler с внедрением зависимости
func NewAlertHandler(alerts AlertLog) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// GetAlerts возвращает историю оповещений
//
// GET /api/v1/alerts?limit=50
//
// limit по умолчанию 100, отдаются новые первыми из кольцевого буфера.
func (h *AlertHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	alerts := h.alerts.History(limit)

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"total":  len(alerts),
	})
}

// GetAlertStatus возвращает сводку по неразрешённым оповещениям
//
// GET /api/v1/alerts/status
func (h *AlertHandler) GetAlertStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.alerts.Status())
}

// ResolveAlerts помечает все оповещения типа разрешёнными
//
// POST /api/v1/alerts/{type}/resolve
func (h *AlertHandler) ResolveAlerts(w http.ResponseWriter, r *http.Request) {
	alertType := mux.Vars(r)["type"]

	resolved := h.alerts.Resolve(alertType)

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"type":     alertType,
		"resolved": resolved,
	})
}

// PurgeResolved убирает разрешённые оповещения из истории
//
// DELETE /api/v1/alerts/resolved
func (h *AlertHandler) PurgeResolved(w http.ResponseWriter, r *http.Request) {
	purged := h.alerts.PurgeResolved()

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"purged": purged,
	})
}
