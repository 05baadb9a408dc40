package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
)

// SettingsStore - интерфейс хранилища настроек для API
type SettingsStore interface {
	Get(ctx context.Context, key, defaultValue string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// SettingsHandler отвечает за управление runtime-настройками
//
// Endpoints:
// - GET /api/v1/settings/{key} - получение значения (query параметр default)
// - PUT /api/v1/settings/{key} - установка значения
//
// Назначение:
// Хранилище key/value общих параметров системы. Отсутствующий ключ
// инициализируется переданным значением по умолчанию и возвращается.
// Служебные ключи предохранителя и макро-автомата доступны только для чтения.
type SettingsHandler struct {
	settings SettingsStore
}

// Ключи, которые меняются только своими подсистемами
var protectedKeys = map[string]bool{
	"breaker_tripped":         true,
	"breaker_reason":          true,
	"macro_prior_raw":         true,
	"macro_consecutive_count": true,
	"macro_confirmed_season":  true,
}

// NewSettingsHandler создает новый SettingsHandler с внедрением зависимости
func NewSettingsHandler(settings SettingsStore) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// SettingResponse представляет значение настройки
type SettingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetSetting возвращает значение настройки
//
// GET /api/v1/settings/{key}?default=<value>
//
// Если ключа нет, он создаётся со значением default и оно же возвращается.
func (h *SettingsHandler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	defaultValue := r.URL.Query().Get("default")

	value, err := h.settings.Get(r.Context(), key, defaultValue)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to read setting: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SettingResponse{Key: key, Value: value})
}

// UpdateSettingRequest представляет тело запроса обновления настройки
type UpdateSettingRequest struct {
	Value string `json:"value"`
}

// UpdateSetting устанавливает значение настройки
//
// PUT /api/v1/settings/{key}
//
// HTTP коды:
// - 200 OK: значение сохранено
// - 403 Forbidden: служебный ключ
func (h *SettingsHandler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	if protectedKeys[key] {
		respondWithError(w, http.StatusForbidden, "Setting is managed by the system and cannot be changed directly")
		return
	}

	var req UpdateSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.settings.Set(r.Context(), key, req.Value); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to save setting: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SettingResponse{Key: key, Value: req.Value})
}
