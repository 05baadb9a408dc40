package engine

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"sentinel/internal/models"
)

// ValidTransitions определяет допустимые переходы между состояниями системы
var ValidTransitions = map[string][]string{
	models.StateStarting: {models.StateActive, models.StateEmergency},
	models.StateActive:   {models.StatePaused, models.StateHalted, models.StateEmergency},
	models.StatePaused:   {models.StateActive, models.StateHalted, models.StateEmergency},
	models.StateHalted:   {models.StateActive, models.StateEmergency}, // Только ручной сброс
	models.StateEmergency: {},                                         // Терминальное, требуется перезапуск
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StateInfo возвращает описание состояния для UI
func StateInfo(s string) string {
	switch s {
	case models.StateStarting:
		return "Инициализация: восстановление состояния"
	case models.StateActive:
		return "Система активна, торговля разрешена"
	case models.StatePaused:
		return "Пауза: новые ордера не принимаются"
	case models.StateHalted:
		return "Торговля остановлена предохранителем"
	case models.StateEmergency:
		return "Аварийная остановка! Требуется вмешательство"
	default:
		return "Неизвестное состояние"
	}
}

// TransitionListener вызывается после каждого успешного перехода.
// Вызов синхронный, под внутренним мьютексом не выполняется.
type TransitionListener func(from, to, reason string)

// StateMachine - машина состояний системы.
//
// Все переходы проходят проверку по ValidTransitions, слушатели
// уведомляются в порядке регистрации. Переход в то же состояние - no-op.
type StateMachine struct {
	mu        sync.RWMutex
	current   string
	listeners []TransitionListener
	logger    *zap.Logger
}

// NewStateMachine создает машину в состоянии STARTING
func NewStateMachine(logger *zap.Logger) *StateMachine {
	return &StateMachine{
		current: models.StateStarting,
		logger:  logger,
	}
}

// Current возвращает текущее состояние
func (sm *StateMachine) Current() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Subscribe регистрирует слушателя переходов
func (sm *StateMachine) Subscribe(l TransitionListener) {
	sm.mu.Lock()
	sm.listeners = append(sm.listeners, l)
	sm.mu.Unlock()
}

// Transition выполняет переход в новое состояние.
// Недопустимый переход возвращает ErrInvalidTransition.
func (sm *StateMachine) Transition(to, reason string) error {
	sm.mu.Lock()
	from := sm.current
	if from == to {
		sm.mu.Unlock()
		return nil
	}
	if !CanTransition(from, to) {
		sm.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	sm.current = to
	listeners := make([]TransitionListener, len(sm.listeners))
	copy(listeners, sm.listeners)
	sm.mu.Unlock()

	sm.logger.Info("system state transition",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("reason", reason))

	for _, l := range listeners {
		l(from, to, reason)
	}
	return nil
}

// IsTradingAllowed возвращает true если система принимает новые ордера
func (sm *StateMachine) IsTradingAllowed() bool {
	return sm.Current() == models.StateActive
}
