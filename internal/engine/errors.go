package engine

import "errors"

// Классы ошибок торгового движка.
//
// Транзиентные ошибки (сеть, 5xx биржи) уходят в retry и не меняют
// состояние системы. Ошибки валидации отклоняют операцию без повторов.
// Фатальные переводят систему в EMERGENCY. Срабатывание предохранителя -
// отдельный класс: торговля останавливается до ручного сброса.
var (
	// ErrInsufficientFunds - баланса не хватает на заявленный объём
	ErrInsufficientFunds = errors.New("insufficient funds for order")

	// ErrTradingHalted - торговля остановлена предохранителем или оператором
	ErrTradingHalted = errors.New("trading is halted")

	// ErrInvalidOrder - параметры ордера не прошли валидацию
	ErrInvalidOrder = errors.New("invalid order parameters")

	// ErrOrderNotFound - ордер не найден в реестре движка
	ErrOrderNotFound = errors.New("order not found")

	// ErrBreakerTripped - предохранитель сработал, требуется ручной сброс
	ErrBreakerTripped = errors.New("circuit breaker tripped")

	// ErrBreakerNotTripped - сброс предохранителя в рабочем состоянии
	ErrBreakerNotTripped = errors.New("circuit breaker is not tripped")

	// ErrInvalidTransition - недопустимый переход состояния системы
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrPoolClosed - пул сигналов остановлен
	ErrPoolClosed = errors.New("signal pool is closed")

	// ErrSignalNotFound - сигнала нет в пуле (истёк или уже исполнен)
	ErrSignalNotFound = errors.New("signal not found in pool")

	// ErrSignalVetoed - расчёт размера дал ноль, вход запрещён
	ErrSignalVetoed = errors.New("signal vetoed by position sizing")
)
