package models

// Состояния системы
const (
	StateStarting  = "STARTING"  // инициализация, торговля запрещена
	StateActive    = "ACTIVE"    // штатная работа
	StatePaused    = "PAUSED"    // торговля приостановлена оператором
	StateHalted    = "HALTED"    // остановлена предохранителем, сброс только вручную
	StateEmergency = "EMERGENCY" // критический сбой, требуется вмешательство
)
