package models

import "time"

// Сезоны рынка (сырая и подтверждённая классификация)
const (
	SeasonBull    = "BULL"
	SeasonBear    = "BEAR"
	SeasonNeutral = "NEUTRAL"
)

// Директивы, публикуемые при смене подтверждённого сезона
const (
	DirectiveLiquidateShorts = "LIQUIDATE_ALL_SHORTS" // переход в BULL
	DirectiveLiquidateLongs  = "LIQUIDATE_ALL_LONGS"  // переход в BEAR
)

// MacroState - текущее состояние подтверждения макро-сезона.
//
// Confirmed меняется только после ConsecutiveCount одинаковых
// сырых классификаций подряд; до этого остаётся NEUTRAL.
type MacroState struct {
	Raw              string    `json:"raw"`
	Confirmed        string    `json:"confirmed"`
	ConsecutiveCount int       `json:"consecutive_count"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ValidSeason проверяет что строка является известным сезоном
func ValidSeason(s string) bool {
	return s == SeasonBull || s == SeasonBear || s == SeasonNeutral
}
