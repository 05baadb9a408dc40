package engine

import (
	"sentinel/internal/models"
	"sentinel/pkg/utils"
)

// ============================================================
// Расчёт размера позиции
// ============================================================

// Доли портфеля по активам для каждого подтвержденного сезона
var seasonAllocations = map[string]map[string]float64{
	models.SeasonBull: {
		"BTC/USDT": 0.40,
		"ETH/USDT": 0.30,
		"SOL/USDT": 0.20,
	},
	models.SeasonBear: {
		"BTC/USDT": 0.25,
		"ETH/USDT": 0.10,
	},
	models.SeasonNeutral: {
		"BTC/USDT": 0.30,
		"ETH/USDT": 0.15,
	},
}

// Макро-множитель и базовое плечо по сезону
var seasonLeverage = map[string]struct {
	Multiplier float64
	Leverage   float64
}{
	models.SeasonBull:    {Multiplier: 1.2, Leverage: 2.0},
	models.SeasonBear:    {Multiplier: 0.6, Leverage: 1.0},
	models.SeasonNeutral: {Multiplier: 1.0, Leverage: 1.0},
}

// Множители резонанса: независимое подтверждение от второй стратегии
// усиливает сигнал, дальнейшие - с убывающей отдачей
var resonanceMultipliers = map[int]float64{
	1: 1.0,
	2: 1.3,
	3: 1.5,
}

const maxResonanceMultiplier = 1.5

// ConfidenceWeight превращает уверенность оценщика [0, 1] в множитель
// размера. Уверенность ниже 0.60 - вето на вход.
func ConfidenceWeight(confidence float64) float64 {
	c := utils.Clamp(confidence, 0, 1)
	switch {
	case c >= 0.90:
		return 1.05
	case c >= 0.75:
		return 1.0
	case c >= 0.60:
		return 0.6
	default:
		return 0
	}
}

// RiskCoefficient снижает размер при просадке: линейно от 1 до 0.1
// при просадке 15% и глубже
func RiskCoefficient(drawdown float64) float64 {
	if drawdown <= 0 {
		return 1.0
	}
	coeff := 1.0 - drawdown/0.15
	if coeff < 0.1 {
		return 0.1
	}
	return coeff
}

// ResonanceMultiplier возвращает множитель для количества независимых
// сигналов по одному активу
func ResonanceMultiplier(signals int) float64 {
	if signals <= 0 {
		return 0
	}
	if m, ok := resonanceMultipliers[signals]; ok {
		return m
	}
	return maxResonanceMultiplier
}

// SizingInput - входы расчёта целевого размера позиции
type SizingInput struct {
	Equity     float64 // текущий капитал в котируемой валюте
	Symbol     string
	Season     string  // подтвержденный макро-сезон
	Confidence float64 // уверенность оценщика [0, 1]
	Drawdown   float64 // текущая просадка (0.05 = 5%)
	Resonance  int     // количество независимых сигналов по активу
}

// TargetValue считает целевой размер позиции в котируемой валюте.
//
// Формула: equity × alloc × macroMult × resonanceMult × riskCoeff ×
// confWeight × leverage. Ноль означает вето: актив не входит в
// аллокацию сезона либо уверенность ниже порога.
func TargetValue(in SizingInput) float64 {
	alloc, ok := seasonAllocations[in.Season][in.Symbol]
	if !ok {
		return 0
	}
	lev, ok := seasonLeverage[in.Season]
	if !ok {
		return 0
	}

	return in.Equity * alloc *
		lev.Multiplier *
		ResonanceMultiplier(in.Resonance) *
		RiskCoefficient(in.Drawdown) *
		ConfidenceWeight(in.Confidence) *
		lev.Leverage
}
