package utils

import "math"

// math.go - математические утилиты торгового ядра
//
// Все функции чистые, без побочных эффектов.

// RoundToLotSize округляет значение ВНИЗ до ближайшего кратного lotSize.
//
// Используется для округления объёма ордера до минимального шага биржи.
// Округление вниз гарантирует, что мы не превысим доступные средства.
//
// Примеры:
//   - RoundToLotSize(0.123456, 0.001) = 0.123
//   - RoundToLotSize(1.999, 0.01) = 1.99
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Floor(value/lotSize) * lotSize
}

// PercentChange возвращает относительное изменение к base в процентах.
//
// Используется для расчёта проскальзывания (цена исполнения против
// цены подачи) и обвала цены в предохранителе.
//
// Примеры:
//   - PercentChange(100, 101) = 1.0
//   - PercentChange(100, 98.5) = -1.5
//   - PercentChange(0, 10) = 0 (защита от деления на ноль)
func PercentChange(base, current float64) float64 {
	if base == 0 {
		return 0
	}
	return (current - base) / base * 100
}

// WeightedAverage возвращает средневзвешенную цену двух объёмов.
//
// Используется при доборе позиции: новая цена входа взвешивается
// по размеру существующей и добавляемой части.
func WeightedAverage(price1, qty1, price2, qty2 float64) float64 {
	total := qty1 + qty2
	if total == 0 {
		return 0
	}
	return (price1*qty1 + price2*qty2) / total
}

// Clamp ограничивает значение диапазоном [lo, hi]
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
