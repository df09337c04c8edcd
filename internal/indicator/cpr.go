package indicator

import "math"

// CPRLevels представляет центральный пивотный диапазон, рассчитанный
// по high/low/close предыдущей сессии
type CPRLevels struct {
	Pivot  float64
	Top    float64
	Bottom float64
	Width  float64
	Narrow bool // узкий диапазон: ширина < 0.5% от пивота
}

// CPR считает уровни пивотного диапазона по предыдущей сессии
func CPR(high, low, close float64) CPRLevels {
	pivot := (high + low + close) / 3
	bc := (high + low) / 2
	tc := 2*pivot - bc

	top := math.Max(tc, bc)
	bottom := math.Min(tc, bc)
	width := top - bottom

	return CPRLevels{
		Pivot:  pivot,
		Top:    top,
		Bottom: bottom,
		Width:  width,
		Narrow: width < pivot*0.005,
	}
}

// NearLevel проверяет находится ли цена в пределах tolerance (долей уровня)
// от заданного уровня
func NearLevel(price, level, tolerance float64) bool {
	if level == 0 {
		return false
	}
	band := math.Abs(level) * tolerance
	return price >= level-band && price <= level+band
}
