package confidence

import "github.com/kirillm/sniper-bot/internal/domain"

const patternWindow = 10

// Heuristic реализует Provider через сопоставление ценового и объемного
// паттерна последних свечей с заданным направлением
type Heuristic struct{}

// NewHeuristic создает эвристический провайдер
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Confidence оценивает согласие последних свечей с направлением.
// Три компоненты с равным весом: доля свечей, закрывшихся по направлению;
// согласие общего наклона закрытий; рост объема на свечах по направлению.
// Результат зажат в (0.05, 0.95) чтобы ни один порог не срабатывал
// на вырожденных данных автоматически.
func (h *Heuristic) Confidence(symbol string, candles []domain.Candle, direction domain.Direction) float64 {
	if len(candles) < patternWindow {
		return 0.5
	}
	recent := candles[len(candles)-patternWindow:]

	var withTrend, volumeWithTrend, volumeCount float64
	for i := 1; i < len(recent); i++ {
		up := recent[i].Close > recent[i-1].Close
		aligned := (direction == domain.Bullish && up) || (direction == domain.Bearish && !up)
		if aligned {
			withTrend++
		}
		if recent[i].Volume > recent[i-1].Volume {
			volumeCount++
			if aligned {
				volumeWithTrend++
			}
		}
	}
	candleScore := withTrend / float64(len(recent)-1)

	volumeScore := 0.5
	if volumeCount > 0 {
		volumeScore = volumeWithTrend / volumeCount
	}

	slopeScore := 0.5
	first, last := recent[0].Close, recent[len(recent)-1].Close
	if first != 0 {
		move := (last - first) / first
		if direction == domain.Bearish {
			move = -move
		}
		switch {
		case move > 0.003:
			slopeScore = 0.9
		case move > 0:
			slopeScore = 0.65
		case move > -0.003:
			slopeScore = 0.35
		default:
			slopeScore = 0.1
		}
	}

	score := (candleScore + volumeScore + slopeScore) / 3
	return clamp(score, 0.05, 0.95)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Fixed возвращает всегда одно и то же значение; используется в тестах
type Fixed struct {
	Value float64
}

func (f Fixed) Confidence(string, []domain.Candle, domain.Direction) float64 {
	return f.Value
}
