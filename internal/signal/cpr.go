package signal

import (
	"fmt"
	"math"

	"github.com/kirillm/sniper-bot/internal/domain"
	"github.com/kirillm/sniper-bot/internal/indicator"
)

// Сценарии взаимодействия цены с пивотным диапазоном
const (
	ScenarioCPRRejection = "cpr_rejection" // отбой от границы, продолжение тренда
	ScenarioCPRBreakout  = "cpr_breakout"  // пробой границы, потенциальный разворот
)

const (
	levelTolerance    = 0.002 // 0.2% зона касания уровня
	breakoutMargin    = 0.003 // 0.3% за уровнем считается пробоем
	rejectionMinScore = 0.6
	breakoutMinScore  = 0.7
)

// CPRScenario представляет распознанный сценарий пивотного диапазона
type CPRScenario struct {
	Scenario   string
	Direction  domain.Direction
	Strength   float64 // сила сценария в (0,1]
	Confidence float64 // вклад в уверенность сигнала
	Reason     string
}

// AnalyzeCPR классифицирует положение цены относительно пивотного диапазона
// по последним closes. Отбой оценивается до пробоя: на границе диапазона
// сценарий продолжения приоритетнее разворота при равной силе.
func AnalyzeCPR(levels indicator.CPRLevels, price float64, closes []float64) *CPRScenario {
	if len(closes) < 3 || levels.Pivot == 0 {
		return nil
	}

	if s := analyzeRejection(levels, price, closes); s != nil {
		return s
	}
	return analyzeBreakout(levels, price, closes)
}

func analyzeRejection(levels indicator.CPRLevels, price float64, closes []float64) *CPRScenario {
	// касание нижней границы и отбой вверх: бычье продолжение
	if indicator.NearLevel(price, levels.Bottom, levelTolerance) && touchedBelow(closes, levels.Bottom) {
		strength := rejectionStrength(price, levels.Bottom, closes)
		if strength > rejectionMinScore {
			return &CPRScenario{
				Scenario:   ScenarioCPRRejection,
				Direction:  domain.Bullish,
				Strength:   strength,
				Confidence: strength * 2.5,
				Reason:     fmt.Sprintf("CPR: rejection from support %.1f", levels.Bottom),
			}
		}
	}

	// касание верхней границы и отбой вниз: медвежье продолжение
	if indicator.NearLevel(price, levels.Top, levelTolerance) && touchedAbove(closes, levels.Top) {
		strength := rejectionStrength(price, levels.Top, closes)
		if strength > rejectionMinScore {
			return &CPRScenario{
				Scenario:   ScenarioCPRRejection,
				Direction:  domain.Bearish,
				Strength:   strength,
				Confidence: strength * 2.5,
				Reason:     fmt.Sprintf("CPR: rejection from resistance %.1f", levels.Top),
			}
		}
	}
	return nil
}

func analyzeBreakout(levels indicator.CPRLevels, price float64, closes []float64) *CPRScenario {
	// уверенный выход над верхней границей: бычий пробой
	if price > levels.Top*(1+breakoutMargin) && crossedFromBelow(closes, levels.Top) {
		strength := breakoutStrength(price, levels.Top, closes)
		if strength > breakoutMinScore {
			return &CPRScenario{
				Scenario:   ScenarioCPRBreakout,
				Direction:  domain.Bullish,
				Strength:   strength,
				Confidence: strength * 3.0,
				Reason:     fmt.Sprintf("CPR: breakout above resistance %.1f", levels.Top),
			}
		}
	}

	// уверенный выход под нижней границей: медвежий пробой
	if price < levels.Bottom*(1-breakoutMargin) && crossedFromAbove(closes, levels.Bottom) {
		strength := breakoutStrength(price, levels.Bottom, closes)
		if strength > breakoutMinScore {
			return &CPRScenario{
				Scenario:   ScenarioCPRBreakout,
				Direction:  domain.Bearish,
				Strength:   strength,
				Confidence: strength * 3.0,
				Reason:     fmt.Sprintf("CPR: breakdown below support %.1f", levels.Bottom),
			}
		}
	}
	return nil
}

// rejectionStrength комбинирует удаление от уровня и импульс последних свечей
func rejectionStrength(price, level float64, closes []float64) float64 {
	distance := math.Abs(price-level) / level
	momentum := 0.0
	if n := len(closes); n >= 3 && closes[n-3] != 0 {
		momentum = math.Abs(closes[n-1]-closes[n-3]) / closes[n-3]
	}
	return math.Min(distance*10+0.8+momentum*2, 1.0)
}

// breakoutStrength требует большего импульса чем отбой
func breakoutStrength(price, level float64, closes []float64) float64 {
	distance := math.Abs(price-level) / level
	momentum := 0.0
	if n := len(closes); n >= 2 && closes[n-2] != 0 {
		momentum = math.Abs(closes[n-1]-closes[n-2]) / closes[n-2]
	}
	return math.Min(distance*15+0.9+momentum*3, 1.0)
}

func touchedBelow(closes []float64, level float64) bool {
	band := level * (1 + levelTolerance)
	for _, c := range tail(closes, 3) {
		if c < band {
			return true
		}
	}
	return false
}

func touchedAbove(closes []float64, level float64) bool {
	band := level * (1 - levelTolerance)
	for _, c := range tail(closes, 3) {
		if c > band {
			return true
		}
	}
	return false
}

func crossedFromBelow(closes []float64, level float64) bool {
	for _, c := range tail(closes, 2) {
		if c <= level {
			return true
		}
	}
	return false
}

func crossedFromAbove(closes []float64, level float64) bool {
	for _, c := range tail(closes, 2) {
		if c >= level {
			return true
		}
	}
	return false
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
