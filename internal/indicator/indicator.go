package indicator

import (
	"fmt"
	"math"

	"github.com/kirillm/sniper-bot/internal/domain"
)

// MinCandles минимальное число свечей для осмысленного снапшота.
// Серии с большим периодом (SMA 200) просто остаются в зоне прогрева:
// сравнение с NaN дает false и соответствующее условие не засчитывается.
const MinCandles = 30

// Snapshot содержит производные серии по одному инструменту.
// Все серии выровнены по индексам со свечами; значения до прогрева — NaN.
type Snapshot struct {
	Candles []domain.Candle

	EMA9   []float64
	SMA20  []float64
	EMA50  []float64
	SMA200 []float64 // на максимумах свечей

	RSI     []float64 // период 21 на OHLC/4
	RSIMA9  []float64
	RSIMA14 []float64
	RSIMA26 []float64

	LRSlope []float64 // линейная регрессия по 21 максимуму
	PVI     []float64 // positive volume index, база 1000
}

// Compute строит снапшот производных серий из истории свечей
func Compute(candles []domain.Candle) (*Snapshot, error) {
	if len(candles) < MinCandles {
		return nil, fmt.Errorf("%w: need at least %d candles, got %d",
			domain.ErrDataUnavailable, MinCandles, len(candles))
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	ohlc4 := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		ohlc4[i] = (c.Open + c.High + c.Low + c.Close) / 4
	}

	rsi := RSI(ohlc4, 21)

	return &Snapshot{
		Candles: candles,
		EMA9:    EMA(closes, 9),
		SMA20:   SMA(closes, 20),
		EMA50:   EMA(closes, 50),
		SMA200:  SMA(highs, 200),
		RSI:     rsi,
		RSIMA9:  SMA(rsi, 9),
		RSIMA14: SMA(rsi, 14),
		RSIMA26: SMA(rsi, 26),
		LRSlope: LRSlope(highs, 21),
		PVI:     PVI(candles),
	}, nil
}

// Last возвращает последнее значение серии
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// Prev возвращает предпоследнее значение серии
func Prev(series []float64) float64 {
	if len(series) < 2 {
		return math.NaN()
	}
	return series[len(series)-2]
}

// SMA считает простую скользящую среднюю, NaN до прогрева
func SMA(values []float64, period int) []float64 {
	out := warmup(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA считает экспоненциальную скользящую среднюю (span, adjust=false)
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI считает RSI со скользящим средним приростов (без сглаживания
// Уайлдера), NaN до прогрева
func RSI(values []float64, period int) []float64 {
	out := warmup(len(values))
	if period <= 0 || len(values) <= period {
		return out
	}

	gains := make([]float64, len(values))
	losses := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	var gainSum, lossSum float64
	for i := 1; i < len(values); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i >= period {
			avgGain := gainSum / float64(period)
			avgLoss := lossSum / float64(period)
			if avgLoss == 0 {
				out[i] = 100.0
				continue
			}
			rs := avgGain / avgLoss
			out[i] = 100.0 - 100.0/(1.0+rs)
		}
	}
	return out
}

// LRSlope считает наклон линейной регрессии в окне period, NaN до прогрева
func LRSlope(values []float64, period int) []float64 {
	out := warmup(len(values))
	if period <= 1 || len(values) <= period {
		return out
	}

	// для x = 0..period-1 суммы фиксированы
	n := float64(period)
	sumX := n * (n - 1) / 2
	sumXX := (n - 1) * n * (2*n - 1) / 6
	denom := n*sumXX - sumX*sumX

	for i := period; i < len(values); i++ {
		var sumY, sumXY float64
		for j := 0; j < period; j++ {
			y := values[i-period+j]
			sumY += y
			sumXY += float64(j) * y
		}
		out[i] = (n*sumXY - sumX*sumY) / denom
	}
	return out
}

// PVI считает positive volume index: индекс меняется только на свечах
// с ростом объема относительно предыдущей
func PVI(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	if len(candles) == 0 {
		return out
	}
	out[0] = 1000.0
	for i := 1; i < len(candles); i++ {
		out[i] = out[i-1]
		if candles[i].Volume > candles[i-1].Volume && candles[i-1].Close != 0 {
			change := (candles[i].Close - candles[i-1].Close) / candles[i-1].Close
			out[i] = out[i-1] * (1 + change)
		}
	}
	return out
}

// VolumeBaseline возвращает скользящую среднюю объема за period свечей
func VolumeBaseline(candles []domain.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Volume
	}
	return sum / float64(period)
}

// IsSwingHigh проверяет является ли последний максимум локальным экстремумом
// в окне lookback свечей
func IsSwingHigh(candles []domain.Candle, lookback int) bool {
	if len(candles) < lookback {
		return false
	}
	last := candles[len(candles)-1].High
	for i := len(candles) - lookback; i < len(candles); i++ {
		if candles[i].High > last {
			return false
		}
	}
	return true
}

// IsSwingLow проверяет является ли последний минимум локальным экстремумом
// в окне lookback свечей
func IsSwingLow(candles []domain.Candle, lookback int) bool {
	if len(candles) < lookback {
		return false
	}
	last := candles[len(candles)-1].Low
	for i := len(candles) - lookback; i < len(candles); i++ {
		if candles[i].Low < last {
			return false
		}
	}
	return true
}

// warmup возвращает серию длины n, целиком заполненную NaN;
// вычисленные значения перезаписываются вызывающим
func warmup(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
