package confidence

import "github.com/kirillm/sniper-bot/internal/domain"

// Provider выдает эвристическую оценку уверенности в (0,1) для направления
// по инструменту. Оценка непрозрачна для движка: state machine использует
// только пороги и не знает как она получена, поэтому провайдер можно
// заменить заглушкой в тестах или статистической моделью.
type Provider interface {
	Confidence(symbol string, candles []domain.Candle, direction domain.Direction) float64
}
