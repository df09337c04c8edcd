package orders

import (
	"fmt"

	"github.com/kirillm/sniper-bot/internal/config"
	"github.com/kirillm/sniper-bot/internal/domain"
)

// Request описывает контекст будущего ордера для выбора способа исполнения
type Request struct {
	Contract        domain.Contract
	TransactionType string
	Quantity        int
	Scenario        domain.ScenarioTag
	Volatility      domain.Volatility
	Strength        domain.SignalStrength
	Premium         float64
}

// Selector выбирает между рыночным и лимитным исполнением.
// Выбор чистая функция от сценария, волатильности, силы сигнала и премии.
type Selector struct {
	th config.Thresholds
}

// NewSelector создает селектор способа исполнения
func NewSelector(th config.Thresholds) *Selector {
	return &Selector{th: th}
}

// Choose возвращает намерение ордера. Срочные сценарии всегда исполняются
// по рынку: скорость важнее цены. Остальные сценарии получают лимит
// в спокойном рынке с дорогой премией, чтобы не переплачивать.
func (s *Selector) Choose(req Request) domain.OrderIntent {
	intent := domain.OrderIntent{
		Contract:        req.Contract,
		TransactionType: req.TransactionType,
		Quantity:        req.Quantity,
		Method:          domain.OrderMarket,
	}

	switch req.Scenario {
	case domain.ScenarioGapAdverse, domain.ScenarioStopLoss,
		domain.ScenarioHighVolatility, domain.ScenarioExpiryDay,
		domain.ScenarioTimeExit:
		intent.Reason = fmt.Sprintf("urgent scenario %s, market order", req.Scenario)
		return intent
	}

	if req.Volatility == domain.VolatilityHigh {
		intent.Reason = "high volatility, market order"
		return intent
	}

	if req.Strength == domain.StrengthSuperStrong && req.Premium <= s.th.ReasonablePremium {
		intent.Reason = fmt.Sprintf("super strong signal, premium %.2f reasonable, market order", req.Premium)
		return intent
	}
	if req.Volatility == domain.VolatilityLow && req.Premium > s.th.ExpensivePremium {
		intent.Method = domain.OrderLimit
		intent.LimitPrice = req.Premium * (1 - s.th.LimitDiscountPercent/100)
		intent.Reason = fmt.Sprintf("calm market, premium %.2f expensive, limit at %.2f",
			req.Premium, intent.LimitPrice)
		return intent
	}

	intent.Reason = fmt.Sprintf("default market order for %s", req.Scenario)
	return intent
}

// ClassifyVolatility оценивает волатильность по среднему размаху последних
// свечей относительно цены закрытия
func ClassifyVolatility(candles []domain.Candle, th config.Thresholds) domain.Volatility {
	const window = 5
	if len(candles) < window {
		return domain.VolatilityMedium
	}
	sum := 0.0
	for _, c := range candles[len(candles)-window:] {
		if c.Close > 0 {
			sum += (c.High - c.Low) / c.Close * 100
		}
	}
	avg := sum / window
	switch {
	case avg >= th.HighVolatilityPercent:
		return domain.VolatilityHigh
	case avg <= th.LowVolatilityPercent:
		return domain.VolatilityLow
	default:
		return domain.VolatilityMedium
	}
}
