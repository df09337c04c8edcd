package signal

import (
	"fmt"
	"time"

	"github.com/kirillm/sniper-bot/internal/confidence"
	"github.com/kirillm/sniper-bot/internal/domain"
	"github.com/kirillm/sniper-bot/internal/indicator"
	"github.com/kirillm/sniper-bot/pkg/utils"
)

// Input содержит рыночные данные для оценки сигнала по одному инструменту
type Input struct {
	Symbol    string
	Snapshot  *indicator.Snapshot
	CPR       indicator.CPRLevels
	LivePrice float64
}

// Condition представляет голос одного правила за направление
type Condition struct {
	Name      string
	Direction domain.Direction // пустое значение: правило не голосует
	Reason    string
	Bonus     float64 // дополнительный вклад в уверенность сверх 1.0
	Scenario  string  // заполняется только правилом пивотного диапазона
}

// Evaluator оценивает пять условий входа и формирует торговый сигнал
type Evaluator struct {
	provider     confidence.Provider
	aiSupportMin float64
	logger       *utils.Logger
}

// NewEvaluator создает оценщик сигналов
func NewEvaluator(provider confidence.Provider, aiSupportMin float64, logger *utils.Logger) *Evaluator {
	return &Evaluator{
		provider:     provider,
		aiSupportMin: aiSupportMin,
		logger:       logger,
	}
}

// Evaluate возвращает сигнал или nil, если условия входа не выполнены.
// Направление определяется большинством голосов: минимум 4 из 5 условий,
// либо ровно 3 при максимум одном противоположном голосе и подтверждении
// вероятностной модели не ниже порога.
func (e *Evaluator) Evaluate(in Input) *domain.Signal {
	if in.Snapshot == nil || len(in.Snapshot.Candles) == 0 {
		return nil
	}

	conditions := e.Conditions(in)

	var bull, bear []Condition
	for _, c := range conditions {
		switch c.Direction {
		case domain.Bullish:
			bull = append(bull, c)
		case domain.Bearish:
			bear = append(bear, c)
		}
	}

	direction, agreeing := dominant(bull, bear)
	if direction == "" {
		return nil
	}

	count := len(agreeing)
	opposing := len(bull) + len(bear) - count
	if count < 3 {
		return nil
	}

	conf := 0.0
	reasons := make([]string, 0, count)
	scenario := ""
	for _, c := range agreeing {
		conf += 1.0 + c.Bonus
		reasons = append(reasons, c.Reason)
		if c.Scenario != "" {
			scenario = c.Scenario
		}
	}

	var strength domain.SignalStrength
	switch {
	case count >= 5:
		strength = domain.StrengthSuperStrong
		conf += 2.0
	case count == 4:
		strength = domain.StrengthValid
		conf += 1.0
	default:
		// ровно 3 голоса: нужен перевес и поддержка модели
		if opposing > 1 {
			return nil
		}
		score := e.provider.Confidence(in.Symbol, in.Snapshot.Candles, direction)
		if score < e.aiSupportMin {
			e.logger.Debug("🤖 %s: 3/5 conditions, model score %.2f below %.2f, skipping",
				in.Symbol, score, e.aiSupportMin)
			return nil
		}
		strength = domain.StrengthAISupported
		conf += score
		reasons = append(reasons, fmt.Sprintf("model confidence %.2f", score))
	}

	e.logger.Info("🎯 %s: %s signal %s (%d/5 conditions, confidence %.2f)",
		in.Symbol, direction, strength, count, conf)

	return &domain.Signal{
		Symbol:         in.Symbol,
		Direction:      direction,
		ConditionCount: count,
		Confidence:     conf,
		Strength:       strength,
		Reasons:        reasons,
		CPRScenario:    scenario,
		Timestamp:      time.Now(),
	}
}

// Conditions вычисляет голоса всех пяти правил. Порядок детерминирован:
// иерархия средних, иерархия RSI, наклон регрессии, PVI, пивотный диапазон.
func (e *Evaluator) Conditions(in Input) []Condition {
	snap := in.Snapshot
	out := make([]Condition, 0, 5)

	out = append(out, maHierarchy(snap, in.LivePrice))
	out = append(out, rsiHierarchy(snap))
	out = append(out, slopeVote(snap))
	out = append(out, pviVote(snap))
	out = append(out, e.cprVote(in))

	return out
}

// maHierarchy проверяет строгую иерархию цены и скользящих средних
func maHierarchy(snap *indicator.Snapshot, price float64) Condition {
	c := Condition{Name: "ma_hierarchy"}
	ema9 := indicator.Last(snap.EMA9)
	sma20 := indicator.Last(snap.SMA20)
	ema50 := indicator.Last(snap.EMA50)
	sma200 := indicator.Last(snap.SMA200)

	switch {
	case price > ema9 && ema9 > sma20 && sma20 > ema50 && ema50 > sma200:
		c.Direction = domain.Bullish
		c.Reason = "price above EMA9 > SMA20 > EMA50 > SMA200"
	case price < ema9 && ema9 < sma20 && sma20 < ema50 && ema50 < sma200:
		c.Direction = domain.Bearish
		c.Reason = "price below EMA9 < SMA20 < EMA50 < SMA200"
	}
	return c
}

// rsiHierarchy проверяет расположение RSI относительно его средних
func rsiHierarchy(snap *indicator.Snapshot) Condition {
	c := Condition{Name: "rsi_hierarchy"}
	rsi := indicator.Last(snap.RSI)
	ma9 := indicator.Last(snap.RSIMA9)
	ma14 := indicator.Last(snap.RSIMA14)
	ma26 := indicator.Last(snap.RSIMA26)

	switch {
	case rsi > ma9 && ma9 > ma14 && ma14 > ma26:
		c.Direction = domain.Bullish
		c.Reason = fmt.Sprintf("RSI %.1f above rising averages", rsi)
	case rsi < ma9 && ma9 < ma14 && ma14 < ma26:
		c.Direction = domain.Bearish
		c.Reason = fmt.Sprintf("RSI %.1f below falling averages", rsi)
	}
	return c
}

// slopeVote голосует по знаку наклона линейной регрессии максимумов
func slopeVote(snap *indicator.Snapshot) Condition {
	c := Condition{Name: "lr_slope"}
	slope := indicator.Last(snap.LRSlope)

	switch {
	case slope > 0:
		c.Direction = domain.Bullish
		c.Reason = fmt.Sprintf("regression slope %.2f rising", slope)
	case slope < 0:
		c.Direction = domain.Bearish
		c.Reason = fmt.Sprintf("regression slope %.2f falling", slope)
	}
	return c
}

// pviVote голосует по направлению индекса положительного объема
func pviVote(snap *indicator.Snapshot) Condition {
	c := Condition{Name: "pvi"}
	cur := indicator.Last(snap.PVI)
	prev := indicator.Prev(snap.PVI)

	switch {
	case cur > prev:
		c.Direction = domain.Bullish
		c.Reason = "positive volume index rising"
	case cur < prev:
		c.Direction = domain.Bearish
		c.Reason = "positive volume index falling"
	}
	return c
}

// cprVote голосует по сценарию пивотного диапазона предыдущей сессии
func (e *Evaluator) cprVote(in Input) Condition {
	c := Condition{Name: "cpr"}
	closes := make([]float64, 0, len(in.Snapshot.Candles))
	for _, cd := range in.Snapshot.Candles {
		closes = append(closes, cd.Close)
	}

	scenario := AnalyzeCPR(in.CPR, in.LivePrice, closes)
	if scenario == nil {
		return c
	}
	c.Direction = scenario.Direction
	c.Reason = scenario.Reason
	c.Scenario = scenario.Scenario
	c.Bonus = scenario.Confidence - 1.0
	if c.Bonus < 0 {
		c.Bonus = 0
	}
	return c
}

func dominant(bull, bear []Condition) (domain.Direction, []Condition) {
	switch {
	case len(bull) > len(bear):
		return domain.Bullish, bull
	case len(bear) > len(bull):
		return domain.Bearish, bear
	default:
		return "", nil
	}
}
