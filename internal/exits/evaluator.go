package exits

import (
	"fmt"
	"math"
	"time"

	"github.com/kirillm/sniper-bot/internal/config"
	"github.com/kirillm/sniper-bot/internal/confidence"
	"github.com/kirillm/sniper-bot/internal/domain"
	"github.com/kirillm/sniper-bot/internal/indicator"
	"github.com/kirillm/sniper-bot/pkg/utils"
)

// Evaluator проверяет условия выхода из позиции в порядке приоритета
type Evaluator struct {
	th       config.Thresholds
	provider confidence.Provider
	logger   *utils.Logger
}

// NewEvaluator создает оценщик условий выхода
func NewEvaluator(th config.Thresholds, provider confidence.Provider, logger *utils.Logger) *Evaluator {
	return &Evaluator{th: th, provider: provider, logger: logger}
}

// Evaluate возвращает первый сработавший триггер выхода или nil.
// Стоп-лосс и трейлинг-стоп имеют абсолютный приоритет: они проверяются
// раньше любых правил фиксации прибыли.
func (e *Evaluator) Evaluate(pos *domain.Position, snap *indicator.Snapshot, premium float64, now time.Time) *domain.ExitTrigger {
	if pos == nil || premium <= 0 {
		return nil
	}
	gain := pos.UnrealizedPercent(premium)

	if t := e.stopLoss(pos, gain); t != nil {
		return t
	}
	if t := e.trailingStop(pos, premium); t != nil {
		return t
	}
	if t := e.profitTarget(pos, premium); t != nil {
		return t
	}
	if t := e.swingPartial(pos, snap, gain); t != nil {
		return t
	}
	if t := e.trendCross(pos, snap); t != nil {
		return t
	}
	if t := e.volumeCollapse(snap); t != nil {
		return t
	}
	if t := e.slopeReversal(pos, snap, gain); t != nil {
		return t
	}
	if t := e.momentumWeak(pos, snap); t != nil {
		return t
	}
	return e.timeBased(pos, now)
}

// UpdateTrailing подтягивает уровень трейлинг-стопа вслед за растущей премией
func UpdateTrailing(pos *domain.Position, premium float64) {
	ts := pos.Trailing
	if ts == nil || !ts.Armed || premium <= 0 {
		return
	}
	candidate := premium * (1 - ts.TrailPercent/100)
	if candidate > ts.TriggerPrice {
		ts.TriggerPrice = candidate
	}
}

// PartialQuantity возвращает количество для частичного закрытия, округленное
// вниз до целого числа лотов. Если остаток после закрытия меньше одного лота,
// закрывается вся позиция.
func PartialQuantity(quantity, lotSize int, fraction float64) int {
	if lotSize <= 0 || quantity <= 0 {
		return quantity
	}
	target := float64(quantity) * fraction
	if float64(quantity)-target < float64(lotSize) {
		return quantity
	}
	closeLots := int(math.Floor(target / float64(lotSize)))
	if closeLots < 1 {
		closeLots = 1
	}
	return closeLots * lotSize
}

func (e *Evaluator) stopLoss(pos *domain.Position, gain float64) *domain.ExitTrigger {
	limit := pos.StopLossPercent
	if limit <= 0 {
		limit = e.th.StopLossPercent
	}
	if gain > -limit {
		return nil
	}
	return &domain.ExitTrigger{
		Kind:          domain.ExitStopLoss,
		CloseFraction: 1.0,
		Reason:        fmt.Sprintf("premium down %.1f%%, stop loss at %.0f%%", -gain, limit),
	}
}

func (e *Evaluator) trailingStop(pos *domain.Position, premium float64) *domain.ExitTrigger {
	ts := pos.Trailing
	if ts == nil || !ts.Armed || premium > ts.TriggerPrice {
		return nil
	}
	return &domain.ExitTrigger{
		Kind:          domain.ExitTrailingStop,
		CloseFraction: 1.0,
		Reason:        fmt.Sprintf("premium %.2f hit trailing stop %.2f", premium, ts.TriggerPrice),
	}
}

func (e *Evaluator) profitTarget(pos *domain.Position, premium float64) *domain.ExitTrigger {
	if pos.FullTarget > 0 && premium >= pos.FullTarget {
		return &domain.ExitTrigger{
			Kind:          domain.ExitProfitTarget,
			CloseFraction: 1.0,
			Reason:        fmt.Sprintf("premium %.2f reached full target %.2f", premium, pos.FullTarget),
		}
	}
	if !pos.PartialExitDone && pos.PartialTarget > 0 && premium >= pos.PartialTarget {
		return &domain.ExitTrigger{
			Kind:          domain.ExitProfitTarget,
			CloseFraction: 0.5,
			Reason:        fmt.Sprintf("premium %.2f reached partial target %.2f", premium, pos.PartialTarget),
		}
	}
	return nil
}

// swingPartial фиксирует половину позиции на локальном экстремуме базового
// актива при достаточной прибыли по премии
func (e *Evaluator) swingPartial(pos *domain.Position, snap *indicator.Snapshot, gain float64) *domain.ExitTrigger {
	if pos.PartialExitDone || snap == nil || gain < e.th.SwingProfitPercent {
		return nil
	}
	var hit bool
	var what string
	switch pos.Direction {
	case domain.Bullish:
		hit = indicator.IsSwingHigh(snap.Candles, e.th.SwingLookback)
		what = "swing high"
	case domain.Bearish:
		hit = indicator.IsSwingLow(snap.Candles, e.th.SwingLookback)
		what = "swing low"
	}
	if !hit {
		return nil
	}
	return &domain.ExitTrigger{
		Kind:          domain.ExitSwingPartial,
		CloseFraction: 0.5,
		Reason:        fmt.Sprintf("%s on underlying with %.1f%% premium gain", what, gain),
	}
}

// trendCross закрывает позицию при пересечении ценой 20-периодной средней
// против направления позиции
func (e *Evaluator) trendCross(pos *domain.Position, snap *indicator.Snapshot) *domain.ExitTrigger {
	if snap == nil {
		return nil
	}
	close0 := indicator.Last(closes(snap))
	close1 := indicator.Prev(closes(snap))
	sma0 := indicator.Last(snap.SMA20)
	sma1 := indicator.Prev(snap.SMA20)

	var crossed bool
	switch pos.Direction {
	case domain.Bullish:
		crossed = close1 >= sma1 && close0 < sma0
	case domain.Bearish:
		crossed = close1 <= sma1 && close0 > sma0
	}
	if !crossed {
		return nil
	}
	return &domain.ExitTrigger{
		Kind:          domain.ExitTrendCross,
		CloseFraction: 1.0,
		Reason:        fmt.Sprintf("underlying crossed SMA20 against %s position", pos.Direction),
	}
}

// volumeCollapse закрывает позицию при падении объема ниже доли от базового
func (e *Evaluator) volumeCollapse(snap *indicator.Snapshot) *domain.ExitTrigger {
	if snap == nil || len(snap.Candles) < e.th.VolumeBaselinePeriod+1 {
		return nil
	}
	baseline := indicator.VolumeBaseline(snap.Candles[:len(snap.Candles)-1], e.th.VolumeBaselinePeriod)
	if baseline <= 0 {
		return nil
	}
	current := snap.Candles[len(snap.Candles)-1].Volume
	ratio := current / baseline
	if ratio >= e.th.VolumeDropRatio {
		return nil
	}
	return &domain.ExitTrigger{
		Kind:          domain.ExitVolumeCollapse,
		CloseFraction: 1.0,
		Reason:        fmt.Sprintf("volume %.0f%% of baseline, below %.0f%%", ratio*100, e.th.VolumeDropRatio*100),
	}
}

// slopeReversal закрывает позицию когда наклон регрессии уходит в зону
// против позиции, а при достаточной прибыли также на расхождении цены
// и наклона за окно расхождения
func (e *Evaluator) slopeReversal(pos *domain.Position, snap *indicator.Snapshot, gain float64) *domain.ExitTrigger {
	if snap == nil || len(snap.LRSlope) == 0 {
		return nil
	}
	now := indicator.Last(snap.LRSlope)

	// знак наклона против позиции закрывает без условий по прибыли
	var crossed bool
	switch pos.Direction {
	case domain.Bullish:
		crossed = now < 0
	case domain.Bearish:
		crossed = now > 0
	}
	if crossed {
		return &domain.ExitTrigger{
			Kind:          domain.ExitSlopeReversal,
			CloseFraction: 1.0,
			Reason:        fmt.Sprintf("regression slope %.4f against %s position", now, pos.Direction),
		}
	}

	// расхождение: цена продолжает движение позиции, наклон слабеет
	n := len(snap.LRSlope)
	w := e.th.DivergenceWindow
	if gain < e.th.DivergenceMinProfit || w < 2 || n < w || len(snap.Candles) < w {
		return nil
	}
	then := snap.LRSlope[n-w]
	priceNow := snap.Candles[len(snap.Candles)-1].Close
	priceThen := snap.Candles[len(snap.Candles)-w].Close

	var diverged bool
	switch pos.Direction {
	case domain.Bullish:
		diverged = priceNow > priceThen && now < then
	case domain.Bearish:
		diverged = priceNow < priceThen && now > then
	}
	if !diverged {
		return nil
	}
	return &domain.ExitTrigger{
		Kind:          domain.ExitSlopeReversal,
		CloseFraction: 1.0,
		Reason:        fmt.Sprintf("price diverging from slope over %d periods with %.1f%% gain", w, gain),
	}
}

// momentumWeak закрывает позицию при падении оценки вероятностной модели
func (e *Evaluator) momentumWeak(pos *domain.Position, snap *indicator.Snapshot) *domain.ExitTrigger {
	if snap == nil || e.provider == nil {
		return nil
	}
	score := e.provider.Confidence(pos.Symbol, snap.Candles, pos.Direction)
	if score >= e.th.MomentumWeakBelow {
		return nil
	}
	return &domain.ExitTrigger{
		Kind:          domain.ExitMomentumWeak,
		CloseFraction: 1.0,
		Reason:        fmt.Sprintf("momentum confidence %.2f below %.2f", score, e.th.MomentumWeakBelow),
	}
}

// timeBased закрывает позицию перед недельной экспирацией и по таймауту свечей
func (e *Evaluator) timeBased(pos *domain.Position, now time.Time) *domain.ExitTrigger {
	if now.Weekday() == time.Weekday(e.th.WeeklyCutoffWeekday) {
		minutes := now.Hour()*60 + now.Minute()
		if minutes >= e.th.WeeklyCutoffHour*60+e.th.WeeklyCutoffMinute {
			return &domain.ExitTrigger{
				Kind:          domain.ExitTimeBased,
				CloseFraction: 1.0,
				Reason:        fmt.Sprintf("weekly cutoff %02d:%02d reached", e.th.WeeklyCutoffHour, e.th.WeeklyCutoffMinute),
			}
		}
	}
	if e.th.CandleTimeout > 0 && pos.CandlesSinceEntry >= e.th.CandleTimeout {
		return &domain.ExitTrigger{
			Kind:          domain.ExitTimeBased,
			CloseFraction: 1.0,
			Reason:        fmt.Sprintf("position held %d candles, timeout %d", pos.CandlesSinceEntry, e.th.CandleTimeout),
		}
	}
	return nil
}

func closes(snap *indicator.Snapshot) []float64 {
	out := make([]float64, len(snap.Candles))
	for i, c := range snap.Candles {
		out[i] = c.Close
	}
	return out
}
