package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirillm/sniper-bot/internal/config"
	"github.com/kirillm/sniper-bot/internal/domain"
	"github.com/kirillm/sniper-bot/internal/exits"
	"github.com/kirillm/sniper-bot/internal/indicator"
	"github.com/kirillm/sniper-bot/internal/orders"
	"github.com/kirillm/sniper-bot/internal/signal"
)

// История запрашивается в двух разрезах: индикаторный стек считается по
// 30-минутным свечам, пивоты и гэп открытия — по дневным сессиям
const (
	indicatorInterval = "30minute"
	indicatorDays     = 45 // SMA200 на 30-минутках плюс запас на выходные
	sessionDays       = 10
)

// process выполняет один проход по инструменту: данные, открытая позиция
// или поиск входа
func (e *Engine) process(ctx context.Context, symbol string) error {
	inst := e.trading.Instruments[symbol]
	now := time.Now().In(e.loc)

	candles, err := e.broker.Candles(ctx, inst.Exchange, symbol, indicatorInterval,
		now.AddDate(0, 0, -indicatorDays), now)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}
	sessions, err := e.broker.Candles(ctx, inst.Exchange, symbol, "day",
		now.AddDate(0, 0, -sessionDays), now)
	if err != nil {
		return fmt.Errorf("fetch daily candles: %w", err)
	}

	snap, err := indicator.Compute(candles)
	if err != nil {
		return fmt.Errorf("compute indicators: %w", err)
	}

	// пивотный диапазон строится по предыдущей сессии
	var cpr indicator.CPRLevels
	if n := len(sessions); n >= 2 {
		prev := sessions[n-2]
		cpr = indicator.CPR(prev.High, prev.Low, prev.Close)
	}
	spot := candles[len(candles)-1].Close

	if pos, ok := e.ledger.Position(symbol); ok {
		return e.managePosition(ctx, &pos, inst, snap, cpr, spot, candles, sessions, now)
	}
	return e.tryEntry(ctx, symbol, inst, snap, cpr, spot, candles, now)
}

// managePosition ведет открытую позицию: гэп, трейлинг, выходы, ролловер
func (e *Engine) managePosition(ctx context.Context, pos *domain.Position, inst config.Instrument,
	snap *indicator.Snapshot, cpr indicator.CPRLevels, spot float64, candles, sessions []domain.Candle, now time.Time) error {

	// незавершенный ролловер: контракт уже заменен на новую серию, но вход
	// по ней не исполнен. Правила гэпов и выходов к такой позиции
	// неприменимы, цикл только доисполняет входную ногу.
	if pos.PendingRoll {
		e.logger.Info("🔧 Retrying rollover entry leg for %s -> %s", pos.Symbol, pos.Contract.TradingSymbol)
		return e.completeRoll(ctx, pos, inst, now)
	}

	premium, err := e.broker.LTP(ctx, inst.Exchange, pos.Contract.TradingSymbol)
	if err != nil {
		return fmt.Errorf("fetch premium: %w", err)
	}

	e.advanceCandleCounter(pos, candles)

	// встречный гэп обрабатывается раньше любых других правил
	if trigger := e.checkGap(pos, sessions, premium, now); trigger != nil {
		return e.executeExit(ctx, pos, inst, trigger, premium, candles, now)
	}

	exits.UpdateTrailing(pos, premium)
	e.persistTrailing(pos)

	if trigger := e.exits.Evaluate(pos, snap, premium, now); trigger != nil {
		return e.executeExit(ctx, pos, inst, trigger, premium, candles, now)
	}

	if decision := e.rolls.Assess(pos, inst, spot, now); decision != nil {
		ok, reason := e.rolls.ShouldExecute(decision, pos.UnrealizedPercent(premium))
		if ok {
			return e.executeRoll(ctx, pos, inst, decision, premium, candles, now, reason)
		}
		e.logger.Debug("⏭ %s: %s", pos.Symbol, reason)
	}
	return nil
}

// advanceCandleCounter увеличивает счетчик свечей позиции при появлении
// новой свечи базового актива
func (e *Engine) advanceCandleCounter(pos *domain.Position, candles []domain.Candle) {
	latest := candles[len(candles)-1].Time

	e.mu.Lock()
	seen, ok := e.lastCandle[pos.Symbol]
	e.lastCandle[pos.Symbol] = latest
	e.mu.Unlock()

	if !ok || !latest.After(seen) {
		return
	}
	if err := e.ledger.UpdatePosition(pos.Symbol, func(p *domain.Position) {
		p.CandlesSinceEntry++
	}); err != nil {
		e.logger.Error("Failed to advance candle counter for %s: %v", pos.Symbol, err)
		return
	}
	pos.CandlesSinceEntry++
}

// checkGap оценивает гэп открытия один раз за сессию по дневным свечам
func (e *Engine) checkGap(pos *domain.Position, sessions []domain.Candle, premium float64, now time.Time) *domain.ExitTrigger {
	n := len(sessions)
	if n < 2 {
		return nil
	}
	last := sessions[n-1]
	today := now.Format("2006-01-02")
	if last.Time.In(e.loc).Format("2006-01-02") != today {
		return nil
	}

	e.mu.Lock()
	handled := e.gapHandled[pos.Symbol] == today
	if !handled {
		e.gapHandled[pos.Symbol] = today
	}
	e.mu.Unlock()
	if handled {
		return nil
	}

	event, trigger := e.gaps.Evaluate(pos, sessions[n-2].Close, last.Open, premium, now)
	if event == nil {
		return nil
	}

	if event.Action == domain.GapActionArmTrailing {
		e.persistTrailing(pos)
	}
	e.notifier.Notify(domain.Event{
		Type:      domain.EventGap,
		Symbol:    pos.Symbol,
		Message:   event.Reason,
		Timestamp: now,
	})
	return trigger
}

// persistTrailing сохраняет состояние трейлинг-стопа в реестре
func (e *Engine) persistTrailing(pos *domain.Position) {
	if pos.Trailing == nil {
		return
	}
	ts := *pos.Trailing
	if err := e.ledger.UpdatePosition(pos.Symbol, func(p *domain.Position) {
		p.Trailing = &ts
	}); err != nil {
		e.logger.Error("Failed to persist trailing stop for %s: %v", pos.Symbol, err)
	}
}

// tryEntry ищет сигнал входа и открывает позицию в пределах дневных лимитов
func (e *Engine) tryEntry(ctx context.Context, symbol string, inst config.Instrument,
	snap *indicator.Snapshot, cpr indicator.CPRLevels, spot float64, candles []domain.Candle, now time.Time) error {

	sig := e.signals.Evaluate(signal.Input{
		Symbol:    symbol,
		Snapshot:  snap,
		CPR:       cpr,
		LivePrice: spot,
	})
	if sig == nil {
		return nil
	}

	th := e.trading.Thresholds
	contract := orders.BuildEntryContract(symbol, inst, spot, sig.Direction, now, th)
	premium, err := e.broker.LTP(ctx, inst.Exchange, contract.TradingSymbol)
	if err != nil {
		return fmt.Errorf("fetch entry premium: %w", err)
	}
	qty, err := orders.SizePosition(e.trading.Capital, premium, inst.LotSize, th)
	if err != nil {
		return err
	}
	if qty == 0 {
		e.logger.Debug("💸 %s: premium %.2f too expensive for capital slice, skipping", symbol, premium)
		return nil
	}

	if err := e.ledger.AdmitEntry(symbol, now); err != nil {
		if errors.Is(err, domain.ErrRiskLimitExceeded) || errors.Is(err, domain.ErrPositionExists) {
			e.logger.Debug("🚧 %s: entry rejected: %v", symbol, err)
			return nil
		}
		return err
	}

	intent := e.selector.Choose(orders.Request{
		Contract:        contract,
		TransactionType: domain.SideBuy,
		Quantity:        qty,
		Scenario:        domain.ScenarioEntry,
		Volatility:      orders.ClassifyVolatility(candles, th),
		Strength:        sig.Strength,
		Premium:         premium,
	})

	orderID, err := e.broker.PlaceOrder(ctx, inst.Exchange, intent)
	if err != nil {
		if relErr := e.ledger.ReleaseEntry(); relErr != nil {
			e.logger.Error("Failed to release entry slot for %s: %v", symbol, relErr)
		}
		e.notifyError(symbol, fmt.Sprintf("entry order failed: %v", err))
		return err
	}

	pos := domain.Position{
		Symbol:          symbol,
		Contract:        contract,
		Direction:       sig.Direction,
		EntryPrice:      premium,
		Quantity:        qty,
		EntryTime:       now,
		State:           domain.PositionOpen,
		StopLossPercent: th.StopLossPercent,
		PartialTarget:   premium * th.PartialTargetMultiple,
		FullTarget:      premium * th.FullTargetMultiple,
		EntryReasons:    sig.Reasons,
	}
	if err := e.ledger.AddPosition(pos); err != nil {
		return fmt.Errorf("record position: %w", err)
	}

	e.saveTrade(symbol, contract.TradingSymbol, domain.SideBuy, qty, premium, orderID,
		string(domain.ScenarioEntry), intent.Reason, now)
	e.notifier.Notify(domain.Event{
		Type:      domain.EventEntry,
		Symbol:    symbol,
		Position:  &pos,
		Reasons:   sig.Reasons,
		Timestamp: now,
	})
	return nil
}

// executeExit закрывает позицию полностью или частично
func (e *Engine) executeExit(ctx context.Context, pos *domain.Position, inst config.Instrument,
	trigger *domain.ExitTrigger, premium float64, candles []domain.Candle, now time.Time) error {

	qty := pos.Quantity
	full := trigger.CloseFraction >= 1.0
	if !full {
		qty = exits.PartialQuantity(pos.Quantity, inst.LotSize, trigger.CloseFraction)
		full = qty == pos.Quantity
	}

	intent := e.selector.Choose(orders.Request{
		Contract:        pos.Contract,
		TransactionType: domain.SideSell,
		Quantity:        qty,
		Scenario:        scenarioFor(trigger.Kind),
		Volatility:      orders.ClassifyVolatility(candles, e.trading.Thresholds),
		Strength:        domain.StrengthNone,
		Premium:         premium,
	})

	orderID, err := e.broker.PlaceOrder(ctx, inst.Exchange, intent)
	if err != nil {
		e.notifyError(pos.Symbol, fmt.Sprintf("exit order failed (%s): %v", trigger.Kind, err))
		return err
	}

	pnl := (premium - pos.EntryPrice) * float64(qty)
	e.addRealized(pnl)
	e.saveTrade(pos.Symbol, pos.Contract.TradingSymbol, domain.SideSell, qty, premium, orderID,
		string(trigger.Kind), trigger.Reason, now)

	eventType := domain.EventPartialExit
	if full {
		eventType = domain.EventFullExit
		if err := e.ledger.RemovePosition(pos.Symbol); err != nil {
			return fmt.Errorf("remove position: %w", err)
		}
	} else {
		if err := e.ledger.UpdatePosition(pos.Symbol, func(p *domain.Position) {
			p.Quantity -= qty
			p.PartialExitDone = true
			p.State = domain.PositionPartiallyClosed
		}); err != nil {
			return fmt.Errorf("update position: %w", err)
		}
	}

	e.notifier.Notify(domain.Event{
		Type:      eventType,
		Symbol:    pos.Symbol,
		Quantity:  qty,
		Premium:   premium,
		PnL:       pnl,
		PnLPct:    pos.UnrealizedPercent(premium),
		Message:   trigger.Reason,
		Timestamp: now,
	})
	return nil
}

// executeRoll переносит позицию в следующую серию двумя ногами.
// Между ногами позиция помечена pending_roll: после сбоя вторая нога
// доисполняется при старте.
func (e *Engine) executeRoll(ctx context.Context, pos *domain.Position, inst config.Instrument,
	decision *domain.RolloverDecision, premium float64, candles []domain.Candle, now time.Time, reason string) error {

	// при срочном переносе экспирация на носу, скорость исполнения важнее цены
	scenario := domain.ScenarioRollover
	if decision.Urgency == domain.UrgencyUrgent {
		scenario = domain.ScenarioExpiryDay
	}
	exitIntent := e.selector.Choose(orders.Request{
		Contract:        pos.Contract,
		TransactionType: domain.SideSell,
		Quantity:        pos.Quantity,
		Scenario:        scenario,
		Volatility:      orders.ClassifyVolatility(candles, e.trading.Thresholds),
		Strength:        domain.StrengthNone,
		Premium:         premium,
	})
	exitOrderID, err := e.broker.PlaceOrder(ctx, inst.Exchange, exitIntent)
	if err != nil {
		e.notifyError(pos.Symbol, fmt.Sprintf("rollover exit leg failed: %v", err))
		return err
	}

	pnl := (premium - pos.EntryPrice) * float64(pos.Quantity)
	e.addRealized(pnl)
	e.saveTrade(pos.Symbol, pos.Contract.TradingSymbol, domain.SideSell, pos.Quantity, premium,
		exitOrderID, string(scenario), reason, now)

	// фиксируем цель до второй ноги: рестарт между ногами доисполнит вход
	target := decision.Target
	if err := e.ledger.UpdatePosition(pos.Symbol, func(p *domain.Position) {
		p.Contract = target
		p.PendingRoll = true
	}); err != nil {
		return fmt.Errorf("mark pending roll: %w", err)
	}
	pos.Contract = target

	if err := e.completeRoll(ctx, pos, inst, now); err != nil {
		return err
	}

	e.notifier.Notify(domain.Event{
		Type:      domain.EventRollover,
		Symbol:    pos.Symbol,
		Message:   fmt.Sprintf("rolled to %s (%s), leg pnl %+.2f", target.TradingSymbol, reason, pnl),
		Timestamp: now,
	})
	return nil
}

// completeRoll исполняет входную ногу ролловера по контракту из реестра
func (e *Engine) completeRoll(ctx context.Context, pos *domain.Position, inst config.Instrument, now time.Time) error {
	premium, err := e.broker.LTP(ctx, inst.Exchange, pos.Contract.TradingSymbol)
	if err != nil {
		return fmt.Errorf("fetch roll premium: %w", err)
	}

	intent := e.selector.Choose(orders.Request{
		Contract:        pos.Contract,
		TransactionType: domain.SideBuy,
		Quantity:        pos.Quantity,
		Scenario:        domain.ScenarioRollover,
		Volatility:      domain.VolatilityMedium,
		Strength:        domain.StrengthNone,
		Premium:         premium,
	})
	orderID, err := e.broker.PlaceOrder(ctx, inst.Exchange, intent)
	if err != nil {
		e.notifyError(pos.Symbol, fmt.Sprintf("rollover entry leg failed, position pending: %v", err))
		return err
	}

	th := e.trading.Thresholds
	if err := e.ledger.UpdatePosition(pos.Symbol, func(p *domain.Position) {
		p.EntryPrice = premium
		p.EntryTime = now
		p.CandlesSinceEntry = 0
		p.State = domain.PositionOpen
		p.PartialExitDone = false
		p.PartialTarget = premium * th.PartialTargetMultiple
		p.FullTarget = premium * th.FullTargetMultiple
		p.Trailing = nil
		p.PendingRoll = false
	}); err != nil {
		return fmt.Errorf("complete roll: %w", err)
	}

	e.saveTrade(pos.Symbol, pos.Contract.TradingSymbol, domain.SideBuy, pos.Quantity, premium,
		orderID, string(domain.ScenarioRollover), "rollover entry leg", now)
	return nil
}

// recoverPendingRolls доисполняет входные ноги ролловеров, прерванных сбоем
func (e *Engine) recoverPendingRolls(ctx context.Context) error {
	for _, pos := range e.ledger.PendingRolls() {
		inst, ok := e.trading.Instruments[pos.Symbol]
		if !ok {
			e.logger.Warn("⚠️ Pending roll for unknown instrument %s, skipping", pos.Symbol)
			continue
		}
		e.logger.Info("🔧 Completing interrupted rollover for %s -> %s",
			pos.Symbol, pos.Contract.TradingSymbol)
		p := pos
		if err := e.completeRoll(ctx, &p, inst, time.Now().In(e.loc)); err != nil {
			return fmt.Errorf("%s: %w", pos.Symbol, err)
		}
	}
	return nil
}

// saveTrade пишет исполненный ордер в журнал, если база включена
func (e *Engine) saveTrade(symbol, tradingSymbol, side string, qty int, premium float64,
	orderID, scenarioTag, reason string, now time.Time) {
	if e.journal == nil {
		return
	}
	trade := &domain.Trade{
		Symbol:        symbol,
		TradingSymbol: tradingSymbol,
		Side:          side,
		Quantity:      qty,
		Premium:       premium,
		OrderID:       orderID,
		ScenarioTag:   scenarioTag,
		Reason:        reason,
		CreatedAt:     now,
	}
	if err := e.journal.Save(trade); err != nil {
		e.logger.Error("Failed to journal trade %s %s: %v", side, tradingSymbol, err)
	}
}

func (e *Engine) notifyError(symbol, message string) {
	e.logger.Error("❌ %s: %s", symbol, message)
	e.notifier.Notify(domain.Event{
		Type:      domain.EventError,
		Symbol:    symbol,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// scenarioFor сопоставляет вид выхода сценарию исполнения ордера
func scenarioFor(kind domain.ExitKind) domain.ScenarioTag {
	switch kind {
	case domain.ExitGapAdverse:
		return domain.ScenarioGapAdverse
	case domain.ExitStopLoss, domain.ExitTrailingStop:
		return domain.ScenarioStopLoss
	case domain.ExitTimeBased:
		return domain.ScenarioTimeExit
	case domain.ExitGapProfit, domain.ExitProfitTarget, domain.ExitSwingPartial:
		return domain.ScenarioProfitBooking
	case domain.ExitRollover:
		return domain.ScenarioRollover
	default:
		return domain.ScenarioProfitBooking
	}
}
