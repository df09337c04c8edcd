package orders

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kirillm/sniper-bot/internal/config"
	"github.com/kirillm/sniper-bot/internal/domain"
)

// StrikeFor выводит страйк вне денег от текущего спота: для колла выше,
// для пута ниже, округленный к шагу сетки страйков
func StrikeFor(spot, step, offset float64, dir domain.Direction) float64 {
	if step <= 0 {
		return spot
	}
	atm := math.Round(spot/step) * step
	switch dir {
	case domain.Bullish:
		return atm + math.Round(offset/step)*step
	case domain.Bearish:
		return atm - math.Round(offset/step)*step
	}
	return atm
}

// NextExpiry возвращает ближайшую экспирацию строго в будущем относительно
// after. Контракт, истекающий в тот же день, не используется для новых
// позиций: берется следующая неделя или следующий месяц.
func NextExpiry(inst config.Instrument, after time.Time) time.Time {
	if inst.MonthlyOnly {
		return nextMonthlyExpiry(inst, after)
	}
	return nextWeeklyExpiry(inst, after)
}

func nextWeeklyExpiry(inst config.Instrument, after time.Time) time.Time {
	target := time.Weekday(inst.ExpiryWeekday)
	days := (int(target) - int(after.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	d := after.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, after.Location())
}

func nextMonthlyExpiry(inst config.Instrument, after time.Time) time.Time {
	exp := lastWeekdayOfMonth(after.Year(), after.Month(), time.Weekday(inst.ExpiryWeekday), after.Location())
	if !exp.After(startOfDay(after)) {
		next := after.AddDate(0, 1, 0)
		exp = lastWeekdayOfMonth(next.Year(), next.Month(), time.Weekday(inst.ExpiryWeekday), after.Location())
	}
	return exp
}

func lastWeekdayOfMonth(year int, month time.Month, wd time.Weekday, loc *time.Location) time.Time {
	d := time.Date(year, month+1, 0, 0, 0, 0, 0, loc) // последний день месяца
	offset := (int(d.Weekday()) - int(wd) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// NextEntryExpiry выбирает серию для нового входа. После недельного катофа
// недельный контракт живет слишком мало: вместо него берется месячный.
func NextEntryExpiry(inst config.Instrument, after time.Time, th config.Thresholds) time.Time {
	if !inst.MonthlyOnly && pastWeeklyCutoff(after, th) {
		return nextMonthlyExpiry(inst, after)
	}
	return NextExpiry(inst, after)
}

func pastWeeklyCutoff(t time.Time, th config.Thresholds) bool {
	if t.Weekday() != time.Weekday(th.WeeklyCutoffWeekday) {
		return false
	}
	return t.Hour()*60+t.Minute() >= th.WeeklyCutoffHour*60+th.WeeklyCutoffMinute
}

// BuildContract собирает опционный контракт вне денег под направление
// сигнала: страйк от спота, ближайшая экспирация после after
func BuildContract(symbol string, inst config.Instrument, spot float64, dir domain.Direction, after time.Time) domain.Contract {
	return buildContract(symbol, inst, spot, dir, NextExpiry(inst, after))
}

// BuildEntryContract собирает контракт для нового входа с учетом
// недельного катофа
func BuildEntryContract(symbol string, inst config.Instrument, spot float64, dir domain.Direction, after time.Time, th config.Thresholds) domain.Contract {
	return buildContract(symbol, inst, spot, dir, NextEntryExpiry(inst, after, th))
}

func buildContract(symbol string, inst config.Instrument, spot float64, dir domain.Direction, expiry time.Time) domain.Contract {
	strike := StrikeFor(spot, inst.StrikeStep, inst.OTMOffset, dir)
	kind := domain.OptionCall
	if dir == domain.Bearish {
		kind = domain.OptionPut
	}
	return domain.Contract{
		Symbol:        symbol,
		TradingSymbol: TradingSymbol(symbol, strike, kind, expiry),
		Strike:        strike,
		Kind:          kind,
		Expiry:        expiry,
		LotSize:       inst.LotSize,
	}
}

// TradingSymbol строит биржевой тикер опциона, например NIFTY25AUG24650CE
func TradingSymbol(symbol string, strike float64, kind domain.OptionKind, expiry time.Time) string {
	return fmt.Sprintf("%s%02d%s%d%s",
		symbol,
		expiry.Year()%100,
		strings.ToUpper(expiry.Month().String()[:3]),
		int(strike),
		kind,
	)
}
