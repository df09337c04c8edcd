package gap

import (
	"fmt"
	"time"

	"github.com/kirillm/sniper-bot/internal/config"
	"github.com/kirillm/sniper-bot/internal/domain"
	"github.com/kirillm/sniper-bot/pkg/utils"
)

// Handler классифицирует утренний гэп базового актива и выбирает реакцию
type Handler struct {
	th     config.Thresholds
	logger *utils.Logger
}

// NewHandler создает обработчик гэпов
func NewHandler(th config.Thresholds, logger *utils.Logger) *Handler {
	return &Handler{th: th, logger: logger}
}

// Evaluate оценивает гэп открытия против позиции. Встречный гэп закрывает
// позицию немедленно и имеет приоритет над любыми правилами удержания.
// Попутный гэп фиксирует прибыль ступенями, а при малой прибыли взводит
// трейлинг-стоп на позиции.
func (h *Handler) Evaluate(pos *domain.Position, prevClose, open, premium float64, now time.Time) (*domain.GapEvent, *domain.ExitTrigger) {
	if pos == nil || prevClose <= 0 || open <= 0 {
		return nil, nil
	}
	gapPct := (open - prevClose) / prevClose * 100
	if abs(gapPct) < h.th.GapThresholdPercent {
		return nil, nil
	}

	event := &domain.GapEvent{
		Symbol:     pos.Symbol,
		GapPercent: gapPct,
		Impact:     classify(pos.Direction, gapPct),
	}

	switch event.Impact {
	case domain.GapAdverse:
		event.Action = domain.GapActionSquareOff
		event.Reason = fmt.Sprintf("gap %.2f%% against %s position", gapPct, pos.Direction)
		h.logger.Warn("⚠️ %s: %s, squaring off", pos.Symbol, event.Reason)
		return event, &domain.ExitTrigger{
			Kind:          domain.ExitGapAdverse,
			CloseFraction: 1.0,
			Reason:        event.Reason,
		}
	case domain.GapFavorable:
		return h.favorable(pos, event, premium, now)
	default:
		event.Action = domain.GapActionNone
		return event, nil
	}
}

// favorable выбирает долю фиксации по текущей прибыли премии
func (h *Handler) favorable(pos *domain.Position, event *domain.GapEvent, premium float64, now time.Time) (*domain.GapEvent, *domain.ExitTrigger) {
	gain := pos.UnrealizedPercent(premium)

	var fraction float64
	switch {
	case gain >= h.th.GapBookFullPercent:
		fraction = 1.0
	case gain >= h.th.GapBookThreeQuarterPercent:
		fraction = 0.75
	case gain >= h.th.GapBookHalfPercent:
		fraction = 0.5
	}

	if fraction > 0 {
		event.Action = domain.GapActionBookProfit
		event.Reason = fmt.Sprintf("favorable gap %.2f%%, booking %.0f%% at %.1f%% gain",
			event.GapPercent, fraction*100, gain)
		h.logger.Info("💰 %s: %s", pos.Symbol, event.Reason)
		return event, &domain.ExitTrigger{
			Kind:          domain.ExitGapProfit,
			CloseFraction: fraction,
			Reason:        event.Reason,
		}
	}

	// прибыль мала для фиксации: защищаем позицию трейлинг-стопом
	event.Action = domain.GapActionArmTrailing
	event.Reason = fmt.Sprintf("favorable gap %.2f%%, arming %.0f%% trailing stop",
		event.GapPercent, h.th.TrailPercent)
	if pos.Trailing == nil || !pos.Trailing.Armed {
		pos.Trailing = &domain.TrailingStop{
			Armed:        true,
			TriggerPrice: premium * (1 - h.th.TrailPercent/100),
			TrailPercent: h.th.TrailPercent,
			ArmedAt:      now,
		}
	}
	h.logger.Info("🛡 %s: %s", pos.Symbol, event.Reason)
	return event, nil
}

func classify(dir domain.Direction, gapPct float64) domain.GapImpact {
	switch dir {
	case domain.Bullish:
		if gapPct > 0 {
			return domain.GapFavorable
		}
		return domain.GapAdverse
	case domain.Bearish:
		if gapPct < 0 {
			return domain.GapFavorable
		}
		return domain.GapAdverse
	}
	return domain.GapNeutral
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
