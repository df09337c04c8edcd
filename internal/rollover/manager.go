package rollover

import (
	"fmt"
	"time"

	"github.com/kirillm/sniper-bot/internal/config"
	"github.com/kirillm/sniper-bot/internal/domain"
	"github.com/kirillm/sniper-bot/internal/orders"
	"github.com/kirillm/sniper-bot/pkg/utils"
)

// Manager отслеживает приближение экспирации открытых позиций
type Manager struct {
	th     config.Thresholds
	logger *utils.Logger
}

// NewManager создает менеджер ролловеров
func NewManager(th config.Thresholds, logger *utils.Logger) *Manager {
	return &Manager{th: th, logger: logger}
}

// Assess возвращает решение о ролловере или nil, если до экспирации далеко.
// Целевой контракт пересчитывается от текущего спота: страйк выводится
// заново, а не переносится со старого контракта.
func (m *Manager) Assess(pos *domain.Position, inst config.Instrument, spot float64, now time.Time) *domain.RolloverDecision {
	if pos == nil || pos.Contract.Expiry.IsZero() {
		return nil
	}
	days := daysUntil(now, pos.Contract.Expiry)

	var urgency domain.RolloverUrgency
	switch {
	case days <= m.th.RolloverUrgentDays:
		urgency = domain.UrgencyUrgent
	case days <= m.th.RolloverRecommendedDays:
		urgency = domain.UrgencyRecommended
	case days <= m.th.RolloverOptionalDays:
		urgency = domain.UrgencyOptional
	default:
		return nil
	}

	target := orders.BuildContract(pos.Symbol, inst, spot, pos.Direction, pos.Contract.Expiry)
	m.logger.Info("🔄 %s: %d days to expiry, rollover %s, target %s",
		pos.Symbol, days, urgency, target.TradingSymbol)

	return &domain.RolloverDecision{
		Symbol:       pos.Symbol,
		DaysToExpiry: days,
		Urgency:      urgency,
		Target:       target,
	}
}

// ShouldExecute решает, исполнять ли ролловер в этом цикле: срочные и
// рекомендованные исполняются сразу, опциональные только если позиция
// в прибыли и перенос дешев относительно накопленного результата
func (m *Manager) ShouldExecute(d *domain.RolloverDecision, unrealizedPct float64) (bool, string) {
	if d == nil {
		return false, ""
	}
	switch d.Urgency {
	case domain.UrgencyUrgent:
		return true, fmt.Sprintf("%d days to expiry, mandatory roll", d.DaysToExpiry)
	case domain.UrgencyRecommended:
		return true, fmt.Sprintf("%d days to expiry, rolling ahead of decay", d.DaysToExpiry)
	case domain.UrgencyOptional:
		if unrealizedPct > 0 {
			return true, fmt.Sprintf("%d days to expiry, rolling profitable position early", d.DaysToExpiry)
		}
		return false, "optional roll skipped, position not in profit"
	}
	return false, ""
}

func daysUntil(now, expiry time.Time) int {
	a := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	b := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, now.Location())
	return int(b.Sub(a).Hours() / 24)
}
