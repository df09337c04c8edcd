package orders

import (
	"fmt"

	"github.com/kirillm/sniper-bot/internal/config"
	"github.com/kirillm/sniper-bot/internal/domain"
)

// SizePosition вычисляет количество контрактов под сделку: доля капитала
// делится на стоимость лота, число лотов ограничено сверху. Ноль лотов
// означает, что премия не по карману, вход пропускается.
func SizePosition(capital, premium float64, lotSize int, th config.Thresholds) (int, error) {
	if premium <= 0 || lotSize <= 0 {
		return 0, fmt.Errorf("size position: premium %.2f lot %d: %w", premium, lotSize, domain.ErrConfigInvalid)
	}
	budget := capital * th.CapitalFraction
	lotCost := premium * float64(lotSize)
	lots := int(budget / lotCost)
	if lots < 1 {
		return 0, nil
	}
	if lots > th.MaxLots {
		lots = th.MaxLots
	}
	return lots * lotSize, nil
}
