package exchange

import (
	"context"
	"time"

	"github.com/kirillm/sniper-bot/internal/domain"
)

// Broker определяет операции брокерского шлюза, необходимые движку
type Broker interface {
	// Candles возвращает исторические свечи базового актива
	Candles(ctx context.Context, exchange, symbol, interval string, from, to time.Time) ([]domain.Candle, error)

	// LTP возвращает последнюю цену инструмента
	LTP(ctx context.Context, exchange, tradingSymbol string) (float64, error)

	// PlaceOrder выставляет ордер и возвращает его идентификатор
	PlaceOrder(ctx context.Context, exchange string, intent domain.OrderIntent) (string, error)
}
