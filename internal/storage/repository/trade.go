package repository

import (
	"database/sql"

	"github.com/kirillm/sniper-bot/internal/domain"
)

// TradeRepository реализует журнал исполненных ордеров
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый репозиторий журнала сделок
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Save сохраняет исполненный ордер
func (r *TradeRepository) Save(trade *domain.Trade) error {
	query := `
		INSERT INTO trades (symbol, trading_symbol, side, quantity, premium, order_id, scenario_tag, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	return r.db.QueryRow(
		query,
		trade.Symbol,
		trade.TradingSymbol,
		trade.Side,
		trade.Quantity,
		trade.Premium,
		trade.OrderID,
		trade.ScenarioTag,
		trade.Reason,
		trade.CreatedAt,
	).Scan(&trade.ID)
}

// GetRecent получает последние N сделок по инструменту
func (r *TradeRepository) GetRecent(symbol string, limit int) ([]domain.Trade, error) {
	query := `
		SELECT id, symbol, trading_symbol, side, quantity, premium, order_id, scenario_tag, reason, created_at
		FROM trades
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.queryTrades(query, symbol, limit)
}

// GetByDate получает все сделки за торговый день
func (r *TradeRepository) GetByDate(date string) ([]domain.Trade, error) {
	query := `
		SELECT id, symbol, trading_symbol, side, quantity, premium, order_id, scenario_tag, reason, created_at
		FROM trades
		WHERE created_at::date = $1::date
		ORDER BY created_at
	`
	return r.queryTrades(query, date)
}

// queryTrades выполняет запрос и возвращает список сделок
func (r *TradeRepository) queryTrades(query string, args ...interface{}) ([]domain.Trade, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var trade domain.Trade
		err := rows.Scan(
			&trade.ID,
			&trade.Symbol,
			&trade.TradingSymbol,
			&trade.Side,
			&trade.Quantity,
			&trade.Premium,
			&trade.OrderID,
			&trade.ScenarioTag,
			&trade.Reason,
			&trade.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	return trades, rows.Err()
}
