package repository

import (
	"database/sql"
	"time"

	"github.com/kirillm/sniper-bot/internal/domain"
)

// PnLRepository реализует работу с дневными снимками результатов
type PnLRepository struct {
	db *sql.DB
}

// NewPnLRepository создает новый репозиторий для PnL
func NewPnLRepository(db *sql.DB) *PnLRepository {
	return &PnLRepository{db: db}
}

// SaveSnapshot сохраняет дневной снимок результатов
func (r *PnLRepository) SaveSnapshot(pnl *domain.PnLSnapshot) error {
	if pnl.CreatedAt.IsZero() {
		pnl.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO pnl_snapshots (date, trades_taken, winning_trades, realized_pnl, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return r.db.QueryRow(
		query,
		pnl.Date,
		pnl.TradesTaken,
		pnl.WinningTrades,
		pnl.RealizedPnL,
		pnl.CreatedAt,
	).Scan(&pnl.ID)
}

// GetHistory получает последние N дневных снимков
func (r *PnLRepository) GetHistory(limit int) ([]domain.PnLSnapshot, error) {
	query := `
		SELECT id, date, trades_taken, winning_trades, realized_pnl, created_at
		FROM pnl_snapshots
		ORDER BY date DESC
		LIMIT $1
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.PnLSnapshot
	for rows.Next() {
		var pnl domain.PnLSnapshot
		err := rows.Scan(
			&pnl.ID,
			&pnl.Date,
			&pnl.TradesTaken,
			&pnl.WinningTrades,
			&pnl.RealizedPnL,
			&pnl.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		history = append(history, pnl)
	}

	return history, rows.Err()
}
