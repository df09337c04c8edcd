package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kirillm/sniper-bot/internal/storage/repository"
)

// PostgresStorage является фасадом для работы с PostgreSQL через репозитории.
// База хранит только аудиторский след: журнал сделок и дневные снимки.
// Источник истины по открытым позициям это файловый реестр.
type PostgresStorage struct {
	db     *sql.DB
	trades *repository.TradeRepository
	pnl    *repository.PnLRepository
}

// NewPostgresStorage открывает подключение и применяет миграции
func NewPostgresStorage(host string, port int, user, password, dbname, sslmode string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*PostgresStorage, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	storage := &PostgresStorage{
		db:     db,
		trades: repository.NewTradeRepository(db),
		pnl:    repository.NewPnLRepository(db),
	}

	if err := storage.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			trading_symbol VARCHAR(40) NOT NULL,
			side VARCHAR(10) NOT NULL,
			quantity INTEGER NOT NULL,
			premium DECIMAL(12, 2) NOT NULL,
			order_id VARCHAR(100),
			scenario_tag VARCHAR(30) NOT NULL,
			reason TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol_created ON trades (symbol, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS pnl_snapshots (
			id SERIAL PRIMARY KEY,
			date VARCHAR(10) NOT NULL,
			trades_taken INTEGER NOT NULL DEFAULT 0,
			winning_trades INTEGER NOT NULL DEFAULT 0,
			realized_pnl DECIMAL(14, 2) NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pnl_snapshots_date ON pnl_snapshots (date DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Trades возвращает репозиторий журнала сделок
func (s *PostgresStorage) Trades() *repository.TradeRepository {
	return s.trades
}

// PnL возвращает репозиторий дневных снимков
func (s *PostgresStorage) PnL() *repository.PnLRepository {
	return s.pnl
}

// Close закрывает подключение к базе
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
