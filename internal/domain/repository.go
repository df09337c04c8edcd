package domain

// TradeRepository определяет интерфейс журнала сделок
type TradeRepository interface {
	Save(trade *Trade) error
	GetRecent(symbol string, limit int) ([]Trade, error)
	GetByDate(date string) ([]Trade, error)
}

// PnLRepository определяет интерфейс для дневных снапшотов результатов
type PnLRepository interface {
	SaveSnapshot(snap *PnLSnapshot) error
	GetHistory(limit int) ([]PnLSnapshot, error)
}
