package domain

import "time"

// Candle представляет одну OHLCV свечу
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Contract описывает опционный контракт
type Contract struct {
	Symbol        string     `json:"symbol"`         // базовый инструмент: NIFTY, BANKNIFTY...
	TradingSymbol string     `json:"trading_symbol"` // например NIFTY25AUG24650CE
	Strike        float64    `json:"strike"`
	Kind          OptionKind `json:"kind"` // CE или PE
	Expiry        time.Time  `json:"expiry"`
	LotSize       int        `json:"lot_size"`
}

// TrailingStop хранит параметры трейлинг-стопа после благоприятного гэпа
type TrailingStop struct {
	Armed        bool      `json:"armed"`
	TriggerPrice float64   `json:"trigger_price"` // максимум премии с момента взвода
	TrailPercent float64   `json:"trail_percent"`
	ArmedAt      time.Time `json:"armed_at"`
}

// Position представляет открытую позицию по одному инструменту
type Position struct {
	Symbol            string        `json:"symbol"`
	Contract          Contract      `json:"contract"`
	Direction         Direction     `json:"direction"`
	EntryPrice        float64       `json:"entry_price"` // премия входа
	Quantity          int           `json:"quantity"`
	EntryTime         time.Time     `json:"entry_time"`
	State             string        `json:"state"` // OPEN или PARTIALLY_CLOSED
	PartialExitDone   bool          `json:"partial_exit_done"`
	CandlesSinceEntry int           `json:"candles_since_entry"`
	StopLossPercent   float64       `json:"stop_loss_percent"`
	PartialTarget     float64       `json:"partial_target"` // премия для частичной фиксации
	FullTarget        float64       `json:"full_target"`    // премия для полного выхода
	Trailing          *TrailingStop `json:"trailing,omitempty"`
	PendingRoll       bool          `json:"pending_roll,omitempty"` // exit-нога ролловера прошла, entry-нога нет
	EntryReasons      []string      `json:"entry_reasons,omitempty"`
}

// UnrealizedPercent возвращает нереализованную прибыль в процентах от премии входа.
// Направление позиции уже учтено выбором CE/PE, поэтому рост премии
// всегда означает прибыль.
func (p *Position) UnrealizedPercent(currentPremium float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (currentPremium - p.EntryPrice) / p.EntryPrice * 100
}

// Signal представляет результат оценки входных условий по инструменту
type Signal struct {
	Symbol         string
	Direction      Direction
	ConditionCount int
	Confidence     float64
	Strength       SignalStrength
	Reasons        []string
	CPRScenario    string // cpr_rejection, cpr_breakout или пусто
	Timestamp      time.Time
}

// ExitTrigger представляет сработавшее условие выхода (максимум одно за цикл)
type ExitTrigger struct {
	Kind          ExitKind
	CloseFraction float64 // доля позиции к закрытию, (0,1]
	Reason        string
}

// GapEvent представляет ночной гэп по открытой позиции
type GapEvent struct {
	Symbol     string
	GapPercent float64 // знаковый, относительно закрытия прошлой сессии
	Impact     GapImpact
	Action     GapAction
	Reason     string
}

// RolloverDecision представляет решение о ролловере контракта
type RolloverDecision struct {
	Symbol       string
	DaysToExpiry int
	Urgency      RolloverUrgency
	Target       Contract // контракт следующей экспирации
}

// DailyRiskState хранит дневные лимиты и счетчики риска
type DailyRiskState struct {
	TradeCountToday          int    `json:"trade_count_today"`
	ResetDate                string `json:"reset_date"` // YYYY-MM-DD в таймзоне движка
	MaxDailyTrades           int    `json:"max_daily_trades"`
	MaxSimultaneousPositions int    `json:"max_simultaneous_positions"`
}

// OrderIntent представляет намерение выставить ордер
type OrderIntent struct {
	Contract        Contract
	TransactionType string // BUY или SELL
	Quantity        int
	Method          OrderMethod
	LimitPrice      float64 // только для LIMIT
	Reason          string
}

// Event представляет структурированное событие для notifier
type Event struct {
	Type      EventType
	Symbol    string
	Message   string
	Position  *Position
	Quantity  int
	Premium   float64
	PnL       float64
	PnLPct    float64
	Reasons   []string
	Timestamp time.Time
}

// Trade представляет запись журнала сделок (аудит, не источник истины)
type Trade struct {
	ID            int64     `db:"id"`
	Symbol        string    `db:"symbol"`
	TradingSymbol string    `db:"trading_symbol"`
	Side          string    `db:"side"` // BUY or SELL
	Quantity      int       `db:"quantity"`
	Premium       float64   `db:"premium"`
	OrderID       string    `db:"order_id"`
	ScenarioTag   string    `db:"scenario_tag"`
	Reason        string    `db:"reason"`
	CreatedAt     time.Time `db:"created_at"`
}

// PnLSnapshot представляет дневной снапшот результатов для вечернего отчета
type PnLSnapshot struct {
	ID            int64     `db:"id"`
	Date          string    `db:"date"`
	TradesTaken   int       `db:"trades_taken"`
	WinningTrades int       `db:"winning_trades"`
	RealizedPnL   float64   `db:"realized_pnl"`
	CreatedAt     time.Time `db:"created_at"`
}
