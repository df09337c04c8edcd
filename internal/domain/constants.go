package domain

// Direction направление сигнала или позиции
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// OptionKind тип опциона
type OptionKind string

const (
	OptionCall OptionKind = "CE"
	OptionPut  OptionKind = "PE"
)

// Position states
const (
	PositionOpen            = "OPEN"
	PositionPartiallyClosed = "PARTIALLY_CLOSED"
)

// SignalStrength градация силы сигнала
type SignalStrength string

const (
	StrengthSuperStrong SignalStrength = "SUPER_STRONG" // 5/5 условий
	StrengthValid       SignalStrength = "VALID"        // 4/5 условий
	StrengthAISupported SignalStrength = "AI_SUPPORTED" // 3/5 + внешний confidence
	StrengthNone        SignalStrength = "NONE"
)

// ExitKind вид сработавшего условия выхода
type ExitKind string

const (
	ExitStopLoss       ExitKind = "stop_loss"
	ExitSwingPartial   ExitKind = "swing_partial"
	ExitProfitTarget   ExitKind = "profit_target"
	ExitTrendCross     ExitKind = "trend_cross"
	ExitVolumeCollapse ExitKind = "volume_collapse"
	ExitSlopeReversal  ExitKind = "slope_reversal"
	ExitMomentumWeak   ExitKind = "momentum_weak"
	ExitTimeBased      ExitKind = "time_based"
	ExitGapAdverse     ExitKind = "gap_adverse"
	ExitGapProfit      ExitKind = "gap_profit"
	ExitTrailingStop   ExitKind = "trailing_stop"
	ExitRollover       ExitKind = "rollover"
)

// GapImpact влияние гэпа на позицию
type GapImpact string

const (
	GapFavorable GapImpact = "favorable"
	GapAdverse   GapImpact = "adverse"
	GapNeutral   GapImpact = "neutral"
)

// GapAction рекомендованное действие по гэпу
type GapAction string

const (
	GapActionSquareOff   GapAction = "square_off"   // немедленное полное закрытие
	GapActionBookProfit  GapAction = "book_profit"  // ступенчатая фиксация прибыли
	GapActionArmTrailing GapAction = "arm_trailing" // взвести трейлинг-стоп
	GapActionNone        GapAction = "none"
)

// RolloverUrgency срочность ролловера
type RolloverUrgency string

const (
	UrgencyNone        RolloverUrgency = "none"
	UrgencyOptional    RolloverUrgency = "optional"    // <= 7 дней
	UrgencyRecommended RolloverUrgency = "recommended" // <= 5 дней
	UrgencyUrgent      RolloverUrgency = "urgent"      // <= 3 дней
)

// OrderMethod способ исполнения ордера
type OrderMethod string

const (
	OrderMarket OrderMethod = "MARKET"
	OrderLimit  OrderMethod = "LIMIT"
)

// Transaction types
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Scenario tags для выбора способа исполнения
type ScenarioTag string

const (
	ScenarioEntry          ScenarioTag = "entry"
	ScenarioProfitBooking  ScenarioTag = "profit_booking"
	ScenarioGapAdverse     ScenarioTag = "gap_adverse"
	ScenarioStopLoss       ScenarioTag = "stop_loss"
	ScenarioHighVolatility ScenarioTag = "high_volatility"
	ScenarioExpiryDay      ScenarioTag = "expiry_day"
	ScenarioTimeExit       ScenarioTag = "time_exit"
	ScenarioRollover       ScenarioTag = "rollover"
)

// Volatility классификация текущей волатильности
type Volatility string

const (
	VolatilityLow    Volatility = "low"
	VolatilityMedium Volatility = "medium"
	VolatilityHigh   Volatility = "high"
)

// EventType тип события для notifier
type EventType string

const (
	EventStartup     EventType = "startup"
	EventShutdown    EventType = "shutdown"
	EventEntry       EventType = "entry"
	EventPartialExit EventType = "partial_exit"
	EventFullExit    EventType = "full_exit"
	EventRollover    EventType = "rollover"
	EventGap         EventType = "gap"
	EventDailyReport EventType = "daily_report"
	EventError       EventType = "error"
)
