package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kirillm/sniper-bot/internal/domain"
)

// Config содержит все настройки приложения
type Config struct {
	Telegram TelegramConfig
	Broker   BrokerConfig
	Database DatabaseConfig
	Engine   EngineConfig
	Trading  TradingConfig
	LogLevel string
}

type TelegramConfig struct {
	BotToken string
	ChatID   int64
	Enabled  bool
}

type BrokerConfig struct {
	APIKey      string
	AccessToken string
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	RateLimit   float64 // запросов в секунду
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Enabled         bool
}

type EngineConfig struct {
	Account       string
	CycleInterval time.Duration
	Workers       int
	TaskTimeout   time.Duration
	Timezone      string
	LedgerFile    string
	APIPort       int
}

// TradingConfig загружается из YAML файла инструментов
type TradingConfig struct {
	Capital     float64               `yaml:"capital"`
	Instruments map[string]Instrument `yaml:"instruments"`
	Thresholds  Thresholds            `yaml:"thresholds"`
}

// Instrument описывает торгуемый инструмент
type Instrument struct {
	Exchange      string  `yaml:"exchange"`
	LotSize       int     `yaml:"lot_size"`
	StrikeStep    float64 `yaml:"strike_step"`
	OTMOffset     float64 `yaml:"otm_offset"`
	ExpiryWeekday int     `yaml:"expiry_weekday"` // день недельной экспирации, 0=воскресенье
	MonthlyOnly   bool    `yaml:"monthly_only"`   // только месячные контракты
}

// Thresholds содержит все числовые пороги движка.
// Всё вынесено в конфигурацию, чтобы менять стратегию без пересборки.
type Thresholds struct {
	// входы
	MaxDailyTrades           int     `yaml:"max_daily_trades"`
	MaxSimultaneousPositions int     `yaml:"max_simultaneous_positions"`
	CapitalFraction          float64 `yaml:"capital_fraction"` // доля капитала на сделку
	MaxLots                  int     `yaml:"max_lots"`
	AISupportMin             float64 `yaml:"ai_support_min"` // порог confidence для 3/5 сигнала

	// выходы
	PartialTargetMultiple float64 `yaml:"partial_target_multiple"` // кратное премии для частичной фиксации
	FullTargetMultiple    float64 `yaml:"full_target_multiple"`
	StopLossPercent       float64 `yaml:"stop_loss_percent"`
	SwingProfitPercent    float64 `yaml:"swing_profit_percent"` // мин. прибыль для выхода на экстремуме
	SwingLookback         int     `yaml:"swing_lookback"`
	DivergenceWindow      int     `yaml:"divergence_window"`
	DivergenceMinProfit   float64 `yaml:"divergence_min_profit"`
	VolumeDropRatio       float64 `yaml:"volume_drop_ratio"` // доля от базовой линии объема
	VolumeBaselinePeriod  int     `yaml:"volume_baseline_period"`
	MomentumWeakBelow     float64 `yaml:"momentum_weak_below"`
	CandleTimeout         int     `yaml:"candle_timeout"`
	WeeklyCutoffWeekday   int     `yaml:"weekly_cutoff_weekday"` // 5 = пятница
	WeeklyCutoffHour      int     `yaml:"weekly_cutoff_hour"`
	WeeklyCutoffMinute    int     `yaml:"weekly_cutoff_minute"`

	// гэпы
	GapThresholdPercent        float64 `yaml:"gap_threshold_percent"`
	TrailPercent               float64 `yaml:"trail_percent"`
	GapBookFullPercent         float64 `yaml:"gap_book_full_percent"` // прибыль по премии для полной фиксации
	GapBookThreeQuarterPercent float64 `yaml:"gap_book_three_quarter_percent"`
	GapBookHalfPercent         float64 `yaml:"gap_book_half_percent"`

	// ролловер
	RolloverUrgentDays      int `yaml:"rollover_urgent_days"`
	RolloverRecommendedDays int `yaml:"rollover_recommended_days"`
	RolloverOptionalDays    int `yaml:"rollover_optional_days"`

	// выбор способа исполнения
	HighVolatilityPercent float64 `yaml:"high_volatility_percent"` // дневной диапазон в %
	LowVolatilityPercent  float64 `yaml:"low_volatility_percent"`
	ExpensivePremium      float64 `yaml:"expensive_premium"`
	ReasonablePremium     float64 `yaml:"reasonable_premium"`
	LimitDiscountPercent  float64 `yaml:"limit_discount_percent"`
}

// Load загружает конфигурацию из .env и YAML файла инструментов
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	chatID, err := strconv.ParseInt(getEnv("TELEGRAM_CHAT_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpenConns, err := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	maxIdleConns, err := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}

	connMaxLifetime, err := time.ParseDuration(getEnv("DB_CONN_MAX_LIFETIME", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}

	cycleInterval, err := time.ParseDuration(getEnv("CYCLE_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CYCLE_INTERVAL: %w", err)
	}

	taskTimeout, err := time.ParseDuration(getEnv("TASK_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid TASK_TIMEOUT: %w", err)
	}

	workers, err := strconv.Atoi(getEnv("WORKERS", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKERS: %w", err)
	}

	apiPort, err := strconv.Atoi(getEnv("API_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid API_PORT: %w", err)
	}

	brokerTimeout, err := time.ParseDuration(getEnv("BROKER_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BROKER_TIMEOUT: %w", err)
	}

	brokerRetries, err := strconv.Atoi(getEnv("BROKER_MAX_RETRIES", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid BROKER_MAX_RETRIES: %w", err)
	}

	brokerRate, err := strconv.ParseFloat(getEnv("BROKER_RATE_LIMIT", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid BROKER_RATE_LIMIT: %w", err)
	}

	config := &Config{
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   chatID,
		},
		Broker: BrokerConfig{
			APIKey:      getEnv("BROKER_API_KEY", ""),
			AccessToken: getEnv("BROKER_ACCESS_TOKEN", ""),
			BaseURL:     getEnv("BROKER_BASE_URL", "https://api.kite.trade"),
			Timeout:     brokerTimeout,
			MaxRetries:  brokerRetries,
			RateLimit:   brokerRate,
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            dbPort,
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "sniper_bot"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    maxOpenConns,
			MaxIdleConns:    maxIdleConns,
			ConnMaxLifetime: connMaxLifetime,
		},
		Engine: EngineConfig{
			Account:       getEnv("ACCOUNT", "default"),
			CycleInterval: cycleInterval,
			Workers:       workers,
			TaskTimeout:   taskTimeout,
			Timezone:      getEnv("TIMEZONE", "Asia/Kolkata"),
			LedgerFile:    getEnv("LEDGER_FILE", "sniper_state.json"),
			APIPort:       apiPort,
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	config.Telegram.Enabled = config.Telegram.BotToken != "" && config.Telegram.ChatID != 0
	config.Database.Enabled = config.Database.Password != ""

	tradingPath := getEnv("TRADING_CONFIG", "configs/trading.yaml")
	trading, err := LoadTrading(tradingPath)
	if err != nil {
		return nil, err
	}
	config.Trading = *trading

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadTrading загружает торговую конфигурацию из YAML файла
func LoadTrading(path string) (*TradingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read trading config: %v", domain.ErrConfigInvalid, err)
	}
	cfg := &TradingConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse trading config: %v", domain.ErrConfigInvalid, err)
	}
	return cfg, nil
}

// Validate проверяет обязательные поля и диапазоны порогов.
// Некорректная конфигурация означает отказ от запуска.
func (c *Config) Validate() error {
	if c.Broker.APIKey == "" {
		return fmt.Errorf("%w: BROKER_API_KEY is required", domain.ErrConfigInvalid)
	}
	if c.Broker.AccessToken == "" {
		return fmt.Errorf("%w: BROKER_ACCESS_TOKEN is required", domain.ErrConfigInvalid)
	}
	if c.Engine.CycleInterval < time.Second {
		return fmt.Errorf("%w: CYCLE_INTERVAL must be at least 1s", domain.ErrConfigInvalid)
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("%w: WORKERS must be positive", domain.ErrConfigInvalid)
	}
	if _, err := time.LoadLocation(c.Engine.Timezone); err != nil {
		return fmt.Errorf("%w: unknown TIMEZONE %q", domain.ErrConfigInvalid, c.Engine.Timezone)
	}
	return c.Trading.Validate()
}

// Validate проверяет торговую конфигурацию
func (t *TradingConfig) Validate() error {
	if t.Capital <= 0 {
		return fmt.Errorf("%w: capital must be positive", domain.ErrConfigInvalid)
	}
	if len(t.Instruments) == 0 {
		return fmt.Errorf("%w: at least one instrument is required", domain.ErrConfigInvalid)
	}
	for symbol, inst := range t.Instruments {
		if inst.LotSize <= 0 {
			return fmt.Errorf("%w: %s: lot_size must be positive", domain.ErrConfigInvalid, symbol)
		}
		if inst.StrikeStep <= 0 {
			return fmt.Errorf("%w: %s: strike_step must be positive", domain.ErrConfigInvalid, symbol)
		}
		if inst.OTMOffset < 0 {
			return fmt.Errorf("%w: %s: otm_offset must not be negative", domain.ErrConfigInvalid, symbol)
		}
	}

	th := &t.Thresholds
	if th.MaxDailyTrades <= 0 {
		return fmt.Errorf("%w: max_daily_trades must be positive", domain.ErrConfigInvalid)
	}
	if th.MaxSimultaneousPositions <= 0 {
		return fmt.Errorf("%w: max_simultaneous_positions must be positive", domain.ErrConfigInvalid)
	}
	if th.CapitalFraction <= 0 || th.CapitalFraction > 1 {
		return fmt.Errorf("%w: capital_fraction must be in (0,1]", domain.ErrConfigInvalid)
	}
	if th.AISupportMin <= 0 || th.AISupportMin >= 1 {
		return fmt.Errorf("%w: ai_support_min must be in (0,1)", domain.ErrConfigInvalid)
	}
	if th.PartialTargetMultiple <= 1 || th.FullTargetMultiple <= th.PartialTargetMultiple {
		return fmt.Errorf("%w: profit target multiples must satisfy 1 < partial < full", domain.ErrConfigInvalid)
	}
	if th.StopLossPercent <= 0 || th.StopLossPercent >= 100 {
		return fmt.Errorf("%w: stop_loss_percent must be in (0,100)", domain.ErrConfigInvalid)
	}
	if th.VolumeDropRatio <= 0 || th.VolumeDropRatio >= 1 {
		return fmt.Errorf("%w: volume_drop_ratio must be in (0,1)", domain.ErrConfigInvalid)
	}
	if th.MomentumWeakBelow <= 0 || th.MomentumWeakBelow >= 1 {
		return fmt.Errorf("%w: momentum_weak_below must be in (0,1)", domain.ErrConfigInvalid)
	}
	if th.GapThresholdPercent <= 0 {
		return fmt.Errorf("%w: gap_threshold_percent must be positive", domain.ErrConfigInvalid)
	}
	if !(0 < th.GapBookHalfPercent && th.GapBookHalfPercent < th.GapBookThreeQuarterPercent &&
		th.GapBookThreeQuarterPercent < th.GapBookFullPercent) {
		return fmt.Errorf("%w: gap booking tiers must be strictly increasing", domain.ErrConfigInvalid)
	}
	if th.CandleTimeout <= 0 {
		return fmt.Errorf("%w: candle_timeout must be positive", domain.ErrConfigInvalid)
	}
	if !(th.RolloverUrgentDays < th.RolloverRecommendedDays && th.RolloverRecommendedDays < th.RolloverOptionalDays) {
		return fmt.Errorf("%w: rollover day tiers must be strictly increasing", domain.ErrConfigInvalid)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
