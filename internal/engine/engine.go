package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kirillm/sniper-bot/internal/config"
	"github.com/kirillm/sniper-bot/internal/domain"
	"github.com/kirillm/sniper-bot/internal/exchange"
	"github.com/kirillm/sniper-bot/internal/exits"
	"github.com/kirillm/sniper-bot/internal/gap"
	"github.com/kirillm/sniper-bot/internal/ledger"
	"github.com/kirillm/sniper-bot/internal/orders"
	"github.com/kirillm/sniper-bot/internal/rollover"
	"github.com/kirillm/sniper-bot/internal/signal"
	"github.com/kirillm/sniper-bot/pkg/utils"
)

// Notifier интерфейс доставки событий движка
type Notifier interface {
	Notify(event domain.Event)
}

// Engine координирует торговый цикл: гэпы, выходы, ролловеры, входы
type Engine struct {
	cfg      config.EngineConfig
	trading  config.TradingConfig
	broker   exchange.Broker
	ledger   *ledger.Ledger
	signals  *signal.Evaluator
	exits    *exits.Evaluator
	gaps     *gap.Handler
	rolls    *rollover.Manager
	selector *orders.Selector
	notifier Notifier
	journal  domain.TradeRepository // nil если база отключена
	pnlRepo  domain.PnLRepository   // nil если база отключена
	logger   *utils.Logger
	loc      *time.Location
	cron     *cron.Cron

	ticker    *time.Ticker
	stopChan  chan struct{}
	doneChan  chan struct{}
	isRunning bool

	mu         sync.Mutex
	lastCandle map[string]time.Time
	gapHandled map[string]string // symbol -> дата обработанного гэпа
	realized   float64
	trades     int
	wins       int
}

// New создает движок
func New(
	cfg config.EngineConfig,
	trading config.TradingConfig,
	broker exchange.Broker,
	led *ledger.Ledger,
	signals *signal.Evaluator,
	exitEval *exits.Evaluator,
	gaps *gap.Handler,
	rolls *rollover.Manager,
	selector *orders.Selector,
	notifier Notifier,
	journal domain.TradeRepository,
	pnlRepo domain.PnLRepository,
	loc *time.Location,
	logger *utils.Logger,
) *Engine {
	return &Engine{
		cfg:        cfg,
		trading:    trading,
		broker:     broker,
		ledger:     led,
		signals:    signals,
		exits:      exitEval,
		gaps:       gaps,
		rolls:      rolls,
		selector:   selector,
		notifier:   notifier,
		journal:    journal,
		pnlRepo:    pnlRepo,
		logger:     logger,
		loc:        loc,
		cron:       cron.New(cron.WithLocation(loc)),
		ticker:     time.NewTicker(cfg.CycleInterval),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
		lastCandle: make(map[string]time.Time),
		gapHandled: make(map[string]string),
	}
}

// Start запускает движок: восстановление незавершенных ролловеров,
// расписание суточных задач, основной цикл
func (e *Engine) Start(ctx context.Context) error {
	if e.isRunning {
		return fmt.Errorf("engine already running")
	}
	e.isRunning = true

	if err := e.recoverPendingRolls(ctx); err != nil {
		return fmt.Errorf("recover pending rolls: %w", err)
	}

	if err := e.scheduleDailyJobs(); err != nil {
		return fmt.Errorf("schedule daily jobs: %w", err)
	}
	e.cron.Start()

	e.logger.Info("🚀 Engine started: %d instruments, cycle %v, %d workers",
		len(e.trading.Instruments), e.cfg.CycleInterval, e.cfg.Workers)
	e.notifier.Notify(domain.Event{
		Type:      domain.EventStartup,
		Message:   fmt.Sprintf("%d instruments, %d open positions", len(e.trading.Instruments), e.ledger.OpenCount()),
		Timestamp: time.Now(),
	})

	go e.run(ctx)
	return nil
}

// Stop останавливает движок и дожидается завершения текущего цикла
func (e *Engine) Stop() {
	if !e.isRunning {
		return
	}
	e.logger.Info("🛑 Stopping engine...")
	close(e.stopChan)
	e.ticker.Stop()
	e.cron.Stop()
	<-e.doneChan
	e.isRunning = false

	e.notifier.Notify(domain.Event{
		Type:      domain.EventShutdown,
		Message:   fmt.Sprintf("%d positions remain open", e.ledger.OpenCount()),
		Timestamp: time.Now(),
	})
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneChan)

	// первый цикл сразу, не дожидаясь тика
	e.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-e.ticker.C:
			e.runCycle(ctx)
		}
	}
}

// runCycle обходит все инструменты пулом воркеров. Каждая задача получает
// собственный таймаут: зависший инструмент не блокирует остальные.
func (e *Engine) runCycle(ctx context.Context) {
	now := time.Now().In(e.loc)
	if !isTradingTime(now) {
		return
	}

	jobs := make(chan string)
	var wg sync.WaitGroup

	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				taskCtx, cancel := context.WithTimeout(ctx, e.cfg.TaskTimeout)
				if err := e.process(taskCtx, symbol); err != nil {
					e.logger.Error("❌ %s: cycle failed: %v", symbol, err)
				}
				cancel()
			}
		}()
	}

dispatch:
	for symbol := range e.trading.Instruments {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- symbol:
		}
	}
	close(jobs)
	wg.Wait()
}

// scheduleDailyJobs регистрирует сброс дневных лимитов перед открытием
// и вечерний отчет после закрытия сессии
func (e *Engine) scheduleDailyJobs() error {
	if _, err := e.cron.AddFunc("0 9 * * MON-FRI", func() {
		if err := e.ledger.ResetDaily(time.Now().In(e.loc)); err != nil {
			e.logger.Error("Failed to reset daily limits: %v", err)
		}
		e.mu.Lock()
		e.realized, e.trades, e.wins = 0, 0, 0
		e.gapHandled = make(map[string]string)
		e.mu.Unlock()
	}); err != nil {
		return err
	}

	if _, err := e.cron.AddFunc("45 15 * * MON-FRI", e.sendDailyReport); err != nil {
		return err
	}
	return nil
}

func (e *Engine) sendDailyReport() {
	e.mu.Lock()
	realized, trades, wins := e.realized, e.trades, e.wins
	e.mu.Unlock()

	date := time.Now().In(e.loc).Format("2006-01-02")
	if e.pnlRepo != nil {
		snap := &domain.PnLSnapshot{
			Date:          date,
			TradesTaken:   trades,
			WinningTrades: wins,
			RealizedPnL:   realized,
		}
		if err := e.pnlRepo.SaveSnapshot(snap); err != nil {
			e.logger.Error("Failed to save PnL snapshot: %v", err)
		}
	}

	e.notifier.Notify(domain.Event{
		Type: domain.EventDailyReport,
		Message: fmt.Sprintf("%s: %d trades closed, %d winners, realized %+.2f, %d positions open",
			date, trades, wins, realized, e.ledger.OpenCount()),
		Timestamp: time.Now(),
	})
}

// addRealized учитывает результат закрытой ноги в дневной статистике
func (e *Engine) addRealized(pnl float64) {
	e.mu.Lock()
	e.realized += pnl
	e.trades++
	if pnl > 0 {
		e.wins++
	}
	e.mu.Unlock()
}

// isTradingTime отсекает выходные и часы вне сессии NSE
func isTradingTime(now time.Time) bool {
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	return minutes >= 9*60+15 && minutes <= 15*60+30
}
