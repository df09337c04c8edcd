package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillm/sniper-bot/internal/config"
	"github.com/kirillm/sniper-bot/internal/confidence"
	"github.com/kirillm/sniper-bot/internal/domain"
	"github.com/kirillm/sniper-bot/internal/exits"
	"github.com/kirillm/sniper-bot/internal/gap"
	"github.com/kirillm/sniper-bot/internal/ledger"
	"github.com/kirillm/sniper-bot/internal/orders"
	"github.com/kirillm/sniper-bot/internal/rollover"
	"github.com/kirillm/sniper-bot/internal/signal"
	"github.com/kirillm/sniper-bot/pkg/utils"
)

// fakeBroker управляемый брокер для тестов движка
type fakeBroker struct {
	mu         sync.Mutex
	candles    map[string][]domain.Candle
	ltp        map[string]float64
	ltpDefault float64
	failBuy    bool // отклонять покупки, имитация отказа брокера
	placed     []domain.OrderIntent
	nextID     int
}

func (b *fakeBroker) Candles(_ context.Context, _, symbol, _ string, _, _ time.Time) ([]domain.Candle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.candles[symbol]
	if !ok {
		return nil, errors.New("no candles for " + symbol)
	}
	return c, nil
}

func (b *fakeBroker) LTP(_ context.Context, _, tradingSymbol string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.ltp[tradingSymbol]; ok {
		return v, nil
	}
	return b.ltpDefault, nil
}

func (b *fakeBroker) PlaceOrder(_ context.Context, _ string, intent domain.OrderIntent) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failBuy && intent.TransactionType == domain.SideBuy {
		return "", domain.ErrBrokerAPI
	}
	b.placed = append(b.placed, intent)
	b.nextID++
	return "ORD" + string(rune('0'+b.nextID)), nil
}

func (b *fakeBroker) orders() []domain.OrderIntent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.OrderIntent(nil), b.placed...)
}

// fakeNotifier накапливает события
type fakeNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *fakeNotifier) Notify(e domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *fakeNotifier) byType(t domain.EventType) []domain.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Event
	for _, e := range n.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func engineThresholds() config.Thresholds {
	return config.Thresholds{
		MaxDailyTrades:             5,
		MaxSimultaneousPositions:   3,
		CapitalFraction:            0.1,
		MaxLots:                    2,
		AISupportMin:               0.65,
		PartialTargetMultiple:      2.0,
		FullTargetMultiple:         3.0,
		StopLossPercent:            30,
		SwingProfitPercent:         5,
		SwingLookback:              5,
		DivergenceWindow:           3,
		DivergenceMinProfit:        3,
		VolumeDropRatio:            0.4,
		VolumeBaselinePeriod:       20,
		MomentumWeakBelow:          0.3,
		CandleTimeout:              3,
		WeeklyCutoffWeekday:        5,
		WeeklyCutoffHour:           15,
		WeeklyCutoffMinute:         20,
		GapThresholdPercent:        2,
		TrailPercent:               5,
		GapBookFullPercent:         15,
		GapBookThreeQuarterPercent: 10,
		GapBookHalfPercent:         8,
		RolloverUrgentDays:         3,
		RolloverRecommendedDays:    5,
		RolloverOptionalDays:       7,
		HighVolatilityPercent:      3.0,
		LowVolatilityPercent:       1.5,
		ExpensivePremium:           200,
		ReasonablePremium:          150,
		LimitDiscountPercent:       2,
	}
}

func newTestEngine(t *testing.T, broker *fakeBroker) (*Engine, *ledger.Ledger, *fakeNotifier) {
	t.Helper()
	logger := utils.NewLogger(utils.ERROR)
	th := engineThresholds()

	led, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.json"), "test",
		th.MaxDailyTrades, th.MaxSimultaneousPositions, logger)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}

	trading := config.TradingConfig{
		Capital: 1000000,
		Instruments: map[string]config.Instrument{
			"NIFTY": {
				Exchange:      "NFO",
				LotSize:       75,
				StrikeStep:    50,
				OTMOffset:     200,
				ExpiryWeekday: 4,
			},
		},
		Thresholds: th,
	}
	engCfg := config.EngineConfig{
		Account:       "test",
		CycleInterval: time.Minute,
		Workers:       1,
		TaskTimeout:   5 * time.Second,
	}

	provider := confidence.Fixed{Value: 0.9}
	notifier := &fakeNotifier{}

	eng := New(
		engCfg, trading, broker, led,
		signal.NewEvaluator(provider, th.AISupportMin, logger),
		exits.NewEvaluator(th, provider, logger),
		gap.NewHandler(th, logger),
		rollover.NewManager(th, logger),
		orders.NewSelector(th),
		notifier,
		nil, nil,
		time.UTC,
		logger,
	)
	return eng, led, notifier
}

// trendCandles строит монотонный бычий тренд с растущим объемом
func trendCandles(n int, start, dailyPct float64) []domain.Candle {
	out := make([]domain.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		out[i] = domain.Candle{
			Time:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:   price,
			High:   price * 1.01,
			Low:    price * 0.99,
			Close:  price,
			Volume: 1000 + float64(i),
		}
		price *= 1 + dailyPct/100
	}
	return out
}

func openPosition(t *testing.T, led *ledger.Ledger, entry float64, expiry time.Time) domain.Position {
	t.Helper()
	th := engineThresholds()
	pos := domain.Position{
		Symbol: "NIFTY",
		Contract: domain.Contract{
			Symbol:        "NIFTY",
			TradingSymbol: "NIFTY26SEP25000CE",
			Strike:        25000,
			Kind:          domain.OptionCall,
			Expiry:        expiry,
			LotSize:       75,
		},
		Direction:       domain.Bullish,
		EntryPrice:      entry,
		Quantity:        150,
		EntryTime:       time.Now().Add(-48 * time.Hour),
		State:           domain.PositionOpen,
		StopLossPercent: th.StopLossPercent,
		PartialTarget:   entry * th.PartialTargetMultiple,
		FullTarget:      entry * th.FullTargetMultiple,
	}
	if err := led.AddPosition(pos); err != nil {
		t.Fatalf("seed position: %v", err)
	}
	return pos
}

func TestEntryFlow(t *testing.T) {
	broker := &fakeBroker{
		candles:    map[string][]domain.Candle{"NIFTY": trendCandles(260, 100, 1.0)},
		ltpDefault: 100,
	}
	eng, led, notifier := newTestEngine(t, broker)

	if err := eng.process(context.Background(), "NIFTY"); err != nil {
		t.Fatalf("process: %v", err)
	}

	pos, ok := led.Position("NIFTY")
	if !ok {
		t.Fatal("no position opened on a strong trend")
	}
	if pos.EntryPrice != 100 {
		t.Errorf("entry price = %.2f, want 100", pos.EntryPrice)
	}
	// 10% капитала при премии 100 и лоте 75 дает больше MaxLots, ждем клэмп
	if pos.Quantity != 150 {
		t.Errorf("quantity = %d, want 150", pos.Quantity)
	}
	if pos.PartialTarget != 200 || pos.FullTarget != 300 {
		t.Errorf("targets = %.2f/%.2f, want 200/300", pos.PartialTarget, pos.FullTarget)
	}
	if pos.Direction != domain.Bullish {
		t.Errorf("direction = %s, want bullish", pos.Direction)
	}

	placed := broker.orders()
	if len(placed) != 1 {
		t.Fatalf("orders placed = %d, want 1", len(placed))
	}
	if placed[0].TransactionType != domain.SideBuy {
		t.Errorf("side = %s, want BUY", placed[0].TransactionType)
	}
	if len(notifier.byType(domain.EventEntry)) != 1 {
		t.Error("entry event not delivered")
	}
	if got := led.Risk().TradeCountToday; got != 1 {
		t.Errorf("trade count = %d, want 1", got)
	}
}

func TestEntrySlotReleasedOnBrokerFailure(t *testing.T) {
	broker := &fakeBroker{
		candles:    map[string][]domain.Candle{"NIFTY": trendCandles(260, 100, 1.0)},
		ltpDefault: 100,
		failBuy:    true,
	}
	eng, led, _ := newTestEngine(t, broker)

	if err := eng.process(context.Background(), "NIFTY"); err == nil {
		t.Fatal("expected broker error")
	}
	if _, ok := led.Position("NIFTY"); ok {
		t.Error("position recorded despite rejected order")
	}
	if got := led.Risk().TradeCountToday; got != 0 {
		t.Errorf("trade count = %d, want 0 after release", got)
	}
}

func TestStopLossExitFlow(t *testing.T) {
	expiry := time.Now().AddDate(0, 0, 30)
	broker := &fakeBroker{
		candles:    map[string][]domain.Candle{"NIFTY": trendCandles(260, 100, 1.0)},
		ltp:        map[string]float64{"NIFTY26SEP25000CE": 60},
		ltpDefault: 100,
	}
	eng, led, notifier := newTestEngine(t, broker)
	openPosition(t, led, 100, expiry)

	if err := eng.process(context.Background(), "NIFTY"); err != nil {
		t.Fatalf("process: %v", err)
	}

	if _, ok := led.Position("NIFTY"); ok {
		t.Error("position still open after stop loss")
	}
	placed := broker.orders()
	if len(placed) != 1 {
		t.Fatalf("orders placed = %d, want 1", len(placed))
	}
	if placed[0].TransactionType != domain.SideSell || placed[0].Quantity != 150 {
		t.Errorf("exit order = %s/%d, want SELL/150", placed[0].TransactionType, placed[0].Quantity)
	}
	// стоп-лосс исполняется только по рынку
	if placed[0].Method != domain.OrderMarket {
		t.Errorf("exit method = %s, want MARKET", placed[0].Method)
	}
	if len(notifier.byType(domain.EventFullExit)) != 1 {
		t.Error("full exit event not delivered")
	}

	eng.mu.Lock()
	realized := eng.realized
	eng.mu.Unlock()
	if realized != -6000 {
		t.Errorf("realized = %.2f, want -6000", realized)
	}
}

func TestRolloverInterruptedAndRecovered(t *testing.T) {
	expiry := time.Now().AddDate(0, 0, 2) // срочный ролловер
	broker := &fakeBroker{
		candles:    map[string][]domain.Candle{"NIFTY": trendCandles(260, 100, 1.0)},
		ltp:        map[string]float64{"NIFTY26SEP25000CE": 103},
		ltpDefault: 50,
		failBuy:    true, // exit-нога проходит, entry-нога падает
	}
	eng, led, _ := newTestEngine(t, broker)
	openPosition(t, led, 100, expiry)

	if err := eng.process(context.Background(), "NIFTY"); err == nil {
		t.Fatal("expected entry leg failure")
	}

	rolls := led.PendingRolls()
	if len(rolls) != 1 {
		t.Fatalf("pending rolls = %d, want 1", len(rolls))
	}
	sells := broker.orders()
	if len(sells) != 1 || sells[0].Method != domain.OrderMarket {
		t.Fatalf("exit leg = %+v, want single market sell", sells)
	}
	// срочный перенос исполняется как сценарий дня экспирации
	if !strings.Contains(sells[0].Reason, string(domain.ScenarioExpiryDay)) {
		t.Errorf("exit leg reason = %q, want expiry day execution", sells[0].Reason)
	}
	if rolls[0].Contract.TradingSymbol == "NIFTY26SEP25000CE" {
		t.Error("pending roll still points at the old contract")
	}
	if !rolls[0].Contract.Expiry.After(expiry) {
		t.Error("target expiry must be after the current one")
	}

	// рестарт: новый движок с тем же реестром доисполняет entry-ногу
	broker2 := &fakeBroker{
		candles:    map[string][]domain.Candle{"NIFTY": trendCandles(260, 100, 1.0)},
		ltpDefault: 50,
	}
	eng2, _, _ := newTestEngine(t, broker2)
	eng2.ledger = led

	if err := eng2.recoverPendingRolls(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(led.PendingRolls()) != 0 {
		t.Error("pending roll not cleared after recovery")
	}
	pos, ok := led.Position("NIFTY")
	if !ok {
		t.Fatal("position lost during recovery")
	}
	if pos.EntryPrice != 50 {
		t.Errorf("rolled entry price = %.2f, want 50", pos.EntryPrice)
	}
	if pos.CandlesSinceEntry != 0 || pos.PartialExitDone {
		t.Error("entry leg must reset position lifecycle fields")
	}
	if pos.PartialTarget != 100 || pos.FullTarget != 150 {
		t.Errorf("rolled targets = %.2f/%.2f, want 100/150", pos.PartialTarget, pos.FullTarget)
	}

	placed := broker2.orders()
	if len(placed) != 1 || placed[0].TransactionType != domain.SideBuy {
		t.Fatalf("recovery orders = %v, want single BUY", placed)
	}
}

func TestPendingRollRetriedNextCycle(t *testing.T) {
	expiry := time.Now().AddDate(0, 0, 2)
	broker := &fakeBroker{
		candles:    map[string][]domain.Candle{"NIFTY": trendCandles(260, 100, 1.0)},
		ltp:        map[string]float64{"NIFTY26SEP25000CE": 103},
		ltpDefault: 50,
		failBuy:    true,
	}
	eng, led, _ := newTestEngine(t, broker)
	openPosition(t, led, 100, expiry)

	if err := eng.process(context.Background(), "NIFTY"); err == nil {
		t.Fatal("expected entry leg failure")
	}
	if len(led.PendingRolls()) != 1 {
		t.Fatal("expected pending roll after failed entry leg")
	}
	sold := len(broker.orders())

	// пока брокер отклоняет покупки, позиция остается незавершенной:
	// никаких выходов и продаж по еще не купленному контракту
	if err := eng.process(context.Background(), "NIFTY"); err == nil {
		t.Fatal("expected retry to fail while broker rejects buys")
	}
	if len(led.PendingRolls()) != 1 {
		t.Fatal("pending roll lost during failed retry")
	}
	if got := len(broker.orders()); got != sold {
		t.Fatalf("orders during failed retry = %d, want %d", got, sold)
	}

	broker.mu.Lock()
	broker.failBuy = false
	broker.mu.Unlock()

	// брокер ожил: очередной цикл доисполняет входную ногу без рестарта
	if err := eng.process(context.Background(), "NIFTY"); err != nil {
		t.Fatalf("retry cycle: %v", err)
	}
	if len(led.PendingRolls()) != 0 {
		t.Error("pending roll not cleared by in-cycle retry")
	}
	pos, ok := led.Position("NIFTY")
	if !ok {
		t.Fatal("position lost during in-cycle retry")
	}
	if pos.PendingRoll {
		t.Error("position still marked pending after entry leg")
	}
	if pos.EntryPrice != 50 {
		t.Errorf("rolled entry price = %.2f, want 50", pos.EntryPrice)
	}
	placed := broker.orders()
	if last := placed[len(placed)-1]; last.TransactionType != domain.SideBuy {
		t.Errorf("last order = %s, want BUY entry leg", last.TransactionType)
	}
}

func TestScenarioFor(t *testing.T) {
	tests := []struct {
		kind domain.ExitKind
		want domain.ScenarioTag
	}{
		{domain.ExitGapAdverse, domain.ScenarioGapAdverse},
		{domain.ExitStopLoss, domain.ScenarioStopLoss},
		{domain.ExitTrailingStop, domain.ScenarioStopLoss},
		{domain.ExitTimeBased, domain.ScenarioTimeExit},
		{domain.ExitProfitTarget, domain.ScenarioProfitBooking},
		{domain.ExitSwingPartial, domain.ScenarioProfitBooking},
		{domain.ExitGapProfit, domain.ScenarioProfitBooking},
		{domain.ExitRollover, domain.ScenarioRollover},
		{domain.ExitTrendCross, domain.ScenarioProfitBooking},
	}
	for _, tt := range tests {
		if got := scenarioFor(tt.kind); got != tt.want {
			t.Errorf("scenarioFor(%s) = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestIsTradingTime(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"mid session", time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC), true},
		{"session open", time.Date(2026, 3, 3, 9, 15, 0, 0, time.UTC), true},
		{"session close", time.Date(2026, 3, 3, 15, 30, 0, 0, time.UTC), true},
		{"before open", time.Date(2026, 3, 3, 9, 14, 0, 0, time.UTC), false},
		{"after close", time.Date(2026, 3, 3, 15, 31, 0, 0, time.UTC), false},
		{"saturday", time.Date(2026, 3, 7, 11, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2026, 3, 8, 11, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTradingTime(tt.at); got != tt.want {
				t.Errorf("isTradingTime(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}
