package gap

import (
	"testing"
	"time"

	"github.com/kirillm/sniper-bot/internal/config"
	"github.com/kirillm/sniper-bot/internal/domain"
	"github.com/kirillm/sniper-bot/pkg/utils"
)

func newTestHandler() *Handler {
	return NewHandler(config.Thresholds{
		GapThresholdPercent:        2,
		TrailPercent:               5,
		GapBookFullPercent:         15,
		GapBookThreeQuarterPercent: 10,
		GapBookHalfPercent:         8,
	}, utils.NewLogger(utils.ERROR))
}

func bullPosition(entry float64) *domain.Position {
	return &domain.Position{
		Symbol:     "NIFTY",
		Direction:  domain.Bullish,
		EntryPrice: entry,
		Quantity:   75,
	}
}

func TestAdverseGapSquaresOff(t *testing.T) {
	h := newTestHandler()
	pos := bullPosition(100)

	// гэп -3% против бычьей позиции
	event, trigger := h.Evaluate(pos, 24500, 23765, 80, time.Now())

	if event == nil || trigger == nil {
		t.Fatal("expected event and trigger on adverse gap")
	}
	if event.Impact != domain.GapAdverse || event.Action != domain.GapActionSquareOff {
		t.Errorf("got %s/%s, want adverse/square_off", event.Impact, event.Action)
	}
	if trigger.Kind != domain.ExitGapAdverse || trigger.CloseFraction != 1.0 {
		t.Errorf("got %s/%.2f, want gap_adverse/1.0", trigger.Kind, trigger.CloseFraction)
	}
}

func TestAdverseGapForBearishIsGapUp(t *testing.T) {
	h := newTestHandler()
	pos := &domain.Position{Symbol: "NIFTY", Direction: domain.Bearish, EntryPrice: 100, Quantity: 75}

	_, trigger := h.Evaluate(pos, 24500, 25235, 80, time.Now())
	if trigger == nil || trigger.Kind != domain.ExitGapAdverse {
		t.Fatalf("got %+v, want adverse square-off on gap up", trigger)
	}
}

func TestFavorableGapBookingTiers(t *testing.T) {
	h := newTestHandler()

	tests := []struct {
		name         string
		premium      float64 // entry 100
		wantFraction float64
	}{
		{"full booking above 15 percent", 116, 1.0},
		{"three quarters above 10 percent", 112, 0.75},
		{"half above 8 percent", 109, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := bullPosition(100)
			event, trigger := h.Evaluate(pos, 24500, 25100, tt.premium, time.Now())

			if trigger == nil {
				t.Fatal("expected booking trigger")
			}
			if trigger.Kind != domain.ExitGapProfit {
				t.Errorf("kind = %s, want gap_profit", trigger.Kind)
			}
			if trigger.CloseFraction != tt.wantFraction {
				t.Errorf("fraction = %v, want %v", trigger.CloseFraction, tt.wantFraction)
			}
			if event.Action != domain.GapActionBookProfit {
				t.Errorf("action = %s, want book_profit", event.Action)
			}
		})
	}
}

func TestBookingTiersComeFromConfig(t *testing.T) {
	// пониженные пороги: та же прибыль дает более агрессивную фиксацию
	h := NewHandler(config.Thresholds{
		GapThresholdPercent:        2,
		TrailPercent:               5,
		GapBookFullPercent:         8,
		GapBookThreeQuarterPercent: 6,
		GapBookHalfPercent:         4,
	}, utils.NewLogger(utils.ERROR))

	pos := bullPosition(100)
	_, trigger := h.Evaluate(pos, 24500, 25100, 109, time.Now())
	if trigger == nil || trigger.CloseFraction != 1.0 {
		t.Fatalf("got %+v, want full booking at lowered tier", trigger)
	}
}

func TestFavorableGapSmallProfitArmsTrailing(t *testing.T) {
	h := newTestHandler()
	pos := bullPosition(100)
	now := time.Now()

	event, trigger := h.Evaluate(pos, 24500, 25100, 104, now)
	if trigger != nil {
		t.Fatalf("expected no exit trigger, got %+v", trigger)
	}
	if event.Action != domain.GapActionArmTrailing {
		t.Fatalf("action = %s, want arm_trailing", event.Action)
	}
	if pos.Trailing == nil || !pos.Trailing.Armed {
		t.Fatal("trailing stop must be armed")
	}
	if want := 104 * 0.95; pos.Trailing.TriggerPrice != want {
		t.Errorf("trigger price = %v, want %v", pos.Trailing.TriggerPrice, want)
	}

	t.Run("already armed stays untouched", func(t *testing.T) {
		before := pos.Trailing.TriggerPrice
		h.Evaluate(pos, 24500, 25100, 200, now)
		if pos.Trailing.TriggerPrice != before {
			t.Error("existing trailing stop must not be rearmed")
		}
	})
}

func TestSmallGapIgnored(t *testing.T) {
	h := newTestHandler()
	pos := bullPosition(100)

	event, trigger := h.Evaluate(pos, 24500, 24700, 102, time.Now())
	if event != nil || trigger != nil {
		t.Fatalf("gap below threshold must be ignored, got %+v / %+v", event, trigger)
	}
}

func TestEvaluateGuards(t *testing.T) {
	h := newTestHandler()
	if event, trigger := h.Evaluate(nil, 24500, 24000, 100, time.Now()); event != nil || trigger != nil {
		t.Fatal("nil position must be ignored")
	}
	if event, trigger := h.Evaluate(bullPosition(100), 0, 24000, 100, time.Now()); event != nil || trigger != nil {
		t.Fatal("zero previous close must be ignored")
	}
}
