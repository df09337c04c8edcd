package orders

import (
	"testing"
	"time"

	"github.com/kirillm/sniper-bot/internal/config"
	"github.com/kirillm/sniper-bot/internal/domain"
)

func TestStrikeFor(t *testing.T) {
	tests := []struct {
		name   string
		spot   float64
		step   float64
		offset float64
		dir    domain.Direction
		want   float64
	}{
		{"bullish rounds up and adds offset", 24630, 50, 200, domain.Bullish, 24850},
		{"bullish rounds down", 24620, 50, 200, domain.Bullish, 24800},
		{"bearish subtracts offset", 24630, 50, 200, domain.Bearish, 24450},
		{"banknifty step 100", 51230, 100, 200, domain.Bullish, 51400},
		{"exact strike", 24650, 50, 200, domain.Bearish, 24450},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StrikeFor(tt.spot, tt.step, tt.offset, tt.dir); got != tt.want {
				t.Errorf("StrikeFor(%v) = %v, want %v", tt.spot, got, tt.want)
			}
		})
	}
}

func TestNextExpiryWeekly(t *testing.T) {
	inst := config.Instrument{ExpiryWeekday: 4} // четверг

	tests := []struct {
		name  string
		after time.Time
		want  time.Time
	}{
		{
			"monday rolls to same week thursday",
			time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC),
		},
		{
			"thursday rolls to next week",
			time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC),
			time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			"friday rolls to next thursday",
			time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
			time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextExpiry(inst, tt.after); !got.Equal(tt.want) {
				t.Errorf("NextExpiry(%v) = %v, want %v", tt.after, got, tt.want)
			}
		})
	}
}

func TestNextExpiryMonthly(t *testing.T) {
	inst := config.Instrument{ExpiryWeekday: 4, MonthlyOnly: true}

	t.Run("mid month gives last thursday", func(t *testing.T) {
		after := time.Date(2026, 8, 10, 10, 0, 0, 0, time.UTC)
		want := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
		if got := NextExpiry(inst, after); !got.Equal(want) {
			t.Errorf("NextExpiry = %v, want %v", got, want)
		}
	})

	t.Run("after monthly expiry moves to next month", func(t *testing.T) {
		after := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
		want := time.Date(2026, 9, 24, 0, 0, 0, 0, time.UTC)
		if got := NextExpiry(inst, after); !got.Equal(want) {
			t.Errorf("NextExpiry = %v, want %v", got, want)
		}
	})
}

func TestNextEntryExpiry(t *testing.T) {
	inst := config.Instrument{ExpiryWeekday: 4}
	th := config.Thresholds{
		WeeklyCutoffWeekday: 5,
		WeeklyCutoffHour:    15,
		WeeklyCutoffMinute:  20,
	}

	tests := []struct {
		name  string
		after time.Time
		want  time.Time
	}{
		{
			// 2026-08-28 пятница
			"friday after cutoff takes monthly",
			time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC),
			time.Date(2026, 9, 24, 0, 0, 0, 0, time.UTC),
		},
		{
			"friday before cutoff keeps weekly",
			time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC),
			time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			"midweek keeps weekly",
			time.Date(2026, 8, 26, 11, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextEntryExpiry(inst, tt.after, th); !got.Equal(tt.want) {
				t.Errorf("NextEntryExpiry(%v) = %v, want %v", tt.after, got, tt.want)
			}
		})
	}

	t.Run("monthly instrument unaffected by cutoff", func(t *testing.T) {
		monthly := config.Instrument{ExpiryWeekday: 4, MonthlyOnly: true}
		after := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
		want := time.Date(2026, 9, 24, 0, 0, 0, 0, time.UTC)
		if got := NextEntryExpiry(monthly, after, th); !got.Equal(want) {
			t.Errorf("NextEntryExpiry = %v, want %v", got, want)
		}
	})
}

func TestTradingSymbol(t *testing.T) {
	expiry := time.Date(2025, 8, 28, 0, 0, 0, 0, time.UTC)
	got := TradingSymbol("NIFTY", 24650, domain.OptionCall, expiry)
	if got != "NIFTY25AUG24650CE" {
		t.Errorf("symbol = %q, want NIFTY25AUG24650CE", got)
	}

	got = TradingSymbol("BANKNIFTY", 51400, domain.OptionPut, time.Date(2026, 1, 29, 0, 0, 0, 0, time.UTC))
	if got != "BANKNIFTY26JAN51400PE" {
		t.Errorf("symbol = %q, want BANKNIFTY26JAN51400PE", got)
	}
}

func TestBuildContract(t *testing.T) {
	inst := config.Instrument{
		Exchange:      "NFO",
		LotSize:       75,
		StrikeStep:    50,
		OTMOffset:     200,
		ExpiryWeekday: 4,
	}
	after := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	c := BuildContract("NIFTY", inst, 24630, domain.Bullish, after)
	if c.Strike != 24850 {
		t.Errorf("strike = %v, want 24850", c.Strike)
	}
	if c.Kind != domain.OptionCall {
		t.Errorf("kind = %s, want CE", c.Kind)
	}
	if c.LotSize != 75 {
		t.Errorf("lot size = %d, want 75", c.LotSize)
	}
	if c.TradingSymbol != "NIFTY26AUG24850CE" {
		t.Errorf("trading symbol = %q, want NIFTY26AUG24850CE", c.TradingSymbol)
	}

	p := BuildContract("NIFTY", inst, 24630, domain.Bearish, after)
	if p.Kind != domain.OptionPut || p.Strike != 24450 {
		t.Errorf("put contract = %v/%s, want 24450/PE", p.Strike, p.Kind)
	}
}
