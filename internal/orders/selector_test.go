package orders

import (
	"testing"

	"github.com/kirillm/sniper-bot/internal/config"
	"github.com/kirillm/sniper-bot/internal/domain"
)

func selectorThresholds() config.Thresholds {
	return config.Thresholds{
		ReasonablePremium:     150,
		ExpensivePremium:      200,
		LimitDiscountPercent:  2,
		HighVolatilityPercent: 3.0,
		LowVolatilityPercent:  1.5,
	}
}

func TestChoose(t *testing.T) {
	s := NewSelector(selectorThresholds())

	tests := []struct {
		name       string
		req        Request
		wantMethod domain.OrderMethod
		wantLimit  float64
	}{
		{
			"gap adverse forces market",
			Request{Scenario: domain.ScenarioGapAdverse, Volatility: domain.VolatilityLow, Premium: 300},
			domain.OrderMarket, 0,
		},
		{
			"stop loss forces market",
			Request{Scenario: domain.ScenarioStopLoss, Volatility: domain.VolatilityLow, Premium: 250},
			domain.OrderMarket, 0,
		},
		{
			"time exit forces market",
			Request{Scenario: domain.ScenarioTimeExit, Volatility: domain.VolatilityLow, Premium: 250},
			domain.OrderMarket, 0,
		},
		{
			"high volatility forces market even on entry",
			Request{Scenario: domain.ScenarioEntry, Volatility: domain.VolatilityHigh, Premium: 250},
			domain.OrderMarket, 0,
		},
		{
			"super strong entry with cheap premium goes market",
			Request{Scenario: domain.ScenarioEntry, Volatility: domain.VolatilityLow,
				Strength: domain.StrengthSuperStrong, Premium: 120},
			domain.OrderMarket, 0,
		},
		{
			"calm market expensive premium gets limit with discount",
			Request{Scenario: domain.ScenarioEntry, Volatility: domain.VolatilityLow,
				Strength: domain.StrengthValid, Premium: 250},
			domain.OrderLimit, 245,
		},
		{
			"medium volatility entry defaults to market",
			Request{Scenario: domain.ScenarioEntry, Volatility: domain.VolatilityMedium,
				Strength: domain.StrengthValid, Premium: 250},
			domain.OrderMarket, 0,
		},
		{
			"profit booking defaults to market",
			Request{Scenario: domain.ScenarioProfitBooking, Volatility: domain.VolatilityLow, Premium: 180},
			domain.OrderMarket, 0,
		},
		{
			"calm rollover with expensive premium gets limit",
			Request{Scenario: domain.ScenarioRollover, Volatility: domain.VolatilityLow, Premium: 250},
			domain.OrderLimit, 245,
		},
		{
			"expiry day forces market despite calm expensive premium",
			Request{Scenario: domain.ScenarioExpiryDay, Volatility: domain.VolatilityLow, Premium: 250},
			domain.OrderMarket, 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := s.Choose(tt.req)
			if intent.Method != tt.wantMethod {
				t.Errorf("method = %s, want %s", intent.Method, tt.wantMethod)
			}
			if tt.wantLimit > 0 && intent.LimitPrice != tt.wantLimit {
				t.Errorf("limit price = %.2f, want %.2f", intent.LimitPrice, tt.wantLimit)
			}
			if intent.Reason == "" {
				t.Error("reason must not be empty")
			}
		})
	}
}

func TestClassifyVolatility(t *testing.T) {
	th := selectorThresholds()

	mk := func(rangePct float64) []domain.Candle {
		out := make([]domain.Candle, 6)
		for i := range out {
			out[i] = domain.Candle{High: 100 + rangePct, Low: 100, Close: 100}
		}
		return out
	}

	tests := []struct {
		name    string
		candles []domain.Candle
		want    domain.Volatility
	}{
		{"wide ranges are high", mk(4), domain.VolatilityHigh},
		{"narrow ranges are low", mk(1), domain.VolatilityLow},
		{"middle ranges are medium", mk(2), domain.VolatilityMedium},
		{"short history defaults medium", mk(4)[:3], domain.VolatilityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyVolatility(tt.candles, th); got != tt.want {
				t.Errorf("volatility = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSizePosition(t *testing.T) {
	th := config.Thresholds{CapitalFraction: 0.5, MaxLots: 5}

	tests := []struct {
		name    string
		capital float64
		premium float64
		lotSize int
		want    int
		wantErr bool
	}{
		{"two lots fit", 100000, 300, 75, 150, false},
		{"clamped to max lots", 10000000, 100, 75, 375, false},
		{"unaffordable gives zero", 10000, 300, 75, 0, false},
		{"zero premium is invalid", 100000, 0, 75, 0, true},
		{"zero lot size is invalid", 100000, 300, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SizePosition(tt.capital, tt.premium, tt.lotSize, th)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("quantity = %d, want %d", got, tt.want)
			}
		})
	}
}
