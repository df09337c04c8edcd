package telegram

import (
	"strings"
	"testing"

	"github.com/kirillm/sniper-bot/internal/domain"
)

func TestFormatEntry(t *testing.T) {
	f := NewFormatter()
	event := domain.Event{
		Type:   domain.EventEntry,
		Symbol: "NIFTY",
		Position: &domain.Position{
			Contract:        domain.Contract{TradingSymbol: "NIFTY26AUG24850CE"},
			EntryPrice:      120.5,
			Quantity:        150,
			PartialTarget:   241,
			FullTarget:      361.5,
			StopLossPercent: 30,
		},
		Reasons: []string{"trend aligned", "pivot breakout"},
	}

	msg := f.Format(event)
	for _, want := range []string{
		"*Entry* NIFTY",
		"`NIFTY26AUG24850CE`",
		"Premium: 120.50 x 150",
		"Targets: 241.00 / 361.50, SL 30%",
		"• trend aligned",
		"• pivot breakout",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("entry message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatExits(t *testing.T) {
	f := NewFormatter()

	t.Run("partial exit", func(t *testing.T) {
		msg := f.Format(domain.Event{
			Type:     domain.EventPartialExit,
			Symbol:   "NIFTY",
			Quantity: 75,
			Premium:  240,
			PnL:      9000,
			PnLPct:   100,
			Message:  "premium 240.00 reached partial target 240.00",
		})
		for _, want := range []string{"*Partial exit* NIFTY", "Qty: 75 @ 240.00", "P&L: +9000.00 (+100.0%)"} {
			if !strings.Contains(msg, want) {
				t.Errorf("message missing %q:\n%s", want, msg)
			}
		}
	})

	t.Run("losing full exit", func(t *testing.T) {
		msg := f.Format(domain.Event{
			Type:     domain.EventFullExit,
			Symbol:   "BANKNIFTY",
			Quantity: 35,
			Premium:  60,
			PnL:      -1400,
			PnLPct:   -40,
		})
		if !strings.Contains(msg, "*Position closed* BANKNIFTY") {
			t.Errorf("missing header:\n%s", msg)
		}
		if !strings.Contains(msg, "P&L: -1400.00 (-40.0%)") {
			t.Errorf("missing signed pnl:\n%s", msg)
		}
	})
}

func TestFormatSimpleEvents(t *testing.T) {
	f := NewFormatter()

	tests := []struct {
		name  string
		event domain.Event
		want  string
	}{
		{"startup", domain.Event{Type: domain.EventStartup, Message: "2 instruments"}, "*Sniper bot started*"},
		{"shutdown", domain.Event{Type: domain.EventShutdown, Message: "1 positions remain open"}, "*Sniper bot stopped*"},
		{"rollover", domain.Event{Type: domain.EventRollover, Symbol: "NIFTY", Message: "rolled"}, "*Rollover* NIFTY"},
		{"gap", domain.Event{Type: domain.EventGap, Symbol: "NIFTY", Message: "gap -3.0%"}, "*Gap* NIFTY"},
		{"daily report", domain.Event{Type: domain.EventDailyReport, Message: "2 trades"}, "*Daily report*"},
		{"error", domain.Event{Type: domain.EventError, Symbol: "NIFTY", Message: "order failed"}, "*Error* NIFTY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := f.Format(tt.event)
			if !strings.Contains(msg, tt.want) {
				t.Errorf("message %q missing %q", msg, tt.want)
			}
			if !strings.Contains(msg, tt.event.Message) {
				t.Errorf("message %q missing body %q", msg, tt.event.Message)
			}
		})
	}
}

func TestFormatUnknownEventIsSilent(t *testing.T) {
	f := NewFormatter()
	if msg := f.Format(domain.Event{Type: "heartbeat"}); msg != "" {
		t.Errorf("unknown event produced %q, want empty", msg)
	}
}
