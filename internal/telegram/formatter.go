package telegram

import (
	"fmt"
	"strings"

	"github.com/kirillm/sniper-bot/internal/domain"
)

// Formatter форматирует события движка в сообщения для чата
type Formatter struct{}

// NewFormatter создает новый форматтер
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Format возвращает текст сообщения или пустую строку для событий,
// которые не требуют уведомления
func (f *Formatter) Format(event domain.Event) string {
	switch event.Type {
	case domain.EventStartup:
		return fmt.Sprintf("🚀 *Sniper bot started*\n%s", event.Message)
	case domain.EventShutdown:
		return fmt.Sprintf("🛑 *Sniper bot stopped*\n%s", event.Message)
	case domain.EventEntry:
		return f.formatEntry(event)
	case domain.EventPartialExit:
		return f.formatExit(event, "✂️ *Partial exit*")
	case domain.EventFullExit:
		return f.formatExit(event, "🏁 *Position closed*")
	case domain.EventRollover:
		return fmt.Sprintf("🔄 *Rollover* %s\n%s", event.Symbol, event.Message)
	case domain.EventGap:
		return fmt.Sprintf("⚡️ *Gap* %s\n%s", event.Symbol, event.Message)
	case domain.EventDailyReport:
		return fmt.Sprintf("📊 *Daily report*\n%s", event.Message)
	case domain.EventError:
		return fmt.Sprintf("❗️ *Error* %s\n%s", event.Symbol, event.Message)
	}
	return ""
}

func (f *Formatter) formatEntry(event domain.Event) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎯 *Entry* %s\n", event.Symbol))
	if event.Position != nil {
		sb.WriteString(fmt.Sprintf("Contract: `%s`\n", event.Position.Contract.TradingSymbol))
		sb.WriteString(fmt.Sprintf("Premium: %.2f x %d\n", event.Position.EntryPrice, event.Position.Quantity))
		sb.WriteString(fmt.Sprintf("Targets: %.2f / %.2f, SL %.0f%%\n",
			event.Position.PartialTarget, event.Position.FullTarget, event.Position.StopLossPercent))
	}
	if len(event.Reasons) > 0 {
		sb.WriteString("\n")
		for _, r := range event.Reasons {
			sb.WriteString("• " + r + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (f *Formatter) formatExit(event domain.Event, header string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s\n", header, event.Symbol))
	if event.Quantity > 0 {
		sb.WriteString(fmt.Sprintf("Qty: %d @ %.2f\n", event.Quantity, event.Premium))
	}
	sb.WriteString(fmt.Sprintf("P&L: %+.2f (%+.1f%%)\n", event.PnL, event.PnLPct))
	if event.Message != "" {
		sb.WriteString(event.Message)
	}
	return strings.TrimRight(sb.String(), "\n")
}
