package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"llm-crypto-trader/internal/events"
	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/types"
)

// Telegram sends plain-text messages to one chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

var _ interfaces.Notifier = (*Telegram)(nil)

// NewTelegram connects with token. endpoint may be empty for the public Bot API.
func NewTelegram(token string, chatID int64, endpoint string) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram: bot token and chat id are required")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, text string) error {
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	logger.Debug(ctx, "Telegram message sent", "chat_id", t.chatID)
	return nil
}

// Forward delivers trade and error events from the bus to n until ctx is done.
func Forward(ctx context.Context, bus *events.Bus, n interfaces.Notifier) {
	bus.Handle(ctx, func(ev types.Event) {
		text := Format(ev)
		if text == "" {
			return
		}
		if err := n.Notify(ctx, text); err != nil {
			logger.Warn(ctx, "Notification failed", "type", ev.Type, "error", err)
		}
	}, types.EventTrade, types.EventError)
}

// Format renders an event as a chat message. Unsupported events give "".
func Format(ev types.Event) string {
	switch ev.Type {
	case types.EventTrade:
		te, ok := ev.Content.(types.TradeEvent)
		if !ok {
			return ""
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s %s: %.8g @ %.8g", te.Side, te.Coin, te.Quantity, te.Price)
		if te.Record != nil {
			fmt.Fprintf(&b, "\nP&L: %+.4f (%+.2f%%), fee %.4f", te.Record.PnL, te.Record.PnLPct, te.Record.Fee)
		}
		if te.Reason != "" {
			fmt.Fprintf(&b, "\n%s", te.Reason)
		}
		return b.String()
	case types.EventError:
		return fmt.Sprintf("Error: %v", ev.Content)
	default:
		return ""
	}
}
