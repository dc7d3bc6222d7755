package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/olegsm/retaildesk/internal/adapters/config"
	"github.com/olegsm/retaildesk/pkg/logger"
	"github.com/olegsm/retaildesk/pkg/models"
)

// Notifier sends stock-signal alert digests to a Telegram chat. It
// implements the sync loop's alert sink: one message per run carrying the
// whole batch.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewNotifier creates new Telegram notifier
func NewNotifier(cfg *config.TelegramConfig) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot.Debug = false

	logger.Info("telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName),
	)

	return &Notifier{
		api:    bot,
		chatID: cfg.ChatID,
	}, nil
}

// Notify sends one digest message for the run's alert batch
func (n *Notifier) Notify(_ context.Context, alerts []models.Alert, referenceTime time.Time) error {
	msg := tgbotapi.NewMessage(n.chatID, formatDigest(alerts, referenceTime))
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send alert digest: %w", err)
	}

	logger.Info("alert digest sent",
		zap.Int("alerts", len(alerts)),
	)

	return nil
}

func formatDigest(alerts []models.Alert, referenceTime time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*Stock signal alerts* (%s)\n\n", referenceTime.Format("2006-01-02 15:04 MST"))

	for _, alert := range alerts {
		marker := "⚠️"
		if alert.Level == models.AlertLevelCritical {
			marker = "🚨"
		}

		fmt.Fprintf(&b, "%s *%s*: %d queries", marker, alert.Symbol, alert.QueryCount)
		if alert.AverageSentiment != nil {
			fmt.Fprintf(&b, ", sentiment %.2f", *alert.AverageSentiment)
		}
		if alert.LastSeenAt != nil {
			fmt.Fprintf(&b, ", last seen %s", alert.LastSeenAt.Format("15:04:05"))
		}
		b.WriteString("\n")
	}

	return b.String()
}
