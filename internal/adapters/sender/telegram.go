package sender

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloudimg/internal/core/port"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"
)

const TelegramMessageLimit = 4096

//go:generate mockery --name TelegramBot

type TelegramBot interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Telegram posts run reports to a chat.
type Telegram struct {
	bot    TelegramBot
	chatID int64
}

func NewTelegram(bot TelegramBot, chatID int64) *Telegram {
	return &Telegram{bot: bot, chatID: chatID}
}

func (s *Telegram) Report(ctx context.Context, report port.RunReport) error {
	for _, chunk := range chunkText(FormatReport(report), TelegramMessageLimit) {
		_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: s.chatID,
			Text:   chunk,
		})
		if err != nil {
			log.Error().Err(err).Int64("chatID", s.chatID).Msg("failed to send run report")
			return err
		}
	}

	return nil
}

// Log writes run reports to the global logger.
type Log struct{}

func (Log) Report(_ context.Context, report port.RunReport) error {
	event := log.Info()
	if len(report.Failures) > 0 || report.Cancelled {
		event = log.Warn()
	}

	event.
		Str("runId", report.RunID).
		Int("total", report.Total).
		Int("uploaded", report.Uploaded).
		Int("skipped", report.Skipped).
		Int("failed", len(report.Failures)).
		Bool("cancelled", report.Cancelled).
		Dur("duration", report.Duration).
		Msg("ingestion run finished")

	for _, f := range report.Failures {
		log.Error().Err(f.Err).Str("identifier", f.Identifier).Msg("asset failed")
	}

	return nil
}

func FormatReport(report port.RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "cloudimg run %s", report.RunID)
	if report.Cancelled {
		b.WriteString(" (cancelled)")
	}
	fmt.Fprintf(&b, "\n%d assets in %s: %d uploaded, %d skipped, %d failed\n", report.Total,
		report.Duration.Round(time.Millisecond), report.Uploaded, report.Skipped, len(report.Failures))

	for _, f := range report.Failures {
		fmt.Fprintf(&b, "- %s: %v\n", f.Identifier, f.Err)
	}

	return strings.TrimRight(b.String(), "\n")
}

func chunkText(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		n := min(limit, len(runes))
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return chunks
}
