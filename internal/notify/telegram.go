package notify

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"
)

// TelegramConfig configures the Telegram notifier.
type TelegramConfig struct {
	BotToken      string `yaml:"bot_token"`
	DefaultChatID string `yaml:"default_chat_id"`
	ServerURL     string `yaml:"-"` // API base override, tests only
}

// Telegram sends alerts through the Bot API sendMessage method.
type Telegram struct {
	bot         *bot.Bot // nil when no token is configured
	defaultChat string

	sent   atomic.Int64
	failed atomic.Int64
}

// NewTelegram builds the notifier. With an empty token the notifier is
// inert and every Send returns ErrNotConfigured.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	t := &Telegram{defaultChat: cfg.DefaultChatID}
	if cfg.BotToken == "" {
		log.Warn().Msg("notify: telegram bot token not set, notifications disabled")
		return t, nil
	}

	opts := []bot.Option{bot.WithSkipGetMe()}
	if cfg.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(cfg.ServerURL))
	}
	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram init: %w", err)
	}
	t.bot = b
	return t, nil
}

// Send posts p to target, or to the default chat when target is empty.
func (t *Telegram) Send(ctx context.Context, p Payload, target string) error {
	chat := target
	if chat == "" {
		chat = t.defaultChat
	}
	if t.bot == nil || chat == "" {
		return ErrNotConfigured
	}

	noPreview := true
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:             chat,
		Text:               FormatHTML(p),
		ParseMode:          models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: &noPreview},
	})
	if err != nil {
		t.failed.Add(1)
		return fmt.Errorf("notify: telegram send: %w", err)
	}
	t.sent.Add(1)
	return nil
}

// Configured reports whether Send can deliver to the default chat.
func (t *Telegram) Configured() bool {
	return t.bot != nil && t.defaultChat != ""
}

// TelegramStats counts delivery outcomes.
type TelegramStats struct {
	Sent   int64 `json:"sent"`
	Failed int64 `json:"failed"`
}

func (t *Telegram) Stats() TelegramStats {
	return TelegramStats{Sent: t.sent.Load(), Failed: t.failed.Load()}
}
