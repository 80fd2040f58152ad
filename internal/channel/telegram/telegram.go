// Package telegram delivers reminders as Telegram bot messages.
//
// The bot is created offline: it only sends, it never polls for updates.
package telegram

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"reminderd/internal/channel"
)

// Sender is the subset of *tele.Bot used here.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Adapter struct {
	bot       Sender
	parseMode tele.ParseMode
}

// NewBot builds an offline telebot client. An empty token returns (nil, nil).
func NewBot(token string) (*tele.Bot, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	b, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, fmt.Errorf("telebot: %w", err)
	}
	return b, nil
}

// New wraps a Sender. A nil sender leaves the adapter unconfigured.
func New(bot Sender, parseMode string) *Adapter {
	return &Adapter{bot: bot, parseMode: tele.ParseMode(strings.TrimSpace(parseMode))}
}

func (a *Adapter) Name() string { return channel.Telegram }

func (a *Adapter) Configured() bool { return a != nil && a.bot != nil }

// Send posts a chat message. telebot has no context support, so the call is
// raced against ctx and abandoned (not cancelled) when ctx ends first.
func (a *Adapter) Send(ctx context.Context, to channel.Recipient, msg channel.Message) error {
	if !a.Configured() {
		return channel.ErrNotConfigured
	}
	if to.TelegramChatID == 0 {
		return channel.ErrNoContact
	}
	return a.send(ctx, to.TelegramChatID, channel.ShortText(to, msg))
}

// SendText posts plain text to chatID. The log alert sink uses it.
func (a *Adapter) SendText(ctx context.Context, chatID int64, text string) error {
	if !a.Configured() {
		return channel.ErrNotConfigured
	}
	if chatID == 0 {
		return channel.ErrNoContact
	}
	return a.send(ctx, chatID, text)
}

func (a *Adapter) send(ctx context.Context, chatID int64, text string) error {
	done := make(chan error, 1)
	go func() {
		_, err := a.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{
			ParseMode:             a.parseMode,
			DisableWebPagePreview: true,
		})
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	}
}
