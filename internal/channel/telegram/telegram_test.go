package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"reminderd/internal/channel"
)

type fakeBot struct {
	chatID int64
	text   string
	block  chan struct{}
}

func (f *fakeBot) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	if f.block != nil {
		<-f.block
	}
	f.chatID = to.(*tele.Chat).ID
	f.text, _ = what.(string)
	return &tele.Message{ID: 1}, nil
}

func TestSend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := channel.Message{ReminderCount: 2}

	if err := New(nil, "").Send(ctx, channel.Recipient{TelegramChatID: 1}, m); !errors.Is(err, channel.ErrNotConfigured) {
		t.Fatalf("unconfigured: %v", err)
	}
	f := &fakeBot{}
	a := New(f, "")
	if err := a.Send(ctx, channel.Recipient{}, m); !errors.Is(err, channel.ErrNoContact) {
		t.Fatalf("no chat: %v", err)
	}
	if err := a.Send(ctx, channel.Recipient{TelegramChatID: 99}, m); err != nil {
		t.Fatalf("send: %v", err)
	}
	if f.chatID != 99 || !strings.Contains(f.text, "#2") {
		t.Fatalf("bot got chat=%d text=%q", f.chatID, f.text)
	}
}

func TestSendHonoursContext(t *testing.T) {
	t.Parallel()
	f := &fakeBot{block: make(chan struct{})}
	defer close(f.block)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := New(f, "").Send(ctx, channel.Recipient{TelegramChatID: 1}, channel.Message{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewBotEmptyToken(t *testing.T) {
	t.Parallel()
	b, err := NewBot("  ")
	if b != nil || err != nil {
		t.Fatalf("empty token should yield nil bot, got %v %v", b, err)
	}
}

func TestSendText(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	if err := New(nil, "").SendText(ctx, 5, "x"); !errors.Is(err, channel.ErrNotConfigured) {
		t.Fatalf("unconfigured: %v", err)
	}
	f := &fakeBot{}
	a := New(f, "")
	if err := a.SendText(ctx, 0, "x"); !errors.Is(err, channel.ErrNoContact) {
		t.Fatalf("no chat: %v", err)
	}
	if err := a.SendText(ctx, -100123, "[WARN] store slow"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if f.chatID != -100123 || f.text != "[WARN] store slow" {
		t.Fatalf("bot got chat=%d text=%q", f.chatID, f.text)
	}
}
