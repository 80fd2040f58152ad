// Package channel defines the contract every notification delivery
// mechanism implements. Concrete adapters live in subpackages.
package channel

import (
	"context"
	"errors"
)

// Channel names, used as DeliveryReport keys and config flags.
const (
	Socket   = "socket"
	Push     = "push"
	Email    = "email"
	SMS      = "sms"
	Telegram = "telegram"
)

// Names lists every channel in dispatch order.
var Names = []string{Socket, Push, Email, SMS, Telegram}

var (
	// ErrNotConfigured means the provider has no credentials or client.
	ErrNotConfigured = errors.New("channel: provider not configured")
	// ErrNoContact means the recipient lacks the field this channel needs.
	ErrNoContact = errors.New("channel: recipient has no contact for this channel")
	// ErrNotConnected means the realtime channel has no live session for the user.
	ErrNotConnected = errors.New("channel: user not connected")
)

// Recipient is the contact card a channel delivers to.
type Recipient struct {
	UserID         string
	Username       string
	Email          string
	Phone          string
	PushEndpoint   string
	TelegramChatID int64
}

// Adapter delivers one message to one recipient.
type Adapter interface {
	Name() string
	// Configured is a cheap check with no I/O.
	Configured() bool
	Send(ctx context.Context, to Recipient, msg Message) error
}

// IsSkip reports whether err means "not delivered" rather than a delivery failure.
func IsSkip(err error) bool {
	return errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrNoContact) || errors.Is(err, ErrNotConnected)
}

// Func adapts a function into an Adapter that is always configured.
type Func struct {
	ChannelName string
	Fn          func(ctx context.Context, to Recipient, msg Message) error
}

func (f Func) Name() string     { return f.ChannelName }
func (f Func) Configured() bool { return f.Fn != nil }
func (f Func) Send(ctx context.Context, to Recipient, msg Message) error {
	if f.Fn == nil {
		return ErrNotConfigured
	}
	return f.Fn(ctx, to, msg)
}
