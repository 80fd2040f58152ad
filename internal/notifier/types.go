package notifier

import (
	"fmt"
	"time"

	"reminderd/internal/channel"
	"reminderd/internal/reminder"
)

// Config controls dispatch. Every field is hot reloadable.
type Config struct {
	Channels       Flags
	ChannelTimeout time.Duration
	// RatePerSec limits calls per channel; 0 disables limiting.
	RatePerSec  int
	HistorySize int
}

// Flags is one enable bit per channel.
type Flags struct {
	Socket   bool `json:"socket"`
	Push     bool `json:"push"`
	Email    bool `json:"email"`
	SMS      bool `json:"sms"`
	Telegram bool `json:"telegram"`
}

// Enabled reports the flag for a channel name; unknown names are disabled.
func (f Flags) Enabled(name string) bool {
	switch name {
	case channel.Socket:
		return f.Socket
	case channel.Push:
		return f.Push
	case channel.Email:
		return f.Email
	case channel.SMS:
		return f.SMS
	case channel.Telegram:
		return f.Telegram
	default:
		return false
	}
}

// With returns a copy with one channel flipped to on.
func (f Flags) With(name string, on bool) (Flags, error) {
	switch name {
	case channel.Socket:
		f.Socket = on
	case channel.Push:
		f.Push = on
	case channel.Email:
		f.Email = on
	case channel.SMS:
		f.SMS = on
	case channel.Telegram:
		f.Telegram = on
	default:
		return f, fmt.Errorf("unknown channel %q", name)
	}
	return f, nil
}

// Report is the per-channel outcome of one Dispatch call.
//
// Results has an entry for every known channel; false covers disabled,
// unconfigured, ineligible and failed alike. Errors holds the cause for
// every false entry.
type Report struct {
	ID      string            `json:"id"`
	UserID  string            `json:"userId"`
	Event   reminder.Event    `json:"event"`
	Console bool              `json:"console"`
	Results map[string]bool   `json:"results"`
	Errors  map[string]string `json:"errors,omitempty"`
	At      time.Time         `json:"at"`
}

func (r Report) Delivered(name string) bool { return r.Results[name] }

// AnyDelivered reports whether at least one channel delivered.
func (r Report) AnyDelivered() bool {
	for _, ok := range r.Results {
		if ok {
			return true
		}
	}
	return false
}

const (
	outcomeDelivered = "delivered"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
	outcomeDisabled  = "disabled"
)
