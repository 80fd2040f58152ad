package storage

import (
	"context"
	"errors"
	"time"

	"reminderd/internal/reminder"
)

var (
	ErrNotFound = errors.New("storage: not found")
	ErrClosed   = errors.New("storage: closed")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string        // sqlite file
	DSN         string        // postgres
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// User is the contact card used to decide channel eligibility.
// Empty fields mean the channel cannot reach the user.
type User struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	PushEndpoint   string `json:"pushEndpoint,omitempty"`
	TelegramChatID int64  `json:"telegramChatId,omitempty"`
}

// DeliveryEntry records one channel attempt of one dispatch.
type DeliveryEntry struct {
	ID            string
	DispatchID    string
	UserID        string
	At            time.Time
	ReminderCount int
	Channel       string
	Delivered     bool
	Error         string
}

// ReminderStore is the persistence the scheduler needs. The scheduler
// serializes per user, so implementations only need per-call atomicity.
type ReminderStore interface {
	FindReminder(ctx context.Context, userID string) (reminder.State, error)
	UpsertReminder(ctx context.Context, st reminder.State) error
	DeleteReminder(ctx context.Context, userID string) error
	ListActiveReminders(ctx context.Context) ([]reminder.State, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (User, error)
}

type DeliveryLog interface {
	AppendDeliveries(ctx context.Context, entries []DeliveryEntry) error
	ListDeliveries(ctx context.Context, userID string, limit int) ([]DeliveryEntry, error)
}

// Store is the full persistence surface opened by the daemon.
type Store interface {
	ReminderStore
	UserDirectory
	DeliveryLog
	UpsertUser(ctx context.Context, u User) error
	SetPushEndpoint(ctx context.Context, userID, endpoint string) error
	Close() error
}
