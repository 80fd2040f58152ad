package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

func openBoth(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "r.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{"memory": NewMemory(), "sqlite": sq}
}

func TestReminderCRUD(t *testing.T) {
	ctx := context.Background()
	for name, st := range openBoth(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := st.FindReminder(ctx, "u1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("find missing: %v", err)
			}

			sent := time.UnixMilli(1_700_000_000_000)
			next := sent.Add(30 * time.Minute)
			in := reminder.State{
				UserID:               "u1",
				IntervalMinutes:      30,
				IsActive:             true,
				LastNotificationSent: &sent,
				NextNotificationTime: &next,
				TotalRemindersToday:  4,
				LastResetDate:        reminder.Date{Year: 2023, Month: time.November, Day: 14},
			}
			if err := st.UpsertReminder(ctx, in); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			got, err := st.FindReminder(ctx, "u1")
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if got.IntervalMinutes != 30 || !got.IsActive || got.TotalRemindersToday != 4 ||
				got.LastResetDate != in.LastResetDate ||
				!got.LastNotificationSent.Equal(sent) || !got.NextNotificationTime.Equal(next) {
				t.Fatalf("round trip mismatch: %+v", got)
			}

			in.IsActive = false
			in.NextNotificationTime = nil
			if err := st.UpsertReminder(ctx, in); err != nil {
				t.Fatalf("update: %v", err)
			}
			got, _ = st.FindReminder(ctx, "u1")
			if got.IsActive || got.NextNotificationTime != nil {
				t.Fatalf("update not applied: %+v", got)
			}

			if err := st.DeleteReminder(ctx, "u1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := st.DeleteReminder(ctx, "u1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("second delete: %v", err)
			}
		})
	}
}

func TestListActiveReminders(t *testing.T) {
	ctx := context.Background()
	for name, st := range openBoth(t) {
		t.Run(name, func(t *testing.T) {
			for i, id := range []string{"c", "a", "b", "off"} {
				s := reminder.State{UserID: id, IntervalMinutes: 10 + i, IsActive: id != "off"}
				if err := st.UpsertReminder(ctx, s); err != nil {
					t.Fatal(err)
				}
			}
			got, err := st.ListActiveReminders(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 3 || got[0].UserID != "a" || got[1].UserID != "b" || got[2].UserID != "c" {
				t.Fatalf("active = %+v", got)
			}
		})
	}
}

func TestUsersAndPushEndpoint(t *testing.T) {
	ctx := context.Background()
	for name, st := range openBoth(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := st.GetUser(ctx, "u"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("missing user: %v", err)
			}
			if err := st.SetPushEndpoint(ctx, "u", "arn:x"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("push on missing user: %v", err)
			}
			if err := st.UpsertUser(ctx, User{ID: "u", Username: "dina", Email: "d@example.com", TelegramChatID: 42}); err != nil {
				t.Fatal(err)
			}
			if err := st.SetPushEndpoint(ctx, "u", "arn:aws:sns:endpoint/1"); err != nil {
				t.Fatal(err)
			}
			u, err := st.GetUser(ctx, "u")
			if err != nil {
				t.Fatal(err)
			}
			if u.Email != "d@example.com" || u.Phone != "" || u.PushEndpoint != "arn:aws:sns:endpoint/1" || u.TelegramChatID != 42 {
				t.Fatalf("user = %+v", u)
			}
		})
	}
}

func TestDeliveries(t *testing.T) {
	ctx := context.Background()
	for name, st := range openBoth(t) {
		t.Run(name, func(t *testing.T) {
			at := time.UnixMilli(1_700_000_000_000)
			err := st.AppendDeliveries(ctx, []DeliveryEntry{
				{ID: "1", DispatchID: "d1", UserID: "u", At: at, ReminderCount: 1, Channel: "email", Delivered: false, Error: "no email"},
				{ID: "2", DispatchID: "d1", UserID: "u", At: at, ReminderCount: 1, Channel: "socket", Delivered: true},
				{ID: "3", DispatchID: "d2", UserID: "other", At: at, ReminderCount: 1, Channel: "socket", Delivered: true},
			})
			if err != nil {
				t.Fatal(err)
			}
			got, err := st.ListDeliveries(ctx, "u", 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 {
				t.Fatalf("deliveries = %+v", got)
			}
			for _, e := range got {
				if e.Channel == "email" && (e.Delivered || e.Error != "no email") {
					t.Fatalf("email entry = %+v", e)
				}
			}
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatalf("postgres without DSN should fail")
	}
}

func TestMemoryInjectedFailure(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	m.FailUpserts = 1
	if err := m.UpsertReminder(context.Background(), reminder.State{UserID: "u"}); err == nil {
		t.Fatalf("expected injected failure")
	}
	if err := m.UpsertReminder(context.Background(), reminder.State{UserID: "u"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	m.FailFinds, m.FailDeletes = 1, 1
	if _, err := m.FindReminder(context.Background(), "u"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("find: expected injected failure, got %v", err)
	}
	if err := m.DeleteReminder(context.Background(), "u"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("delete: expected injected failure, got %v", err)
	}
	if _, err := m.FindReminder(context.Background(), "u"); err != nil {
		t.Fatalf("row lost after failed delete: %v", err)
	}
}
