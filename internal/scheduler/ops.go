package scheduler

import (
	"context"
	"errors"
	"fmt"

	"reminderd/internal/eventbus"
	"reminderd/internal/reminder"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

func (s *Service) find(ctx context.Context, userID string) (reminder.State, error) {
	st, err := s.store.FindReminder(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return reminder.State{}, reminder.ErrNotFound
	}
	if err != nil {
		return reminder.State{}, fmt.Errorf("scheduler: load reminder: %w", err)
	}
	return st, nil
}

func (s *Service) save(ctx context.Context, st reminder.State) error {
	if err := s.store.UpsertReminder(ctx, st); err != nil {
		return fmt.Errorf("scheduler: save reminder: %w", err)
	}
	return nil
}

// Set creates or updates the user's reminder, activates it and arms a
// timer for now+interval, replacing any pending firing.
func (s *Service) Set(ctx context.Context, userID string, intervalMinutes int) (reminder.Status, error) {
	if err := reminder.ValidateInterval(intervalMinutes); err != nil {
		return reminder.Status{}, err
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	now := s.clock.Now()
	st, err := s.find(ctx, userID)
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		st = reminder.State{UserID: userID, CreatedAt: now}
	case err != nil:
		return reminder.Status{}, err
	}

	today := s.today(now)
	st.IntervalMinutes = intervalMinutes
	st.IsActive = true
	st.ResetDailyIfNeeded(today)
	next := st.Schedule(now)
	st.UpdatedAt = now
	if err := s.save(ctx, st); err != nil {
		return reminder.Status{}, err
	}
	s.arm(userID, now, next, st.Interval())
	s.log.Info("reminder set", logx.String("user_id", userID), logx.Int("interval_minutes", intervalMinutes))
	return st.StatusAt(now, today), nil
}

// Toggle flips IsActive. Activating re-arms from now; pausing disarms
// and leaves the counters alone.
func (s *Service) Toggle(ctx context.Context, userID string) (reminder.Status, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	st, err := s.find(ctx, userID)
	if err != nil {
		return reminder.Status{}, err
	}
	now := s.clock.Now()
	today := s.today(now)
	st.IsActive = !st.IsActive
	st.UpdatedAt = now
	next := now
	if st.IsActive {
		st.ResetDailyIfNeeded(today)
		next = st.Schedule(now)
	}
	if err := s.save(ctx, st); err != nil {
		return reminder.Status{}, err
	}
	if st.IsActive {
		s.arm(userID, now, next, st.Interval())
	} else {
		s.disarm(userID, "paused")
	}
	s.log.Info("reminder toggled", logx.String("user_id", userID), logx.Bool("active", st.IsActive))
	return st.StatusAt(now, today), nil
}

// Remove deletes the reminder and disarms its timer. A stray timer is
// disarmed even when the row is already gone. When the delete fails the
// reminder and its timer are left as they were.
func (s *Service) Remove(ctx context.Context, userID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	err := s.store.DeleteReminder(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		s.disarm(userID, "missing")
		return reminder.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("scheduler: delete reminder: %w", err)
	}
	s.disarm(userID, "removed")
	s.bus.Publish(eventbus.Event{Type: eventbus.ReminderRemoved, UserID: userID, Time: s.clock.Now()})
	s.log.Info("reminder removed", logx.String("user_id", userID))
	return nil
}

// RecordManualDrink pushes the next reminder to now+interval without
// counting a firing. It returns nil, nil when the user has no reminder.
// A paused reminder gets a fresh next time but stays disarmed.
func (s *Service) RecordManualDrink(ctx context.Context, userID string) (*reminder.Status, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	st, err := s.find(ctx, userID)
	if errors.Is(err, reminder.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	today := s.today(now)
	st.ResetDailyIfNeeded(today)
	next := st.Schedule(now)
	st.UpdatedAt = now
	if err := s.save(ctx, st); err != nil {
		return nil, err
	}
	if st.IsActive {
		s.arm(userID, now, next, st.Interval())
	}
	s.log.Debug("manual drink recorded", logx.String("user_id", userID), logx.Time("next", next))
	out := st.StatusAt(now, today)
	return &out, nil
}

// Status is a read-only snapshot. A counter left over from an earlier day
// is reported as 0 but not written back.
func (s *Service) Status(ctx context.Context, userID string) (reminder.Status, error) {
	st, err := s.find(ctx, userID)
	if err != nil {
		return reminder.Status{}, err
	}
	now := s.clock.Now()
	return st.StatusAt(now, s.today(now)), nil
}

// Bootstrap arms every active reminder for now+interval after a restart.
// Overdue reminders are not fired immediately. A failure to persist the
// refreshed next time is logged and the timer is armed anyway.
func (s *Service) Bootstrap(ctx context.Context) (int, error) {
	active, err := s.store.ListActiveReminders(ctx)
	if err != nil {
		return 0, fmt.Errorf("scheduler: list active reminders: %w", err)
	}
	armed := 0
	for _, st := range active {
		if ctx.Err() != nil {
			return armed, ctx.Err()
		}
		if s.bootstrapOne(ctx, st) {
			armed++
		}
	}
	s.log.Info("bootstrap complete", logx.Int("active", len(active)), logx.Int("armed", armed))
	return armed, nil
}

func (s *Service) bootstrapOne(ctx context.Context, st reminder.State) bool {
	if err := reminder.ValidateInterval(st.IntervalMinutes); err != nil {
		s.log.Warn("skipping reminder with bad interval", logx.String("user_id", st.UserID), logx.Err(err))
		return false
	}
	unlock := s.locks.Lock(st.UserID)
	defer unlock()

	now := s.clock.Now()
	next := st.Schedule(now)
	st.UpdatedAt = now
	if err := s.save(ctx, st); err != nil {
		s.log.Warn("bootstrap persist failed", logx.String("user_id", st.UserID), logx.Err(err))
		s.metrics.PersistFailed("bootstrap")
	}
	s.arm(st.UserID, now, next, st.Interval())
	return true
}
