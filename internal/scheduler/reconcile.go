package scheduler

import (
	"context"
	"errors"
	"fmt"

	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

// Reconcile restores the rule that a reminder is active exactly when it
// has a timer. Active reminders without a timer are armed for their stored
// next time, or now+interval when that has passed. Timers whose reminder
// is gone or paused are disarmed.
func (s *Service) Reconcile(ctx context.Context) (armed, disarmed int, err error) {
	active, err := s.store.ListActiveReminders(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("scheduler: list active reminders: %w", err)
	}
	want := make(map[string]struct{}, len(active))
	for _, st := range active {
		want[st.UserID] = struct{}{}
		if s.reg.armed(st.UserID) {
			continue
		}
		if s.rearmIfActive(ctx, st.UserID) {
			armed++
		}
	}
	for _, a := range s.reg.list() {
		if _, ok := want[a.UserID]; ok {
			continue
		}
		if s.disarmIfInactive(ctx, a.UserID) {
			disarmed++
		}
	}
	if armed > 0 || disarmed > 0 {
		s.log.Warn("reconcile fixed timer drift", logx.Int("armed", armed), logx.Int("disarmed", disarmed))
	}
	return armed, disarmed, nil
}

func (s *Service) rearmIfActive(ctx context.Context, userID string) bool {
	unlock := s.locks.Lock(userID)
	defer unlock()
	if s.reg.armed(userID) {
		return false
	}
	st, err := s.store.FindReminder(ctx, userID)
	if err != nil || !st.IsActive {
		return false
	}
	now := s.clock.Now()
	if st.NextNotificationTime != nil && st.NextNotificationTime.After(now) {
		s.arm(userID, now, *st.NextNotificationTime, st.Interval())
		return true
	}
	next := st.Schedule(now)
	st.UpdatedAt = now
	if err := s.save(ctx, st); err != nil {
		s.log.Warn("reconcile persist failed", logx.String("user_id", userID), logx.Err(err))
		s.metrics.PersistFailed("reconcile")
	}
	s.arm(userID, now, next, st.Interval())
	return true
}

func (s *Service) disarmIfInactive(ctx context.Context, userID string) bool {
	unlock := s.locks.Lock(userID)
	defer unlock()
	st, err := s.store.FindReminder(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return false
	case st.IsActive:
		return false
	}
	if !s.reg.armed(userID) {
		return false
	}
	s.disarm(userID, "reconcile")
	return true
}
