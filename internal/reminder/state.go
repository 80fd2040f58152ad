package reminder

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	MinIntervalMinutes = 1
	MaxIntervalMinutes = 1440
)

var (
	ErrInvalidInterval = errors.New("reminder: interval must be between 1 and 1440 minutes")
	ErrNotFound        = errors.New("reminder: not found")
)

// State is the persisted reminder for one user.
type State struct {
	UserID               string     `json:"userId"`
	IntervalMinutes      int        `json:"intervalMinutes"`
	IsActive             bool       `json:"isActive"`
	LastNotificationSent *time.Time `json:"lastNotificationSent,omitempty"`
	NextNotificationTime *time.Time `json:"nextNotificationTime,omitempty"`
	TotalRemindersToday  int        `json:"totalRemindersToday"`
	LastResetDate        Date       `json:"lastResetDate"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

func ValidateInterval(minutes int) error {
	if minutes < MinIntervalMinutes || minutes > MaxIntervalMinutes {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, minutes)
	}
	return nil
}

func (s *State) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// ResetDailyIfNeeded zeroes the counter when today differs from LastResetDate.
// It reports whether a reset happened.
func (s *State) ResetDailyIfNeeded(today Date) bool {
	if s.LastResetDate == today {
		return false
	}
	s.TotalRemindersToday = 0
	s.LastResetDate = today
	return true
}

// Schedule sets NextNotificationTime to now + interval.
func (s *State) Schedule(now time.Time) time.Time {
	next := now.Add(s.Interval())
	s.NextNotificationTime = &next
	return next
}

// Clone returns a deep copy.
func (s State) Clone() State {
	if s.LastNotificationSent != nil {
		v := *s.LastNotificationSent
		s.LastNotificationSent = &v
	}
	if s.NextNotificationTime != nil {
		v := *s.NextNotificationTime
		s.NextNotificationTime = &v
	}
	return s
}

// Status is the read-only view returned to API callers.
type Status struct {
	UserID               string     `json:"userId"`
	IntervalMinutes      int        `json:"intervalMinutes"`
	IsActive             bool       `json:"isActive"`
	LastNotificationSent *time.Time `json:"lastNotificationSent"`
	NextNotificationTime *time.Time `json:"nextNotificationTime"`
	TotalRemindersToday  int        `json:"totalRemindersToday"`
	LastResetDate        Date       `json:"lastResetDate"`
	MinutesUntilNext     *int       `json:"minutesUntilNext"`
}

// StatusAt builds a snapshot as observed at now on calendar day today.
// A counter from an earlier day is reported as 0 without mutating s.
func (s State) StatusAt(now time.Time, today Date) Status {
	c := s.Clone()
	c.ResetDailyIfNeeded(today)
	st := Status{
		UserID:               c.UserID,
		IntervalMinutes:      c.IntervalMinutes,
		IsActive:             c.IsActive,
		LastNotificationSent: c.LastNotificationSent,
		NextNotificationTime: c.NextNotificationTime,
		TotalRemindersToday:  c.TotalRemindersToday,
		LastResetDate:        c.LastResetDate,
	}
	if c.NextNotificationTime != nil {
		m := MinutesUntil(now, *c.NextNotificationTime)
		st.MinutesUntilNext = &m
	}
	return st
}

// MinutesUntil rounds the remaining time up to whole minutes, never below 0.
func MinutesUntil(now, next time.Time) int {
	d := next.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}

// Event is what a firing hands to the dispatcher.
type Event struct {
	ReminderCount int       `json:"reminderCount"`
	Timestamp     time.Time `json:"timestamp"`
	// Test marks synthetic events sent from the admin endpoint.
	Test bool `json:"test,omitempty"`
}
