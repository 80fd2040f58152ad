package reminder

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestValidateInterval(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in int
		ok bool
	}{
		{0, false}, {1, true}, {60, true}, {1440, true}, {1441, false}, {-5, false},
	}
	for _, tc := range cases {
		err := ValidateInterval(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("ValidateInterval(%d) = %v", tc.in, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidInterval) {
			t.Fatalf("ValidateInterval(%d) = %v, want ErrInvalidInterval", tc.in, err)
		}
	}
}

func TestDateOfUsesLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+7", 7*3600)
	ts := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC) // 03:00 next day at +7
	if got := DateOf(ts, time.UTC); got != (Date{2024, time.March, 10}) {
		t.Fatalf("utc date = %v", got)
	}
	if got := DateOf(ts, loc); got != (Date{2024, time.March, 11}) {
		t.Fatalf("+7 date = %v", got)
	}
}

func TestDateTextRoundTrip(t *testing.T) {
	t.Parallel()
	d := Date{2024, time.February, 29}
	b, err := json.Marshal(d)
	if err != nil || string(b) != `"2024-02-29"` {
		t.Fatalf("marshal = %s, %v", b, err)
	}
	var back Date
	if err := json.Unmarshal(b, &back); err != nil || back != d {
		t.Fatalf("unmarshal = %v, %v", back, err)
	}
	var zero Date
	if err := zero.Scan(nil); err != nil || !zero.IsZero() {
		t.Fatalf("scan nil = %v, %v", zero, err)
	}
}

func TestResetDailyIfNeeded(t *testing.T) {
	t.Parallel()
	day1 := Date{2024, time.May, 1}
	day2 := Date{2024, time.May, 2}
	s := State{TotalRemindersToday: 5, LastResetDate: day1}

	if s.ResetDailyIfNeeded(day1) || s.TotalRemindersToday != 5 {
		t.Fatalf("same day must not reset: %+v", s)
	}
	if !s.ResetDailyIfNeeded(day2) || s.TotalRemindersToday != 0 || s.LastResetDate != day2 {
		t.Fatalf("new day must reset: %+v", s)
	}
}

func TestStatusAtProjectsResetWithoutMutating(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	next := now.Add(90*time.Second + time.Millisecond)
	s := State{
		UserID:               "u",
		IntervalMinutes:      30,
		IsActive:             true,
		NextNotificationTime: &next,
		TotalRemindersToday:  7,
		LastResetDate:        Date{2024, time.May, 1},
	}
	st := s.StatusAt(now, DateOf(now, time.UTC))
	if st.TotalRemindersToday != 0 {
		t.Fatalf("stale counter should read 0, got %d", st.TotalRemindersToday)
	}
	if s.TotalRemindersToday != 7 {
		t.Fatalf("StatusAt mutated the state")
	}
	if st.MinutesUntilNext == nil || *st.MinutesUntilNext != 2 {
		t.Fatalf("minutesUntilNext = %v, want 2", st.MinutesUntilNext)
	}
	*st.NextNotificationTime = time.Time{}
	if s.NextNotificationTime.IsZero() {
		t.Fatalf("status shares pointer with state")
	}
}

func TestMinutesUntilClamps(t *testing.T) {
	t.Parallel()
	now := time.Unix(1000, 0)
	if got := MinutesUntil(now, now.Add(-time.Hour)); got != 0 {
		t.Fatalf("past = %d", got)
	}
	if got := MinutesUntil(now, now.Add(time.Minute)); got != 1 {
		t.Fatalf("exact minute = %d", got)
	}
	if got := MinutesUntil(now, now.Add(61*time.Second)); got != 2 {
		t.Fatalf("61s = %d", got)
	}
}
