package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"reminderd/internal/clock"
	"reminderd/internal/eventbus"
	"reminderd/internal/metrics"
	"reminderd/internal/notifier"
	"reminderd/internal/reminder"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

// storeTimeout bounds store calls made from timer callbacks, which have no caller context.
const storeTimeout = 5 * time.Second

// Dispatcher delivers a fired reminder. *notifier.Service implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, ev reminder.Event) notifier.Report
}

type Config struct {
	// Location decides the calendar day for the daily counter. Nil means time.Local.
	Location *time.Location
	// Reconcile is a cron spec for the drift check; empty disables it.
	Reconcile string
}

type Deps struct {
	Store      storage.ReminderStore
	Dispatcher Dispatcher
	Clock      clock.Clock
	Bus        eventbus.Bus
	Metrics    *metrics.Metrics
	Log        logx.Logger
}

type Service struct {
	cfg        Config
	store      storage.ReminderStore
	dispatcher Dispatcher
	clock      clock.Clock
	bus        eventbus.Bus
	metrics    *metrics.Metrics
	log        logx.Logger

	locks *keyedMutex
	reg   *registry

	mu   sync.Mutex
	cron *cron.Cron
}

func New(cfg Config, deps Deps) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop{}
	}
	return &Service{
		cfg:        cfg,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		bus:        deps.Bus,
		metrics:    deps.Metrics,
		log:        deps.Log.With(logx.String("comp", "scheduler")),
		locks:      newKeyedMutex(),
		reg:        newRegistry(context.Background()),
	}
}

// Start schedules the reconcile job. Timers themselves are armed by
// Bootstrap and the per-user operations, not by Start.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	spec := strings.TrimSpace(s.cfg.Reconcile)
	if spec == "" {
		s.log.Debug("reconcile disabled")
		return nil
	}
	c := cron.New(cron.WithLocation(s.cfg.Location))
	if _, err := c.AddFunc(spec, func() {
		rctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if _, _, err := s.Reconcile(rctx); err != nil {
			s.log.Warn("reconcile failed", logx.Err(err))
		}
	}); err != nil {
		return fmt.Errorf("scheduler: reconcile spec %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	s.log.Info("service started", logx.String("tz", s.cfg.Location.String()), logx.String("reconcile", spec))
	return nil
}

// Stop halts the reconcile job and disarms every timer. Persisted state is untouched.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	n := s.reg.stop()
	s.metrics.SetArmed(0)
	s.log.Info("service stopped", logx.Int("disarmed", n), logx.Duration("took", time.Since(start)))
}

func (s *Service) Location() *time.Location { return s.cfg.Location }

func (s *Service) today(now time.Time) reminder.Date {
	return reminder.DateOf(now, s.cfg.Location)
}

// Armed lists pending firings sorted by user.
func (s *Service) Armed() []ArmedInfo { return s.reg.list() }

func (s *Service) ArmedCount() int { return s.reg.count() }

// arm must be called with the user's lock held.
func (s *Service) arm(userID string, now, at time.Time, every time.Duration) {
	delay := at.Sub(now)
	if delay < 0 {
		delay = 0
	}
	ok := s.reg.arm(userID, at, every, func(v uint64) clock.Timer {
		return s.clock.AfterFunc(delay, func() { s.fire(userID, v) })
	})
	if !ok {
		s.log.Debug("arm ignored after stop", logx.String("user_id", userID))
		return
	}
	s.metrics.SetArmed(s.reg.count())
	s.bus.Publish(eventbus.Event{Type: eventbus.ReminderArmed, UserID: userID, Time: now, Data: at})
}

// disarm must be called with the user's lock held.
func (s *Service) disarm(userID, reason string) {
	if !s.reg.disarm(userID) {
		return
	}
	s.metrics.SetArmed(s.reg.count())
	s.log.Debug("timer disarmed", logx.String("user_id", userID), logx.String("reason", reason))
	s.bus.Publish(eventbus.Event{Type: eventbus.ReminderDisarmed, UserID: userID, Time: s.clock.Now(), Data: reason})
}

// fire is the timer callback for version v of userID's slot.
func (s *Service) fire(userID string, v uint64) {
	unlock := s.locks.Lock(userID)

	armCtx, every, ok := s.reg.current(userID, v)
	if !ok {
		unlock()
		s.metrics.FiringSkipped("superseded")
		return
	}

	sctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	st, err := s.store.FindReminder(sctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.disarm(userID, "missing")
		unlock()
		s.metrics.FiringSkipped("missing")
		return
	case err != nil:
		// Nothing is known to have changed: keep the slot and retry one
		// interval later without counting or dispatching.
		now := s.clock.Now()
		if every <= 0 {
			every = time.Minute
		}
		s.log.Error("reload before firing failed; retrying next interval",
			logx.String("user_id", userID), logx.Err(err), logx.Duration("retry_in", every))
		s.metrics.PersistFailed("reload")
		s.arm(userID, now, now.Add(every), every)
		unlock()
		s.metrics.FiringSkipped("reload_failed")
		return
	case !st.IsActive:
		s.disarm(userID, "inactive")
		unlock()
		s.metrics.FiringSkipped("inactive")
		return
	}

	now := s.clock.Now()
	st.ResetDailyIfNeeded(s.today(now))
	st.TotalRemindersToday++
	sent := now
	st.LastNotificationSent = &sent
	next := st.Schedule(now)
	st.UpdatedAt = now

	if err := s.store.UpsertReminder(sctx, st); err != nil {
		s.log.Error("persist after firing failed", logx.String("user_id", userID), logx.Err(err))
		s.metrics.PersistFailed("fire")
	}
	s.arm(userID, now, next, st.Interval())
	count := st.TotalRemindersToday
	unlock()

	s.metrics.Fired()
	s.bus.Publish(eventbus.Event{Type: eventbus.ReminderFired, UserID: userID, Time: now, Data: count})
	s.log.Debug("reminder fired", logx.String("user_id", userID), logx.Int("count", count), logx.Time("next", next))

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(armCtx, userID, reminder.Event{ReminderCount: count, Timestamp: now})
	}
}
