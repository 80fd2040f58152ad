package notifier

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"reminderd/internal/channel"
	"reminderd/internal/clock"
	"reminderd/internal/eventbus"
	"reminderd/internal/metrics"
	"reminderd/internal/reminder"
	rtsup "reminderd/internal/runtime/supervisor"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

const (
	defaultChannelTimeout = 10 * time.Second
	defaultHistorySize    = 200
	auditQueueSize        = 1024
	auditWriteTimeout     = 2 * time.Second
	abandonGrace          = 250 * time.Millisecond
)

var errAbandoned = errors.New("notifier: channel did not return in time")

// Deps are the collaborators of a Service. Every field is optional.
type Deps struct {
	Users   storage.UserDirectory
	Audit   storage.DeliveryLog
	Bus     eventbus.Bus
	Metrics *metrics.Metrics
	Clock   clock.Clock
	Log     logx.Logger
}

// settings is swapped atomically as a whole so Dispatch never locks.
type settings struct {
	flags    Flags
	timeout  time.Duration
	limiters map[string]*rate.Limiter // nil when unlimited
}

// Service is the notification dispatcher. It is safe for concurrent use.
type Service struct {
	log      logx.Logger
	users    storage.UserDirectory
	audit    storage.DeliveryLog
	bus      eventbus.Bus
	metrics  *metrics.Metrics
	clock    clock.Clock
	adapters map[string]channel.Adapter

	cur atomic.Pointer[settings]

	hmu         sync.Mutex
	history     []Report
	historySize int

	mu      sync.Mutex
	sup     *rtsup.Supervisor
	auditCh chan []storage.DeliveryEntry
}

func New(cfg Config, adapters []channel.Adapter, deps Deps) *Service {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	s := &Service{
		log:      deps.Log.With(logx.String("comp", "notifier")),
		users:    deps.Users,
		audit:    deps.Audit,
		bus:      deps.Bus,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		adapters: map[string]channel.Adapter{},
	}
	for _, a := range adapters {
		if a != nil {
			s.adapters[a.Name()] = a
		}
	}
	s.Apply(cfg)
	return s
}

// Apply swaps flags, timeout and rate limits. Safe to call at any time.
func (s *Service) Apply(cfg Config) {
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = defaultChannelTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	st := &settings{flags: cfg.Channels, timeout: cfg.ChannelTimeout}
	if cfg.RatePerSec > 0 {
		st.limiters = make(map[string]*rate.Limiter, len(channel.Names))
		for _, name := range channel.Names {
			// Burst equals the rate so short spikes pass without waiting.
			st.limiters[name] = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
		}
	}
	s.cur.Store(st)

	s.hmu.Lock()
	s.historySize = cfg.HistorySize
	s.trimHistoryLocked()
	s.hmu.Unlock()
}

func (s *Service) Flags() Flags { return s.cur.Load().flags }

// SetChannel flips one channel flag. It is the administrative write path.
func (s *Service) SetChannel(name string, on bool) (Flags, error) {
	for {
		old := s.cur.Load()
		flags, err := old.flags.With(name, on)
		if err != nil {
			return old.flags, err
		}
		next := *old
		next.flags = flags
		if s.cur.CompareAndSwap(old, &next) {
			s.log.Info("channel flag changed", logx.String("channel", name), logx.Bool("enabled", on))
			s.bus.Publish(eventbus.Event{Type: eventbus.ChannelsChanged, Data: flags})
			return flags, nil
		}
	}
}

// ChannelStatus describes one channel for the admin API.
type ChannelStatus struct {
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	Configured bool   `json:"configured"`
}

func (s *Service) Channels() []ChannelStatus {
	flags := s.Flags()
	out := make([]ChannelStatus, 0, len(channel.Names))
	for _, name := range channel.Names {
		a := s.adapters[name]
		out = append(out, ChannelStatus{Name: name, Enabled: flags.Enabled(name), Configured: a != nil && a.Configured()})
	}
	return out
}

// Start runs the background delivery-log writer.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || s.audit == nil {
		return
	}
	s.auditCh = make(chan []storage.DeliveryEntry, auditQueueSize)
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	ch := s.auditCh
	s.sup.GoRestart("notifier.audit", func(c context.Context) error {
		return s.auditLoop(c, ch)
	})
}

// Stop drains pending audit writes until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup, ch := s.sup, s.auditCh
	s.sup, s.auditCh = nil, nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	close(ch)
	if err := sup.Wait(ctx); err != nil {
		s.log.Warn("delivery log drain incomplete", logx.Err(err))
	}
	sup.Cancel()
}

func (s *Service) auditLoop(ctx context.Context, ch <-chan []storage.DeliveryEntry) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entries, ok := <-ch:
			if !ok {
				return nil
			}
			wctx, cancel := context.WithTimeout(ctx, auditWriteTimeout)
			err := s.audit.AppendDeliveries(wctx, entries)
			cancel()
			if err != nil {
				s.log.Warn("delivery log write failed", logx.Err(err), logx.Int("entries", len(entries)))
			}
		}
	}
}

func (s *Service) enqueueAudit(r Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditCh == nil {
		return
	}
	entries := make([]storage.DeliveryEntry, 0, len(r.Results))
	for _, name := range channel.Names {
		entries = append(entries, storage.DeliveryEntry{
			ID:            uuid.NewString(),
			DispatchID:    r.ID,
			UserID:        r.UserID,
			At:            r.At,
			ReminderCount: r.Event.ReminderCount,
			Channel:       name,
			Delivered:     r.Results[name],
			Error:         r.Errors[name],
		})
	}
	select {
	case s.auditCh <- entries:
	default:
		s.log.Debug("delivery log queue full; dropping", logx.String("dispatch_id", r.ID))
	}
}

// History returns recent reports, oldest first.
func (s *Service) History() []Report {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]Report(nil), s.history...)
}

func (s *Service) appendHistory(r Report) {
	s.hmu.Lock()
	s.history = append(s.history, r)
	s.trimHistoryLocked()
	s.hmu.Unlock()
}

func (s *Service) trimHistoryLocked() {
	if s.historySize > 0 && len(s.history) > s.historySize {
		s.history = append([]Report(nil), s.history[len(s.history)-s.historySize:]...)
	}
}

func (s *Service) recipient(ctx context.Context, userID string) channel.Recipient {
	to := channel.Recipient{UserID: userID}
	if s.users == nil {
		return to
	}
	u, err := s.users.GetUser(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return to
	case err != nil:
		s.log.Warn("recipient lookup failed; contact channels skipped", logx.String("user_id", userID), logx.Err(err))
		return to
	}
	to.Username = u.Username
	to.Email = u.Email
	to.Phone = u.Phone
	to.PushEndpoint = u.PushEndpoint
	to.TelegramChatID = u.TelegramChatID
	return to
}

// Dispatch delivers ev to userID on every enabled channel. It never fails:
// the Report carries per-channel outcomes. Cancelling ctx abandons channels
// that have not completed.
func (s *Service) Dispatch(ctx context.Context, userID string, ev reminder.Event) Report {
	st := s.cur.Load()
	r := Report{
		ID:      uuid.NewString(),
		UserID:  userID,
		Event:   ev,
		Console: true,
		Results: make(map[string]bool, len(channel.Names)),
		Errors:  map[string]string{},
		At:      s.clock.Now(),
	}

	s.log.Info("water reminder",
		logx.String("user_id", userID),
		logx.Int("reminder_count", ev.ReminderCount),
		logx.Bool("test", ev.Test),
	)

	to := s.recipient(ctx, userID)
	msg := channel.WaterReminder(ev)

	var (
		mu      sync.Mutex
		closed  bool
		pending = map[string]bool{}
		wg      sync.WaitGroup
	)
	// record may run after Dispatch returned for an adapter that ignored its
	// context; such late results only reach the metrics.
	record := func(name string, err error, took time.Duration) {
		outcome := outcomeDelivered
		switch {
		case err == nil:
		case channel.IsSkip(err):
			outcome = outcomeSkipped
			s.log.Debug("channel not delivered", logx.String("channel", name), logx.String("user_id", userID), logx.Err(err))
		default:
			outcome = outcomeFailed
			s.log.Warn("channel delivery failed", logx.String("channel", name), logx.String("user_id", userID), logx.Err(err))
		}
		s.metrics.Delivery(name, outcome, took.Seconds())

		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		delete(pending, name)
		r.Results[name] = err == nil
		if err != nil {
			r.Errors[name] = err.Error()
		}
	}

	mu.Lock()
	for _, name := range channel.Names {
		r.Results[name] = false
		if !st.flags.Enabled(name) {
			r.Errors[name] = "disabled"
			s.metrics.Delivery(name, outcomeDisabled, 0)
			continue
		}
		pending[name] = true
	}
	mu.Unlock()

	for _, name := range channel.Names {
		if !st.flags.Enabled(name) {
			continue
		}
		a := s.adapters[name]
		if a == nil || !a.Configured() {
			record(name, channel.ErrNotConfigured, 0)
			continue
		}
		wg.Add(1)
		go func(name string, a channel.Adapter) {
			defer wg.Done()
			start := time.Now()
			err := s.sendOne(ctx, st, a, to, msg)
			record(name, err, time.Since(start))
		}(name, a)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	// Adapters get st.timeout through their context; the grace covers one
	// that returns a little late before it is abandoned.
	bound := time.NewTimer(st.timeout + abandonGrace)
	defer bound.Stop()
	select {
	case <-done:
	case <-bound.C:
	case <-ctx.Done():
	}

	mu.Lock()
	closed = true
	for name := range pending {
		r.Errors[name] = errAbandoned.Error()
		s.log.Warn("channel abandoned", logx.String("channel", name), logx.String("user_id", userID))
	}
	mu.Unlock()

	if len(r.Errors) == 0 {
		r.Errors = nil
	}
	s.appendHistory(r)
	s.bus.Publish(eventbus.Event{Type: eventbus.ReminderDelivered, UserID: userID, Time: r.At, Data: r})
	s.enqueueAudit(r)
	return r
}

// sendOne runs a single adapter call with panic recovery, rate limiting and the channel timeout.
func (s *Service) sendOne(ctx context.Context, st *settings, a channel.Adapter, to channel.Recipient, msg channel.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("channel adapter panicked", logx.String("channel", a.Name()), logx.Any("panic", p), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, st.timeout)
	defer cancel()

	if err := cctx.Err(); err != nil {
		return err
	}
	if lim := st.limiters[a.Name()]; lim != nil {
		if err := lim.Wait(cctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	return a.Send(cctx, to, msg)
}

// Test sends a synthetic event marked as a test.
func (s *Service) Test(ctx context.Context, userID string) Report {
	return s.Dispatch(ctx, userID, reminder.Event{ReminderCount: 999, Timestamp: s.clock.Now(), Test: true})
}
