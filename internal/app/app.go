package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"reminderd/internal/config"
	"reminderd/internal/eventbus"
	"reminderd/internal/httpapi"
	"reminderd/internal/metrics"
	"reminderd/internal/notifier"
	rtsup "reminderd/internal/runtime/supervisor"
	"reminderd/internal/scheduler"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

type Options struct {
	ConfigPath string
	// EnvFile is loaded before reading secrets; missing files are ignored.
	EnvFile string
}

type App struct {
	cfgm    *config.Manager
	secrets config.Secrets
	sup     *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	mets  *metrics.Metrics

	chans *adapters
	notif *notifier.Service
	sched *scheduler.Service
	http  *httpapi.Server

	shutdownTimeout time.Duration
}

func New(ctx context.Context, opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	sec, err := config.LoadSecrets(opts.EnvFile)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	log = log.With(logx.String("comp", "app"))

	loc, err := config.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	ncfg, err := mapDispatch(cfg)
	if err != nil {
		return nil, err
	}
	scfg, shutdown, err := mapServer(cfg)
	if err != nil {
		return nil, err
	}
	stcfg, err := mapStorage(cfg, sec)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(stcfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", stcfg.Driver))

	chans, err := buildAdapters(ctx, cfg, sec, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	if chans.tg.Configured() {
		logSvc.SetAlertSender(chans.tg.SendText)
	} else if cfg.Logging.Alerts.Enabled {
		log.Warn("logging.alerts enabled but TELEGRAM_TOKEN is not set")
	}

	bus := eventbus.New()
	mets := metrics.New()
	mets.TrackSessions(chans.hub.Count)

	notif := notifier.New(ncfg, chans.all, notifier.Deps{
		Users:   store,
		Audit:   store,
		Bus:     bus,
		Metrics: mets,
		Log:     log,
	})
	sched := scheduler.New(scheduler.Config{
		Location:  loc,
		Reconcile: cfg.Scheduler.Reconcile,
	}, scheduler.Deps{
		Store:      store,
		Dispatcher: notif,
		Bus:        bus,
		Metrics:    mets,
		Log:        log,
	})

	if mode := strings.TrimSpace(cfg.HTTP.Mode); mode != "" {
		gin.SetMode(mode)
	}
	a := &App{
		cfgm:            cfgm,
		secrets:         sec,
		log:             log,
		logs:            logSvc,
		bus:             bus,
		store:           store,
		mets:            mets,
		chans:           chans,
		notif:           notif,
		sched:           sched,
		shutdownTimeout: shutdown,
	}
	router := httpapi.NewRouter(httpapi.Deps{
		Reminders:  sched,
		Dispatch:   notif,
		Users:      store,
		Devices:    chans.push,
		Realtime:   chans.hub,
		Metrics:    mets.Handler(),
		JWTSecret:  sec.JWTSecret,
		AdminToken: sec.AdminToken,
		Pprof:      cfg.HTTP.Pprof,
		Runtime:    a.runtimeInfo,
		Log:        log,
	})
	if sec.JWTSecret == "" {
		log.Warn("JWT_SECRET not set; reminder routes will reject every request")
	}
	a.http = httpapi.NewServer(scfg, router, log)
	return a, nil
}

// RuntimeInfo is served on the admin runtime route.
type RuntimeInfo struct {
	Armed      []scheduler.ArmedInfo `json:"armed"`
	Supervisor *rtsup.Snapshot       `json:"supervisor,omitempty"`
}

func (a *App) runtimeInfo() any {
	info := RuntimeInfo{Armed: a.sched.Armed()}
	if a.sup != nil {
		snap := a.sup.Snapshot()
		info.Supervisor = &snap
	}
	return info
}

// Done is closed when the app supervisor context is cancelled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	if err := a.sup.Err(); err != nil {
		return err
	}
	return a.http.Err()
}

// Addr is the bound HTTP address.
func (a *App) Addr() string { return a.http.Addr() }

// ShutdownTimeout is the configured upper bound for Stop.
func (a *App) ShutdownTimeout() time.Duration { return a.shutdownTimeout }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	// The delivery log drains in Stop, after the run context is cancelled.
	a.notif.Start(context.WithoutCancel(runCtx))

	n, err := a.sched.Bootstrap(runCtx)
	if err != nil {
		return fmt.Errorf("bootstrap reminders: %w", err)
	}
	a.log.Info("reminders restored", logx.Int("armed", n))
	if err := a.sched.Start(runCtx); err != nil {
		return err
	}

	if err := a.http.Start(runCtx); err != nil {
		return err
	}

	if a.chans.email.Configured() {
		a.sup.Go0("email.verify", func(c context.Context) {
			vctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := a.chans.email.Verify(vctx); err != nil {
				a.log.Warn("email provider check failed", logx.Err(err))
				return
			}
			a.log.Info("email provider reachable")
		})
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.String("user_id", e.UserID), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("addr", a.http.Addr()))
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// HTTP goes first so no request can arm a timer after the scheduler stops.
	a.step(ctx, "http", a.shutdownTimeout, func(c context.Context) error { return a.http.Stop(c) })
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by max and the caller's deadline.
// A step that overruns is logged and left running.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped; deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}
