package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// AlertConfig forwards high-severity records to a chat (the operator's
// Telegram group in production).
type AlertConfig struct {
	Enabled bool
	ChatID  int64
	// MinLevel defaults to warn.
	MinLevel string
	// RatePerSec caps forwarded records; extra records are dropped. Default 1.
	RatePerSec int
}

// AlertSender delivers one formatted alert to chatID.
type AlertSender func(ctx context.Context, chatID int64, text string) error

const (
	alertQueueSize   = 256
	alertSendTimeout = 10 * time.Second
	alertMaxLen      = 3500
)

type alertItem struct {
	chatID int64
	text   string
}

// alerts is the forwarding state owned by Service. Its fields are guarded
// by Service.mu except queue, which is only created once.
type alerts struct {
	send    AlertSender
	chatID  int64
	min     zerolog.Level
	limiter *rate.Limiter

	queue  chan alertItem
	once   sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SetAlertSender installs the function used to forward alerts. Records are
// only forwarded once a sender and a chat id are both set.
func (s *Service) SetAlertSender(fn AlertSender) {
	s.mu.Lock()
	s.alerts.send = fn
	s.mu.Unlock()
}

// applyAlertsLocked updates alert knobs and returns the sink to add to the
// writer set, or nil when forwarding is off.
func (s *Service) applyAlertsLocked(cfg AlertConfig) *alertWriter {
	a := &s.alerts
	a.chatID = cfg.ChatID
	a.min = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	rps := max(1, cfg.RatePerSec)
	a.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if !cfg.Enabled {
		return nil
	}
	a.once.Do(func() {
		a.queue = make(chan alertItem, alertQueueSize)
		ctx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			s.alertLoop(ctx)
		}()
	})
	if a.chatID == 0 {
		fmt.Fprintln(os.Stderr, "logx: alert forwarding enabled but chat_id is not set")
	}
	return &alertWriter{svc: s}
}

func (s *Service) alertLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.alerts.queue:
			s.mu.Lock()
			send := s.alerts.send
			s.mu.Unlock()
			if send == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, alertSendTimeout)
			if err := send(sctx, it.chatID, it.text); err != nil {
				// Logging here would feed the failure back into the sink.
				fmt.Fprintf(os.Stderr, "logx: alert send failed: %v\n", err)
			}
			cancel()
		}
	}
}

func (s *Service) closeAlerts() {
	s.mu.Lock()
	cancel := s.alerts.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.alerts.wg.Wait()
	}
}

type alertWriter struct{ svc *Service }

func (w *alertWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

func (w *alertWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	s.mu.Lock()
	send, chatID, floor, lim := s.alerts.send, s.alerts.chatID, s.alerts.min, s.alerts.limiter
	s.mu.Unlock()

	if send == nil || chatID == 0 || level < floor || level == zerolog.NoLevel {
		return len(p), nil
	}
	if !lim.Allow() {
		return len(p), nil
	}
	text := formatAlert(p)
	if text == "" {
		return len(p), nil
	}
	// Never block the caller's log line.
	select {
	case s.alerts.queue <- alertItem{chatID: chatID, text: text}:
	default:
	}
	return len(p), nil
}

// formatAlert renders a JSON log line as "[LEVEL] message" followed by one
// "key=value" line per field, sorted by key.
func formatAlert(p []byte) string {
	p = bytes.TrimSpace(p)
	var rec map[string]any
	if err := json.Unmarshal(p, &rec); err != nil {
		return clip(string(p), alertMaxLen)
	}

	var b strings.Builder
	if lvl, _ := rec["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := rec["message"].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(rec))
	for k := range rec {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		limit := 600
		if k == "stack" {
			limit = 900
		}
		fmt.Fprintf(&b, "\n%s=%s", k, clip(fmt.Sprint(rec[k]), limit))
	}
	return clip(b.String(), alertMaxLen)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
