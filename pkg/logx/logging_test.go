package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewWriterEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))
	log.Info("hello", Int("n", 3), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if m["message"] != "hello" || m["comp"] != "test" || m["n"] != float64(3) || m["err"] != "boom" {
		t.Fatalf("unexpected record: %v", m)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn, got %q", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatalf("debug should be disabled")
	}
	if !log.Enabled(LevelError) {
		t.Fatalf("error should be enabled")
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero value should report IsZero")
	}
	l.Error("nothing happens")
	if l.With(String("a", "b")).IsZero() {
		t.Fatalf("derived logger carries fields")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]Level{
		"trace":   LevelTrace,
		" DEBUG ": LevelDebug,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in, LevelInfo); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAlertsForwardWarningsOnly(t *testing.T) {
	type sent struct {
		chatID int64
		text   string
	}
	got := make(chan sent, 4)

	svc, log := New(Config{Level: "debug", Console: false, Alerts: AlertConfig{Enabled: true, ChatID: 42, RatePerSec: 10}})
	defer svc.Close()
	svc.SetAlertSender(func(_ context.Context, chatID int64, text string) error {
		got <- sent{chatID, text}
		return nil
	})

	log.Info("routine")
	log.Warn("store slow", String("user_id", "u1"), Err(errors.New("timeout")))

	select {
	case s := <-got:
		if s.chatID != 42 || !strings.HasPrefix(s.text, "[WARN] store slow") ||
			!strings.Contains(s.text, "user_id=u1") || !strings.Contains(s.text, "err=timeout") {
			t.Fatalf("alert = %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("warning was not forwarded")
	}
	select {
	case s := <-got:
		t.Fatalf("unexpected second alert %q", s.text)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAlertsDisabledWithoutChat(t *testing.T) {
	got := make(chan string, 1)
	svc, log := New(Config{Level: "info", Alerts: AlertConfig{Enabled: true}})
	defer svc.Close()
	svc.SetAlertSender(func(_ context.Context, _ int64, text string) error {
		got <- text
		return nil
	})
	log.Error("nobody listens")
	select {
	case text := <-got:
		t.Fatalf("alert sent without chat id: %q", text)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFormatAlertSortsFields(t *testing.T) {
	t.Parallel()
	out := formatAlert([]byte(`{"level":"error","message":"boom","time":"x","b":2,"a":"1"}`))
	if out != "[ERROR] boom\na=1\nb=2" {
		t.Fatalf("formatAlert = %q", out)
	}
	if raw := formatAlert([]byte("not json")); raw != "not json" {
		t.Fatalf("raw = %q", raw)
	}
}
