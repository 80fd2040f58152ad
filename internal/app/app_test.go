package app

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reminderd/internal/config"
)

const testConfig = `logging:
  level: error
  console: false
http:
  addr: 127.0.0.1:0
  mode: test
scheduler:
  timezone: UTC
  reconcile: "@every 1h"
dispatch:
  channels:
    socket: true
    email: true
storage:
  driver: memory
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAppStartServeStop(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "adm")
	ctx := context.Background()
	a, err := New(ctx, Options{ConfigPath: writeConfig(t, testConfig)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + a.Addr() + "/api/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	resp, err = http.Get("http://" + a.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, "http://"+a.Addr()+"/api/admin/runtime", nil)
	req.Header.Set("X-Admin-Token", "adm")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	var info RuntimeInfo
	err = json.NewDecoder(resp.Body).Decode(&info)
	resp.Body.Close()
	if err != nil || info.Supervisor == nil || len(info.Supervisor.Goroutines) == 0 {
		t.Fatalf("runtime info = %+v, %v", info, err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("Done not closed after Stop")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(context.Background(), Options{ConfigPath: writeConfig(t, "scheduler:\n  timezone: Nowhere/Atlantis\n")}); err == nil {
		t.Fatalf("New accepted an unknown timezone")
	}
	if _, err := New(context.Background(), Options{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Fatalf("New accepted a missing file")
	}
}

func TestMapStorage(t *testing.T) {
	t.Parallel()
	cfg := config.Default()

	sc, err := mapStorage(&cfg, config.Secrets{})
	if err != nil || sc.Driver != "sqlite" || sc.BusyTimeout != 5*time.Second {
		t.Fatalf("sqlite = %+v, %v", sc, err)
	}

	cfg.Storage.Driver = "postgres"
	if _, err := mapStorage(&cfg, config.Secrets{}); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("postgres without dsn: %v", err)
	}
	sc, err = mapStorage(&cfg, config.Secrets{DatabaseURL: "postgres://u@h/db"})
	if err != nil || sc.DSN != "postgres://u@h/db" {
		t.Fatalf("postgres = %+v, %v", sc, err)
	}

	cfg.Storage.Driver = "bolt"
	if _, err := mapStorage(&cfg, config.Secrets{}); err == nil {
		t.Fatalf("unknown driver accepted")
	}
}

func TestMapDispatch(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Dispatch.Channels.SMS = true
	cfg.Dispatch.ChannelTimeout = "3s"
	nc, err := mapDispatch(&cfg)
	if err != nil {
		t.Fatalf("mapDispatch: %v", err)
	}
	if !nc.Channels.Socket || !nc.Channels.SMS || nc.Channels.Email || nc.ChannelTimeout != 3*time.Second {
		t.Fatalf("config = %+v", nc)
	}
	cfg.Dispatch.ChannelTimeout = "soon"
	if _, err := mapDispatch(&cfg); err == nil {
		t.Fatalf("bad duration accepted")
	}
}

func TestApplyConfigHotReloadsDispatch(t *testing.T) {
	a, err := New(context.Background(), Options{ConfigPath: writeConfig(t, testConfig)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.store.Close()

	prev := a.cfgm.Get()
	next := *prev
	next.Dispatch.Channels.Email = false
	next.Dispatch.Channels.Telegram = true
	next.HTTP.Addr = "127.0.0.1:9"

	a.applyConfig(prev, &next)
	fl := a.notif.Flags()
	if fl.Email || !fl.Telegram || !fl.Socket {
		t.Fatalf("flags after reload = %+v", fl)
	}
}
