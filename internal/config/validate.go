package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate checks cross-field constraints that strict decoding cannot.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := LoadLocation(cfg.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	if spec := strings.TrimSpace(cfg.Scheduler.Reconcile); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("scheduler.reconcile: %w", err)
		}
	}
	durations := map[string]string{
		"http.read_timeout":        cfg.HTTP.ReadTimeout,
		"http.write_timeout":       cfg.HTTP.WriteTimeout,
		"http.shutdown_timeout":    cfg.HTTP.ShutdownTimeout,
		"dispatch.channel_timeout": cfg.Dispatch.ChannelTimeout,
		"storage.busy_timeout":     cfg.Storage.BusyTimeout,
		"realtime.write_timeout":   cfg.Realtime.WriteTimeout,
		"realtime.ping_interval":   cfg.Realtime.PingInterval,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	if cfg.Logging.Alerts.RatePerSec < 0 {
		return fmt.Errorf("logging.alerts.rate_per_sec: must be >= 0")
	}
	if cfg.Dispatch.RatePerSec < 0 {
		return fmt.Errorf("dispatch.rate_per_sec: must be >= 0")
	}
	if cfg.Dispatch.HistorySize < 0 {
		return fmt.Errorf("dispatch.history_size: must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	return nil
}

// LoadLocation resolves a timezone name; empty means time.Local.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}
