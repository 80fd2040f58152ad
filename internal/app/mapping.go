package app

import (
	"fmt"
	"strings"
	"time"

	"reminderd/internal/channel/socket"
	"reminderd/internal/config"
	"reminderd/internal/httpapi"
	"reminderd/internal/notifier"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alerts: logx.AlertConfig{
			Enabled:    cfg.Logging.Alerts.Enabled,
			ChatID:     cfg.Logging.Alerts.ChatID,
			MinLevel:   cfg.Logging.Alerts.MinLevel,
			RatePerSec: cfg.Logging.Alerts.RatePerSec,
		},
	}
}

func mapDispatch(cfg *config.Config) (notifier.Config, error) {
	timeout, err := config.ParseDurationOrDefault("dispatch.channel_timeout", cfg.Dispatch.ChannelTimeout, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	if cfg.Dispatch.RatePerSec < 0 {
		return notifier.Config{}, fmt.Errorf("dispatch.rate_per_sec must be >= 0")
	}
	ch := cfg.Dispatch.Channels
	return notifier.Config{
		Channels: notifier.Flags{
			Socket:   ch.Socket,
			Push:     ch.Push,
			Email:    ch.Email,
			SMS:      ch.SMS,
			Telegram: ch.Telegram,
		},
		ChannelTimeout: timeout,
		RatePerSec:     cfg.Dispatch.RatePerSec,
		HistorySize:    cfg.Dispatch.HistorySize,
	}, nil
}

func mapStorage(cfg *config.Config, sec config.Secrets) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		path := strings.TrimSpace(cfg.Storage.Path)
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "postgres", "postgresql":
		if strings.TrimSpace(sec.DatabaseURL) == "" {
			return storage.Config{}, fmt.Errorf("DATABASE_URL is required when storage.driver=postgres")
		}
		return storage.Config{Driver: "postgres", DSN: sec.DatabaseURL}, nil
	case "memory":
		return storage.Config{Driver: "memory"}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver)
	}
}

func mapServer(cfg *config.Config) (httpapi.ServerConfig, time.Duration, error) {
	read, err := config.ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 15*time.Second)
	if err != nil {
		return httpapi.ServerConfig{}, 0, err
	}
	write, err := config.ParseDurationOrDefault("http.write_timeout", cfg.HTTP.WriteTimeout, 15*time.Second)
	if err != nil {
		return httpapi.ServerConfig{}, 0, err
	}
	shutdown, err := config.ParseDurationOrDefault("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout, 10*time.Second)
	if err != nil {
		return httpapi.ServerConfig{}, 0, err
	}
	return httpapi.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  2 * read,
	}, shutdown, nil
}

func mapRealtime(cfg *config.Config) (socket.Options, error) {
	write, err := config.ParseDurationOrDefault("realtime.write_timeout", cfg.Realtime.WriteTimeout, 10*time.Second)
	if err != nil {
		return socket.Options{}, err
	}
	ping, err := config.ParseDurationOrDefault("realtime.ping_interval", cfg.Realtime.PingInterval, 30*time.Second)
	if err != nil {
		return socket.Options{}, err
	}
	return socket.Options{
		WriteTimeout:   write,
		PingInterval:   ping,
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
	}, nil
}
