package config

// Config is the on-disk configuration (JSON, or YAML coerced to JSON).
//
// Secrets never live here; see Secrets.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	HTTP      HTTPConfig      `json:"http"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Storage   StorageConfig   `json:"storage"`
	Realtime  RealtimeConfig  `json:"realtime"`
	AWS       AWSConfig       `json:"aws"`
	Email     EmailConfig     `json:"email"`
	Push      PushConfig      `json:"push"`
	SMS       SMSConfig       `json:"sms"`
	Telegram  TelegramConfig  `json:"telegram"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	JSON    bool          `json:"json,omitempty"`
	File    LoggingFile   `json:"file"`
	Alerts  LoggingAlerts `json:"alerts"`
}

// LoggingAlerts forwards warn/error records to a Telegram chat through the
// bot configured by TELEGRAM_TOKEN.
type LoggingAlerts struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// HTTPConfig controls the API listener.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type HTTPConfig struct {
	Addr            string `json:"addr"`
	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
	// Mode is passed to gin ("debug", "release", "test").
	Mode string `json:"mode,omitempty"`
	// Pprof mounts /debug/pprof behind the admin token.
	Pprof bool `json:"pprof,omitempty"`
}

// SchedulerConfig controls reminder timers.
type SchedulerConfig struct {
	// Timezone decides where the calendar day boundary for the daily counter falls.
	// Empty means the process local zone.
	Timezone string `json:"timezone,omitempty"`
	// Reconcile is a cron spec for the job that re-arms active reminders
	// missing a timer. Empty disables it.
	Reconcile string `json:"reconcile,omitempty"`
}

// DispatchConfig controls notification fan-out. This whole section is hot reloadable.
type DispatchConfig struct {
	Channels ChannelsConfig `json:"channels"`
	// ChannelTimeout bounds a single adapter call.
	ChannelTimeout string `json:"channel_timeout,omitempty"`
	// RatePerSec limits calls per channel; 0 disables limiting.
	RatePerSec  int `json:"rate_per_sec,omitempty"`
	HistorySize int `json:"history_size,omitempty"`
}

// ChannelsConfig holds one enable flag per delivery channel.
type ChannelsConfig struct {
	Socket   bool `json:"socket"`
	Push     bool `json:"push"`
	Email    bool `json:"email"`
	SMS      bool `json:"sms"`
	Telegram bool `json:"telegram"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/reminderd.db" }
//
// The postgres driver reads its DSN from DATABASE_URL.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type RealtimeConfig struct {
	WriteTimeout string `json:"write_timeout,omitempty"`
	PingInterval string `json:"ping_interval,omitempty"`
	// AllowedOrigins lists browser origins allowed to open /ws. Empty means
	// same origin only; "*" allows any.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// AWSConfig is shared by the push, email and sms adapters.
// Credentials come from the default AWS chain.
type AWSConfig struct {
	Region string `json:"region,omitempty"`
}

type EmailConfig struct {
	From string `json:"from,omitempty"`
}

type PushConfig struct {
	PlatformApplicationARN string `json:"platform_application_arn,omitempty"`
}

type SMSConfig struct {
	SenderID string `json:"sender_id,omitempty"`
}

type TelegramConfig struct {
	// ParseMode is forwarded to telebot ("", "HTML", "Markdown").
	ParseMode string `json:"parse_mode,omitempty"`
}

// Default returns the configuration used for any key missing from the file.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		HTTP: HTTPConfig{
			Addr:            ":5000",
			ReadTimeout:     "15s",
			WriteTimeout:    "15s",
			ShutdownTimeout: "10s",
			Mode:            "release",
		},
		Scheduler: SchedulerConfig{Reconcile: "@every 15m"},
		Dispatch: DispatchConfig{
			Channels:       ChannelsConfig{Socket: true},
			ChannelTimeout: "10s",
			RatePerSec:     20,
			HistorySize:    200,
		},
		Storage: StorageConfig{Driver: "sqlite", Path: "./data/reminderd.db", BusyTimeout: "5s"},
		Realtime: RealtimeConfig{
			WriteTimeout: "10s",
			PingInterval: "30s",
		},
	}
}
