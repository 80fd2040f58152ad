package config

import (
	"reflect"
	"sort"
	"strings"

	logx "reminderd/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alerts", newCfg.Logging.Alerts.Enabled),
		)
	}
	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs, logx.String("http.addr", newCfg.HTTP.Addr))
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
			logx.String("scheduler.reconcile", newCfg.Scheduler.Reconcile),
		)
	}
	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		ch := newCfg.Dispatch.Channels
		attrs = append(attrs,
			logx.Bool("dispatch.socket", ch.Socket),
			logx.Bool("dispatch.push", ch.Push),
			logx.Bool("dispatch.email", ch.Email),
			logx.Bool("dispatch.sms", ch.SMS),
			logx.Bool("dispatch.telegram", ch.Telegram),
			logx.String("dispatch.channel_timeout", newCfg.Dispatch.ChannelTimeout),
			logx.Int("dispatch.rate_per_sec", newCfg.Dispatch.RatePerSec),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Realtime, newCfg.Realtime) {
		changed = append(changed, "realtime")
	}
	// Provider sections are summarized by name only.
	if oldCfg.AWS != newCfg.AWS || oldCfg.Email != newCfg.Email || oldCfg.Push != newCfg.Push ||
		oldCfg.SMS != newCfg.SMS || oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "providers")
		attrs = append(attrs, logx.String("aws.region", newCfg.AWS.Region))
	}

	sort.Strings(changed)
	return changed, attrs
}

// HotReloadable reports whether every changed section can be applied without a restart.
func HotReloadable(changed []string) bool {
	for _, s := range changed {
		if s != "logging" && s != "dispatch" {
			return false
		}
	}
	return true
}
