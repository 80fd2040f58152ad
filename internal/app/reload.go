package app

import (
	"context"
	"strings"

	"reminderd/internal/config"
	logx "reminderd/pkg/logx"
)

// reloadLoop applies logging and dispatch changes live. Everything else is
// logged as needing a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	changed, attrs := config.SummarizeConfigChange(prev, next)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	for _, s := range changed {
		switch s {
		case "logging":
			a.logs.Apply(mapLogging(next))
		case "dispatch":
			ncfg, err := mapDispatch(next)
			if err != nil {
				a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
				continue
			}
			a.notif.Apply(ncfg)
		}
	}
	if !config.HotReloadable(changed) {
		var pending []string
		for _, s := range changed {
			if s != "logging" && s != "dispatch" {
				pending = append(pending, s)
			}
		}
		a.log.Warn("config sections changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(pending, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
