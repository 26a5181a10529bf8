package config

import (
	"strings"

	"blinkbrain/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs and
// returns log fields describing the new values. Secrets are reported only
// as set or unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		fields = append(fields,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		fields = append(fields,
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
			logx.String("scheduler.resync_spec", newCfg.Scheduler.ResyncSpec),
		)
	}
	if oldCfg.Dispatcher != newCfg.Dispatcher {
		changed = append(changed, "dispatcher")
		fields = append(fields,
			logx.Int("dispatcher.workers", newCfg.Dispatcher.Workers),
			logx.Int("dispatcher.rate_per_sec", newCfg.Dispatcher.RatePerSec),
			logx.Int("dispatcher.retry_max", newCfg.Dispatcher.RetryMax),
		)
	}
	if oldCfg.WS != newCfg.WS {
		changed = append(changed, "ws")
		fields = append(fields, logx.Bool("ws.enabled", newCfg.WS.Enabled), logx.String("ws.addr", newCfg.WS.Addr))
	}
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		fields = append(fields,
			logx.Bool("telegram.enabled", newCfg.Telegram.Enabled),
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}
	if oldCfg.Reminders != newCfg.Reminders {
		changed = append(changed, "reminders")
		fields = append(fields, logx.Int("reminders.default_countdown_seconds", newCfg.Reminders.DefaultCountdownSeconds))
	}
	return changed, fields
}

// NeedsRestart reports whether a change touches sections that are only read
// at startup. Logging and dispatcher changes apply live.
func NeedsRestart(changed []string) bool {
	for _, s := range changed {
		switch s {
		case "storage", "scheduler", "ws", "telegram", "reminders":
			return true
		}
	}
	return false
}
