package app

import (
	"strings"
	"time"

	"blinkbrain/internal/config"
	"blinkbrain/internal/dispatch"
	"blinkbrain/internal/storage"
	"blinkbrain/internal/transport/telegram"
	"blinkbrain/pkg/logx"
)

func mapLogging(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		JSON:    c.JSON,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

// mapStorage treats an empty or "none" driver as in-memory so the daemon
// still runs, without persistence across restarts.
func mapStorage(c config.StorageConfig) storage.Config {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	if driver == "" || driver == "none" {
		driver = "memory"
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(c.Path),
		DSN:         strings.TrimSpace(c.DSN),
		BusyTimeout: config.Duration(c.BusyTimeout, time.Second),
	}
}

func mapDispatcher(c config.DispatcherConfig) dispatch.Config {
	return dispatch.Config{
		Workers:         c.Workers,
		QueueSize:       c.QueueSize,
		RatePerSec:      c.RatePerSec,
		RetryMax:        c.RetryMax,
		RetryBase:       config.Duration(c.RetryBase, 0),
		RetryMaxDelay:   config.Duration(c.RetryMaxDelay, 0),
		DeliveryTimeout: config.Duration(c.DeliveryTimeout, 0),
	}
}

func mapTelegram(c config.TelegramConfig) telegram.Config {
	return telegram.Config{
		Token:    c.Token,
		ChatID:   c.ChatID,
		ThreadID: c.ThreadID,
		Timeout:  config.Duration(c.Timeout, 10*time.Second),
	}
}
