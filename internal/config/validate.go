package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	EnvTelegramToken  = "BLINKBRAIN_TELEGRAM_TOKEN"
	EnvTelegramChatID = "BLINKBRAIN_TELEGRAM_CHAT_ID"
	EnvStorageDSN     = "BLINKBRAIN_STORAGE_DSN"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ApplyEnv fills secrets from the environment when the file leaves them
// empty.
func (c *Config) ApplyEnv() error {
	if c.Telegram.Token == "" {
		c.Telegram.Token = strings.TrimSpace(os.Getenv(EnvTelegramToken))
	}
	if c.Telegram.ChatID == 0 {
		if raw := strings.TrimSpace(os.Getenv(EnvTelegramChatID)); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", EnvTelegramChatID, err)
			}
			c.Telegram.ChatID = id
		}
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = strings.TrimSpace(os.Getenv(EnvStorageDSN))
	}
	return nil
}

// Location resolves scheduler.timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

// ResyncSchedule parses scheduler.resync_spec; ok is false when it is empty.
func (c *Config) ResyncSchedule() (sched cron.Schedule, ok bool, err error) {
	spec := strings.TrimSpace(c.Scheduler.ResyncSpec)
	if spec == "" {
		return nil, false, nil
	}
	sched, err = cronParser.Parse(spec)
	if err != nil {
		return nil, false, fmt.Errorf("scheduler.resync_spec: %w", err)
	}
	return sched, true, nil
}

// Validate reports every problem it finds, joined.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := c.ResyncSchedule(); err != nil {
		errs = append(errs, err)
	}
	for path, raw := range map[string]string{
		"storage.busy_timeout":        c.Storage.BusyTimeout,
		"dispatcher.retry_base":       c.Dispatcher.RetryBase,
		"dispatcher.retry_max_delay":  c.Dispatcher.RetryMaxDelay,
		"dispatcher.delivery_timeout": c.Dispatcher.DeliveryTimeout,
		"telegram.timeout":            c.Telegram.Timeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "none", "memory", "file", "sqlite":
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn: required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if c.Telegram.Enabled {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			errs = append(errs, errors.New("telegram.token: required when telegram is enabled"))
		}
		if c.Telegram.ChatID == 0 {
			errs = append(errs, errors.New("telegram.chat_id: required when telegram is enabled"))
		}
	}
	if c.Reminders.DefaultCountdownSeconds < 0 {
		errs = append(errs, errors.New("reminders.default_countdown_seconds: must be >= 0"))
	}
	return errors.Join(errs...)
}
