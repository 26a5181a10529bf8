package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"blinkbrain/internal/config"
	"blinkbrain/internal/dispatch"
	"blinkbrain/internal/eventbus"
	"blinkbrain/internal/notifier"
	"blinkbrain/pkg/logx"
	"blinkbrain/pkg/systemd"
)

// acknowledgeLoop moves each reminder past the occurrence that just fired.
func (a *App) acknowledgeLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n, ok := ev.Data.(dispatch.Notification)
			if !ok {
				continue
			}
			p, err := notifier.DecodePayload(n.Payload)
			if err != nil || p.ReminderID == "" {
				a.log.Debug("fired notification without reminder payload", logx.String("handle", n.Handle))
				continue
			}
			if err := a.reminders.Acknowledge(ctx, p.ReminderID, n.Handle); err != nil {
				a.log.Warn("acknowledge failed", logx.String("reminder_id", p.ReminderID), logx.Err(err))
			}
		}
	}
}

// startResync schedules periodic full resyncs when scheduler.resync_spec is
// set. Overlapping runs are skipped.
func (a *App) startResync(ctx context.Context) error {
	sched, ok, err := a.cfg.ResyncSchedule()
	if err != nil || !ok {
		return err
	}
	clog := cronLogger{log: a.log.With(logx.String("component", "cron"))}
	a.cron = cron.New(
		cron.WithLocation(a.loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	a.cron.Schedule(sched, cron.FuncJob(func() {
		if err := a.reminders.Resync(ctx); err != nil {
			a.log.Warn("periodic resync failed", logx.Err(err))
		}
	}))
	a.cron.Start()
	a.log.Info("periodic resync enabled", logx.String("spec", a.cfg.Scheduler.ResyncSpec))
	return nil
}

// configLoop applies reloaded settings that can change live.
func (a *App) configLoop(ctx context.Context, updates <-chan *config.Config) {
	prev := a.cfg
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-updates:
			if !ok {
				return
			}
			_, _ = systemd.Reloading()
			changed, fields := config.SummarizeChange(prev, next)
			a.logs.Apply(mapLogging(next.Logging))
			a.disp.Apply(mapDispatcher(next.Dispatcher))
			a.log.Info("config applied", append(fields, logx.Strings("changed", changed))...)
			if config.NeedsRestart(changed) {
				a.log.Warn("some config changes take effect after restart", logx.Strings("changed", changed))
			}
			prev = next
			_, _ = systemd.Ready()
		}
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug(msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Warn(msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
