// Package app wires configuration, storage, the notes and reminder
// repositories, the dispatcher and its delivery sinks into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"blinkbrain/internal/config"
	"blinkbrain/internal/core"
	"blinkbrain/internal/dispatch"
	"blinkbrain/internal/eventbus"
	"blinkbrain/internal/notes"
	"blinkbrain/internal/notifier"
	"blinkbrain/internal/reminders"
	"blinkbrain/internal/runtime/supervisor"
	"blinkbrain/internal/storage"
	"blinkbrain/internal/transport/telegram"
	"blinkbrain/internal/transport/ws"
	"blinkbrain/pkg/logx"
	"blinkbrain/pkg/systemd"
)

const dispatcherCallTimeout = 5 * time.Second

type App struct {
	cfgm *config.Manager
	cfg  *config.Config
	loc  *time.Location

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store     storage.Store
	notes     *notes.Store
	reminders *reminders.Repository
	notebook  *core.Notebook
	disp      *dispatch.Dispatcher

	hub  *ws.Hub
	http *ws.Server
	cron *cron.Cron

	sup *supervisor.Supervisor
}

// New loads the config at cfgPath and builds every component. Nothing runs
// until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath, logx.NewConsole("INFO"))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.NewService(mapLogging(cfg.Logging))
	cfgm.SetLogger(log.With(logx.String("component", "config")))

	store, err := storage.Open(ctx, mapStorage(cfg.Storage), log.With(logx.String("component", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	a := &App{cfgm: cfgm, cfg: cfg, loc: loc, log: log.With(logx.String("component", "app")), logs: logSvc, bus: eventbus.New(), store: store}

	sinks := []dispatch.Sink{dispatch.LogSink{Log: log.With(logx.String("component", "delivery"))}}
	if cfg.WS.Enabled {
		a.hub = ws.NewHub(log)
		a.http = ws.NewServer(wsAddr(cfg.WS.Addr), a.hub, log)
		sinks = append(sinks, a.hub)
	}
	if cfg.Telegram.Enabled {
		tg, err := telegram.New(mapTelegram(cfg.Telegram), log)
		if err != nil {
			a.closeResources()
			return nil, err
		}
		sinks = append(sinks, tg)
	}

	a.disp = dispatch.New(mapDispatcher(cfg.Dispatcher),
		dispatch.WithLogger(log),
		dispatch.WithBus(a.bus),
		dispatch.WithSinks(sinks...),
	)
	a.notes = notes.New(store, notes.WithLogger(log))
	coord := notifier.NewCoordinator(a.disp, a.notes,
		notifier.WithLogger(log),
		notifier.WithBus(a.bus),
		notifier.WithCallTimeout(dispatcherCallTimeout),
	)
	a.reminders = reminders.New(store, coord, reminders.WithLocation(loc), reminders.WithLogger(log))

	countdown := core.DefaultCountdownSeconds
	if cfg.Reminders.DefaultCountdownSeconds > 0 {
		countdown = cfg.Reminders.DefaultCountdownSeconds
	}
	a.notebook = core.NewNotebook(a.notes, a.reminders, core.WithLogger(log), core.WithCountdown(countdown))
	return a, nil
}

func wsAddr(addr string) string {
	if addr == "" {
		return "127.0.0.1:8787"
	}
	return addr
}

func (a *App) Notebook() *core.Notebook           { return a.notebook }
func (a *App) Notes() *notes.Store                { return a.notes }
func (a *App) Reminders() *reminders.Repository   { return a.reminders }
func (a *App) Dispatcher() *dispatch.Dispatcher   { return a.disp }
func (a *App) Bus() eventbus.Bus                  { return a.bus }
func (a *App) Logger() logx.Logger                { return a.log }
func (a *App) Config() *config.Config             { return a.cfgm.Get() }
func (a *App) Supervisor() *supervisor.Supervisor { return a.sup }

// Done is closed when the app stops, either through Stop or a fatal error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start loads the collections, re-arms every reminder and starts the
// background loops.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	sctx := a.sup.Context()

	// Subscribe before the dispatcher can fire anything.
	fired, unsubscribe := a.bus.Subscribe(64, eventbus.NotificationFired)
	a.sup.Go("reminders.acknowledge", func(ctx context.Context) error {
		defer unsubscribe()
		a.acknowledgeLoop(ctx, fired)
		return nil
	})

	if err := a.disp.Start(sctx); err != nil {
		return err
	}
	if err := a.notes.Load(sctx); err != nil {
		return err
	}
	if err := a.reminders.Load(sctx); err != nil {
		return err
	}
	if err := a.reminders.Resync(sctx); err != nil {
		return err
	}

	if a.hub != nil {
		a.sup.Go("ws.hub", a.hub.Run)
		a.sup.Go("ws.http", a.http.Run)
	}
	if err := a.startResync(sctx); err != nil {
		return err
	}

	cfgUpdates := a.cfgm.Subscribe(1)
	a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)
	a.sup.Go("config.apply", func(ctx context.Context) error {
		defer a.cfgm.Unsubscribe(cfgUpdates)
		a.configLoop(ctx, cfgUpdates)
		return nil
	})
	a.sup.Go("systemd.watchdog", func(ctx context.Context) error {
		return systemd.Watchdog(ctx, a.log)
	})

	armed := len(a.disp.Pending())
	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	}
	_, _ = systemd.Status(fmt.Sprintf("%d notifications armed", armed))
	a.log.Info("blinkbrain started",
		logx.Int("notes", len(a.notes.List(notes.Filters{}))),
		logx.Int("reminders", len(a.reminders.List())),
		logx.Int("armed", armed),
		logx.String("timezone", a.loc.String()),
	)
	return nil
}

// Stop halts the loops, drops pending timers and closes storage. Pending
// reminders are re-armed by the next Start.
func (a *App) Stop(ctx context.Context) error {
	_, _ = systemd.Stopping()
	var errs []error
	if a.cron != nil {
		select {
		case <-a.cron.Stop().Done():
		case <-ctx.Done():
		}
	}
	if a.sup != nil {
		a.sup.Cancel()
	}
	if err := a.disp.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher: %w", err))
	}
	if a.sup != nil {
		if err := a.sup.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("supervisor: %w", err))
		}
	}
	a.log.Info("blinkbrain stopped")
	errs = append(errs, a.closeResources())
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if a.logs != nil {
		if err := a.logs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("logs: %w", err))
		}
	}
	return errors.Join(errs...)
}
