package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"
	"golang.org/x/time/rate"

	"blinkbrain/internal/eventbus"
	"blinkbrain/internal/runtime/supervisor"
	"blinkbrain/pkg/logx"
)

type Option func(*Dispatcher)

func WithClock(c clock.Clock) Option  { return func(d *Dispatcher) { d.clk = c } }
func WithLogger(l logx.Logger) Option { return func(d *Dispatcher) { d.log = l } }
func WithBus(b eventbus.Bus) Option   { return func(d *Dispatcher) { d.bus = b } }
func WithSinks(sinks ...Sink) Option  { return func(d *Dispatcher) { d.sinks = append(d.sinks, sinks...) } }

type pending struct {
	n    Notification
	stop chan struct{}
}

// Dispatcher is safe for concurrent use. Schedule and Cancel are only
// accepted between Start and Stop.
type Dispatcher struct {
	clk   clock.Clock
	log   logx.Logger
	bus   eventbus.Bus
	sinks []Sink

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	pending map[string]*pending
	queue   chan Notification
	sup     *supervisor.Supervisor
	running bool
}

func New(cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{clk: clock.New(), log: logx.Nop(), pending: map[string]*pending{}}
	for _, o := range opts {
		o(d)
	}
	d.log = d.log.With(logx.String("component", "dispatch"))
	d.applyLocked(cfg)
	return d
}

// Apply swaps the pipeline knobs; worker and queue sizes take effect on the
// next Start.
func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.applyLocked(cfg)
	d.mu.Unlock()
}

func (d *Dispatcher) applyLocked(cfg Config) {
	d.cfg = cfg.withDefaults()
	d.limiter = rate.NewLimiter(rate.Limit(d.cfg.RatePerSec), d.cfg.RatePerSec)
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}
	d.queue = make(chan Notification, d.cfg.QueueSize)
	d.sup = supervisor.New(ctx, supervisor.WithLogger(d.log))
	for i := 0; i < d.cfg.Workers; i++ {
		q := d.queue
		d.sup.Go(fmt.Sprintf("dispatch.worker.%d", i), func(c context.Context) error {
			d.workerLoop(c, q)
			return nil
		})
	}
	d.running = true
	d.log.Info("dispatcher started", logx.Int("workers", d.cfg.Workers), logx.Int("sinks", len(d.sinks)))
	return nil
}

// Stop cancels every pending timer, lets workers drain the queue and waits
// for them until ctx is done.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	for h, p := range d.pending {
		close(p.stop)
		delete(d.pending, h)
	}
	close(d.queue)
	sup := d.sup
	d.mu.Unlock()

	if err := sup.Wait(ctx); err != nil {
		sup.Cancel()
		return err
	}
	sup.Cancel()
	return nil
}

// Schedule arms a timer for at and returns its handle. A time in the past
// fires immediately.
func (d *Dispatcher) Schedule(ctx context.Context, title, body string, at time.Time, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return "", ErrStopped
	}

	handle := uuid.NewString()
	p := &pending{
		n:    Notification{Handle: handle, Title: title, Body: body, FireAt: at, Payload: append([]byte(nil), payload...)},
		stop: make(chan struct{}),
	}
	d.pending[handle] = p

	delay := at.Sub(d.clk.Now())
	if delay < 0 {
		delay = 0
	}
	timer := d.clk.NewTimer(delay)
	d.sup.Go("dispatch.timer", func(c context.Context) error {
		select {
		case <-timer.C:
			d.fire(handle, p)
		case <-p.stop:
			timer.Stop()
		case <-c.Done():
			timer.Stop()
		}
		return nil
	})
	d.log.Debug("notification scheduled", logx.String("handle", handle), logx.Time("at", at), logx.Duration("in", delay))
	return handle, nil
}

// Cancel disarms the timer for handle. Unknown or already fired handles are
// ignored.
func (d *Dispatcher) Cancel(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return ErrStopped
	}
	if p, ok := d.pending[handle]; ok {
		close(p.stop)
		delete(d.pending, handle)
		d.log.Debug("notification cancelled", logx.String("handle", handle))
	}
	return nil
}

// CancelAll disarms every pending timer and reports how many there were.
func (d *Dispatcher) CancelAll(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.pending)
	for h, p := range d.pending {
		close(p.stop)
		delete(d.pending, h)
	}
	return n, nil
}

// Pending lists armed notifications ordered by fire time.
func (d *Dispatcher) Pending() []Notification {
	d.mu.Lock()
	out := make([]Notification, 0, len(d.pending))
	for _, p := range d.pending {
		out = append(out, p.n)
	}
	d.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}

func (d *Dispatcher) fire(handle string, p *pending) {
	d.mu.Lock()
	// A cancel or re-schedule may have won the race with the timer.
	if cur, ok := d.pending[handle]; !ok || cur != p || !d.running {
		d.mu.Unlock()
		return
	}
	delete(d.pending, handle)
	n := p.n
	n.FiredAt = d.clk.Now()

	var queued bool
	select {
	case d.queue <- n:
		queued = true
	default:
	}
	d.mu.Unlock()

	d.publish(eventbus.NotificationFired, n)
	if !queued {
		d.log.Warn("delivery queue full, dropping notification", logx.String("handle", handle))
		d.publish(eventbus.NotificationFailed, DeliveryResult{Notification: n, Error: ErrQueueFull.Error()})
	}
}

func (d *Dispatcher) workerLoop(ctx context.Context, q <-chan Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q:
			if !ok {
				return
			}
			d.deliverWithRetry(ctx, n)
		}
	}
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, n Notification) {
	d.mu.Lock()
	cfg := d.cfg
	lim := d.limiter
	d.mu.Unlock()

	remaining := append([]Sink(nil), d.sinks...)
	var delivered []string
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= 1+cfg.RetryMax && len(remaining) > 0; attempt++ {
		attempts = attempt
		if err := lim.Wait(ctx); err != nil {
			return
		}
		var failed []Sink
		for _, s := range remaining {
			callCtx, cancel := context.WithTimeout(ctx, cfg.DeliveryTimeout)
			err := s.Deliver(callCtx, n)
			cancel()
			if err != nil {
				lastErr = fmt.Errorf("%s: %w", s.Name(), err)
				failed = append(failed, s)
				d.log.Debug("delivery failed", logx.String("sink", s.Name()), logx.String("handle", n.Handle), logx.Int("attempt", attempt), logx.Err(err))
				continue
			}
			delivered = append(delivered, s.Name())
		}
		remaining = failed
		if len(remaining) == 0 || attempt > cfg.RetryMax {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	res := DeliveryResult{Notification: n, Sinks: delivered, Attempts: attempts}
	if len(remaining) > 0 {
		res.Error = lastErr.Error()
		d.log.Warn("notification delivery failed", logx.String("handle", n.Handle), logx.Int("failed_sinks", len(remaining)), logx.Err(lastErr))
		d.publish(eventbus.NotificationFailed, res)
		if len(delivered) == 0 {
			return
		}
	}
	d.log.Info("notification delivered", logx.String("handle", n.Handle), logx.String("title", n.Title), logx.Strings("sinks", delivered))
	d.publish(eventbus.NotificationDelivered, res)
}

func (d *Dispatcher) publish(typ string, data any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Time: d.clk.Now(), Data: data})
}

// retryDelay is the wait before attempt+1: exponential from RetryBase,
// capped at RetryMaxDelay, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
