// Package eventbus is an in-memory fan-out for lifecycle signals between
// the dispatcher, the reminder repository and the delivery transports.
//
// Publish never blocks: each subscriber has a bounded buffer and misses
// events once it is full.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types.
const (
	// NotificationFired is published when a scheduled notification's time
	// arrives. Data is a dispatch.Notification.
	NotificationFired = "notification.fired"
	// NotificationDelivered follows a successful sink fan-out.
	NotificationDelivered = "notification.delivered"
	// NotificationFailed means every delivery attempt failed.
	NotificationFailed = "notification.failed"
	// ReminderReconciled carries a ReconcileInfo after the coordinator ran.
	ReminderReconciled = "reminder.reconciled"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[uint64]*subscriber{}}
}

type subscriber struct {
	ch    chan Event
	types map[string]bool // nil means all
}

func (s *subscriber) wants(t string) bool { return s.types == nil || s.types[t] }

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
		}
	}
}

// Subscribe registers a buffered subscriber. With no types it receives
// every event.
func (b *memBus) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		s.types = make(map[string]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Publish holds the read lock while sending, so no send can race
			// with this close.
			close(s.ch)
		})
	}
}
