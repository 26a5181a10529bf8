// Package dispatch is the local notification dispatcher: it holds one timer
// per scheduled notification and, when a timer fires, fans the notification
// out to delivery sinks through a rate-limited worker pool with retries.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrStopped   = errors.New("dispatcher stopped")
	ErrQueueFull = errors.New("dispatcher queue full")
)

// Notification is what sinks receive.
type Notification struct {
	Handle  string          `json:"handle"`
	Title   string          `json:"title"`
	Body    string          `json:"body"`
	FireAt  time.Time       `json:"fireAt"`
	FiredAt time.Time       `json:"firedAt,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Sink delivers a fired notification somewhere a user can see it.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

// Config controls the delivery pipeline.
type Config struct {
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DeliveryTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 10 * time.Second
	}
	return c
}

// DeliveryResult is the Data of delivered/failed bus events.
type DeliveryResult struct {
	Notification Notification `json:"notification"`
	Sinks        []string     `json:"sinks,omitempty"`
	Attempts     int          `json:"attempts"`
	Error        string       `json:"error,omitempty"`
}
