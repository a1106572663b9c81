package service

import (
	"time"

	"github.com/rl1809/custody-ledger/internal/metrics"
)

const (
	defaultLockTTL  = 10 * time.Second
	defaultLockWait = 3 * time.Second
)

type options struct {
	lockTTL           time.Duration
	lockWait          time.Duration
	enforcePriceFloor bool
	events            *EventQueue
	metrics           *metrics.Metrics
	now               func() time.Time
}

type Option func(*options)

// WithLockTiming sets how long an employee lock lives and how long a caller
// waits for it before failing with domain.ErrConcurrencyConflict.
func WithLockTiming(ttl, wait time.Duration) Option {
	return func(o *options) {
		o.lockTTL = ttl
		o.lockWait = wait
	}
}

// WithPriceFloor rejects sale lines priced below the product's lowest selling price.
func WithPriceFloor(enforce bool) Option {
	return func(o *options) { o.enforcePriceFloor = enforce }
}

func WithEvents(q *EventQueue) Option {
	return func(o *options) { o.events = q }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{
		lockTTL:  defaultLockTTL,
		lockWait: defaultLockWait,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
