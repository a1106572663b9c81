package service

import (
	"context"
	"sync"

	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/logger"
	"github.com/rl1809/custody-ledger/internal/metrics"
)

// EventQueue buffers committed domain events for publisher workers.
// Emitting never blocks: when the buffer is full or the queue is closed the
// event is dropped.
type EventQueue struct {
	mu      sync.RWMutex
	closed  bool
	ch      chan domain.Event
	metrics *metrics.Metrics
}

func NewEventQueue(size int, m *metrics.Metrics) *EventQueue {
	return &EventQueue{ch: make(chan domain.Event, size), metrics: m}
}

func (q *EventQueue) Events() <-chan domain.Event {
	return q.ch
}

// Close stops the queue. Handlers still running after a timed out shutdown
// may emit afterwards; those events are dropped.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

func (q *EventQueue) emit(ctx context.Context, ev domain.Event) {
	if q == nil {
		return
	}
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.metrics.EventDropped()
		logger.Warn(ctx, "event queue closed, dropping event", "type", ev.Type, "subject_id", ev.SubjectID)
		return
	}
	select {
	case q.ch <- ev:
	default:
		q.metrics.EventDropped()
		logger.Warn(ctx, "event queue full, dropping event", "type", ev.Type, "subject_id", ev.SubjectID)
	}
}
