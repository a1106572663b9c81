package messaging

import (
	"context"

	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/logger"
)

// LogPublisher writes events to the structured log. Used when kafka is disabled.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (LogPublisher) Publish(ctx context.Context, ev domain.Event) error {
	logger.Info(ctx, "domain event",
		"type", ev.Type,
		"employee_id", ev.EmployeeID,
		"subject_id", ev.SubjectID,
		"occurred_at", ev.OccurredAt,
	)
	return nil
}

func (LogPublisher) Close() error { return nil }
