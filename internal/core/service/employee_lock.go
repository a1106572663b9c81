package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/logger"
	"github.com/rl1809/custody-ledger/internal/port"
)

const (
	lockKeyPrefix     = "lock:employee:"
	lockRetryInterval = 5 * time.Millisecond
)

// employeeLocker serializes mutations of one employee aggregate. The version
// check on commit still applies; the lock only keeps contenders from racing
// into conflicts.
type employeeLocker struct {
	cache port.CacheRepository
	ttl   time.Duration
	wait  time.Duration
}

func newEmployeeLocker(cache port.CacheRepository, o options) *employeeLocker {
	return &employeeLocker{cache: cache, ttl: o.lockTTL, wait: o.lockWait}
}

// lock blocks for at most l.wait. The returned func releases the lock.
func (l *employeeLocker) lock(ctx context.Context, employeeID string) (func(), error) {
	key := lockKeyPrefix + employeeID
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.cache.AcquireLock(ctx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire employee lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: employee %s is busy", domain.ErrConcurrencyConflict, employeeID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := l.cache.ReleaseLock(releaseCtx, key, token); err != nil {
			logger.Warn(ctx, "failed to release employee lock", "employee_id", employeeID, "error", err)
		}
	}, nil
}
