package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
)

// ErrLockBusy is returned when a critical section stays held past the retry budget.
var ErrLockBusy = fmt.Errorf("resource busy, try again: %w", httpx.ErrConflict)

// ExpeditionGroupLockKey serialises capacity checks for one expedition group.
func ExpeditionGroupLockKey(groupID uuid.UUID) string {
	return fmt.Sprintf("expedition:group:%s:lock", groupID)
}

// ProposalSettlementLockKey serialises closing settlement for one proposal.
func ProposalSettlementLockKey(proposalID uuid.UUID) string {
	return fmt.Sprintf("proposal:%s:settlement:lock", proposalID)
}

// Locker runs functions inside redis-backed critical sections.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

// NewLocker wraps a redislock client. A nil client yields a Locker that runs fn without locking.
func NewLocker(client *redislock.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{
		client: client,
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 40),
	}
}

// WithLock obtains key, runs fn and releases the lock.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrLockBusy
	}
	if err != nil {
		return fmt.Errorf("obtain lock %s: %w", key, err)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}
