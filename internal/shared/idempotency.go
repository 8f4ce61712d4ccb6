package shared

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voyager-crm/voyager/internal/platform/db"
	"github.com/voyager-crm/voyager/internal/platform/httpx"
)

// ErrIdempotencyConflict is returned when a submission key was already claimed in its scope.
var ErrIdempotencyConflict = fmt.Errorf("submission already received: %w", httpx.ErrDuplicate)

// IdempotencyStore remembers client-supplied submission keys (the Idempotency-Key header of
// public sign-ups) so a retried form post is answered with a conflict instead of a second row.
// Keys are unique per scope, e.g. one expedition group.
type IdempotencyStore struct {
	db  db.DBTX
	now func() time.Time
}

// NewIdempotencyStore builds a store on a pool or transaction.
func NewIdempotencyStore(conn db.DBTX) *IdempotencyStore {
	return &IdempotencyStore{db: conn, now: time.Now}
}

func normaliseKey(scope, key string) (string, string, error) {
	scope, key = strings.TrimSpace(scope), strings.TrimSpace(key)
	if scope == "" || key == "" {
		return "", "", fmt.Errorf("%w: submission scope and key are required", httpx.ErrValidation)
	}
	if len(key) > 128 {
		return "", "", fmt.Errorf("%w: Idempotency-Key longer than 128 characters", httpx.ErrValidation)
	}
	return scope, key, nil
}

// Claim records key under scope. A second claim of the same pair fails with ErrIdempotencyConflict.
func (s *IdempotencyStore) Claim(ctx context.Context, scope, key string) error {
	scope, key, err := normaliseKey(scope, key)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO idempotency_keys (scope, key, created_at) VALUES ($1, $2, $3)`,
		scope, key, s.now())
	if db.IsUniqueViolation(err) {
		return ErrIdempotencyConflict
	}
	if err != nil {
		return fmt.Errorf("claim submission key: %w", err)
	}
	return nil
}

// Release forgets a claim so the client may retry after a failed submission.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	scope, key, err := normaliseKey(scope, key)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE scope = $1 AND key = $2`, scope, key); err != nil {
		return fmt.Errorf("release submission key: %w", err)
	}
	return nil
}

// Sweep drops claims older than retention and reports how many were removed.
func (s *IdempotencyStore) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("sweep submission keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
