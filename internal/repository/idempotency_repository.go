package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/fiche-cuisine/internal/database"
)

// ClaimResult tells a caller whether it owns an idempotency key.
type ClaimResult int

const (
	// FirstClaim means the key was recorded by this call; proceed with
	// the side effects.
	FirstClaim ClaimResult = iota + 1
	// AlreadyClaimed means an earlier call recorded the key; skip the
	// side effects.
	AlreadyClaimed
)

// IdempotencyRepo records processed request keys in processed_requests.
// Keys never expire.
type IdempotencyRepo struct {
	db *sqlx.DB
}

// NewIdempotencyRepo returns a new IdempotencyRepo bound to the given database.
func NewIdempotencyRepo(db *sqlx.DB) *IdempotencyRepo { return &IdempotencyRepo{db: db} }

// Claim inserts key with a single statement. Only a unique violation on
// the key is reported as AlreadyClaimed; every other failure is returned
// as an error.
func (r *IdempotencyRepo) Claim(ctx context.Context, key string) (ClaimResult, error) {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO processed_requests (request_key, created_at) VALUES (?, ?)`),
		key, time.Now().UTC().Truncate(time.Microsecond))
	if database.IsUniqueViolation(err) {
		return AlreadyClaimed, nil
	}
	if err != nil {
		return 0, err
	}
	return FirstClaim, nil
}

// Release forgets key so that a later call with the same key runs again.
// It is used when the claimed operation failed before completing.
func (r *IdempotencyRepo) Release(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM processed_requests WHERE request_key = ?`), key)
	return err
}

// Exists reports whether key has been claimed.
func (r *IdempotencyRepo) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM processed_requests WHERE request_key = ?`), key); err != nil {
		return false, err
	}
	return n > 0, nil
}
