// Package idempotency implements a TTL-bounded mapping from a
// client-supplied key to the job it produced.
//
// This cache rides the same Postgres instance the job store already uses
// (github.com/wb-go/wbf/dbpg), with a unique key and an expires_at
// column standing in for TTL. Set-if-absent is implemented as
// INSERT ... ON CONFLICT DO NOTHING, which gives an "at most one caller
// wins" guarantee without a separate cache service.
package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"
)

// Cache is the Idempotency Cache.
type Cache struct {
	db *dbpg.DB
}

// New creates a new Cache backed by db.
func New(db *dbpg.DB) *Cache {
	return &Cache{db: db}
}

// Check performs an atomic read. Errors during lookup are treated as a
// cache miss (fail-open) so a flaky cache never blocks submission.
func (c *Cache) Check(ctx context.Context, key string) (jobID uuid.UUID, hit bool) {
	var id uuid.UUID
	err := c.db.Master.QueryRowContext(ctx, `
		SELECT job_id FROM idempotency_keys
		WHERE key = $1 AND expires_at > now()
	`, key).Scan(&id)

	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			zlog.Logger.Warn().Err(err).Str("key", key).Msg("idempotency check failed, treating as miss")
		}
		return uuid.Nil, false
	}
	return id, true
}

// Set performs an atomic set-if-absent with TTL. At most one caller wins
// a race on the same key; losers should call Check again to learn the
// winner's job id. Errors are logged and swallowed: submission proceeds
// regardless, accepting the small risk of a duplicate job on a true
// concurrent-first-submission coincidence.
func (c *Cache) Set(ctx context.Context, key string, jobID uuid.UUID, ttl time.Duration) {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, job_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO NOTHING
	`, key, jobID, time.Now().Add(ttl))

	if err != nil {
		zlog.Logger.Warn().Err(err).Str("key", key).Msg("idempotency set failed")
	}
}

// Ping verifies database connectivity for the health endpoint. The
// idempotency cache shares the Job Store's Postgres instance, so this is
// a cheap no-op query rather than a second connection pool.
func (c *Cache) Ping(ctx context.Context) error {
	return c.db.Master.QueryRowContext(ctx, "SELECT 1").Err()
}

// PruneExpired deletes idempotency records past their TTL, keeping the
// table bounded; the maintenance scheduler calls it alongside job
// pruning.
func (c *Cache) PruneExpired(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("prune idempotency keys: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
