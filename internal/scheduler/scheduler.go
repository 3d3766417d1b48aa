// Package scheduler implements the maintenance scheduler: a fixed-cadence
// process that prunes job records, their artifacts, and expired
// idempotency keys past the retention window.
package scheduler

import (
	"context"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/pixtools/pixtools/internal/idempotency"
	"github.com/pixtools/pixtools/internal/repository/job"
	"github.com/pixtools/pixtools/internal/storage/object"
)

// Scheduler runs the retention sweep at a fixed cadence.
type Scheduler struct {
	jobs            *job.Repository
	store           *object.Store
	idempotency     *idempotency.Cache
	cadence         time.Duration
	retentionPeriod time.Duration
	now             func() time.Time
}

// New creates a Scheduler. cadence is the tick interval (default hourly);
// retentionPeriod is how long a terminal job's record and artifacts are
// kept before deletion.
func New(jobs *job.Repository, store *object.Store, idem *idempotency.Cache, cadence, retentionPeriod time.Duration) *Scheduler {
	if cadence <= 0 {
		cadence = time.Hour
	}
	return &Scheduler{
		jobs:            jobs,
		store:           store,
		idempotency:     idem,
		cadence:         cadence,
		retentionPeriod: retentionPeriod,
		now:             time.Now,
	}
}

// Run ticks at the configured cadence until ctx is canceled. It runs as
// its own process, separate from the API and worker pools, so a cleanup
// sweep never competes with them for resources.
func (s *Scheduler) Run(ctx context.Context) {
	zlog.Logger.Info().Dur("cadence", s.cadence).Msg("starting maintenance scheduler")

	ticker := time.NewTicker(s.cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zlog.Logger.Info().Msg("shutdown signal received, stopping maintenance scheduler")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one sweep: delete artifacts for expired jobs before deleting
// their records, so a crash mid-sweep leaves records whose objects are
// already gone (found again and finished on the next tick) rather than
// objects whose records no longer exist to point at them.
func (s *Scheduler) tick(ctx context.Context) {
	cutoff := s.now().Add(-s.retentionPeriod)

	expired, err := s.jobs.ListResultKeysAndArchive(ctx, cutoff)
	if err != nil {
		zlog.Logger.Err(err).Msg("maintenance: failed to list expired jobs")
		return
	}

	for _, ej := range expired {
		for _, key := range ej.ResultKeys {
			if err := s.store.Delete(ctx, key); err != nil {
				zlog.Logger.Err(err).Str("job_id", ej.ID.String()).Str("key", key).Msg("maintenance: failed to delete result artifact")
			}
		}
		if ej.ArchiveKey != "" {
			if err := s.store.Delete(ctx, ej.ArchiveKey); err != nil {
				zlog.Logger.Err(err).Str("job_id", ej.ID.String()).Str("key", ej.ArchiveKey).Msg("maintenance: failed to delete archive artifact")
			}
		}
		if ej.RawKey != "" {
			if err := s.store.Delete(ctx, ej.RawKey); err != nil {
				zlog.Logger.Err(err).Str("job_id", ej.ID.String()).Str("key", ej.RawKey).Msg("maintenance: failed to delete raw artifact")
			}
		}
	}

	deleted, err := s.jobs.PruneBefore(ctx, cutoff)
	if err != nil {
		zlog.Logger.Err(err).Msg("maintenance: failed to prune job records")
		return
	}

	idemDeleted, err := s.idempotency.PruneExpired(ctx)
	if err != nil {
		zlog.Logger.Err(err).Msg("maintenance: failed to prune idempotency keys")
	}

	zlog.Logger.Info().Int("deleted", deleted).Int("idempotency_deleted", idemDeleted).Time("cutoff", cutoff).Msg("maintenance sweep complete")
}
