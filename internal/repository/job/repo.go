// Package job implements persistence for job records and the fan-out
// result table used to detect when a chord is ready to finalize.
package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/pixtools/pixtools/internal/model"
)

// Repository provides CRUD and fan-out aggregation for Job records.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository backed by db.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Ping verifies database connectivity for the health endpoint.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Master.QueryRowContext(ctx, "SELECT 1").Err()
}

// Create inserts a new job record with PENDING status. Only the
// submission endpoint calls this.
func (r *Repository) Create(ctx context.Context, j *model.Job) error {
	opsJSON, err := json.Marshal(j.Operations)
	if err != nil {
		return fmt.Errorf("marshal operations: %w", err)
	}
	paramsJSON, err := json.Marshal(j.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	query := `
		INSERT INTO jobs (id, status, operations, params, result_keys, metadata,
		                   webhook_url, raw_key, original_name, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '{}', '{}', $5, $6, $7, 0, now(), now())
		RETURNING created_at, updated_at
	`

	err = r.db.Master.QueryRowContext(
		ctx, query, j.ID, model.StatusPending, opsJSON, paramsJSON, j.WebhookURL, j.RawKey, j.OriginalName,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	j.Status = model.StatusPending
	return nil
}

// Load fetches a job record by id.
func (r *Repository) Load(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	query := `
		SELECT id, status, operations, params, result_keys, metadata, archive_key,
		       webhook_url, error, raw_key, original_name, retry_count, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	var (
		j                                    model.Job
		opsJSON, paramsJSON, resultJSON, metaJSON []byte
		archiveKey                           sql.NullString
	)

	err := r.db.Master.QueryRowContext(ctx, query, id).Scan(
		&j.ID, &j.Status, &opsJSON, &paramsJSON, &resultJSON, &metaJSON, &archiveKey,
		&j.WebhookURL, &j.Error, &j.RawKey, &j.OriginalName, &j.RetryCount, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrJobNotFound
		}
		return nil, fmt.Errorf("load job: %w", err)
	}

	if err := json.Unmarshal(opsJSON, &j.Operations); err != nil {
		return nil, fmt.Errorf("unmarshal operations: %w", err)
	}
	if err := json.Unmarshal(paramsJSON, &j.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	if err := json.Unmarshal(resultJSON, &j.ResultKeys); err != nil {
		return nil, fmt.Errorf("unmarshal result keys: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &j.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if archiveKey.Valid {
		j.ArchiveKey = &archiveKey.String
	}

	return &j, nil
}

// Finalize performs the terminal state transition: it writes result keys,
// metadata, status and error in a single update. Only the Finalizer calls
// this, and only once per job.
func (r *Repository) Finalize(ctx context.Context, id uuid.UUID, status model.Status, resultKeys map[model.OperationTag]string, metadata map[string]string, errMsg string) error {
	resultJSON, err := json.Marshal(resultKeys)
	if err != nil {
		return fmt.Errorf("marshal result keys: %w", err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = $1, result_keys = $2, metadata = $3, error = $4, updated_at = now()
		WHERE id = $5
	`

	res, err := r.db.ExecContext(ctx, query, status, resultJSON, metaJSON, errMsg, id)
	if err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrJobNotFound
	}
	return nil
}

// MarkWebhookOutcome updates status after a webhook delivery attempt. Only
// the Finalizer calls this, immediately after Finalize.
func (r *Repository) MarkWebhookOutcome(ctx context.Context, id uuid.UUID, status model.Status) error {
	query := `UPDATE jobs SET status = $1, updated_at = now() WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("mark webhook outcome: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrJobNotFound
	}
	return nil
}

// SetArchiveKey writes back the archive object key once the Archive Task
// completes. Only the Archive Task calls this.
func (r *Repository) SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error {
	query := `UPDATE jobs SET archive_key = $1, updated_at = now() WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, key, id)
	if err != nil {
		return fmt.Errorf("set archive key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrJobNotFound
	}
	return nil
}

// IncrementRetry bumps the job's retry counter. Nothing in this module
// calls it; the worker tracks redeliveries in the task message's
// DeliveryCount instead.
func (r *Repository) IncrementRetry(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE jobs SET retry_count = retry_count + 1, updated_at = now() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("increment retry: %w", err)
	}
	return nil
}

// PruneBefore deletes terminal jobs created before cutoff and returns the
// number of deleted records. Invariant 3 (objects live until retention
// expiry) is maintained by the object store's own lifecycle rules, not by
// this call; callers that want artifact cleanup tied to record deletion
// should resolve the archive/result keys before pruning.
func (r *Repository) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		DELETE FROM jobs
		WHERE created_at < $1
		  AND status IN ($2, $3, $4)
	`
	res, err := r.db.ExecContext(ctx, query, cutoff, model.StatusCompleted, model.StatusCompletedWebhookFailed, model.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// ListResultKeysAndArchive reads just the fields the maintenance scheduler
// needs to clean up artifacts before deleting a job's record.
func (r *Repository) ListResultKeysAndArchive(ctx context.Context, cutoff time.Time) ([]ExpiredJob, error) {
	query := `
		SELECT id, result_keys, archive_key, raw_key
		FROM jobs
		WHERE created_at < $1
		  AND status IN ($2, $3, $4)
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff, model.StatusCompleted, model.StatusCompletedWebhookFailed, model.StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("list expired jobs: %w", err)
	}
	defer rows.Close()

	var out []ExpiredJob
	for rows.Next() {
		var (
			ej          ExpiredJob
			resultJSON  []byte
			archiveKey  sql.NullString
		)
		if err := rows.Scan(&ej.ID, &resultJSON, &archiveKey, &ej.RawKey); err != nil {
			return nil, fmt.Errorf("scan expired job: %w", err)
		}
		if err := json.Unmarshal(resultJSON, &ej.ResultKeys); err != nil {
			return nil, fmt.Errorf("unmarshal result keys: %w", err)
		}
		if archiveKey.Valid {
			ej.ArchiveKey = archiveKey.String
		}
		out = append(out, ej)
	}
	return out, rows.Err()
}

// ExpiredJob is the subset of a Job record the maintenance scheduler needs
// to remove artifacts before deleting the row.
type ExpiredJob struct {
	ID         uuid.UUID
	ResultKeys map[model.OperationTag]string
	ArchiveKey string
	RawKey     string
}
