package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/pixtools/pixtools/internal/model"
)

// RecordFanOutResult records one sibling's outcome for a chord (or the
// single outcome for a chain) and reports whether every expected result
// for the job has now been recorded.
//
// Redelivery safety: the (job_id, operation) pair is unique, so a
// redelivered task that already recorded its result inserts nothing. More
// than one caller can still observe "ready" for the same job: a
// redelivered final arrival, or two siblings whose inserts both land
// before either counts the rows. Each of them then dispatches finalize,
// which is safe because the Finalizer absorbs duplicate invocations.
func (r *Repository) RecordFanOutResult(ctx context.Context, jobID uuid.UUID, expected int, result model.FanOutResult) (ready bool, aggregated []model.FanOutResult, err error) {
	metaJSON, err := json.Marshal(result.Metadata)
	if err != nil {
		return false, nil, fmt.Errorf("marshal fan-out metadata: %w", err)
	}

	insert := `
		INSERT INTO job_fanout_results (job_id, operation, object_key, metadata, error, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (job_id, operation) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert, jobID, result.Operation, result.ObjectKey, metaJSON, result.Error); err != nil {
		return false, nil, fmt.Errorf("record fan-out result: %w", err)
	}

	aggregated, err = r.LoadFanOutResults(ctx, jobID)
	if err != nil {
		return false, nil, err
	}

	return len(aggregated) >= expected, aggregated, nil
}

// LoadFanOutResults returns every sibling outcome recorded for jobID so
// far. The Finalizer calls this itself rather than having results carried
// on the finalize task message, keeping that message a bare job id.
func (r *Repository) LoadFanOutResults(ctx context.Context, jobID uuid.UUID) ([]model.FanOutResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT operation, object_key, metadata, error
		FROM job_fanout_results
		WHERE job_id = $1
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("load fan-out results: %w", err)
	}
	defer rows.Close()

	var out []model.FanOutResult
	for rows.Next() {
		var (
			fr        model.FanOutResult
			objectKey sql.NullString
			errMsg    sql.NullString
			metaBytes []byte
		)
		if err := rows.Scan(&fr.Operation, &objectKey, &metaBytes, &errMsg); err != nil {
			return nil, fmt.Errorf("scan fan-out result: %w", err)
		}
		fr.ObjectKey = objectKey.String
		fr.Error = errMsg.String
		if len(metaBytes) > 0 {
			if err := json.Unmarshal(metaBytes, &fr.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal fan-out metadata: %w", err)
			}
		}
		out = append(out, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearFanOutResults removes the join-aggregation rows for a job once it
// has been finalized, keeping the table bounded by in-flight jobs only.
func (r *Repository) ClearFanOutResults(ctx context.Context, jobID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM job_fanout_results WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("clear fan-out results: %w", err)
	}
	return nil
}
