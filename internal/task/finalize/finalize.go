// Package finalize implements the Finalizer: the join-point task that
// aggregates a job's fan-out results, performs the terminal state
// transition, optionally dispatches the archive task, and invokes webhook
// delivery.
package finalize

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixtools/pixtools/internal/broker"
	"github.com/pixtools/pixtools/internal/model"
	"github.com/pixtools/pixtools/internal/repository/job"
	"github.com/pixtools/pixtools/internal/storage/object"
	"github.com/pixtools/pixtools/internal/webhook"
)

// Finalizer runs the join-point algorithm for one job.
type Finalizer struct {
	jobs       *job.Repository
	store      *object.Store
	dispatcher *broker.Dispatcher
	delivery   *webhook.Delivery
	presignTTL time.Duration
}

// New creates a Finalizer.
func New(jobs *job.Repository, store *object.Store, dispatcher *broker.Dispatcher, delivery *webhook.Delivery, presignTTL time.Duration) *Finalizer {
	return &Finalizer{
		jobs:       jobs,
		store:      store,
		dispatcher: dispatcher,
		delivery:   delivery,
		presignTTL: presignTTL,
	}
}

// Execute runs the finalize algorithm for jobID, loading its aggregated
// fan-out results itself — the dispatched finalize message only carries
// the job id, so this is the one place that needs to know how to gather
// them back.
func (f *Finalizer) Execute(ctx context.Context, jobID uuid.UUID) error {
	j, err := f.jobs.Load(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	// Idempotent re-invocation: a redelivered finalize task, or a second
	// sibling racing to observe "ready" at the same moment, is a no-op.
	if j.Status.Terminal() {
		zlog.Logger.Info().Str("job_id", jobID.String()).Str("status", string(j.Status)).Msg("finalize: job already terminal, skipping")
		return nil
	}

	results, err := f.jobs.LoadFanOutResults(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load fan-out results: %w", err)
	}

	agg := partition(results)

	if agg.allImageOperationsFailed() {
		if err := f.jobs.Finalize(ctx, jobID, model.StatusFailed, nil, agg.metadata, agg.errorSummary()); err != nil {
			return fmt.Errorf("finalize as failed: %w", err)
		}
		zlog.Logger.Warn().Str("job_id", jobID.String()).Msg("finalize: all image operations failed, job FAILED")
		return f.clearFanOut(ctx, jobID)
	}

	errMsg := agg.errorSummary()
	if err := f.jobs.Finalize(ctx, jobID, model.StatusCompleted, agg.successes, agg.metadata, errMsg); err != nil {
		return fmt.Errorf("finalize as completed: %w", err)
	}
	successes := agg.successes

	if len(successes) >= 1 {
		archiveTask := model.TaskMessage{
			Kind:         model.TaskKindArchive,
			JobID:        jobID,
			DispatchedAt: time.Now(),
		}
		if err := f.dispatcher.Publish(ctx, archiveTask); err != nil {
			// Non-fatal: the job stays COMPLETED without an archive key.
			zlog.Logger.Err(err).Str("job_id", jobID.String()).Msg("finalize: failed to dispatch archive task")
		}
	}

	if j.WebhookURL != "" {
		if err := f.deliverWebhook(ctx, jobID, j.OriginalName, j.WebhookURL, model.StatusCompleted, successes, agg.metadata, errMsg); err != nil {
			zlog.Logger.Err(err).Str("job_id", jobID.String()).Msg("finalize: webhook delivery failed")
			if err := f.jobs.MarkWebhookOutcome(ctx, jobID, model.StatusCompletedWebhookFailed); err != nil {
				return fmt.Errorf("mark webhook outcome: %w", err)
			}
		}
	}

	return f.clearFanOut(ctx, jobID)
}

func (f *Finalizer) deliverWebhook(ctx context.Context, jobID uuid.UUID, originalName, url string, status model.Status, successes map[model.OperationTag]string, metadata map[string]string, errMsg string) error {
	resultURLs := make(map[string]string, len(successes))
	for tag, key := range successes {
		ext, _ := tag.Extension()
		downloadName := object.DownloadFilename(string(tag), originalName, ext)
		signed, err := f.store.Sign(ctx, key, f.presignTTL, downloadName)
		if err != nil {
			zlog.Logger.Err(err).Str("job_id", jobID.String()).Str("key", key).Msg("finalize: failed to sign result url for webhook payload")
			continue
		}
		resultURLs[string(tag)] = signed
	}

	payload := webhook.Payload{
		JobID:      jobID,
		Status:     string(status),
		ResultURLs: resultURLs,
		Metadata:   metadata,
		Error:      errMsg,
	}

	outcome := f.delivery.Deliver(ctx, url, payload)
	if outcome != webhook.OutcomeOk {
		return fmt.Errorf("webhook delivery outcome: %s", outcome)
	}
	return nil
}

func (f *Finalizer) clearFanOut(ctx context.Context, jobID uuid.UUID) error {
	if err := f.jobs.ClearFanOutResults(ctx, jobID); err != nil {
		return fmt.Errorf("clear fan-out results: %w", err)
	}
	return nil
}
