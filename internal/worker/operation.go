// Package worker implements the task handlers that run on the standard
// and ml_inference queues: downloading the source image, calling the
// processing primitives, uploading results, and recording fan-out
// outcomes for the Finalizer to observe.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixtools/pixtools/internal/broker"
	"github.com/pixtools/pixtools/internal/model"
	"github.com/pixtools/pixtools/internal/processor"
	"github.com/pixtools/pixtools/internal/repository/job"
	"github.com/pixtools/pixtools/internal/storage/object"
)

// maxBrokerRetries bounds the number of times a transient failure may be
// redelivered to the same queue before the message is routed to the dead
// letter queue.
const maxBrokerRetries = 3

// OperationHandler processes a single operation task: jpg/png/webp/avif
// conversion, denoise, or metadata extraction.
type OperationHandler struct {
	store      *object.Store
	jobs       *job.Repository
	dispatcher *broker.Dispatcher
	ops        *processor.Ops
	strategy   retry.Strategy
	standardTO time.Duration
	mlTO       time.Duration
}

// New creates an OperationHandler.
func New(store *object.Store, jobs *job.Repository, dispatcher *broker.Dispatcher, ops *processor.Ops, strategy retry.Strategy, standardTimeout, mlTimeout time.Duration) *OperationHandler {
	return &OperationHandler{
		store:      store,
		jobs:       jobs,
		dispatcher: dispatcher,
		ops:        ops,
		strategy:   strategy,
		standardTO: standardTimeout,
		mlTO:       mlTimeout,
	}
}

// Handle executes one operation task end to end: a per-queue timeout
// bounds the work, and a transient failure is redelivered with backoff
// until it either succeeds or exhausts its retry budget, at which point
// it goes to the dead letter queue.
func (h *OperationHandler) Handle(ctx context.Context, task model.TaskMessage) error {
	timeout := h.standardTO
	if task.Operation.Queue() == model.QueueMLInference {
		timeout = h.mlTO
	}

	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, procErr := h.process(taskCtx, task)
	if procErr == nil {
		return h.report(ctx, task, result, "")
	}

	if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Warn().Str("job_id", task.JobID.String()).Str("operation", string(task.Operation)).Msg("task exceeded its time bound")
		return h.report(ctx, task, model.FanOutResult{}, fmt.Sprintf("operation timed out after %s", timeout))
	}

	if isTransient(procErr) && task.DeliveryCount < maxBrokerRetries {
		task.DeliveryCount++
		backoff := time.Duration(1<<task.DeliveryCount) * 250 * time.Millisecond
		zlog.Logger.Warn().
			Str("job_id", task.JobID.String()).
			Str("operation", string(task.Operation)).
			Int("delivery_count", task.DeliveryCount).
			Err(procErr).
			Msg("transient failure, redelivering with backoff")
		time.Sleep(backoff)
		return h.dispatcher.Publish(ctx, task)
	}

	zlog.Logger.Error().
		Str("job_id", task.JobID.String()).
		Str("operation", string(task.Operation)).
		Err(procErr).
		Msg("task failed permanently, routing to dead letter queue")

	if dlqErr := h.dispatcher.DeadLetter(ctx, task, procErr.Error()); dlqErr != nil {
		zlog.Logger.Err(dlqErr).Msg("failed to route message to dead letter queue")
	}

	return h.report(ctx, task, model.FanOutResult{}, procErr.Error())
}

func (h *OperationHandler) process(ctx context.Context, task model.TaskMessage) (model.FanOutResult, error) {
	var src []byte
	err := retry.Do(func() error {
		reader, err := h.store.Get(ctx, task.SourceKey)
		if err != nil {
			return err
		}
		defer reader.Close()

		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(reader); err != nil {
			return err
		}
		src = buf.Bytes()
		return nil
	}, h.strategy)
	if err != nil {
		return model.FanOutResult{}, fmt.Errorf("download source: %w", err)
	}

	if task.Operation == model.OpMetadata {
		meta, err := h.ops.ExtractMetadata(ctx, bytes.NewReader(src))
		if err != nil {
			return model.FanOutResult{}, fmt.Errorf("extract metadata: %w", err)
		}
		return model.FanOutResult{Operation: task.Operation, Metadata: meta}, nil
	}

	var result processor.Result
	if task.Operation == model.OpDenoise {
		result, err = h.ops.Denoise(ctx, bytes.NewReader(src), task.Params)
	} else {
		result, err = h.ops.Convert(ctx, bytes.NewReader(src), task.Operation, task.Params)
	}
	if err != nil {
		return model.FanOutResult{}, fmt.Errorf("process %s: %w", task.Operation, err)
	}

	key := object.ProcessedKey(task.JobID.String(), string(task.Operation), result.Ext)
	err = retry.Do(func() error {
		return h.store.PutProcessed(ctx, key, bytes.NewReader(result.Data), int64(len(result.Data)), contentTypeFor(result.Ext))
	}, h.strategy)
	if err != nil {
		return model.FanOutResult{}, fmt.Errorf("upload result: %w", err)
	}

	return model.FanOutResult{Operation: task.Operation, ObjectKey: key}, nil
}

// report records the fan-out outcome and, once every sibling for the job
// has reported, dispatches the finalize task — the join step of the
// chord (or the sole trigger for a chain).
func (h *OperationHandler) report(ctx context.Context, task model.TaskMessage, result model.FanOutResult, errMsg string) error {
	if errMsg != "" {
		result = model.FanOutResult{Operation: task.Operation, Error: errMsg}
	}

	j, err := h.jobs.Load(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("load job for fan-out recording: %w", err)
	}

	ready, _, err := h.jobs.RecordFanOutResult(ctx, task.JobID, len(j.Operations), result)
	if err != nil {
		return fmt.Errorf("record fan-out result: %w", err)
	}

	if !ready {
		return nil
	}

	finalizeTask := model.TaskMessage{
		Kind:          model.TaskKindFinalize,
		JobID:         task.JobID,
		CorrelationID: task.CorrelationID,
		DispatchedAt:  time.Now(),
	}
	if err := h.dispatcher.Publish(ctx, finalizeTask); err != nil {
		return fmt.Errorf("dispatch finalize task: %w", err)
	}
	return nil
}

func isTransient(err error) bool {
	var objErr *object.Error
	if errors.As(err, &objErr) {
		return objErr.Retryable()
	}
	// Unclassified errors (decode failures, bad params) are treated as
	// permanent: retrying a malformed image will never succeed.
	return false
}

func contentTypeFor(ext string) string {
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "avif":
		return "image/avif"
	default:
		return "application/octet-stream"
	}
}
