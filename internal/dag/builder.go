// Package dag builds dispatch plans from an operation list: a single
// operation becomes a one-task chain, two or more become a chord whose
// siblings run in parallel and join at the finalizer.
package dag

import (
	"time"

	"github.com/google/uuid"

	"github.com/pixtools/pixtools/internal/model"
)

// Builder produces a Plan for a job's requested operations.
type Builder struct{}

// New creates a Builder. It is stateless; a value receiver would do just
// as well, but a constructor keeps call sites consistent with the rest
// of the package set.
func New() *Builder {
	return &Builder{}
}

// Build produces a dispatch plan for the given operations. The caller
// must have already normalized/validated operations: Build never
// receives an empty list.
func (b *Builder) Build(jobID uuid.UUID, sourceKey string, operations []model.OperationTag, params model.OperationParamsByTag, correlationID string) model.Plan {
	tasks := make([]model.TaskMessage, 0, len(operations))
	now := dispatchTime()

	for _, op := range operations {
		tasks = append(tasks, model.TaskMessage{
			Kind:          model.TaskKindOperation,
			JobID:         jobID,
			Operation:     op,
			SourceKey:     sourceKey,
			Params:        params[op],
			CorrelationID: correlationID,
			DispatchedAt:  now,
		})
	}

	kind := model.PlanChord
	if len(tasks) == 1 {
		kind = model.PlanChain
	}

	return model.Plan{Kind: kind, Tasks: tasks}
}

// dispatchTime is isolated so tests can control it without wall-clock
// flakiness; production always uses time.Now.
var dispatchTime = time.Now
