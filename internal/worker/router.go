package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixtools/pixtools/internal/model"
	"github.com/pixtools/pixtools/internal/task/archive"
	"github.com/pixtools/pixtools/internal/task/finalize"
)

// Router dispatches a decoded broker message to the handler for its
// TaskKind. One Router is shared by both the standard and ml_inference
// consumers; only operation tasks actually differ by queue, since
// finalize and archive tasks are always published to the standard topic.
type Router struct {
	operations *OperationHandler
	finalizer  *finalize.Finalizer
	archiver   *archive.Task
}

// NewRouter creates a Router. It satisfies broker.Handler via Handle.
func NewRouter(operations *OperationHandler, finalizer *finalize.Finalizer, archiver *archive.Task) *Router {
	return &Router{operations: operations, finalizer: finalizer, archiver: archiver}
}

// Handle decodes msg and routes it to the handler for its kind.
func (r *Router) Handle(ctx context.Context, msg kafka.Message) error {
	var task model.TaskMessage
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		// A malformed message can never be retried into validity; log and
		// drop rather than redeliver forever.
		zlog.Logger.Error().Err(err).Str("raw", string(msg.Value)).Msg("router: dropping unparsable message")
		return nil
	}

	switch task.Kind {
	case model.TaskKindOperation:
		return r.operations.Handle(ctx, task)
	case model.TaskKindFinalize:
		return r.finalizer.Execute(ctx, task.JobID)
	case model.TaskKindArchive:
		return r.archiver.Handle(ctx, task.JobID)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}
