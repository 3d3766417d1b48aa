package model

import (
	"time"

	"github.com/google/uuid"
)

// QueueName is one of the broker's logical queues.
type QueueName string

const (
	QueueStandard    QueueName = "standard"
	QueueMLInference QueueName = "ml_inference"
	QueueDeadLetter  QueueName = "dead_letter"
)

// TaskKind distinguishes an operation task from the join-point finalize
// task and the post-finalize archive task; all three travel over the same
// broker wire format so a single consumer loop can dispatch on it.
type TaskKind string

const (
	TaskKindOperation TaskKind = "operation"
	TaskKindFinalize  TaskKind = "finalize"
	TaskKindArchive   TaskKind = "archive"
)

// TaskMessage is the transient, broker-side message published by the DAG
// Builder's dispatcher and consumed by a worker.
type TaskMessage struct {
	Kind          TaskKind         `json:"kind"`
	JobID         uuid.UUID        `json:"job_id"`
	Operation     OperationTag     `json:"operation,omitempty"`
	SourceKey     string           `json:"source_key,omitempty"`
	Params        OperationParams  `json:"params,omitempty"`
	CorrelationID string           `json:"correlation_id"`
	DispatchedAt  time.Time        `json:"dispatched_at"`
	DeliveryCount int              `json:"delivery_count"`
}

// FanOutResult is the outcome a worker records for one sibling task in a
// chord (or the single task in a chain). Exactly one of ObjectKey/Error is
// set; for the metadata operation, Metadata carries the extracted map
// instead of an object key.
type FanOutResult struct {
	Operation OperationTag      `json:"operation"`
	ObjectKey string            `json:"object_key,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Succeeded reports whether this fan-out result represents a success.
func (r FanOutResult) Succeeded() bool {
	return r.Error == ""
}
