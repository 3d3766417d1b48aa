// Package model defines the data types shared across the job orchestration
// engine: the Job record, the operations a client can request, and the
// transient messages that flow between the submission endpoint, the
// broker, the workers, and the finalizer.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusPending                 Status = "PENDING"
	StatusProcessing              Status = "PROCESSING"
	StatusCompleted               Status = "COMPLETED"
	StatusCompletedWebhookFailed  Status = "COMPLETED_WEBHOOK_FAILED"
	StatusFailed                  Status = "FAILED"
)

// Terminal reports whether the status is one a Job can only reach once.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWebhookFailed, StatusFailed:
		return true
	default:
		return false
	}
}

// Job is the primary persisted entity. Each field has exactly one writer:
// the submission endpoint creates it, workers never touch it directly,
// the finalizer mutates status/result_keys/metadata/error/webhook state,
// the archive task mutates ArchiveKey, and the maintenance scheduler
// deletes it once past retention.
type Job struct {
	ID          uuid.UUID
	Status      Status
	Operations  []OperationTag
	Params      OperationParamsByTag
	ResultKeys  map[OperationTag]string
	ArchiveKey  *string
	Metadata    map[string]string
	WebhookURL  string
	Error       string
	RawKey      string
	OriginalName string
	RetryCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OperationParamsByTag maps an operation tag to its optional parameters.
type OperationParamsByTag map[OperationTag]OperationParams

// OperationParams holds the optional per-operation parameters a client may
// supply. Unknown parameters for an operation are ignored silently by the
// processing layer, never rejected at submission.
type OperationParams struct {
	Quality *int `json:"quality,omitempty"`
	Width   *int `json:"width,omitempty"`
	Height  *int `json:"height,omitempty"`
}
