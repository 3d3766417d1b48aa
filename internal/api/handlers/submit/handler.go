// Package submit implements the multipart submission endpoint: it
// validates the upload, runs the idempotency check, persists the raw
// bytes and job record, and dispatches the DAG Builder's plan.
package submit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixtools/pixtools/internal/api/respond"
	"github.com/pixtools/pixtools/internal/broker"
	"github.com/pixtools/pixtools/internal/dag"
	"github.com/pixtools/pixtools/internal/idempotency"
	"github.com/pixtools/pixtools/internal/model"
	"github.com/pixtools/pixtools/internal/repository/job"
	"github.com/pixtools/pixtools/internal/storage/object"
)

const maxIdempotencyKeyBytes = 128
const maxOperationsPerRequest = 6

// Handler serves POST /api/process.
type Handler struct {
	jobs        *job.Repository
	store       *object.Store
	idempotency *idempotency.Cache
	builder     *dag.Builder
	dispatcher  *broker.Dispatcher
	maxUpload   int64
	idemTTL     time.Duration
}

// New creates a submission Handler.
func New(jobs *job.Repository, store *object.Store, idem *idempotency.Cache, builder *dag.Builder, dispatcher *broker.Dispatcher, maxUploadBytes int64, idempotencyTTL time.Duration) *Handler {
	return &Handler{
		jobs:        jobs,
		store:       store,
		idempotency: idem,
		builder:     builder,
		dispatcher:  dispatcher,
		maxUpload:   maxUploadBytes,
		idemTTL:     idempotencyTTL,
	}
}

// acceptedFormats maps a file extension to the canonical source format tag
// used for the same-format-conversion check.
var acceptedFormats = map[string]model.OperationTag{
	".jpg":  model.OpJPG,
	".jpeg": model.OpJPG,
	".png":  model.OpPNG,
	".webp": model.OpWebP,
	".avif": model.OpAVIF,
}

// Process handles the multipart submission.
func (h *Handler) Process(c *ginext.Context) {
	ctx := c.Request.Context()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respond.Fail(c, http.StatusUnprocessableEntity, fmt.Errorf("file is required: %w", err))
		return
	}
	defer file.Close()

	if header.Size > h.maxUpload {
		respond.Fail(c, http.StatusRequestEntityTooLarge, model.ErrFileTooLarge)
		return
	}

	sourceFormat, ok := acceptedFormats[strings.ToLower(filepath.Ext(header.Filename))]
	if !ok {
		respond.Fail(c, http.StatusUnsupportedMediaType, model.ErrUnsupportedMedia)
		return
	}

	operations, paramsByTag, err := parseOperations(c.PostForm("operations"), c.PostForm("operation_params"))
	if err != nil {
		respond.Fail(c, http.StatusUnprocessableEntity, err)
		return
	}
	if len(operations) == 0 {
		respond.Fail(c, http.StatusUnprocessableEntity, model.ErrNoOperations)
		return
	}
	if len(operations) > maxOperationsPerRequest {
		respond.Fail(c, http.StatusUnprocessableEntity, model.ErrTooManyOperations)
		return
	}

	if hasSameFormatTarget(operations, sourceFormat) {
		respond.Fail(c, http.StatusUnprocessableEntity, model.ErrSameFormatTarget)
		return
	}

	webhookURL := c.PostForm("webhook_url")
	if webhookURL != "" {
		if _, err := url.ParseRequestURI(webhookURL); err != nil {
			respond.Fail(c, http.StatusUnprocessableEntity, fmt.Errorf("webhook_url is not a valid url: %w", err))
			return
		}
	}

	idempotencyKey := c.GetHeader("Idempotency-Key")
	if len(idempotencyKey) > maxIdempotencyKeyBytes {
		respond.Fail(c, http.StatusUnprocessableEntity, fmt.Errorf("idempotency key exceeds %d bytes", maxIdempotencyKeyBytes))
		return
	}

	if idempotencyKey != "" {
		if existing, hit := h.idempotency.Check(ctx, idempotencyKey); hit {
			respond.Accepted(c, Response{JobID: existing})
			return
		}
	}

	jobID := uuid.New()
	rawKey := object.RawKey(jobID.String(), header.Filename)

	if err := h.uploadRaw(ctx, rawKey, file, header); err != nil {
		zlog.Logger.Err(err).Str("job_id", jobID.String()).Msg("submit: failed to upload raw bytes")
		respond.Fail(c, http.StatusServiceUnavailable, fmt.Errorf("upstream storage unavailable: %w", err))
		return
	}

	j := &model.Job{
		ID:           jobID,
		Operations:   operations,
		Params:       paramsByTag,
		WebhookURL:   webhookURL,
		RawKey:       rawKey,
		OriginalName: header.Filename,
	}
	if err := h.jobs.Create(ctx, j); err != nil {
		zlog.Logger.Err(err).Str("job_id", jobID.String()).Msg("submit: failed to create job record")
		respond.Fail(c, http.StatusServiceUnavailable, fmt.Errorf("upstream database unavailable: %w", err))
		return
	}

	plan := h.builder.Build(jobID, rawKey, operations, paramsByTag, jobID.String())
	if err := h.dispatcher.Dispatch(ctx, plan); err != nil {
		zlog.Logger.Err(err).Str("job_id", jobID.String()).Msg("submit: failed to dispatch plan")
		respond.Fail(c, http.StatusServiceUnavailable, fmt.Errorf("upstream broker unavailable: %w", err))
		return
	}

	if idempotencyKey != "" {
		h.idempotency.Set(ctx, idempotencyKey, jobID, h.idemTTL)
	}

	respond.Accepted(c, Response{JobID: jobID})
}

// Response is the submission endpoint's success body.
type Response struct {
	JobID uuid.UUID `json:"job_id"`
}

func (h *Handler) uploadRaw(ctx context.Context, key string, file io.Reader, header *multipart.FileHeader) error {
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return h.store.PutRaw(ctx, key, file, header.Size, contentType)
}

// hasSameFormatTarget reports whether operations asks for a conversion
// into the source's own format. Denoise and metadata are exempt: neither
// is a format conversion, so neither can be a same-format no-op.
func hasSameFormatTarget(operations []model.OperationTag, source model.OperationTag) bool {
	for _, op := range operations {
		if op.IsImageProducing() && op != model.OpDenoise && op == source {
			return true
		}
	}
	return false
}

func parseOperations(rawOps, rawParams string) ([]model.OperationTag, model.OperationParamsByTag, error) {
	if rawOps == "" {
		return nil, nil, model.ErrNoOperations
	}

	var requested []string
	if err := json.Unmarshal([]byte(rawOps), &requested); err != nil {
		return nil, nil, fmt.Errorf("operations must be a JSON array of strings: %w", err)
	}

	operations, err := model.NormalizeOperations(requested)
	if err != nil {
		return nil, nil, err
	}

	params := make(model.OperationParamsByTag)
	if rawParams != "" {
		var byTag map[string]model.OperationParams
		if err := json.Unmarshal([]byte(rawParams), &byTag); err != nil {
			return nil, nil, fmt.Errorf("operation_params must be a JSON object: %w", err)
		}
		for tag, p := range byTag {
			params[model.OperationTag(tag)] = p
		}
	}

	return operations, params, nil
}

