// Package status implements the job-status endpoint: it loads the job
// record and signs result/archive URLs for anything already uploaded.
package status

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixtools/pixtools/internal/api/respond"
	"github.com/pixtools/pixtools/internal/model"
	"github.com/pixtools/pixtools/internal/repository/job"
	"github.com/pixtools/pixtools/internal/storage/object"
)

// Handler serves GET /api/jobs/:id.
type Handler struct {
	jobs       *job.Repository
	store      *object.Store
	presignTTL time.Duration
}

// New creates a status Handler.
func New(jobs *job.Repository, store *object.Store, presignTTL time.Duration) *Handler {
	return &Handler{jobs: jobs, store: store, presignTTL: presignTTL}
}

// Response is the job-state body returned by GET /api/jobs/:id.
type Response struct {
	Status     model.Status      `json:"status"`
	Operations []model.OperationTag `json:"operations"`
	ResultURLs map[string]string `json:"result_urls"`
	ArchiveURL string            `json:"archive_url,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Get handles GET /api/jobs/:id. Read-only: it never mutates job state.
func (h *Handler) Get(c *ginext.Context) {
	ctx := c.Request.Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusNotFound, model.ErrJobNotFound)
		return
	}

	j, err := h.jobs.Load(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			respond.Fail(c, http.StatusNotFound, model.ErrJobNotFound)
			return
		}
		zlog.Logger.Err(err).Str("job_id", id.String()).Msg("status: failed to load job")
		respond.Fail(c, http.StatusServiceUnavailable, err)
		return
	}

	resultURLs := make(map[string]string, len(j.ResultKeys))
	for tag, key := range j.ResultKeys {
		ext, _ := tag.Extension()
		downloadName := object.DownloadFilename(string(tag), j.OriginalName, ext)
		signed, err := h.store.Sign(ctx, key, h.presignTTL, downloadName)
		if err != nil {
			zlog.Logger.Err(err).Str("job_id", id.String()).Str("key", key).Msg("status: failed to sign result url")
			continue
		}
		resultURLs[string(tag)] = signed
	}

	var archiveURL string
	if j.ArchiveKey != nil {
		downloadName := object.DownloadFilename("", j.OriginalName, "zip")
		signed, err := h.store.Sign(ctx, *j.ArchiveKey, h.presignTTL, downloadName)
		if err != nil {
			zlog.Logger.Err(err).Str("job_id", id.String()).Msg("status: failed to sign archive url")
		} else {
			archiveURL = signed
		}
	}

	respond.OK(c, Response{
		Status:     j.Status,
		Operations: j.Operations,
		ResultURLs: resultURLs,
		ArchiveURL: archiveURL,
		Metadata:   j.Metadata,
		Error:      j.Error,
		CreatedAt:  j.CreatedAt,
	})
}
