// Package health implements the liveness/readiness endpoint: it pings
// the database, the idempotency cache, the broker, and the object store,
// and reports 503 if any of them is unreachable.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"

	"github.com/pixtools/pixtools/internal/api/respond"
	"github.com/pixtools/pixtools/internal/broker"
	"github.com/pixtools/pixtools/internal/idempotency"
	"github.com/pixtools/pixtools/internal/repository/job"
	"github.com/pixtools/pixtools/internal/storage/object"
)

const pingTimeout = 3 * time.Second

// Handler serves GET /api/health.
type Handler struct {
	jobs        *job.Repository
	idempotency *idempotency.Cache
	dispatcher  *broker.Dispatcher
	store       *object.Store
}

// New creates a health Handler.
func New(jobs *job.Repository, idem *idempotency.Cache, dispatcher *broker.Dispatcher, store *object.Store) *Handler {
	return &Handler{jobs: jobs, idempotency: idem, dispatcher: dispatcher, store: store}
}

// Response is the health-check body.
type Response struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

// Get reports healthy iff every dependency check succeeds, else 503.
func (h *Handler) Get(c *ginext.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	deps := map[string]string{
		"database": statusOf(h.jobs.Ping(ctx)),
		// This deployment backs the idempotency cache with Postgres rather
		// than Redis, but the dependency key stays "redis" since that's the
		// name clients already key off of.
		"redis":       statusOf(h.idempotency.Ping(ctx)),
		"broker":      statusOf(h.dispatcher.Ping(ctx)),
		"objectstore": statusOf(h.store.Ping(ctx)),
	}

	healthy := true
	for _, v := range deps {
		if v != "ok" {
			healthy = false
			break
		}
	}

	resp := Response{Dependencies: deps}
	if healthy {
		resp.Status = "healthy"
		respond.OK(c, resp)
		return
	}

	resp.Status = "unhealthy"
	respond.JSON(c, http.StatusServiceUnavailable, resp)
}

func statusOf(err error) string {
	if err != nil {
		return "down"
	}
	return "ok"
}
