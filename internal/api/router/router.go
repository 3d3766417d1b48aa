// Package router wires the HTTP surface together: a ginext engine with
// logging and recovery middleware, and the route group under /api.
package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/pixtools/pixtools/internal/api/handlers/health"
	"github.com/pixtools/pixtools/internal/api/handlers/status"
	"github.com/pixtools/pixtools/internal/api/handlers/submit"
	"github.com/pixtools/pixtools/internal/api/middleware"
)

// Setup builds the gin engine and registers the submission, status, and
// health routes. sharedKey, if non-empty, gates every route behind a
// matching X-Shared-Key header.
func Setup(submitHandler *submit.Handler, statusHandler *status.Handler, healthHandler *health.Handler, sharedKey string) *ginext.Engine {
	r := ginext.New()

	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())
	r.Use(middleware.SharedKey(sharedKey))

	api := r.Group("/api")
	api.POST("/process", submitHandler.Process)
	api.GET("/jobs/:id", statusHandler.Get)
	api.GET("/health", healthHandler.Get)

	return r
}
