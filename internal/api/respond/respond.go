// Package respond implements shared HTTP response helpers used across
// the submission, status, and health endpoints.
package respond

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"
)

// Error represents a standard structure for error responses.
type Error struct {
	Message string `json:"message"`
}

// JSON sends a JSON response with the specified HTTP status code and data.
func JSON(c *ginext.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// Accepted sends a 202 Accepted JSON response, used by the submission
// endpoint once a job record exists and its plan has been dispatched.
func Accepted(c *ginext.Context, result interface{}) {
	JSON(c, http.StatusAccepted, result)
}

// OK sends a 200 OK JSON response.
func OK(c *ginext.Context, result interface{}) {
	JSON(c, http.StatusOK, result)
}

// Fail sends an error JSON response with the specified HTTP status code.
func Fail(c *ginext.Context, status int, err error) {
	JSON(c, status, Error{Message: err.Error()})
}
