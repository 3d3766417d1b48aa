// Package middleware holds cross-cutting gin middleware for the API
// server.
package middleware

import (
	"fmt"
	"net/http"

	"github.com/wb-go/wbf/ginext"

	"github.com/pixtools/pixtools/internal/api/respond"
)

// SharedKey rejects requests whose X-Shared-Key header doesn't match
// key. An empty key disables the check entirely, which is the default
// for local/dev deployments that don't set server.shared_key.
func SharedKey(key string) ginext.HandlerFunc {
	return func(c *ginext.Context) {
		if key == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-Shared-Key") != key {
			respond.Fail(c, http.StatusUnauthorized, fmt.Errorf("missing or invalid X-Shared-Key header"))
			c.Abort()
			return
		}
		c.Next()
	}
}
