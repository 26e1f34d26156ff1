package handlers

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/docvaulthq/docvault/tenant"
)

// respondError translates a core error into the HTTP contract: status
// from the closed taxonomy, JSON body with a stable code. Internal
// errors are logged with full detail server-side and rendered as a
// generic message so storage errors never leak to clients.
func respondError(c *gin.Context, err error) {
	code := tenant.CodeOf(err)
	message := err.Error()
	if code == tenant.CodeInternal {
		log.Printf("Internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		message = "internal error"
	}
	c.JSON(tenant.HTTPStatus(code), gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
