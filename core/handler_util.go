package core

import (
	"log"

	"github.com/gin-gonic/gin"
)

// respondError sends the unified error payload {"success": false, "message": ...}.
// message is a string, or a []string for multi-field validation failures.
func respondError(c *gin.Context, status int, message any) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// respondAPIError maps a service error onto the wire format. Unexpected
// errors are logged with their real cause and surfaced as a generic 500.
func respondAPIError(c *gin.Context, err error) {
	apiErr := AsAPIError(err)
	if apiErr.Status >= 500 {
		log.Printf("internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	if len(apiErr.Messages) > 0 {
		respondError(c, apiErr.Status, apiErr.Messages)
		return
	}
	respondError(c, apiErr.Status, apiErr.Message)
}

// respondOK sends {"success": true, "message": ..., <extra fields>}.
func respondOK(c *gin.Context, status int, message string, payload gin.H) {
	body := gin.H{"success": true, "message": message}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(status, body)
}
