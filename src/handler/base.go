package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BaseHandler provides common functionality shared by the HTTP handlers.
type BaseHandler struct {
	// Add any common fields here
}

// NewBaseHandler creates a new base handler
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// HandleWelcome responds to the root path for any HTTP method, confirming
// the server is up without implying any particular resource lives at "/".
func (h *BaseHandler) HandleWelcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "session core is running",
	})
}

// SendJSON sends a JSON response with the given status code
func (h *BaseHandler) SendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
