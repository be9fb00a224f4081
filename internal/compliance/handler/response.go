// Package handler provides the HTTP handlers for the compliance service.
package handler

import "github.com/gin-gonic/gin"

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondOK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, SuccessResponse{Code: 0, Message: message, Data: data})
}

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, ErrorResponse{Code: status, Message: err.Error()})
}

// userID resolves the caller identity. Authentication happens upstream; the
// gateway forwards the identity in a trusted header.
func userID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return "anonymous"
}
