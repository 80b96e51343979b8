// Package handler exposes the HTTP API of the questionnaire agent.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"questionnaire-agent-go/internal/apperr"
)

// respondOK writes the standard success envelope.
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": data, "message": "success"})
}

// respondAccepted is the envelope for async operations that return a job.
func respondAccepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "data": data, "message": "accepted"})
}

// respondError maps the failure kind to an HTTP status and writes the error
// envelope.
func respondError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{
		"error": err.Error(),
		"kind":  string(apperr.KindOf(err)),
	})
}
