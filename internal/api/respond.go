package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/voxrecon/internal/provider"
	"github.com/raphaelgruber/voxrecon/internal/reconcile"
	"github.com/raphaelgruber/voxrecon/internal/report"
	"github.com/raphaelgruber/voxrecon/internal/service"
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// statusOf maps service errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrNoReport),
		errors.Is(err, service.ErrClaimNotFound),
		errors.Is(err, reconcile.ErrClusterNotBound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, reconcile.ErrBindingLocked):
		return http.StatusConflict
	case errors.Is(err, report.ErrNoEvidence), errors.Is(err, report.ErrNoParticipants):
		return http.StatusUnprocessableEntity
	case errors.Is(err, provider.ErrNotRegistered), errors.Is(err, service.ErrNoStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error and records it for the request logger.
func fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal server error", "detail": err.Error()})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
