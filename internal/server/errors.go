package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"leasecheck/internal/access"
	"leasecheck/internal/billing"
	"leasecheck/internal/logger"
	"leasecheck/internal/pipeline"
	"leasecheck/internal/preview"
)

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	var denial *pipeline.Denial
	var limit *preview.LimitError
	switch {
	case errors.As(err, &denial):
		return http.StatusForbidden
	case errors.As(err, &limit):
		return http.StatusTooManyRequests
	case errors.Is(err, pipeline.ErrNoPages),
		errors.Is(err, pipeline.ErrTooManyPages),
		errors.Is(err, pipeline.ErrUnsupportedFormat),
		errors.Is(err, preview.ErrEmptyClause),
		errors.Is(err, preview.ErrClauseTooLong),
		errors.Is(err, access.ErrInvalidUser),
		errors.Is(err, access.ErrInvalidPlan),
		errors.Is(err, billing.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrNoText):
		return http.StatusUnprocessableEntity
	case errors.Is(err, billing.ErrMissingSignature),
		errors.Is(err, billing.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, billing.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, billing.ErrCheckoutFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a JSON error body. Internal failures are logged
// and hidden from the caller.
func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)

	var denial *pipeline.Denial
	var limit *preview.LimitError
	switch {
	case errors.As(err, &denial):
		c.JSON(status, gin.H{
			"success": false,
			"error":   string(denial.Reason),
			"message": denial.Message,
		})
		return
	case errors.As(err, &limit):
		c.JSON(status, gin.H{
			"success":               false,
			"error":                 "limit_reached",
			"message":               limit.Message,
			"remaining_quota_today": limit.Remaining,
		})
		return
	}

	log := logger.FromContext(c.Request.Context(), s.log)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		c.JSON(status, gin.H{"success": false, "error": "Internal server error", "request_id": GetRequestID(c)})
		return
	}

	log.Warn().Err(err).Int("status", status).Msg("Request rejected")
	c.JSON(status, gin.H{"success": false, "error": publicMessage(err)})
}

// publicMessage is the caller-facing text for a rejection.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrRecordNotFound):
		return "Analysis not found. Please analyze a lease first."
	case errors.Is(err, pipeline.ErrNoText):
		return "No text could be extracted from the document. Please upload clearer pages."
	case errors.Is(err, pipeline.ErrNoPages):
		return "No pages found in the document(s)"
	case errors.Is(err, pipeline.ErrTooManyPages):
		return "Too many pages. Please upload at most the allowed number of pages."
	case errors.Is(err, pipeline.ErrUnsupportedFormat):
		return "Unsupported file type. Please upload PDF, JPG or PNG files."
	case errors.Is(err, billing.ErrMissingSignature):
		return "Missing signature"
	case errors.Is(err, billing.ErrInvalidSignature):
		return "Invalid signature"
	case errors.Is(err, billing.ErrNotConfigured):
		return "Payment system is not configured. Please contact support."
	case errors.Is(err, billing.ErrCheckoutFailed):
		return "Failed to create checkout"
	default:
		return err.Error()
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": message})
}
