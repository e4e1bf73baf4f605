package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"leasecheck/internal/billing"
)

const (
	signatureHeader = "Paddle-Signature"
	maxWebhookBytes = 1 << 20
)

func (s *Server) webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		badRequest(c, "Unreadable body")
		return
	}

	res, err := s.deps.Billing.HandleWebhook(c.Request.Context(), c.GetHeader(signatureHeader), body)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "processed": res.Processed})
}

type registerPendingRequest struct {
	UserID     string `json:"user_id"`
	CheckoutID string `json:"checkout_id"`
}

func (s *Server) registerPending(c *gin.Context) {
	var req registerPendingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	key, err := s.deps.Billing.RegisterPending(c.Request.Context(), req.UserID, req.CheckoutID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "key": key})
}

func (s *Server) grantAccess(c *gin.Context) {
	var req billing.GrantDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	grant, err := s.deps.Billing.GrantDirect(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.log.Info().
		Str("admin", c.GetString(adminSubjectKey)).
		Str("user_id", grant.UserID).
		Msg("Access granted by admin")

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"has_access": true,
		"plan":       grant.Plan,
		"expires_at": grant.ExpiresAt,
	})
}

type createCheckoutRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) createCheckout(c *gin.Context) {
	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		badRequest(c, "user_id is required")
		return
	}

	checkout, err := s.deps.Billing.CreateCheckout(c.Request.Context(), req.UserID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"checkout_url":   checkout.URL,
		"transaction_id": checkout.TransactionID,
		"already_active": checkout.AlreadyActive,
	})
}

func (s *Server) checkAccess(c *gin.Context) {
	userID := requestUser(c)
	if userID == "" {
		badRequest(c, "user_id is required")
		return
	}

	st, err := s.deps.Billing.CheckAccess(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": st})
}
