package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dotrep/payment-gateway/internal/billing"
	"github.com/dotrep/payment-gateway/internal/models"
	"github.com/dotrep/payment-gateway/internal/protocolerr"
	"github.com/dotrep/payment-gateway/internal/telemetry"
)

// BillingHandler exposes the deferred-billing session API.
type BillingHandler struct {
	aggregator *billing.Aggregator
}

func NewBillingHandler(aggregator *billing.Aggregator) *BillingHandler {
	return &BillingHandler{aggregator: aggregator}
}

type createSessionRequest struct {
	Payer string `json:"payer" binding:"required"`
}

func (h *BillingHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	session, err := h.aggregator.CreateSession(c.Request.Context(), req.Payer)
	if err != nil {
		telemetry.Logger.Error("Failed to create billing session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *BillingHandler) RecordCall(c *gin.Context) {
	sessionID := c.Param("id")

	var call models.MeteredCall
	if err := c.ShouldBindJSON(&call); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	outcome, err := h.aggregator.RecordCall(c.Request.Context(), sessionID, call)
	if err != nil {
		if pe, ok := protocolerr.As(err); ok {
			c.JSON(pe.Status, gin.H{"error": pe.Message, "code": string(pe.Code)})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record call"})
		return
	}

	resp := gin.H{"status": "recorded", "session_id": sessionID}
	if outcome != nil {
		resp["bill"] = outcome
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BillingHandler) BillSession(c *gin.Context) {
	sessionID := c.Param("id")
	closeSession := c.Query("close") == "true"

	outcome, err := h.aggregator.BillSession(c.Request.Context(), sessionID, closeSession)
	if err != nil {
		telemetry.Logger.Error("Failed to bill session",
			zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *BillingHandler) GetSession(c *gin.Context) {
	session, err := h.aggregator.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":     session.SessionID,
		"payer":          session.Payer,
		"status":         session.Status,
		"call_count":     len(session.Calls),
		"total_amount":   session.TotalAmountString(),
		"created_at":     session.CreatedAt,
		"expires_at":     session.ExpiresAt,
		"last_billed_at": session.LastBilledAt,
	})
}
