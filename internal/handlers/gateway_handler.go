package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dotrep/payment-gateway/internal/models"
	"github.com/dotrep/payment-gateway/internal/protocolerr"
	"github.com/dotrep/payment-gateway/internal/service"
	"github.com/dotrep/payment-gateway/internal/telemetry"
)

const (
	// PaymentHeader carries the JSON-encoded payment proof.
	PaymentHeader = "X-Payment"

	protocolVersionHeader = "X-Payment-Protocol-Version"
	protocolVersion       = "1"

	evidenceContextKey = "payment_evidence"
)

// GatewayHandler guards resource routes behind the payment protocol.
type GatewayHandler struct {
	orchestrator   *service.Orchestrator
	facilitatorURL string
}

func NewGatewayHandler(orchestrator *service.Orchestrator, facilitatorURL string) *GatewayHandler {
	return &GatewayHandler{orchestrator: orchestrator, facilitatorURL: facilitatorURL}
}

// Protect returns the middleware enforcing payment for one resource policy.
func (h *GatewayHandler) Protect(policy models.PaymentPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		raw := c.GetHeader(PaymentHeader)
		if raw == "" {
			request, err := h.orchestrator.RequirePayment(ctx, policy)
			if err != nil {
				telemetry.Logger.Error("Failed to issue challenge", zap.Error(err))
				h.writeError(c, protocolerr.Configuration("unable to issue payment challenge"), nil)
				c.Abort()
				return
			}
			h.writePaymentRequired(c, request, "payment required for this resource")
			c.Abort()
			return
		}

		var proof models.PaymentProof
		if err := json.Unmarshal([]byte(raw), &proof); err != nil {
			request, issueErr := h.orchestrator.RequirePayment(ctx, policy)
			if issueErr != nil {
				telemetry.Logger.Error("Failed to issue challenge", zap.Error(issueErr))
			}
			pe := protocolerr.MalformedProof("payment header is not valid JSON")
			pe.Status = http.StatusBadRequest
			h.writeError(c, pe, request)
			c.Abort()
			return
		}

		outcome := h.orchestrator.ProcessProof(ctx, &proof, policy)
		if outcome.State != service.StateGranted {
			h.writeError(c, outcome.Err, outcome.Request)
			c.Abort()
			return
		}

		c.Set(evidenceContextKey, outcome.Evidence)
		c.Next()
	}
}

// EvidenceFromContext returns the evidence attached by Protect, rendered
// for the success payload.
func EvidenceFromContext(c *gin.Context) gin.H {
	v, ok := c.Get(evidenceContextKey)
	if !ok {
		return nil
	}
	ev, ok := v.(*models.PaymentEvidence)
	if !ok {
		return nil
	}
	return gin.H{
		"id":        ev.ID,
		"txId":      ev.TxID,
		"chain":     ev.Chain,
		"verified":  ev.Verified,
		"published": ev.Published,
	}
}

func (h *GatewayHandler) writePaymentRequired(c *gin.Context, request *models.PaymentRequest, message string) {
	h.paymentHeaders(c)
	c.JSON(http.StatusPaymentRequired, gin.H{
		"error":          "payment required",
		"code":           string(protocolerr.CodePaymentRequired),
		"message":        message,
		"paymentRequest": request,
	})
}

func (h *GatewayHandler) writeError(c *gin.Context, pe *protocolerr.Error, request *models.PaymentRequest) {
	if pe.Status == http.StatusPaymentRequired {
		h.paymentHeaders(c)
	}
	body := gin.H{
		"error":     http.StatusText(pe.Status),
		"code":      string(pe.Code),
		"retryable": pe.Retryable,
		"message":   pe.Message,
	}
	if len(pe.Fields) > 0 {
		body["fields"] = pe.Fields
	}
	if pe.Details != nil {
		if verdict, ok := pe.Details.(*models.GateVerdict); ok {
			body["checks"] = verdict.Checks
		}
	}
	if request != nil {
		body["paymentRequest"] = request
	}
	c.JSON(pe.Status, body)
}

func (h *GatewayHandler) paymentHeaders(c *gin.Context) {
	c.Header("Retry-After", "5")
	c.Header(protocolVersionHeader, protocolVersion)
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	if h.facilitatorURL != "" {
		c.Header("Link", `<`+h.facilitatorURL+`>; rel="payment"`)
	}
}
