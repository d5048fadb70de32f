package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dotrep/payment-gateway/internal/handlers"
	"github.com/dotrep/payment-gateway/internal/models"
	"github.com/dotrep/payment-gateway/internal/telemetry"
)

// ProtectedResource binds a route to its payment policy and final handler.
type ProtectedResource struct {
	Method  string
	Path    string
	Policy  models.PaymentPolicy
	Handler gin.HandlerFunc
}

func NewRouter(gateway *handlers.GatewayHandler, billingHandler *handlers.BillingHandler, resources []ProtectedResource) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-gateway"})
	})

	// Payment-gated resources
	for _, res := range resources {
		r.Handle(res.Method, res.Path, gateway.Protect(res.Policy), res.Handler)
	}

	// Deferred billing
	if billingHandler != nil {
		r.POST("/billing/sessions", billingHandler.CreateSession)
		r.GET("/billing/sessions/:id", billingHandler.GetSession)
		r.POST("/billing/sessions/:id/calls", billingHandler.RecordCall)
		r.POST("/billing/sessions/:id/bill", billingHandler.BillSession)
	}

	return r
}
