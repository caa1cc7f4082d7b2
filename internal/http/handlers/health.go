package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noni/smptweaks/internal/http/response"
)

// Readiness is the part of the progression manager the health checks need.
type Readiness interface {
	Ready(ctx context.Context) bool
	DegradedReason() error
}

type HealthHandler struct {
	ready Readiness
}

func NewHealthHandler(ready Readiness) *HealthHandler { return &HealthHandler{ready: ready} }

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Ready answers 200 only while the progression store is usable.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.ready == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "not_configured", nil)
		return
	}
	if reason := h.ready.DegradedReason(); reason != nil {
		response.RespondError(c, http.StatusServiceUnavailable, "degraded", reason)
		return
	}
	if !h.ready.Ready(c.Request.Context()) {
		response.RespondError(c, http.StatusServiceUnavailable, "store_unreachable", nil)
		return
	}
	c.String(http.StatusOK, "ready")
}
