package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meterpay/backend/internal/infrastructure/logger"
	"github.com/meterpay/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// HealthHandler answers liveness probes
type HealthHandler struct {
	checks map[string]HealthCheck
}

// NewHealthHandler creates a handler running checks on every probe
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	resp := dto.HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			logger.L(ctx).Warn("Health check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = "down"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "up"
	}

	if status == http.StatusOK {
		c.JSON(status, dto.NewSuccessResponse(resp))
		return
	}
	c.JSON(status, dto.Response{
		Success: false,
		Data:    resp,
		Error:   &dto.ErrorInfo{Code: dto.ErrCodeUnavailable, Message: "a dependency is unavailable"},
	})
}
