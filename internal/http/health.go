package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"accounts-service/internal/apperr"
)

// PingFunc comprueba una dependencia externa.
type PingFunc func(ctx context.Context) error

// HealthHandler expone GET /healthz.
type HealthHandler struct {
	logger  *zap.Logger
	checks  map[string]PingFunc
	timeout time.Duration
}

func NewHealthHandler(logger *zap.Logger, checks map[string]PingFunc) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{logger: logger, checks: checks, timeout: 2 * time.Second}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	var failed error
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			status[name] = "down"
			failed = err
			continue
		}
		status[name] = "up"
	}
	if failed != nil {
		h.logger.Warn("health check failed", zap.Any("checks", status), zap.Error(failed))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorEnvelope{
			Message: apperr.Unavailable(failed).Message,
			Errors:  status,
		})
		return
	}
	respondOK(c, http.StatusOK, "ok", status)
}
