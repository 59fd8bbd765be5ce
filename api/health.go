package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/medscribe/component"
)

const healthTimeout = 5 * time.Second

type healthResponse struct {
	Status               component.HealthStatus `json:"status"`
	Components           []component.Health     `json:"components"`
	ActiveTranscriptions int                    `json:"activeTranscriptions"`
	Timestamp            time.Time              `json:"timestamp"`
}

// health reports 503 only when a component is unhealthy; degraded still
// serves traffic.
func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	results := []component.Health{}
	if h.Health != nil {
		results = h.Health.HealthAll(ctx)
	}
	resp := healthResponse{
		Status:               component.Overall(results),
		Components:           results,
		ActiveTranscriptions: h.ActiveTranscriptions(),
		Timestamp:            h.Clock().UTC(),
	}

	status := http.StatusOK
	if resp.Status == component.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
