package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger checks one backing component.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls the wrapped function.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler reports the reachability of every backing component.
type HealthHandler struct {
	components map[string]Pinger
}

// NewHealthHandler creates a HealthHandler over the named components.
func NewHealthHandler(components map[string]Pinger) *HealthHandler {
	return &HealthHandler{components: components}
}

// Health pings each component with a short deadline. Any failing component
// turns the overall status to degraded with a 503.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	statuses := make(map[string]string, len(h.components))
	healthy := true
	for name, pinger := range h.components {
		if err := pinger.Ping(ctx); err != nil {
			statuses[name] = "down: " + err.Error()
			healthy = false
			continue
		}
		statuses[name] = "up"
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "components": statuses})
}
