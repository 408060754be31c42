package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether the record store is reachable.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	startedAt time.Time
	ping      Pinger
}

func NewHealthHandler(ping Pinger) *HealthHandler {
	return &HealthHandler{startedAt: time.Now().UTC(), ping: ping}
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Store     string    `json:"store"`
	StartedAt time.Time `json:"startedAt"`
}

// @Summary  Service health check
// @Tags     Health
// @Produce  json
// @Success  200  {object}  HealthResponse
// @Failure  503  {object}  HealthResponse
// @Router   /healthz [get]
func (h *HealthHandler) Status(c *gin.Context) {
	res := HealthResponse{Status: "ok", Store: "ok", StartedAt: h.startedAt}
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			res.Status, res.Store = "degraded", "unreachable"
			c.JSON(http.StatusServiceUnavailable, res)
			return
		}
	}
	c.JSON(http.StatusOK, res)
}
