package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sola-scriptura-retrieval/internal/models"
	"github.com/sola-scriptura-retrieval/internal/services"
)

// StatsProvider reports the state of the served corpus
type StatsProvider interface {
	Stats() services.Stats
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	stats StatsProvider
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(stats StatsProvider) *HealthHandler {
	return &HealthHandler{stats: stats}
}

// HealthResponse is the response for basic health check
type HealthResponse struct {
	Status string `json:"status"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "healthy",
	})
}

// Ready handles GET /health/ready. It answers 503 while the service runs
// without a searchable corpus.
func (h *HealthHandler) Ready(c echo.Context) error {
	st := h.stats.Stats()
	resp := models.ReadinessResponse{
		Status:     "ready",
		Records:    st.Records,
		Dimensions: st.Dimensions,
		Source:     st.Source,
	}
	if !st.LoadedAt.IsZero() {
		resp.LoadedAt = st.LoadedAt.UTC().Format(time.RFC3339)
	}
	if !st.Ready {
		resp.Status = "degraded"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/health", h.Health)
	g.GET("/health/ready", h.Ready)
}
