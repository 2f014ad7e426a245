package app

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sola-scriptura-retrieval/internal/config"
	"github.com/sola-scriptura-retrieval/internal/handlers"
	"github.com/sola-scriptura-retrieval/internal/metrics"
	"github.com/sola-scriptura-retrieval/internal/middleware"
	"github.com/sola-scriptura-retrieval/internal/services"
	"go.uber.org/zap"
)

// NewServer builds the echo instance with every route registered
func NewServer(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics, svc *services.RetrievalService) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomiddleware.Recover())
	e.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	e.Use(middleware.RateLimit(cfg.RateLimit))

	// Create API group with prefix
	api := e.Group(cfg.APIPrefix)

	// Register handlers
	healthHandler := handlers.NewHealthHandler(svc)
	healthHandler.RegisterRoutes(api)

	searchHandler := handlers.NewSearchHandler(svc, logger)
	searchHandler.RegisterRoutes(api)

	// Unprefixed chat route kept for existing clients
	e.POST("/chat", searchHandler.SemanticSearch)

	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	// Root health check
	e.GET("/", func(c echo.Context) error {
		status := "running"
		if !svc.Ready() {
			status = "degraded"
		}
		return c.JSON(http.StatusOK, map[string]string{
			"name":    cfg.APITitle,
			"version": cfg.APIVersion,
			"status":  status,
		})
	})

	return e
}
