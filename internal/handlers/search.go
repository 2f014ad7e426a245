package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sola-scriptura-retrieval/internal/models"
	"github.com/sola-scriptura-retrieval/internal/services"
	"go.uber.org/zap"
)

// Retriever is the part of services.RetrievalService the handlers need
type Retriever interface {
	Answer(ctx context.Context, question string, k int) ([]models.QueryResult, error)
	DefaultK() int
}

// SearchHandler handles search endpoints
type SearchHandler struct {
	retrieval Retriever
	logger    *zap.Logger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(retrieval Retriever, logger *zap.Logger) *SearchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchHandler{
		retrieval: retrieval,
		logger:    logger,
	}
}

// SemanticSearch handles POST /search and POST /chat
func (h *SearchHandler) SemanticSearch(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.SearchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
	}

	k := h.retrieval.DefaultK()
	if req.K != nil {
		k = *req.K
	}

	results, err := h.retrieval.Answer(ctx, req.Question, k)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Search failed", zap.Error(err))
		}
		return c.JSON(status, models.ErrorResponse{Error: messageFor(err)})
	}

	resp := models.SearchResponse{Results: results}
	if len(results) == 1 && results[0].Degraded {
		resp.Degraded = true
	}
	return c.JSON(http.StatusOK, resp)
}

// RegisterRoutes registers search routes
func (h *SearchHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/search", h.SemanticSearch)
}

// statusFor maps retrieval errors to HTTP status codes: client input errors
// are 4xx, everything else is an internal fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		// client went away; the status is never seen
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	var embErr *services.EmbeddingError
	switch {
	case errors.Is(err, services.ErrEmptyQuery):
		return "No question provided"
	case errors.As(err, &embErr):
		return "Search failed: embedding service unavailable"
	default:
		return "Search failed: " + err.Error()
	}
}
