package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thrillee/smppsim/internal/api/dto"
	"github.com/thrillee/smppsim/internal/simulator"
	"github.com/thrillee/smppsim/pkg/codes"
	"github.com/thrillee/smppsim/pkg/errormapper"
)

// StatusSource reports the state of every configured connection.
type StatusSource interface {
	Statuses() []simulator.Status
}

// ConnectionHandler serves session and monitor state.
type ConnectionHandler struct {
	source StatusSource
}

// NewConnectionHandler creates a handler over src.
func NewConnectionHandler(src StatusSource) *ConnectionHandler {
	return &ConnectionHandler{source: src}
}

// ListConnections handles GET /connections.
func (h *ConnectionHandler) ListConnections(c *gin.Context) {
	st := h.source.Statuses()
	c.JSON(http.StatusOK, dto.PaginatedListResponse{
		Data:       st,
		Pagination: dto.PaginationResponse{Total: len(st), Limit: len(st), Offset: 0},
	})
}

// GetConnection handles GET /connections/:id.
func (h *ConnectionHandler) GetConnection(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		abortWithError(c, errormapper.ErrorCodeInvalidInput, "connection id must be an integer")
		return
	}
	for _, s := range h.source.Statuses() {
		if s.ID == id {
			c.JSON(http.StatusOK, s)
			return
		}
	}
	abortWithError(c, errormapper.ErrorCodeNotFound, "connection not found")
}

// Health handles GET /health.
func (h *ConnectionHandler) Health(c *gin.Context) {
	st := h.source.Statuses()
	resp := dto.HealthResponse{Status: "healthy", Connections: len(st)}
	for _, s := range st {
		if s.State == codes.StatusBound {
			resp.Bound++
		}
	}
	c.JSON(http.StatusOK, resp)
}
