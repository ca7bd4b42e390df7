package handlers

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thrillee/smppsim/internal/api/dto"
	"github.com/thrillee/smppsim/pkg/errormapper"
)

const (
	DefaultLimit  = 20
	MaxLimit      = 100
	DefaultOffset = 0
)

// parsePagination extracts limit and offset from query params with defaults.
func parsePagination(c *gin.Context) (limit, offset int) {
	limitStr := c.DefaultQuery("limit", strconv.Itoa(DefaultLimit))
	offsetStr := c.DefaultQuery("offset", strconv.Itoa(DefaultOffset))

	l, err := strconv.Atoi(limitStr)
	switch {
	case err != nil || l <= 0:
		limit = DefaultLimit
	case l > MaxLimit:
		slog.WarnContext(c.Request.Context(), "Requested limit exceeds maximum, capping",
			slog.Int("requested", l), slog.Int("max", MaxLimit))
		limit = MaxLimit
	default:
		limit = l
	}

	o, err := strconv.Atoi(offsetStr)
	if err != nil || o < 0 {
		offset = DefaultOffset
	} else {
		offset = o
	}
	return limit, offset
}

// abortWithError writes the JSON error body with the status mapped from code.
func abortWithError(c *gin.Context, code, msg string) {
	c.AbortWithStatusJSON(errormapper.HTTPStatus(code), dto.ErrorResponse{Error: msg, Code: code})
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
