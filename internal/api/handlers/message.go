package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/thrillee/smppsim/internal/api/dto"
	"github.com/thrillee/smppsim/internal/logging"
	"github.com/thrillee/smppsim/internal/message"
	"github.com/thrillee/smppsim/internal/store"
	"github.com/thrillee/smppsim/pkg/codes"
	"github.com/thrillee/smppsim/pkg/errormapper"
)

// MessageHandler serves published message records.
type MessageHandler struct {
	store store.Store
}

// NewMessageHandler creates a handler over st.
func NewMessageHandler(st store.Store) *MessageHandler {
	return &MessageHandler{store: st}
}

// GetMessage handles GET /messages/:id.
func (h *MessageHandler) GetMessage(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	logCtx := logging.ContextWithMessageID(c.Request.Context(), id)
	if id == "" {
		abortWithError(c, errormapper.ErrorCodeInvalidInput, "message id is required")
		return
	}
	rec, ok := h.store.GetByID(logCtx, id)
	if !ok {
		slog.DebugContext(logCtx, "Message not found")
		abortWithError(c, errormapper.ErrorCodeNotFound, "message not found")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListMessages handles GET /messages with from, to and direction filters.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	logCtx := c.Request.Context()
	limit, offset := parsePagination(c)

	direction := c.Query("direction")
	if direction != "" && !knownDirection(direction) {
		abortWithError(c, errormapper.ErrorCodeInvalidInput, "unknown direction "+direction)
		return
	}

	records, ok := h.list(c, message.Filter{
		From:      c.Query("from"),
		To:        c.Query("to"),
		Direction: direction,
	})
	if !ok {
		return
	}

	slog.DebugContext(logCtx, "Listed messages", slog.Int("total", len(records)))
	c.JSON(http.StatusOK, dto.PaginatedListResponse{
		Data:       paginate(records, limit, offset),
		Pagination: dto.PaginationResponse{Total: len(records), Limit: limit, Offset: offset},
	})
}

// ListConversations handles GET /conversations, grouping part records by
// reference and addresses.
func (h *MessageHandler) ListConversations(c *gin.Context) {
	limit, offset := parsePagination(c)
	records, ok := h.list(c, message.Filter{From: c.Query("from"), To: c.Query("to")})
	if !ok {
		return
	}
	convs := message.GroupParts(records)
	c.JSON(http.StatusOK, dto.PaginatedListResponse{
		Data:       paginate(convs, limit, offset),
		Pagination: dto.PaginationResponse{Total: len(convs), Limit: limit, Offset: offset},
	})
}

// list fetches every record matching f. Pagination is applied by the caller
// so the total can be reported.
func (h *MessageHandler) list(c *gin.Context, f message.Filter) ([]message.Record, bool) {
	logCtx := c.Request.Context()
	lister, ok := h.store.(store.Lister)
	if !ok {
		abortWithError(c, errormapper.ErrorCodeConfigError, "store backend does not support listing")
		return nil, false
	}
	records, err := lister.List(logCtx, f)
	if err != nil {
		slog.ErrorContext(logCtx, "Failed to list messages", slog.Any("error", err))
		abortWithError(c, errormapper.ErrorCodeStoreError, "failed to retrieve messages")
		return nil, false
	}
	return records, true
}

func knownDirection(d string) bool {
	switch strings.ToUpper(d) {
	case codes.DirectionIn, codes.DirectionOut, codes.DirectionInPart,
		codes.DirectionInAssembled, codes.DirectionInIncomplete, codes.DirectionReceipt:
		return true
	}
	return false
}
