package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appmarketplace "github.com/bricksync/backend/internal/application/marketplace"
	"github.com/bricksync/backend/internal/infrastructure/persistence"
	"github.com/bricksync/backend/internal/interfaces/http/dto"
)

// JournalReader is the slice of the journal repository the handler consumes.
type JournalReader interface {
	FindByCorrelationID(ctx context.Context, correlationID string) (*appmarketplace.JournalEntry, error)
	FindByAccount(ctx context.Context, accountID uuid.UUID, filter persistence.JournalFilter, page, pageSize int) (*persistence.JournalListResult, error)
}

// JournalHandler exposes recorded bulk operation outcomes over HTTP.
type JournalHandler struct {
	BaseHandler
	journal JournalReader
}

// NewJournalHandler creates a new JournalHandler
func NewJournalHandler(journal JournalReader) *JournalHandler {
	return &JournalHandler{journal: journal}
}

// RegisterRoutes registers journal routes
func (h *JournalHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/accounts/:account_id/journal", h.ListByAccount)
	rg.GET("/journal/:correlation_id", h.GetByCorrelationID)
}

// GetByCorrelationID returns the full journal entry for one operation run,
// including per-item outcomes and rollback snapshots.
func (h *JournalHandler) GetByCorrelationID(c *gin.Context) {
	correlationID := c.Param("correlation_id")

	entry, err := h.journal.FindByCorrelationID(c.Request.Context(), correlationID)
	if err != nil {
		if errors.Is(err, persistence.ErrJournalEntryNotFound) {
			h.NotFound(c, "journal entry not found")
			return
		}
		h.InternalError(c, "failed to load journal entry")
		return
	}

	h.Success(c, dto.NewJournalEntryResponse(*entry, true))
}

// ListByAccount returns journal entry summaries for an account, most recent
// first by default, optionally filtered by provider and operation and ordered
// by any allowlisted column via order_by/order_dir.
func (h *JournalHandler) ListByAccount(c *gin.Context) {
	var uri dto.AccountURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BadRequest(c, "invalid account id")
		return
	}
	accountID, err := uuid.Parse(uri.AccountID)
	if err != nil {
		h.BadRequest(c, "invalid account id")
		return
	}

	listReq := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.BadRequest(c, "invalid pagination parameters: "+err.Error())
		return
	}

	filter := persistence.JournalFilter{
		Provider:  c.Query("provider"),
		Operation: c.Query("operation"),
		SortField: listReq.OrderBy,
		SortOrder: listReq.OrderDir,
	}

	result, err := h.journal.FindByAccount(c.Request.Context(), accountID, filter, listReq.Page, listReq.PageSize)
	if err != nil {
		h.InternalError(c, "failed to list journal entries")
		return
	}

	entries := make([]dto.JournalEntryResponse, len(result.Items))
	for i, entry := range result.Items {
		entries[i] = dto.NewJournalEntryResponse(entry, false)
	}

	h.SuccessWithMeta(c, entries, result.TotalCount, result.Page, result.PageSize)
}
