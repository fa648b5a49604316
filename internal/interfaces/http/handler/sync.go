package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appmarketplace "github.com/bricksync/backend/internal/application/marketplace"
	"github.com/bricksync/backend/internal/domain/marketplace"
	"github.com/bricksync/backend/internal/interfaces/http/dto"
)

// defaultOrderLookback bounds an order pull when the caller gives no since.
const defaultOrderLookback = 24 * time.Hour

// SyncAPI is the slice of the sync service the handler consumes.
type SyncAPI interface {
	PushInventory(ctx context.Context, accountID uuid.UUID, provider string, lots []marketplace.InventoryLot, opts appmarketplace.SyncOptions) (*marketplace.BulkOperationResult, error)
	UpdatePrices(ctx context.Context, accountID uuid.UUID, provider string, updates []marketplace.LotUpdate, opts appmarketplace.SyncOptions) (*marketplace.BulkOperationResult, error)
	DeleteLots(ctx context.Context, accountID uuid.UUID, provider string, lotIDs []string, opts appmarketplace.SyncOptions) (*marketplace.BulkOperationResult, error)
	PullOrders(ctx context.Context, accountID uuid.UUID, provider string, since time.Time) ([]marketplace.Order, error)
	LookupPart(ctx context.Context, accountID uuid.UUID, partNum string) (*marketplace.CatalogPart, error)
	PriceGuide(ctx context.Context, accountID uuid.UUID, itemType, itemNo string, colorID int) (*appmarketplace.PriceGuideSet, error)
}

// SyncHandler exposes the marketplace sync operations over HTTP.
type SyncHandler struct {
	BaseHandler
	service SyncAPI
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(service SyncAPI) *SyncHandler {
	return &SyncHandler{service: service}
}

// RegisterRoutes registers sync routes
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	accounts := rg.Group("/accounts/:account_id")
	{
		stores := accounts.Group("/stores/:provider")
		{
			stores.POST("/inventory", h.PushInventory)
			stores.PATCH("/inventory/prices", h.UpdatePrices)
			stores.DELETE("/inventory", h.DeleteLots)
			stores.GET("/orders", h.PullOrders)
		}

		catalog := accounts.Group("/catalog")
		{
			catalog.GET("/parts/:part_num", h.LookupPart)
			catalog.GET("/price-guide/:item_type/:item_no", h.PriceGuide)
		}
	}
}

func (h *SyncHandler) bindProviderURI(c *gin.Context) (uuid.UUID, string, bool) {
	var uri dto.ProviderURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BadRequest(c, "invalid account or provider: "+err.Error())
		return uuid.Nil, "", false
	}
	accountID, err := uuid.Parse(uri.AccountID)
	if err != nil {
		h.BadRequest(c, "invalid account id")
		return uuid.Nil, "", false
	}
	return accountID, uri.Provider, true
}

// PushInventory creates lots on the marketplace in bulk
func (h *SyncHandler) PushInventory(c *gin.Context) {
	accountID, provider, ok := h.bindProviderURI(c)
	if !ok {
		return
	}

	var req dto.PushInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.service.PushInventory(c.Request.Context(), accountID, provider, req.ToDomain(),
		appmarketplace.SyncOptions{IdempotencyKey: req.IdempotencyKey})
	if err != nil {
		h.HandleOperationError(c, err)
		return
	}

	h.Created(c, dto.NewBulkResultResponse(result))
}

// UpdatePrices applies partial lot updates in bulk
func (h *SyncHandler) UpdatePrices(c *gin.Context) {
	accountID, provider, ok := h.bindProviderURI(c)
	if !ok {
		return
	}

	var req dto.UpdatePricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.service.UpdatePrices(c.Request.Context(), accountID, provider, req.ToDomain(),
		appmarketplace.SyncOptions{IdempotencyKey: req.IdempotencyKey})
	if err != nil {
		h.HandleOperationError(c, err)
		return
	}

	h.Success(c, dto.NewBulkResultResponse(result))
}

// DeleteLots removes lots in bulk
func (h *SyncHandler) DeleteLots(c *gin.Context) {
	accountID, provider, ok := h.bindProviderURI(c)
	if !ok {
		return
	}

	var req dto.DeleteLotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.service.DeleteLots(c.Request.Context(), accountID, provider, req.LotIDs,
		appmarketplace.SyncOptions{IdempotencyKey: req.IdempotencyKey})
	if err != nil {
		h.HandleOperationError(c, err)
		return
	}

	h.Success(c, dto.NewBulkResultResponse(result))
}

// PullOrders lists orders placed on or after the since query parameter
func (h *SyncHandler) PullOrders(c *gin.Context) {
	accountID, provider, ok := h.bindProviderURI(c)
	if !ok {
		return
	}

	var query dto.PullOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, "invalid since parameter: "+err.Error())
		return
	}
	since := query.Since
	if since.IsZero() {
		since = time.Now().Add(-defaultOrderLookback)
	}

	orders, err := h.service.PullOrders(c.Request.Context(), accountID, provider, since)
	if err != nil {
		h.HandleOperationError(c, err)
		return
	}

	h.Success(c, dto.NewOrderResponses(orders))
}

// LookupPart resolves catalog metadata for a part number
func (h *SyncHandler) LookupPart(c *gin.Context) {
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

	partNum := c.Param("part_num")
	part, err := h.service.LookupPart(c.Request.Context(), accountID, partNum)
	if err != nil {
		h.HandleOperationError(c, err)
		return
	}

	h.Success(c, dto.NewCatalogPartResponse(part))
}

// PriceGuide fetches the four price-guide series for one item/color
func (h *SyncHandler) PriceGuide(c *gin.Context) {
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

	colorID, err := strconv.Atoi(c.DefaultQuery("color_id", "0"))
	if err != nil || colorID < 0 {
		h.BadRequest(c, "invalid color_id")
		return
	}

	set, err := h.service.PriceGuide(c.Request.Context(), accountID,
		c.Param("item_type"), c.Param("item_no"), colorID)
	if err != nil {
		h.HandleOperationError(c, err)
		return
	}

	h.Success(c, dto.NewPriceGuideSetResponse(set))
}
