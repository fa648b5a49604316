package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appmarketplace "github.com/bricksync/backend/internal/application/marketplace"
	"github.com/bricksync/backend/internal/domain/marketplace"
)

// ProviderURI binds the account and provider path segments shared by every
// marketplace route.
type ProviderURI struct {
	AccountID string `uri:"account_id" binding:"required,uuid"`
	Provider  string `uri:"provider" binding:"required,oneof=bricklink brickowl"`
}

// AccountURI binds routes scoped to an account only.
type AccountURI struct {
	AccountID string `uri:"account_id" binding:"required,uuid"`
}

// LotRequest is one inventory listing to create on a marketplace.
type LotRequest struct {
	ItemNo    string          `json:"item_no" binding:"required"`
	ItemType  string          `json:"item_type" binding:"required"`
	ColorID   int             `json:"color_id" binding:"min=0"`
	Condition string          `json:"condition" binding:"required,oneof=N U"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	Price     decimal.Decimal `json:"price" binding:"required"`
	Notes     string          `json:"notes"`
	Remarks   string          `json:"remarks"`
}

// ToDomain converts the request lot to its domain form.
func (r LotRequest) ToDomain() marketplace.InventoryLot {
	return marketplace.InventoryLot{
		ItemNo:    r.ItemNo,
		ItemType:  r.ItemType,
		ColorID:   r.ColorID,
		Condition: marketplace.Condition(r.Condition),
		Quantity:  r.Quantity,
		Price:     r.Price,
		Notes:     r.Notes,
		Remarks:   r.Remarks,
	}
}

// PushInventoryRequest creates lots in bulk.
type PushInventoryRequest struct {
	Lots           []LotRequest `json:"lots" binding:"required,min=1,dive"`
	IdempotencyKey string       `json:"idempotency_key"`
}

// ToDomain converts all request lots to their domain form.
func (r PushInventoryRequest) ToDomain() []marketplace.InventoryLot {
	lots := make([]marketplace.InventoryLot, len(r.Lots))
	for i, lot := range r.Lots {
		lots[i] = lot.ToDomain()
	}
	return lots
}

// LotUpdateRequest is one partial update against an existing lot. Omitted
// fields are left unchanged on the platform.
type LotUpdateRequest struct {
	LotID    string           `json:"lot_id" binding:"required"`
	Quantity *int             `json:"quantity"`
	Price    *decimal.Decimal `json:"price"`
	Notes    *string          `json:"notes"`
}

// ToDomain converts the request update to its domain form.
func (r LotUpdateRequest) ToDomain() marketplace.LotUpdate {
	return marketplace.LotUpdate{
		LotID:    r.LotID,
		Quantity: r.Quantity,
		Price:    r.Price,
		Notes:    r.Notes,
	}
}

// UpdatePricesRequest applies partial lot updates in bulk.
type UpdatePricesRequest struct {
	Updates        []LotUpdateRequest `json:"updates" binding:"required,min=1,dive"`
	IdempotencyKey string             `json:"idempotency_key"`
}

// ToDomain converts all request updates to their domain form.
func (r UpdatePricesRequest) ToDomain() []marketplace.LotUpdate {
	updates := make([]marketplace.LotUpdate, len(r.Updates))
	for i, update := range r.Updates {
		updates[i] = update.ToDomain()
	}
	return updates
}

// DeleteLotsRequest removes lots in bulk.
type DeleteLotsRequest struct {
	LotIDs         []string `json:"lot_ids" binding:"required,min=1"`
	IdempotencyKey string   `json:"idempotency_key"`
}

// PullOrdersQuery filters the order pull.
type PullOrdersQuery struct {
	// Since bounds the pull to orders placed on or after this instant.
	// Defaults to 24 hours ago when absent.
	Since time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
}

// OperationErrorResponse is the canonical error attached to a failed item.
type OperationErrorResponse struct {
	Code             string     `json:"code"`
	Message          string     `json:"message"`
	Retryable        bool       `json:"retryable"`
	RateLimitResetAt *time.Time `json:"rate_limit_reset_at,omitempty"`
}

// RollbackResponse is the prior-state snapshot captured alongside a
// successful mutation.
type RollbackResponse struct {
	Quantity *int             `json:"quantity,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Notes    *string          `json:"notes,omitempty"`
	Original json.RawMessage  `json:"original,omitempty"`
}

// OperationResultResponse is the per-item outcome of a bulk operation.
type OperationResultResponse struct {
	Ok            bool                    `json:"ok"`
	CorrelationID string                  `json:"correlation_id"`
	MarketplaceID string                  `json:"marketplace_id,omitempty"`
	Rollback      *RollbackResponse       `json:"rollback,omitempty"`
	Error         *OperationErrorResponse `json:"error,omitempty"`
}

// NewOperationResultResponse converts one domain outcome.
func NewOperationResultResponse(result marketplace.StoreOperationResult) OperationResultResponse {
	resp := OperationResultResponse{
		Ok:            result.Ok,
		CorrelationID: result.CorrelationID,
		MarketplaceID: result.MarketplaceID,
	}
	if result.Rollback != nil {
		resp.Rollback = &RollbackResponse{
			Quantity: result.Rollback.Quantity,
			Price:    result.Rollback.Price,
			Notes:    result.Rollback.Notes,
			Original: result.Rollback.Original,
		}
	}
	if result.Err != nil {
		resp.Error = &OperationErrorResponse{
			Code:             string(result.Err.Code),
			Message:          result.Err.Message,
			Retryable:        result.Err.Retryable,
			RateLimitResetAt: result.Err.RateLimitResetAt,
		}
	}
	return resp
}

// BulkResultResponse aggregates a chunked bulk operation. Items preserves
// input order, so callers can line failures back up with what they sent.
type BulkResultResponse struct {
	Total     int                       `json:"total"`
	Succeeded int                       `json:"succeeded"`
	Failed    int                       `json:"failed"`
	Items     []OperationResultResponse `json:"items"`
}

// NewBulkResultResponse converts a domain bulk result.
func NewBulkResultResponse(result *marketplace.BulkOperationResult) BulkResultResponse {
	items := make([]OperationResultResponse, len(result.Results))
	for i, item := range result.Results {
		items[i] = NewOperationResultResponse(item)
	}
	return BulkResultResponse{
		Total:     result.Total,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Items:     items,
	}
}

// OrderResponse is one marketplace order header.
type OrderResponse struct {
	OrderID      string          `json:"order_id"`
	Provider     string          `json:"provider"`
	Status       string          `json:"status"`
	BuyerName    string          `json:"buyer_name"`
	ItemCount    int             `json:"item_count"`
	LotCount     int             `json:"lot_count"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	CurrencyCode string          `json:"currency_code"`
	OrderedAt    time.Time       `json:"ordered_at"`
}

// NewOrderResponses converts pulled orders.
func NewOrderResponses(orders []marketplace.Order) []OrderResponse {
	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = OrderResponse{
			OrderID:      o.OrderID,
			Provider:     o.Provider,
			Status:       o.Status,
			BuyerName:    o.BuyerName,
			ItemCount:    o.ItemCount,
			LotCount:     o.LotCount,
			GrandTotal:   o.GrandTotal,
			CurrencyCode: o.CurrencyCode,
			OrderedAt:    o.OrderedAt,
		}
	}
	return out
}

// CatalogPartResponse is a read-only catalog record with the selling
// platforms' own ids for the part.
type CatalogPartResponse struct {
	PartNum     string `json:"part_num"`
	Name        string `json:"name"`
	CategoryID  int    `json:"category_id"`
	ImageURL    string `json:"image_url,omitempty"`
	YearFrom    int    `json:"year_from,omitempty"`
	YearTo      int    `json:"year_to,omitempty"`
	BrickLinkID string `json:"bricklink_id,omitempty"`
	BrickOwlID  string `json:"brickowl_id,omitempty"`
}

// NewCatalogPartResponse converts a domain catalog part.
func NewCatalogPartResponse(part *marketplace.CatalogPart) CatalogPartResponse {
	return CatalogPartResponse{
		PartNum:     part.PartNum,
		Name:        part.Name,
		CategoryID:  part.CategoryID,
		ImageURL:    part.ImageURL,
		YearFrom:    part.YearFrom,
		YearTo:      part.YearTo,
		BrickLinkID: part.BrickLinkID,
		BrickOwlID:  part.BrickOwlID,
	}
}

// PriceGuideResponse is one aggregated price series.
type PriceGuideResponse struct {
	MinPrice     decimal.Decimal `json:"min_price"`
	MaxPrice     decimal.Decimal `json:"max_price"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	UnitQuantity int             `json:"unit_quantity"`
	TotalLots    int             `json:"total_lots"`
}

// PriceGuideSetResponse joins the four price series for one item/color.
type PriceGuideSetResponse struct {
	NewStock  *PriceGuideResponse `json:"new_stock,omitempty"`
	NewSold   *PriceGuideResponse `json:"new_sold,omitempty"`
	UsedStock *PriceGuideResponse `json:"used_stock,omitempty"`
	UsedSold  *PriceGuideResponse `json:"used_sold,omitempty"`
}

// NewPriceGuideSetResponse converts the joined price guide.
func NewPriceGuideSetResponse(set *appmarketplace.PriceGuideSet) PriceGuideSetResponse {
	convert := func(g *marketplace.PriceGuide) *PriceGuideResponse {
		if g == nil {
			return nil
		}
		return &PriceGuideResponse{
			MinPrice:     g.MinPrice,
			MaxPrice:     g.MaxPrice,
			AvgPrice:     g.AvgPrice,
			UnitQuantity: g.UnitQuantity,
			TotalLots:    g.TotalLots,
		}
	}
	return PriceGuideSetResponse{
		NewStock:  convert(set.NewStock),
		NewSold:   convert(set.NewSold),
		UsedStock: convert(set.UsedStock),
		UsedSold:  convert(set.UsedSold),
	}
}

// JournalEntryResponse is one recorded bulk operation run.
type JournalEntryResponse struct {
	CorrelationID string                    `json:"correlation_id"`
	AccountID     uuid.UUID                 `json:"account_id"`
	Provider      string                    `json:"provider"`
	Operation     string                    `json:"operation"`
	Total         int                       `json:"total"`
	Succeeded     int                       `json:"succeeded"`
	Failed        int                       `json:"failed"`
	Items         []OperationResultResponse `json:"items,omitempty"`
}

// NewJournalEntryResponse converts a journal entry. Item outcomes are
// included only when withItems is set; list endpoints return summaries.
func NewJournalEntryResponse(entry appmarketplace.JournalEntry, withItems bool) JournalEntryResponse {
	resp := JournalEntryResponse{
		CorrelationID: entry.CorrelationID,
		AccountID:     entry.AccountID,
		Provider:      entry.Provider,
		Operation:     entry.Operation,
		Total:         entry.Total,
		Succeeded:     entry.Succeeded,
		Failed:        entry.Failed,
	}
	if withItems {
		items := make([]OperationResultResponse, len(entry.Items))
		for i, item := range entry.Items {
			items[i] = NewOperationResultResponse(item)
		}
		resp.Items = items
	}
	return resp
}
