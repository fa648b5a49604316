package marketapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

const (
	// BrickLinkProductionAPIURL is the production store API endpoint.
	BrickLinkProductionAPIURL = "https://api.bricklink.com/api/store/v1"

	// BrickLinkBulkChunkSize is the maximum lots per native bulk create.
	BrickLinkBulkChunkSize = 100
	// BrickLinkSequentialChunkSize is the chunk size for sequential
	// update/delete operations.
	BrickLinkSequentialChunkSize = 50
)

// BrickLinkAdapter talks to the BrickLink store API through the request
// executor. All requests are OAuth1.0a-signed; business failures arrive as
// HTTP 200 with an error meta envelope.
type BrickLinkAdapter struct {
	executor *RequestExecutor
	baseURL  string
}

// NewBrickLinkAdapter creates an adapter. An empty baseURL selects the
// production endpoint.
func NewBrickLinkAdapter(executor *RequestExecutor, baseURL string) *BrickLinkAdapter {
	if baseURL == "" {
		baseURL = BrickLinkProductionAPIURL
	}
	return &BrickLinkAdapter{executor: executor, baseURL: baseURL}
}

func (a *BrickLinkAdapter) bucket(accountID uuid.UUID) marketplace.Bucket {
	return marketplace.Bucket{AccountID: accountID, Provider: marketplace.ProviderBrickLink}
}

// checkEnvelope flags 2xx bodies whose meta carries an error code. Those are
// treated identically to the equivalent HTTP status.
func checkBrickLinkEnvelope(body []byte) *RawFailure {
	var env brickLinkEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &RawFailure{
			ProviderCode: providerCodeInvalidResponse,
			Message:      fmt.Sprintf("unparseable envelope: %v", err),
		}
	}
	if env.Meta.ok() {
		return nil
	}
	return &RawFailure{
		Status:  env.Meta.Code,
		Message: fmt.Sprintf("%s: %s", env.Meta.Message, env.Meta.Description),
	}
}

// decodeEnvelope unmarshals the data portion of a successful envelope.
func decodeBrickLinkData(body []byte, out any) *marketplace.StoreOperationError {
	var env brickLinkEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return marketplace.NewStoreOperationError(marketplace.ErrorCodeInvalidResponse,
			fmt.Sprintf("decode envelope: %v", err))
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return marketplace.NewStoreOperationError(marketplace.ErrorCodeInvalidResponse,
			fmt.Sprintf("decode payload: %v", err))
	}
	return nil
}

// CreateInventories pushes up to BrickLinkBulkChunkSize lots in one native
// bulk call and demuxes the per-item outcomes from the single response.
// The returned slice aligns with lots.
func (a *BrickLinkAdapter) CreateInventories(ctx context.Context, accountID uuid.UUID, lots []marketplace.InventoryLot, idempotencyKey string) []marketplace.StoreOperationResult {
	payload := make([]brickLinkInventory, len(lots))
	for i, lot := range lots {
		payload[i] = toBrickLinkInventory(lot)
	}

	resp, err := a.executor.Execute(ctx, &RequestSpec{
		Operation:      "bricklink.inventory.bulk_create",
		Method:         http.MethodPost,
		BaseURL:        a.baseURL,
		Path:           "/inventories",
		JSONBody:       payload,
		Auth:           AuthOAuth1,
		Bucket:         a.bucket(accountID),
		IdempotencyKey: idempotencyKey,
		CheckEnvelope:  checkBrickLinkEnvelope,
	})
	if err != nil {
		// The whole chunk failed at the transport level: every item shares
		// the same normalized error.
		return fanOutFailure(len(lots), err)
	}

	var entries []brickLinkBulkEntry
	if decErr := decodeBrickLinkData(resp.Body, &entries); decErr != nil {
		return fanOutFailure(len(lots), decErr)
	}

	results := make([]marketplace.StoreOperationResult, len(lots))
	for i := range lots {
		correlationID := resp.CorrelationID
		if i >= len(entries) {
			results[i] = marketplace.FailureResult(correlationID,
				marketplace.NewStoreOperationError(marketplace.ErrorCodeInvalidResponse, "bulk response missing item outcome"))
			continue
		}
		entry := entries[i]
		if entry.Meta != nil && !entry.Meta.ok() {
			results[i] = marketplace.FailureResult(correlationID, Normalize(RawFailure{
				Status:  entry.Meta.Code,
				Message: entry.Meta.Message,
			}, time.Now()))
			continue
		}
		original, _ := json.Marshal(payload[i])
		results[i] = marketplace.SuccessResult(correlationID,
			strconv.FormatInt(entry.InventoryID, 10),
			&marketplace.RollbackData{Original: original})
	}
	return results
}

// GetInventory fetches one lot, used both directly and to capture rollback
// snapshots before updates.
func (a *BrickLinkAdapter) GetInventory(ctx context.Context, accountID uuid.UUID, lotID string) (*marketplace.InventoryLot, error) {
	resp, err := a.executor.Execute(ctx, &RequestSpec{
		Operation:     "bricklink.inventory.get",
		Method:        http.MethodGet,
		BaseURL:       a.baseURL,
		Path:          "/inventories/" + url.PathEscape(lotID),
		Auth:          AuthOAuth1,
		Bucket:        a.bucket(accountID),
		CheckEnvelope: checkBrickLinkEnvelope,
	})
	if err != nil {
		return nil, err
	}
	var inv brickLinkInventory
	if decErr := decodeBrickLinkData(resp.Body, &inv); decErr != nil {
		return nil, decErr
	}
	lot := inv.toLot()
	return &lot, nil
}

// UpdateInventory applies a partial update. PUT is idempotent, so retries
// are permitted without an explicit marker.
func (a *BrickLinkAdapter) UpdateInventory(ctx context.Context, accountID uuid.UUID, update marketplace.LotUpdate) error {
	body := map[string]any{}
	if update.Quantity != nil {
		body["quantity"] = *update.Quantity
	}
	if update.Price != nil {
		body["unit_price"] = update.Price.StringFixed(3)
	}
	if update.Notes != nil {
		body["description"] = *update.Notes
	}

	_, err := a.executor.Execute(ctx, &RequestSpec{
		Operation:     "bricklink.inventory.update",
		Method:        http.MethodPut,
		BaseURL:       a.baseURL,
		Path:          "/inventories/" + url.PathEscape(update.LotID),
		JSONBody:      body,
		Auth:          AuthOAuth1,
		Bucket:        a.bucket(accountID),
		Idempotent:    true,
		CheckEnvelope: checkBrickLinkEnvelope,
	})
	return err
}

// DeleteInventory removes a lot. DELETE is idempotent.
func (a *BrickLinkAdapter) DeleteInventory(ctx context.Context, accountID uuid.UUID, lotID string) error {
	_, err := a.executor.Execute(ctx, &RequestSpec{
		Operation:     "bricklink.inventory.delete",
		Method:        http.MethodDelete,
		BaseURL:       a.baseURL,
		Path:          "/inventories/" + url.PathEscape(lotID),
		Auth:          AuthOAuth1,
		Bucket:        a.bucket(accountID),
		Idempotent:    true,
		CheckEnvelope: checkBrickLinkEnvelope,
	})
	return err
}

// PullOrders lists incoming orders filed on or after since.
func (a *BrickLinkAdapter) PullOrders(ctx context.Context, accountID uuid.UUID, since time.Time) ([]marketplace.Order, error) {
	query := url.Values{}
	query.Set("direction", "in")
	query.Set("filed", "false")

	resp, err := a.executor.Execute(ctx, &RequestSpec{
		Operation:     "bricklink.order.list",
		Method:        http.MethodGet,
		BaseURL:       a.baseURL,
		Path:          "/orders",
		Query:         query,
		Auth:          AuthOAuth1,
		Bucket:        a.bucket(accountID),
		CheckEnvelope: checkBrickLinkEnvelope,
	})
	if err != nil {
		return nil, err
	}

	var wire []brickLinkOrder
	if decErr := decodeBrickLinkData(resp.Body, &wire); decErr != nil {
		return nil, decErr
	}

	orders := make([]marketplace.Order, 0, len(wire))
	for _, o := range wire {
		orderedAt, _ := time.Parse(time.RFC3339, o.DateOrdered)
		if !since.IsZero() && orderedAt.Before(since) {
			continue
		}
		orders = append(orders, marketplace.Order{
			OrderID:      strconv.FormatInt(o.OrderID, 10),
			Provider:     marketplace.ProviderBrickLink,
			Status:       o.Status,
			BuyerName:    o.BuyerName,
			ItemCount:    o.TotalCount,
			LotCount:     o.UniqueCount,
			GrandTotal:   parseDecimal(o.Cost.GrandTotal),
			CurrencyCode: o.Cost.CurrencyCode,
			OrderedAt:    orderedAt,
		})
	}
	return orders, nil
}

// PriceGuide fetches one price-guide variant for an item/color.
func (a *BrickLinkAdapter) PriceGuide(ctx context.Context, accountID uuid.UUID, itemType, itemNo string, colorID int, variant marketplace.PriceGuideVariant) (*marketplace.PriceGuide, error) {
	guideType := "stock"
	if variant.Sold {
		guideType = "sold"
	}
	query := url.Values{}
	query.Set("color_id", strconv.Itoa(colorID))
	query.Set("guide_type", guideType)
	query.Set("new_or_used", string(variant.Condition))

	resp, err := a.executor.Execute(ctx, &RequestSpec{
		Operation:     "bricklink.price_guide.get",
		Method:        http.MethodGet,
		BaseURL:       a.baseURL,
		Path:          fmt.Sprintf("/items/%s/%s/price", url.PathEscape(itemType), url.PathEscape(itemNo)),
		Query:         query,
		Auth:          AuthOAuth1,
		Bucket:        a.bucket(accountID),
		CheckEnvelope: checkBrickLinkEnvelope,
	})
	if err != nil {
		return nil, err
	}

	var wire brickLinkPriceGuide
	if decErr := decodeBrickLinkData(resp.Body, &wire); decErr != nil {
		return nil, decErr
	}
	return &marketplace.PriceGuide{
		Variant:      variant,
		MinPrice:     parseDecimal(wire.MinPrice),
		MaxPrice:     parseDecimal(wire.MaxPrice),
		AvgPrice:     parseDecimal(wire.AvgPrice),
		UnitQuantity: wire.UnitQuantity,
		TotalLots:    wire.TotalQuantity,
	}, nil
}

// fanOutFailure replicates a whole-chunk failure onto every item.
func fanOutFailure(n int, err error) []marketplace.StoreOperationResult {
	opErr := asStoreError(err)
	results := make([]marketplace.StoreOperationResult, n)
	for i := range results {
		results[i] = marketplace.FailureResult(marketplace.NewCorrelationID(), opErr)
	}
	return results
}

// asStoreError coerces an executor error into the structured form; the
// executor always returns *StoreOperationError but collaborator failures may
// bubble through as plain errors.
func asStoreError(err error) *marketplace.StoreOperationError {
	if opErr, ok := err.(*marketplace.StoreOperationError); ok {
		return opErr
	}
	return marketplace.NewStoreOperationError(marketplace.ErrorCodeUnexpected, err.Error())
}
