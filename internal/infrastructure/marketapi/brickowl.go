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
	// BrickOwlProductionAPIURL is the production API endpoint.
	BrickOwlProductionAPIURL = "https://api.brickowl.com/v1"

	// BrickOwlSequentialChunkSize is the chunk size for sequential bulk
	// operations; BrickOwl has no native multi-item endpoint.
	BrickOwlSequentialChunkSize = 50
)

// BrickOwlAdapter talks to the BrickOwl store API. Authentication is an API
// key injected as a query parameter on GET and a form field on POST.
type BrickOwlAdapter struct {
	executor *RequestExecutor
	baseURL  string
}

// NewBrickOwlAdapter creates an adapter. An empty baseURL selects the
// production endpoint.
func NewBrickOwlAdapter(executor *RequestExecutor, baseURL string) *BrickOwlAdapter {
	if baseURL == "" {
		baseURL = BrickOwlProductionAPIURL
	}
	return &BrickOwlAdapter{executor: executor, baseURL: baseURL}
}

func (a *BrickOwlAdapter) bucket(accountID uuid.UUID) marketplace.Bucket {
	return marketplace.Bucket{AccountID: accountID, Provider: marketplace.ProviderBrickOwl}
}

type brickOwlLotResponse struct {
	LotID string `json:"lot_id"`
}

type brickOwlOrder struct {
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	BuyerName string `json:"buyer_name"`
	ItemCount int    `json:"item_count"`
	LotCount  int    `json:"lot_count"`
	BaseTotal string `json:"base_total"`
	Currency  string `json:"base_currency"`
	OrderTime int64  `json:"order_time"`
}

// CreateLot creates one inventory lot. The caller supplies the idempotency
// key that makes the POST safe to retry.
func (a *BrickOwlAdapter) CreateLot(ctx context.Context, accountID uuid.UUID, lot marketplace.InventoryLot, idempotencyKey string) (marketplace.StoreOperationResult, error) {
	form := url.Values{}
	form.Set("boid", lot.ItemNo)
	form.Set("color_id", strconv.Itoa(lot.ColorID))
	form.Set("quantity", strconv.Itoa(lot.Quantity))
	form.Set("price", lot.Price.StringFixed(3))
	form.Set("condition", brickOwlCondition(lot.Condition))
	if lot.Notes != "" {
		form.Set("public_note", lot.Notes)
	}
	if lot.Remarks != "" {
		form.Set("personal_note", lot.Remarks)
	}

	resp, err := a.executor.Execute(ctx, &RequestSpec{
		Operation:      "brickowl.inventory.create",
		Method:         http.MethodPost,
		BaseURL:        a.baseURL,
		Path:           "/inventory/create",
		FormBody:       form,
		Auth:           AuthAPIKeyParam,
		Bucket:         a.bucket(accountID),
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return marketplace.FailureResult(marketplace.NewCorrelationID(), asStoreError(err)), err
	}

	var created brickOwlLotResponse
	if jsonErr := json.Unmarshal(resp.Body, &created); jsonErr != nil {
		opErr := marketplace.NewStoreOperationError(marketplace.ErrorCodeInvalidResponse,
			fmt.Sprintf("decode create response: %v", jsonErr))
		return marketplace.FailureResult(resp.CorrelationID, opErr), opErr
	}

	original, _ := json.Marshal(lot)
	return marketplace.SuccessResult(resp.CorrelationID, created.LotID,
		&marketplace.RollbackData{Original: original}), nil
}

// UpdateLot applies a partial update to an existing lot. The update POST
// carries an absolute state, which makes it safe to repeat.
func (a *BrickOwlAdapter) UpdateLot(ctx context.Context, accountID uuid.UUID, update marketplace.LotUpdate) error {
	form := url.Values{}
	form.Set("lot_id", update.LotID)
	if update.Quantity != nil {
		form.Set("absolute_quantity", strconv.Itoa(*update.Quantity))
	}
	if update.Price != nil {
		form.Set("price", update.Price.StringFixed(3))
	}
	if update.Notes != nil {
		form.Set("public_note", *update.Notes)
	}

	_, err := a.executor.Execute(ctx, &RequestSpec{
		Operation:  "brickowl.inventory.update",
		Method:     http.MethodPost,
		BaseURL:    a.baseURL,
		Path:       "/inventory/update",
		FormBody:   form,
		Auth:       AuthAPIKeyParam,
		Bucket:     a.bucket(accountID),
		Idempotent: true,
	})
	return err
}

// DeleteLot removes a lot. Deleting an already-deleted lot is a no-op on the
// platform, so the call is marked idempotent.
func (a *BrickOwlAdapter) DeleteLot(ctx context.Context, accountID uuid.UUID, lotID string) error {
	form := url.Values{}
	form.Set("lot_id", lotID)

	_, err := a.executor.Execute(ctx, &RequestSpec{
		Operation:  "brickowl.inventory.delete",
		Method:     http.MethodPost,
		BaseURL:    a.baseURL,
		Path:       "/inventory/delete",
		FormBody:   form,
		Auth:       AuthAPIKeyParam,
		Bucket:     a.bucket(accountID),
		Idempotent: true,
	})
	return err
}

// PullOrders lists orders placed on or after since.
func (a *BrickOwlAdapter) PullOrders(ctx context.Context, accountID uuid.UUID, since time.Time) ([]marketplace.Order, error) {
	query := url.Values{}
	query.Set("list_type", "store")
	if !since.IsZero() {
		query.Set("order_time", strconv.FormatInt(since.Unix(), 10))
	}

	resp, err := a.executor.Execute(ctx, &RequestSpec{
		Operation: "brickowl.order.list",
		Method:    http.MethodGet,
		BaseURL:   a.baseURL,
		Path:      "/order/list",
		Query:     query,
		Auth:      AuthAPIKeyParam,
		Bucket:    a.bucket(accountID),
	})
	if err != nil {
		return nil, err
	}

	var wire []brickOwlOrder
	if jsonErr := json.Unmarshal(resp.Body, &wire); jsonErr != nil {
		return nil, marketplace.NewStoreOperationError(marketplace.ErrorCodeInvalidResponse,
			fmt.Sprintf("decode order list: %v", jsonErr))
	}

	orders := make([]marketplace.Order, 0, len(wire))
	for _, o := range wire {
		orders = append(orders, marketplace.Order{
			OrderID:      o.OrderID,
			Provider:     marketplace.ProviderBrickOwl,
			Status:       o.Status,
			BuyerName:    o.BuyerName,
			ItemCount:    o.ItemCount,
			LotCount:     o.LotCount,
			GrandTotal:   parseDecimal(o.BaseTotal),
			CurrencyCode: o.Currency,
			OrderedAt:    time.Unix(o.OrderTime, 0),
		})
	}
	return orders, nil
}

func brickOwlCondition(c marketplace.Condition) string {
	if c == marketplace.ConditionUsed {
		return "usedg"
	}
	return "new"
}
