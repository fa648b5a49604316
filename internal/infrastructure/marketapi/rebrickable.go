package marketapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

// RebrickableProductionAPIURL is the production catalog API endpoint.
const RebrickableProductionAPIURL = "https://rebrickable.com/api/v3"

// RebrickableAdapter reads the Rebrickable catalog. Authentication is an
// "Authorization: key <token>" header; the API is read-only from our side.
type RebrickableAdapter struct {
	executor *RequestExecutor
	baseURL  string
}

// NewRebrickableAdapter creates an adapter. An empty baseURL selects the
// production endpoint.
func NewRebrickableAdapter(executor *RequestExecutor, baseURL string) *RebrickableAdapter {
	if baseURL == "" {
		baseURL = RebrickableProductionAPIURL
	}
	return &RebrickableAdapter{executor: executor, baseURL: baseURL}
}

func (a *RebrickableAdapter) bucket(accountID uuid.UUID) marketplace.Bucket {
	return marketplace.Bucket{AccountID: accountID, Provider: marketplace.ProviderRebrickable}
}

type rebrickablePart struct {
	PartNum     string `json:"part_num"`
	Name        string `json:"name"`
	PartCatID   int    `json:"part_cat_id"`
	PartImgURL  string `json:"part_img_url"`
	YearFrom    int    `json:"year_from"`
	YearTo      int    `json:"year_to"`
	ExternalIDs struct {
		BrickLink []string `json:"BrickLink"`
		BrickOwl  []string `json:"BrickOwl"`
	} `json:"external_ids"`
}

// LookupPart fetches catalog metadata for one part number.
func (a *RebrickableAdapter) LookupPart(ctx context.Context, accountID uuid.UUID, partNum string) (*marketplace.CatalogPart, error) {
	resp, err := a.executor.Execute(ctx, &RequestSpec{
		Operation: "rebrickable.part.get",
		Method:    http.MethodGet,
		BaseURL:   a.baseURL,
		Path:      fmt.Sprintf("/lego/parts/%s/", url.PathEscape(partNum)),
		Auth:      AuthAPIKeyHeader,
		Bucket:    a.bucket(accountID),
	})
	if err != nil {
		return nil, err
	}

	var wire rebrickablePart
	if jsonErr := json.Unmarshal(resp.Body, &wire); jsonErr != nil {
		return nil, marketplace.NewStoreOperationError(marketplace.ErrorCodeInvalidResponse,
			fmt.Sprintf("decode part: %v", jsonErr))
	}

	part := &marketplace.CatalogPart{
		PartNum:    wire.PartNum,
		Name:       wire.Name,
		CategoryID: wire.PartCatID,
		ImageURL:   wire.PartImgURL,
		YearFrom:   wire.YearFrom,
		YearTo:     wire.YearTo,
	}
	if len(wire.ExternalIDs.BrickLink) > 0 {
		part.BrickLinkID = wire.ExternalIDs.BrickLink[0]
	}
	if len(wire.ExternalIDs.BrickOwl) > 0 {
		part.BrickOwlID = wire.ExternalIDs.BrickOwl[0]
	}
	return part, nil
}
