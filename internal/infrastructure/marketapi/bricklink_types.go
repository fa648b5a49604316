package marketapi

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

// BrickLink wraps every response in a meta/data envelope and reports
// business-logic failures as HTTP 200 with a meta.code >= 300, so the body
// must be inspected even on success statuses.

type brickLinkEnvelope struct {
	Meta brickLinkMeta   `json:"meta"`
	Data json.RawMessage `json:"data"`
}

type brickLinkMeta struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (m brickLinkMeta) ok() bool {
	return m.Code >= 200 && m.Code < 300
}

type brickLinkItem struct {
	No   string `json:"no"`
	Type string `json:"type"`
}

type brickLinkInventory struct {
	InventoryID int64         `json:"inventory_id,omitempty"`
	Item        brickLinkItem `json:"item"`
	ColorID     int           `json:"color_id"`
	Quantity    int           `json:"quantity"`
	NewOrUsed   string        `json:"new_or_used"`
	UnitPrice   string        `json:"unit_price"`
	Description string        `json:"description,omitempty"`
	Remarks     string        `json:"remarks,omitempty"`
}

// brickLinkBulkEntry is one element of a native bulk-create response. The
// endpoint accepts up to 100 lots per call and reports per-item outcomes in
// a single envelope; entries that failed carry their own meta.
type brickLinkBulkEntry struct {
	InventoryID int64          `json:"inventory_id,omitempty"`
	Meta        *brickLinkMeta `json:"meta,omitempty"`
}

type brickLinkOrder struct {
	OrderID     int64  `json:"order_id"`
	DateOrdered string `json:"date_ordered"`
	BuyerName   string `json:"buyer_name"`
	Status      string `json:"status"`
	TotalCount  int    `json:"total_count"`
	UniqueCount int    `json:"unique_count"`
	Cost        struct {
		CurrencyCode string `json:"currency_code"`
		GrandTotal   string `json:"grand_total"`
	} `json:"cost"`
}

type brickLinkPriceGuide struct {
	Item          brickLinkItem `json:"item"`
	NewOrUsed     string        `json:"new_or_used"`
	MinPrice      string        `json:"min_price"`
	MaxPrice      string        `json:"max_price"`
	AvgPrice      string        `json:"avg_price"`
	UnitQuantity  int           `json:"unit_quantity"`
	TotalQuantity int           `json:"total_quantity"`
}

// toBrickLinkInventory converts a platform-neutral lot into the wire shape.
func toBrickLinkInventory(lot marketplace.InventoryLot) brickLinkInventory {
	itemType := lot.ItemType
	if itemType == "" {
		itemType = "PART"
	}
	inv := brickLinkInventory{
		Item:        brickLinkItem{No: lot.ItemNo, Type: itemType},
		ColorID:     lot.ColorID,
		Quantity:    lot.Quantity,
		NewOrUsed:   string(lot.Condition),
		UnitPrice:   lot.Price.StringFixed(3),
		Description: lot.Notes,
		Remarks:     lot.Remarks,
	}
	if lot.LotID != "" {
		if id, err := strconv.ParseInt(lot.LotID, 10, 64); err == nil {
			inv.InventoryID = id
		}
	}
	return inv
}

// toLot converts a wire inventory back into the platform-neutral shape.
func (inv brickLinkInventory) toLot() marketplace.InventoryLot {
	return marketplace.InventoryLot{
		LotID:     strconv.FormatInt(inv.InventoryID, 10),
		ItemNo:    inv.Item.No,
		ItemType:  inv.Item.Type,
		ColorID:   inv.ColorID,
		Condition: marketplace.Condition(inv.NewOrUsed),
		Quantity:  inv.Quantity,
		Price:     parseDecimal(inv.UnitPrice),
		Notes:     inv.Description,
		Remarks:   inv.Remarks,
	}
}

// parseDecimal parses a provider decimal string, returning zero on garbage.
// Providers occasionally send empty strings for absent prices.
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
