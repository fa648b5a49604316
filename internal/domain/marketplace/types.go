package marketplace

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provider codes for the integrated marketplaces.
const (
	ProviderBrickLink   = "bricklink"
	ProviderBrickOwl    = "brickowl"
	ProviderRebrickable = "rebrickable"
	ProviderBrickognize = "brickognize"
)

// Condition of a listed lot.
type Condition string

const (
	ConditionNew  Condition = "N"
	ConditionUsed Condition = "U"
)

// InventoryLot is a platform-neutral inventory listing to create or update
// on a marketplace.
type InventoryLot struct {
	// LotID is the provider-assigned listing id; empty for creates.
	LotID     string
	ItemNo    string
	ItemType  string
	ColorID   int
	Condition Condition
	Quantity  int
	Price     decimal.Decimal
	Notes     string
	Remarks   string
}

// LotUpdate is a partial update against an existing lot. Nil fields are left
// unchanged on the platform.
type LotUpdate struct {
	LotID    string
	Quantity *int
	Price    *decimal.Decimal
	Notes    *string
}

// Order is a marketplace order header pulled from a provider.
type Order struct {
	OrderID      string
	Provider     string
	Status       string
	BuyerName    string
	ItemCount    int
	LotCount     int
	GrandTotal   decimal.Decimal
	CurrencyCode string
	OrderedAt    time.Time
}

// CatalogPart is a read-only catalog record. The external ids map the part
// number onto the selling platforms' own numbering.
type CatalogPart struct {
	PartNum     string
	Name        string
	CategoryID  int
	ImageURL    string
	YearFrom    int
	YearTo      int
	BrickLinkID string
	BrickOwlID  string
}

// PriceGuideVariant selects one of the four price-guide series.
type PriceGuideVariant struct {
	Condition Condition
	// Sold selects closed-sales statistics; false means current listings.
	Sold bool
}

// PriceGuide holds aggregated pricing for one item/color/variant.
type PriceGuide struct {
	Variant      PriceGuideVariant
	MinPrice     decimal.Decimal
	MaxPrice     decimal.Decimal
	AvgPrice     decimal.Decimal
	UnitQuantity int
	TotalLots    int
}
