package marketplace

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// RollbackData is the prior-state snapshot captured alongside a mutating
// operation so a compensating call can be synthesized without re-fetching
// from the provider. For creates, Original holds the full payload that was
// sent; for updates, the individual previous fields are set.
type RollbackData struct {
	Quantity *int             `json:"quantity,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Notes    *string          `json:"notes,omitempty"`
	Original json.RawMessage  `json:"original,omitempty"`
}

// StoreOperationResult is the per-item outcome of a marketplace operation.
// Exactly one of the success fields or Err is meaningful; Ok distinguishes
// the two. CorrelationID is always set regardless of outcome.
type StoreOperationResult struct {
	Ok            bool
	CorrelationID string
	MarketplaceID string
	Rollback      *RollbackData
	Err           *StoreOperationError
}

// SuccessResult builds a success outcome.
func SuccessResult(correlationID, marketplaceID string, rollback *RollbackData) StoreOperationResult {
	return StoreOperationResult{
		Ok:            true,
		CorrelationID: correlationID,
		MarketplaceID: marketplaceID,
		Rollback:      rollback,
	}
}

// FailureResult builds a failure outcome.
func FailureResult(correlationID string, err *StoreOperationError) StoreOperationResult {
	return StoreOperationResult{
		Ok:            false,
		CorrelationID: correlationID,
		Err:           err,
	}
}

// BatchItemKey locates a failed item inside a bulk operation by its batch
// number and position within that batch, both zero-based.
type BatchItemKey struct {
	Batch int
	Item  int
}

// BulkOperationResult aggregates the outcomes of a chunked bulk operation.
// Results preserves input order; ErrorIndex keys failures by batch/item
// position for diagnostics. The value is immutable once returned.
type BulkOperationResult struct {
	Succeeded  int
	Failed     int
	Total      int
	Results    []StoreOperationResult
	ErrorIndex map[BatchItemKey]*StoreOperationError
}

// BulkProgress is reported to the optional progress callback after each batch.
type BulkProgress struct {
	Completed    int
	Total        int
	CurrentBatch int
	TotalBatches int
}
