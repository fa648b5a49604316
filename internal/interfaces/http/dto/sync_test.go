package dto

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appmarketplace "github.com/bricksync/backend/internal/application/marketplace"
	"github.com/bricksync/backend/internal/domain/marketplace"
)

func TestLotRequest_ToDomain(t *testing.T) {
	req := LotRequest{
		ItemNo:    "3001",
		ItemType:  "PART",
		ColorID:   5,
		Condition: "U",
		Quantity:  40,
		Price:     decimal.RequireFromString("0.07"),
		Notes:     "slight wear",
		Remarks:   "bin A3",
	}

	lot := req.ToDomain()

	assert.Empty(t, lot.LotID, "creates carry no provider lot id")
	assert.Equal(t, "3001", lot.ItemNo)
	assert.Equal(t, marketplace.ConditionUsed, lot.Condition)
	assert.Equal(t, 40, lot.Quantity)
	assert.True(t, lot.Price.Equal(decimal.RequireFromString("0.07")))
	assert.Equal(t, "slight wear", lot.Notes)
	assert.Equal(t, "bin A3", lot.Remarks)
}

func TestNewBulkResultResponse(t *testing.T) {
	qty := 12
	resetAt := time.Now().Add(30 * time.Second)
	result := &marketplace.BulkOperationResult{
		Total:     2,
		Succeeded: 1,
		Failed:    1,
		Results: []marketplace.StoreOperationResult{
			marketplace.SuccessResult("corr-a", "555", &marketplace.RollbackData{Quantity: &qty}),
			marketplace.FailureResult("corr-b", &marketplace.StoreOperationError{
				Code:             marketplace.ErrorCodeRateLimited,
				Message:          "quota exhausted",
				Retryable:        true,
				RateLimitResetAt: &resetAt,
			}),
		},
	}

	resp := NewBulkResultResponse(result)

	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Items, 2)

	ok := resp.Items[0]
	assert.True(t, ok.Ok)
	assert.Equal(t, "555", ok.MarketplaceID)
	require.NotNil(t, ok.Rollback)
	assert.Equal(t, 12, *ok.Rollback.Quantity)
	assert.Nil(t, ok.Error)

	failed := resp.Items[1]
	assert.False(t, failed.Ok)
	assert.Empty(t, failed.MarketplaceID)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "RATE_LIMITED", failed.Error.Code)
	assert.True(t, failed.Error.Retryable)
	require.NotNil(t, failed.Error.RateLimitResetAt)
	assert.True(t, failed.Error.RateLimitResetAt.Equal(resetAt))
}

func TestNewJournalEntryResponse(t *testing.T) {
	entry := appmarketplace.JournalEntry{
		CorrelationID: "corr-1",
		AccountID:     uuid.New(),
		Provider:      "bricklink",
		Operation:     "inventory.push",
		Total:         3,
		Succeeded:     3,
		Items: []marketplace.StoreOperationResult{
			marketplace.SuccessResult("item-1", "1001", nil),
			marketplace.SuccessResult("item-2", "1002", nil),
			marketplace.SuccessResult("item-3", "1003", nil),
		},
	}

	t.Run("with items", func(t *testing.T) {
		resp := NewJournalEntryResponse(entry, true)
		assert.Equal(t, "corr-1", resp.CorrelationID)
		assert.Equal(t, 3, resp.Total)
		assert.Len(t, resp.Items, 3)
		assert.Equal(t, "1002", resp.Items[1].MarketplaceID)
	})

	t.Run("summary only", func(t *testing.T) {
		resp := NewJournalEntryResponse(entry, false)
		assert.Equal(t, "inventory.push", resp.Operation)
		assert.Nil(t, resp.Items)
	})
}
