package marketapi

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

// defaultProcessedTTL bounds how long a bulk item stays marked as processed.
const defaultProcessedTTL = 24 * time.Hour

// BulkOptions configures one bulk run.
type BulkOptions struct {
	// ChunkSize is the provider-specific maximum batch size.
	ChunkSize int
	// IdempotencyKey, when set, lets a repeated invocation of the same bulk
	// operation skip items already marked processed.
	IdempotencyKey string
	// DelayBetweenBatches is slept after each batch except the last.
	DelayBetweenBatches time.Duration
	// OnProgress is invoked after each batch completes. Optional.
	OnProgress marketplace.ProgressFunc
	// ProcessedTTL overrides how long processed marks live.
	ProcessedTTL time.Duration
}

// ChunkFunc executes one batch natively. indices are the zero-based positions
// (into the original item list) this call must process; the returned slice
// must align with indices. Providers that report per-item errors in a single
// response demux them here.
type ChunkFunc func(ctx context.Context, batch int, indices []int) []marketplace.StoreOperationResult

// ItemFunc executes a single item by its position in the original list.
type ItemFunc func(ctx context.Context, index int) marketplace.StoreOperationResult

// BulkBatchCoordinator chunks a large operation, drives the per-item or
// native-batch execution, and aggregates outcomes. One item's failure never
// aborts sibling items in the same or later chunks.
type BulkBatchCoordinator struct {
	idempotency marketplace.IdempotencyStore
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewBulkBatchCoordinator creates a coordinator. idempotency may be nil when
// repeated-invocation dedupe is not needed.
func NewBulkBatchCoordinator(idempotency marketplace.IdempotencyStore, logger *zap.Logger) *BulkBatchCoordinator {
	return &BulkBatchCoordinator{
		idempotency: idempotency,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// RunItems executes total items sequentially in chunks, one call per item.
// Used for providers without a native multi-item endpoint.
func (c *BulkBatchCoordinator) RunItems(ctx context.Context, total int, opts BulkOptions, item ItemFunc) (*marketplace.BulkOperationResult, error) {
	return c.run(ctx, total, opts, func(chunkCtx context.Context, batch int, indices []int) []marketplace.StoreOperationResult {
		results := make([]marketplace.StoreOperationResult, 0, len(indices))
		for _, idx := range indices {
			results = append(results, item(chunkCtx, idx))
		}
		return results
	})
}

// RunChunks executes total items through a native multi-item endpoint, one
// call per chunk.
func (c *BulkBatchCoordinator) RunChunks(ctx context.Context, total int, opts BulkOptions, chunk ChunkFunc) (*marketplace.BulkOperationResult, error) {
	return c.run(ctx, total, opts, chunk)
}

func (c *BulkBatchCoordinator) run(ctx context.Context, total int, opts BulkOptions, chunk ChunkFunc) (*marketplace.BulkOperationResult, error) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 50
	}
	processedTTL := opts.ProcessedTTL
	if processedTTL <= 0 {
		processedTTL = defaultProcessedTTL
	}

	totalBatches := (total + chunkSize - 1) / chunkSize
	result := &marketplace.BulkOperationResult{
		Total:      total,
		Results:    make([]marketplace.StoreOperationResult, total),
		ErrorIndex: make(map[marketplace.BatchItemKey]*marketplace.StoreOperationError),
	}

	completed := 0
	for batch := 0; batch < totalBatches; batch++ {
		start := batch * chunkSize
		end := start + chunkSize
		if end > total {
			end = total
		}

		pending := make([]int, 0, end-start)
		for idx := start; idx < end; idx++ {
			if c.alreadyProcessed(ctx, opts.IdempotencyKey, batch, idx-start) {
				result.Results[idx] = marketplace.SuccessResult(marketplace.NewCorrelationID(), "", nil)
				result.Succeeded++
				completed++
				continue
			}
			pending = append(pending, idx)
		}

		if len(pending) > 0 {
			outcomes := chunk(ctx, batch, pending)
			for i, idx := range pending {
				var outcome marketplace.StoreOperationResult
				if i < len(outcomes) {
					outcome = outcomes[i]
				} else {
					outcome = marketplace.FailureResult(marketplace.NewCorrelationID(),
						marketplace.NewStoreOperationError(marketplace.ErrorCodeInvalidResponse, "bulk chunk returned fewer results than items"))
				}
				result.Results[idx] = outcome
				completed++
				if outcome.Ok {
					result.Succeeded++
					c.markProcessed(ctx, opts.IdempotencyKey, batch, idx-start, processedTTL)
				} else {
					result.Failed++
					result.ErrorIndex[marketplace.BatchItemKey{Batch: batch, Item: idx - start}] = outcome.Err
				}
			}
		}

		if opts.OnProgress != nil {
			opts.OnProgress(marketplace.BulkProgress{
				Completed:    completed,
				Total:        total,
				CurrentBatch: batch + 1,
				TotalBatches: totalBatches,
			})
		}

		if opts.DelayBetweenBatches > 0 && batch < totalBatches-1 {
			if err := c.sleep(ctx, opts.DelayBetweenBatches); err != nil {
				return result, fmt.Errorf("bulk operation canceled after batch %d: %w", batch, err)
			}
		}
	}

	return result, nil
}

// alreadyProcessed checks the durable mark for a bulk item. Store errors are
// treated as "not processed" so the item is retried rather than dropped.
func (c *BulkBatchCoordinator) alreadyProcessed(ctx context.Context, idempotencyKey string, batch, item int) bool {
	if idempotencyKey == "" || c.idempotency == nil {
		return false
	}
	processed, err := c.idempotency.IsProcessed(ctx, bulkItemKey(idempotencyKey, batch, item))
	if err != nil {
		c.logger.Warn("idempotency lookup failed, reprocessing item",
			zap.String("idempotency_key", idempotencyKey),
			zap.Int("batch", batch), zap.Int("item", item), zap.Error(err))
		return false
	}
	return processed
}

func (c *BulkBatchCoordinator) markProcessed(ctx context.Context, idempotencyKey string, batch, item int, ttl time.Duration) {
	if idempotencyKey == "" || c.idempotency == nil {
		return
	}
	if _, err := c.idempotency.MarkProcessed(ctx, bulkItemKey(idempotencyKey, batch, item), ttl); err != nil {
		c.logger.Warn("failed to mark bulk item processed",
			zap.String("idempotency_key", idempotencyKey),
			zap.Int("batch", batch), zap.Int("item", item), zap.Error(err))
	}
}

func bulkItemKey(idempotencyKey string, batch, item int) string {
	return fmt.Sprintf("%s:%d:%d", idempotencyKey, batch, item)
}
