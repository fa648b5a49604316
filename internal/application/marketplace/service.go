package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bricksync/backend/internal/domain/marketplace"
	"github.com/bricksync/backend/internal/infrastructure/marketapi"
)

// ErrUnknownProvider is returned when an operation names a provider the
// service has no selling adapter for.
var ErrUnknownProvider = fmt.Errorf("unknown marketplace provider")

// BrickLinkClient is the slice of the BrickLink adapter the service consumes.
type BrickLinkClient interface {
	CreateInventories(ctx context.Context, accountID uuid.UUID, lots []marketplace.InventoryLot, idempotencyKey string) []marketplace.StoreOperationResult
	GetInventory(ctx context.Context, accountID uuid.UUID, lotID string) (*marketplace.InventoryLot, error)
	UpdateInventory(ctx context.Context, accountID uuid.UUID, update marketplace.LotUpdate) error
	DeleteInventory(ctx context.Context, accountID uuid.UUID, lotID string) error
	PullOrders(ctx context.Context, accountID uuid.UUID, since time.Time) ([]marketplace.Order, error)
	PriceGuide(ctx context.Context, accountID uuid.UUID, itemType, itemNo string, colorID int, variant marketplace.PriceGuideVariant) (*marketplace.PriceGuide, error)
}

// BrickOwlClient is the slice of the BrickOwl adapter the service consumes.
type BrickOwlClient interface {
	CreateLot(ctx context.Context, accountID uuid.UUID, lot marketplace.InventoryLot, idempotencyKey string) (marketplace.StoreOperationResult, error)
	UpdateLot(ctx context.Context, accountID uuid.UUID, update marketplace.LotUpdate) error
	DeleteLot(ctx context.Context, accountID uuid.UUID, lotID string) error
	PullOrders(ctx context.Context, accountID uuid.UUID, since time.Time) ([]marketplace.Order, error)
}

// CatalogClient resolves read-only part metadata.
type CatalogClient interface {
	LookupPart(ctx context.Context, accountID uuid.UUID, partNum string) (*marketplace.CatalogPart, error)
}

// JournalEntry is one recorded bulk operation with its per-item outcomes.
// The rollback snapshots inside Items are what a compensating run reads back.
type JournalEntry struct {
	CorrelationID string
	AccountID     uuid.UUID
	Provider      string
	Operation     string
	Total         int
	Succeeded     int
	Failed        int
	Items         []marketplace.StoreOperationResult
}

// SyncJournal persists bulk operation outcomes.
type SyncJournal interface {
	Record(ctx context.Context, entry JournalEntry) error
}

// SyncOptions tune one bulk invocation.
type SyncOptions struct {
	// IdempotencyKey makes a repeated invocation skip already-processed items.
	IdempotencyKey string
	// OnProgress receives batch-level progress. Optional.
	OnProgress marketplace.ProgressFunc
}

// SyncConfig carries the provider pacing settings.
type SyncConfig struct {
	BrickLinkChunkSize  int
	BrickOwlChunkSize   int
	DelayBetweenBatches time.Duration
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.BrickLinkChunkSize <= 0 {
		c.BrickLinkChunkSize = marketapi.BrickLinkBulkChunkSize
	}
	if c.BrickOwlChunkSize <= 0 {
		c.BrickOwlChunkSize = marketapi.BrickOwlSequentialChunkSize
	}
	return c
}

// SyncService drives inventory pushes, price updates, deletions, order pulls
// and catalog reads across the integrated marketplaces.
type SyncService struct {
	bricklink   BrickLinkClient
	brickowl    BrickOwlClient
	catalog     CatalogClient
	coordinator *marketapi.BulkBatchCoordinator
	journal     SyncJournal
	logger      *zap.Logger
	cfg         SyncConfig
}

// NewSyncService creates the service. journal may be nil when outcome
// persistence is not wanted (tests, dry runs).
func NewSyncService(
	bricklink BrickLinkClient,
	brickowl BrickOwlClient,
	catalog CatalogClient,
	coordinator *marketapi.BulkBatchCoordinator,
	journal SyncJournal,
	logger *zap.Logger,
	cfg SyncConfig,
) *SyncService {
	return &SyncService{
		bricklink:   bricklink,
		brickowl:    brickowl,
		catalog:     catalog,
		coordinator: coordinator,
		journal:     journal,
		logger:      logger,
		cfg:         cfg.withDefaults(),
	}
}

// PushInventory creates lots on the given provider. BrickLink goes through
// its native multi-item endpoint in chunks of 100; BrickOwl has no bulk
// endpoint, so items run one by one in chunks of 50.
func (s *SyncService) PushInventory(ctx context.Context, accountID uuid.UUID, provider string, lots []marketplace.InventoryLot, opts SyncOptions) (*marketplace.BulkOperationResult, error) {
	var result *marketplace.BulkOperationResult
	var runErr error

	switch provider {
	case marketplace.ProviderBrickLink:
		result, runErr = s.coordinator.RunChunks(ctx, len(lots), s.bulkOptions(s.cfg.BrickLinkChunkSize, opts),
			func(chunkCtx context.Context, batch int, indices []int) []marketplace.StoreOperationResult {
				subset := make([]marketplace.InventoryLot, len(indices))
				for i, idx := range indices {
					subset[i] = lots[idx]
				}
				return s.bricklink.CreateInventories(chunkCtx, accountID, subset, chunkKey(opts.IdempotencyKey, batch))
			})
	case marketplace.ProviderBrickOwl:
		result, runErr = s.coordinator.RunItems(ctx, len(lots), s.bulkOptions(s.cfg.BrickOwlChunkSize, opts),
			func(itemCtx context.Context, index int) marketplace.StoreOperationResult {
				outcome, _ := s.brickowl.CreateLot(itemCtx, accountID, lots[index], itemKey(opts.IdempotencyKey, index))
				return outcome
			})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	s.record(ctx, accountID, provider, "inventory.push", result)
	return result, runErr
}

// UpdatePrices applies partial lot updates sequentially. On BrickLink the
// previous state is fetched first so every successful update carries a
// rollback snapshot; BrickOwl exposes no single-lot read, so its rollback
// data is limited to the fields the caller overwrote.
func (s *SyncService) UpdatePrices(ctx context.Context, accountID uuid.UUID, provider string, updates []marketplace.LotUpdate, opts SyncOptions) (*marketplace.BulkOperationResult, error) {
	item, err := s.updateItemFunc(accountID, provider, updates)
	if err != nil {
		return nil, err
	}

	result, runErr := s.coordinator.RunItems(ctx, len(updates), s.bulkOptions(s.sequentialChunkSize(provider), opts), item)
	s.record(ctx, accountID, provider, "price.update", result)
	return result, runErr
}

func (s *SyncService) updateItemFunc(accountID uuid.UUID, provider string, updates []marketplace.LotUpdate) (marketapi.ItemFunc, error) {
	switch provider {
	case marketplace.ProviderBrickLink:
		return func(ctx context.Context, index int) marketplace.StoreOperationResult {
			update := updates[index]
			rollback := s.snapshotBrickLinkLot(ctx, accountID, update.LotID)
			if err := s.bricklink.UpdateInventory(ctx, accountID, update); err != nil {
				return marketplace.FailureResult(marketplace.NewCorrelationID(), asStoreError(err))
			}
			return marketplace.SuccessResult(marketplace.NewCorrelationID(), update.LotID, rollback)
		}, nil
	case marketplace.ProviderBrickOwl:
		return func(ctx context.Context, index int) marketplace.StoreOperationResult {
			update := updates[index]
			if err := s.brickowl.UpdateLot(ctx, accountID, update); err != nil {
				return marketplace.FailureResult(marketplace.NewCorrelationID(), asStoreError(err))
			}
			return marketplace.SuccessResult(marketplace.NewCorrelationID(), update.LotID, &marketplace.RollbackData{
				Quantity: update.Quantity,
				Price:    update.Price,
				Notes:    update.Notes,
			})
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

// DeleteLots removes lots sequentially. BrickLink lots are snapshotted before
// deletion so they can be re-created from the journal.
func (s *SyncService) DeleteLots(ctx context.Context, accountID uuid.UUID, provider string, lotIDs []string, opts SyncOptions) (*marketplace.BulkOperationResult, error) {
	var item marketapi.ItemFunc
	switch provider {
	case marketplace.ProviderBrickLink:
		item = func(ctx context.Context, index int) marketplace.StoreOperationResult {
			lotID := lotIDs[index]
			rollback := s.snapshotBrickLinkLot(ctx, accountID, lotID)
			if err := s.bricklink.DeleteInventory(ctx, accountID, lotID); err != nil {
				return marketplace.FailureResult(marketplace.NewCorrelationID(), asStoreError(err))
			}
			return marketplace.SuccessResult(marketplace.NewCorrelationID(), lotID, rollback)
		}
	case marketplace.ProviderBrickOwl:
		item = func(ctx context.Context, index int) marketplace.StoreOperationResult {
			lotID := lotIDs[index]
			if err := s.brickowl.DeleteLot(ctx, accountID, lotID); err != nil {
				return marketplace.FailureResult(marketplace.NewCorrelationID(), asStoreError(err))
			}
			return marketplace.SuccessResult(marketplace.NewCorrelationID(), lotID, nil)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	result, runErr := s.coordinator.RunItems(ctx, len(lotIDs), s.bulkOptions(s.sequentialChunkSize(provider), opts), item)
	s.record(ctx, accountID, provider, "inventory.delete", result)
	return result, runErr
}

// PullOrders lists orders placed on or after since.
func (s *SyncService) PullOrders(ctx context.Context, accountID uuid.UUID, provider string, since time.Time) ([]marketplace.Order, error) {
	switch provider {
	case marketplace.ProviderBrickLink:
		return s.bricklink.PullOrders(ctx, accountID, since)
	case marketplace.ProviderBrickOwl:
		return s.brickowl.PullOrders(ctx, accountID, since)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

// LookupPart resolves catalog metadata for a part number.
func (s *SyncService) LookupPart(ctx context.Context, accountID uuid.UUID, partNum string) (*marketplace.CatalogPart, error) {
	return s.catalog.LookupPart(ctx, accountID, partNum)
}

// PriceGuideSet holds the four price-guide series for one item/color.
type PriceGuideSet struct {
	NewStock  *marketplace.PriceGuide
	NewSold   *marketplace.PriceGuide
	UsedStock *marketplace.PriceGuide
	UsedSold  *marketplace.PriceGuide
}

// PriceGuide fetches all four variants (new/used x stock/sold) concurrently
// and joins them. Any variant failing fails the whole lookup.
func (s *SyncService) PriceGuide(ctx context.Context, accountID uuid.UUID, itemType, itemNo string, colorID int) (*PriceGuideSet, error) {
	variants := []marketplace.PriceGuideVariant{
		{Condition: marketplace.ConditionNew, Sold: false},
		{Condition: marketplace.ConditionNew, Sold: true},
		{Condition: marketplace.ConditionUsed, Sold: false},
		{Condition: marketplace.ConditionUsed, Sold: true},
	}

	guides := make([]*marketplace.PriceGuide, len(variants))
	errs := make([]error, len(variants))

	var wg sync.WaitGroup
	for i, variant := range variants {
		wg.Add(1)
		go func(i int, variant marketplace.PriceGuideVariant) {
			defer wg.Done()
			guides[i], errs[i] = s.bricklink.PriceGuide(ctx, accountID, itemType, itemNo, colorID, variant)
		}(i, variant)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return &PriceGuideSet{
		NewStock:  guides[0],
		NewSold:   guides[1],
		UsedStock: guides[2],
		UsedSold:  guides[3],
	}, nil
}

// snapshotBrickLinkLot fetches the current lot state for rollback. A failed
// snapshot degrades to no rollback data rather than blocking the operation.
func (s *SyncService) snapshotBrickLinkLot(ctx context.Context, accountID uuid.UUID, lotID string) *marketplace.RollbackData {
	lot, err := s.bricklink.GetInventory(ctx, accountID, lotID)
	if err != nil {
		s.logger.Warn("rollback snapshot unavailable",
			zap.String("lot_id", lotID), zap.Error(err))
		return nil
	}
	original, err := json.Marshal(lot)
	if err != nil {
		return nil
	}
	quantity := lot.Quantity
	price := lot.Price
	notes := lot.Notes
	return &marketplace.RollbackData{
		Quantity: &quantity,
		Price:    &price,
		Notes:    &notes,
		Original: original,
	}
}

func (s *SyncService) bulkOptions(chunkSize int, opts SyncOptions) marketapi.BulkOptions {
	return marketapi.BulkOptions{
		ChunkSize:           chunkSize,
		IdempotencyKey:      opts.IdempotencyKey,
		DelayBetweenBatches: s.cfg.DelayBetweenBatches,
		OnProgress:          opts.OnProgress,
	}
}

func (s *SyncService) sequentialChunkSize(provider string) int {
	if provider == marketplace.ProviderBrickOwl {
		return s.cfg.BrickOwlChunkSize
	}
	return marketapi.BrickLinkSequentialChunkSize
}

// record journals a completed bulk operation. Journal failures are logged,
// never surfaced: the marketplace already holds the applied state.
func (s *SyncService) record(ctx context.Context, accountID uuid.UUID, provider, operation string, result *marketplace.BulkOperationResult) {
	if s.journal == nil || result == nil {
		return
	}
	entry := JournalEntry{
		CorrelationID: marketplace.NewCorrelationID(),
		AccountID:     accountID,
		Provider:      provider,
		Operation:     operation,
		Total:         result.Total,
		Succeeded:     result.Succeeded,
		Failed:        result.Failed,
		Items:         result.Results,
	}
	if err := s.journal.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to journal bulk operation",
			zap.String("operation", operation),
			zap.String("provider", provider),
			zap.Error(err))
	}
}

func chunkKey(idempotencyKey string, batch int) string {
	if idempotencyKey == "" {
		return ""
	}
	return fmt.Sprintf("%s:chunk:%d", idempotencyKey, batch)
}

func itemKey(idempotencyKey string, index int) string {
	if idempotencyKey == "" {
		return ""
	}
	return fmt.Sprintf("%s:item:%d", idempotencyKey, index)
}

func asStoreError(err error) *marketplace.StoreOperationError {
	if opErr, ok := err.(*marketplace.StoreOperationError); ok {
		return opErr
	}
	return marketplace.NewStoreOperationError(marketplace.ErrorCodeUnexpected, err.Error())
}
