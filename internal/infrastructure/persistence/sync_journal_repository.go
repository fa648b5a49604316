package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	appmarketplace "github.com/bricksync/backend/internal/application/marketplace"
	"github.com/bricksync/backend/internal/infrastructure/persistence/models"
)

// ErrJournalEntryNotFound is returned when no journal entry matches the query.
var ErrJournalEntryNotFound = errors.New("sync journal entry not found")

// SyncJournalSortFields contains allowed sort fields for journal entries
var SyncJournalSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"provider":   true,
	"operation":  true,
	"total":      true,
	"succeeded":  true,
	"failed":     true,
}

// JournalFilter narrows and orders journal listing queries. SortField must
// pass the SyncJournalSortFields allowlist and SortOrder must be ASC or DESC;
// anything else falls back to created_at DESC.
type JournalFilter struct {
	Provider  string
	Operation string
	SortField string
	SortOrder string
}

// JournalListResult is one page of journal entries.
type JournalListResult struct {
	Items      []appmarketplace.JournalEntry
	TotalCount int64
	Page       int
	PageSize   int
}

// GormSyncJournal implements the application's SyncJournal using GORM.
type GormSyncJournal struct {
	db *gorm.DB
}

// NewGormSyncJournal creates a new GormSyncJournal
func NewGormSyncJournal(db *gorm.DB) *GormSyncJournal {
	return &GormSyncJournal{db: db}
}

// Record persists one bulk operation outcome.
func (r *GormSyncJournal) Record(ctx context.Context, entry appmarketplace.JournalEntry) error {
	model, err := models.SyncJournalEntryModelFromDomain(entry)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByCorrelationID looks up the journal entry for one operation run.
func (r *GormSyncJournal) FindByCorrelationID(ctx context.Context, correlationID string) (*appmarketplace.JournalEntry, error) {
	var model models.SyncJournalEntryModel
	if err := r.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJournalEntryNotFound
		}
		return nil, err
	}
	entry, err := model.ToDomain()
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindByAccount returns journal entries for an account with pagination and filtering,
// most recent first.
func (r *GormSyncJournal) FindByAccount(
	ctx context.Context,
	accountID uuid.UUID,
	filter JournalFilter,
	page, pageSize int,
) (*JournalListResult, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncJournalEntryModel{}).
		Where("account_id = ?", accountID)

	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Operation != "" {
		query = query.Where("operation = ?", filter.Operation)
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, err
	}

	if page > 0 && pageSize > 0 {
		offset := (page - 1) * pageSize
		query = query.Offset(offset).Limit(pageSize)
	}

	sortField := ValidateSortField(filter.SortField, SyncJournalSortFields, "created_at")
	query = query.Order(sortField + " " + ValidateSortOrder(filter.SortOrder))

	var entryModels []models.SyncJournalEntryModel
	if err := query.Find(&entryModels).Error; err != nil {
		return nil, err
	}

	entries := make([]appmarketplace.JournalEntry, len(entryModels))
	for i := range entryModels {
		entry, err := entryModels[i].ToDomain()
		if err != nil {
			return nil, err
		}
		entries[i] = entry
	}

	return &JournalListResult{
		Items:      entries,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Compile-time interface compliance check
var _ appmarketplace.SyncJournal = (*GormSyncJournal)(nil)
