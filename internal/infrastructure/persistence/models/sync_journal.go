package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	appmarketplace "github.com/bricksync/backend/internal/application/marketplace"
	"github.com/bricksync/backend/internal/domain/marketplace"
)

// SyncJournalEntryModel is the persistence model for one recorded bulk
// operation against an upstream marketplace.
type SyncJournalEntryModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
	CorrelationID string    `gorm:"type:varchar(64);not null;uniqueIndex"`
	AccountID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Provider      string    `gorm:"type:varchar(32);not null;index"`
	Operation     string    `gorm:"type:varchar(64);not null"`
	Total         int       `gorm:"not null;default:0"`
	Succeeded     int       `gorm:"not null;default:0"`
	Failed        int       `gorm:"not null;default:0"`
	Items         string    `gorm:"type:jsonb;default:'[]'"`
}

// TableName returns the table name for GORM
func (SyncJournalEntryModel) TableName() string {
	return "sync_journal_entries"
}

// ToDomain converts the persistence model to an application JournalEntry.
func (m *SyncJournalEntryModel) ToDomain() (appmarketplace.JournalEntry, error) {
	entry := appmarketplace.JournalEntry{
		CorrelationID: m.CorrelationID,
		AccountID:     m.AccountID,
		Provider:      m.Provider,
		Operation:     m.Operation,
		Total:         m.Total,
		Succeeded:     m.Succeeded,
		Failed:        m.Failed,
	}
	if m.Items != "" {
		var items []marketplace.StoreOperationResult
		if err := json.Unmarshal([]byte(m.Items), &items); err != nil {
			return appmarketplace.JournalEntry{}, err
		}
		entry.Items = items
	}
	return entry, nil
}

// FromDomain populates the persistence model from an application JournalEntry.
func (m *SyncJournalEntryModel) FromDomain(entry appmarketplace.JournalEntry) error {
	m.CorrelationID = entry.CorrelationID
	m.AccountID = entry.AccountID
	m.Provider = entry.Provider
	m.Operation = entry.Operation
	m.Total = entry.Total
	m.Succeeded = entry.Succeeded
	m.Failed = entry.Failed

	items := entry.Items
	if items == nil {
		items = []marketplace.StoreOperationResult{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	m.Items = string(raw)
	return nil
}

// SyncJournalEntryModelFromDomain creates a new persistence model from an
// application JournalEntry, assigning a fresh row ID.
func SyncJournalEntryModelFromDomain(entry appmarketplace.JournalEntry) (*SyncJournalEntryModel, error) {
	m := &SyncJournalEntryModel{}
	m.ID = uuid.New()
	if err := m.FromDomain(entry); err != nil {
		return nil, err
	}
	return m, nil
}
