// Package models holds the GORM persistence models for the sync journal.
// Domain and application types stay free of ORM tags; these models carry
// the table mappings and convert to and from the application's
// JournalEntry.
package models
