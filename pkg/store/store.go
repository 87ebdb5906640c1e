// Package store defines the persistence boundary for profiles, content
// records and execution records. Adapters live in the sqlite and memory
// subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"igharvest/pkg/models"
)

// ErrNotFound is returned by lookups that match nothing
var ErrNotFound = errors.New("not found")

// ContentStore persists content records. ExternalID is unique store-wide:
// SaveAll updates an existing row only when the record carries that row's
// ID and silently ignores any other duplicate.
type ContentStore interface {
	ExistsByExternalID(ctx context.Context, externalID string) (bool, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.ContentRecord, error)
	// SaveAll returns the records actually written, with IDs assigned
	SaveAll(ctx context.Context, records []models.ContentRecord) ([]models.ContentRecord, error)
	// FindByProfile returns a profile's records, newest collected first
	FindByProfile(ctx context.Context, profileID string) ([]models.ContentRecord, error)
}

// ExecutionStore persists execution records
type ExecutionStore interface {
	// Save inserts or replaces by ID
	Save(ctx context.Context, rec *models.ExecutionRecord) error
	FindLatestByProfile(ctx context.Context, profileID string) (*models.ExecutionRecord, error)
	FindRecent(ctx context.Context, limit int) ([]models.ExecutionRecord, error)
	FindSuccessfulByProfile(ctx context.Context, profileID string) ([]models.ExecutionRecord, error)
	HasRecentSuccess(ctx context.Context, profileID string, since time.Time) (bool, error)
}

// ProfileStore persists monitored profiles
type ProfileStore interface {
	// FindByUsername matches case-insensitively
	FindByUsername(ctx context.Context, username string) (*models.Profile, error)
	Save(ctx context.Context, p *models.Profile) error
	List(ctx context.Context) ([]models.Profile, error)
}

// Store bundles the three stores of one backend
type Store interface {
	Contents() ContentStore
	Executions() ExecutionStore
	Profiles() ProfileStore
	Close() error
}

// Successful reports whether status counts as a successful run
func Successful(status models.ExecutionStatus) bool {
	return status == models.StatusSuccess || status == models.StatusPartialSuccess
}
