// Package store defines the persistence port for the pipeline and its two
// implementations: a gorm-backed MySQL store for deployments and an
// in-memory store for tests and dry runs.
package store

import (
	"context"
	"errors"

	"github.com/peptrack/pricewatch/models"
)

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = errors.New("store: not found")

// Store is the injected persistence port. All pipeline reads and writes go
// through this interface, which keeps the orchestrator and the upsert
// engine testable without a live database.
type Store interface {
	// Jobs.
	CreateJob(ctx context.Context, job *models.ScrapeJob) error
	UpdateJob(ctx context.Context, job *models.ScrapeJob) error
	JobByID(ctx context.Context, id string) (*models.ScrapeJob, error)
	// UpdateJobStatusIf transitions a job's status only when it currently
	// holds the expected value, and reports whether the transition applied.
	UpdateJobStatusIf(ctx context.Context, id, expect, to string) (bool, error)

	// Vendor run records and sampled items. WriteItems persists the whole
	// batch atomically.
	CreateVendorRecord(ctx context.Context, rec *models.VendorJobRecord) error
	VendorRecords(ctx context.Context, jobID string) ([]*models.VendorJobRecord, error)
	WriteItems(ctx context.Context, items []*models.ScrapedItem) error
	Items(ctx context.Context, jobID, vendorID string) ([]*models.ScrapedItem, error)

	// Whitelists are admin-authored; the pipeline only reads them.
	Whitelists(ctx context.Context) ([]*models.VendorURLWhitelist, error)
	WhitelistByVendor(ctx context.Context, vendorID string) (*models.VendorURLWhitelist, error)

	// Offers and price history.
	OfferByMatchKey(ctx context.Context, key string) (*models.VendorOffer, error)
	CreateOffer(ctx context.Context, offer *models.VendorOffer) error
	UpdateOffer(ctx context.Context, offer *models.VendorOffer) error
	AppendHistory(ctx context.Context, entry *models.OfferPriceHistoryEntry) error
	HistoryByOffer(ctx context.Context, offerID uint) ([]*models.OfferPriceHistoryEntry, error)

	// Cached selector sets, one per vendor.
	SelectorSet(ctx context.Context, vendorID string) (*models.SelectorSet, error)
	SaveSelectorSet(ctx context.Context, set *models.SelectorSet) error
}
