package store

import (
	"context"
	"sync"

	"github.com/peptrack/pricewatch/models"
)

// MemoryStore is an in-memory Store used by tests and dry runs. All values
// are copied on the way in and out so callers cannot mutate stored state
// through retained pointers.
type MemoryStore struct {
	mu sync.RWMutex

	jobs          map[string]*models.ScrapeJob
	vendorRecords []*models.VendorJobRecord
	items         []*models.ScrapedItem
	whitelists    []*models.VendorURLWhitelist
	offers        map[string]*models.VendorOffer
	history       []*models.OfferPriceHistoryEntry
	selectors     map[string]*models.SelectorSet

	nextOfferID  uint
	nextRecordID uint
	nextItemID   uint
	nextEntryID  uint
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]*models.ScrapeJob),
		offers:    make(map[string]*models.VendorOffer),
		selectors: make(map[string]*models.SelectorSet),
	}
}

// SeedWhitelist registers an admin-authored whitelist record.
func (s *MemoryStore) SeedWhitelist(wl *models.VendorURLWhitelist) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *wl
	copied.AllowedURLs = append([]string(nil), wl.AllowedURLs...)
	s.whitelists = append(s.whitelists, &copied)
}

func (s *MemoryStore) CreateJob(_ context.Context, job *models.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, job *models.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *MemoryStore) JobByID(_ context.Context, id string) (*models.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

func (s *MemoryStore) UpdateJobStatusIf(_ context.Context, id, expect, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if job.Status != expect {
		return false, nil
	}
	job.Status = to
	return true, nil
}

func (s *MemoryStore) CreateVendorRecord(_ context.Context, rec *models.VendorJobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := copyVendorRecord(rec)
	s.nextRecordID++
	copied.ID = s.nextRecordID
	rec.ID = copied.ID
	s.vendorRecords = append(s.vendorRecords, copied)
	return nil
}

func (s *MemoryStore) VendorRecords(_ context.Context, jobID string) ([]*models.VendorJobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.VendorJobRecord
	for _, rec := range s.vendorRecords {
		if rec.JobID == jobID {
			out = append(out, copyVendorRecord(rec))
		}
	}
	return out, nil
}

func (s *MemoryStore) WriteItems(_ context.Context, items []*models.ScrapedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		copied := *item
		s.nextItemID++
		copied.ID = s.nextItemID
		s.items = append(s.items, &copied)
	}
	return nil
}

func (s *MemoryStore) Items(_ context.Context, jobID, vendorID string) ([]*models.ScrapedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ScrapedItem
	for _, item := range s.items {
		if item.JobID == jobID && item.VendorID == vendorID {
			copied := *item
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryStore) Whitelists(_ context.Context) ([]*models.VendorURLWhitelist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.VendorURLWhitelist, 0, len(s.whitelists))
	for _, wl := range s.whitelists {
		copied := *wl
		copied.AllowedURLs = append([]string(nil), wl.AllowedURLs...)
		out = append(out, &copied)
	}
	return out, nil
}

func (s *MemoryStore) WhitelistByVendor(_ context.Context, vendorID string) (*models.VendorURLWhitelist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, wl := range s.whitelists {
		if wl.VendorID == vendorID {
			copied := *wl
			copied.AllowedURLs = append([]string(nil), wl.AllowedURLs...)
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) OfferByMatchKey(_ context.Context, key string) (*models.VendorOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	offer, ok := s.offers[key]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *offer
	return &copied, nil
}

func (s *MemoryStore) CreateOffer(_ context.Context, offer *models.VendorOffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.offers[offer.MatchKey]; exists {
		return errDuplicateKey(offer.MatchKey)
	}
	s.nextOfferID++
	offer.ID = s.nextOfferID
	copied := *offer
	s.offers[offer.MatchKey] = &copied
	return nil
}

func (s *MemoryStore) UpdateOffer(_ context.Context, offer *models.VendorOffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.offers[offer.MatchKey]; !ok {
		return ErrNotFound
	}
	copied := *offer
	s.offers[offer.MatchKey] = &copied
	return nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, entry *models.OfferPriceHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *entry
	copied.ChangedFields = append([]string(nil), entry.ChangedFields...)
	s.nextEntryID++
	copied.ID = s.nextEntryID
	s.history = append(s.history, &copied)
	return nil
}

func (s *MemoryStore) HistoryByOffer(_ context.Context, offerID uint) ([]*models.OfferPriceHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.OfferPriceHistoryEntry
	for _, entry := range s.history {
		if entry.OfferID == offerID {
			copied := *entry
			copied.ChangedFields = append([]string(nil), entry.ChangedFields...)
			out = append(out, &copied)
		}
	}
	return out, nil
}

// AllHistory returns every history entry, used by tests.
func (s *MemoryStore) AllHistory() []*models.OfferPriceHistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.OfferPriceHistoryEntry, 0, len(s.history))
	for _, entry := range s.history {
		copied := *entry
		out = append(out, &copied)
	}
	return out
}

// AllOffers returns every stored offer, used by tests.
func (s *MemoryStore) AllOffers() []*models.VendorOffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.VendorOffer, 0, len(s.offers))
	for _, offer := range s.offers {
		copied := *offer
		out = append(out, &copied)
	}
	return out
}

func (s *MemoryStore) SelectorSet(_ context.Context, vendorID string) (*models.SelectorSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.selectors[vendorID]
	if !ok {
		return nil, ErrNotFound
	}
	return copySelectorSet(set), nil
}

func (s *MemoryStore) SaveSelectorSet(_ context.Context, set *models.SelectorSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectors[set.VendorID] = copySelectorSet(set)
	return nil
}

func copyJob(job *models.ScrapeJob) *models.ScrapeJob {
	copied := *job
	copied.ErrorMessages = append([]string(nil), job.ErrorMessages...)
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		copied.CompletedAt = &t
	}
	return &copied
}

func copyVendorRecord(rec *models.VendorJobRecord) *models.VendorJobRecord {
	copied := *rec
	copied.Warnings = append([]string(nil), rec.Warnings...)
	copied.Errors = append([]string(nil), rec.Errors...)
	if rec.FailureReasons != nil {
		copied.FailureReasons = make(map[string]int, len(rec.FailureReasons))
		for k, v := range rec.FailureReasons {
			copied.FailureReasons[k] = v
		}
	}
	return &copied
}

func copySelectorSet(set *models.SelectorSet) *models.SelectorSet {
	copied := *set
	copied.CategoryURLs = append([]string(nil), set.CategoryURLs...)
	copied.ProductURLs = append([]string(nil), set.ProductURLs...)
	return &copied
}

type errDuplicateKey string

func (e errDuplicateKey) Error() string {
	return "store: duplicate match key: " + string(e)
}
