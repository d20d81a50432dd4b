package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/peptrack/pricewatch/models"
)

// GormStore persists pipeline state in MySQL through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens a MySQL connection and runs migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	s := &GormStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewGormStoreFromDB wraps an existing gorm handle, used by tests.
func NewGormStoreFromDB(db *gorm.DB) (*GormStore, error) {
	s := &GormStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GormStore) migrate() error {
	err := s.db.AutoMigrate(
		&models.ScrapeJob{},
		&models.VendorJobRecord{},
		&models.ScrapedItem{},
		&models.VendorOffer{},
		&models.OfferPriceHistoryEntry{},
		&models.VendorURLWhitelist{},
		&models.SelectorSet{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *GormStore) CreateJob(ctx context.Context, job *models.ScrapeJob) error {
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *GormStore) UpdateJob(ctx context.Context, job *models.ScrapeJob) error {
	return s.db.WithContext(ctx).Save(job).Error
}

func (s *GormStore) JobByID(ctx context.Context, id string) (*models.ScrapeJob, error) {
	var job models.ScrapeJob
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *GormStore) UpdateJobStatusIf(ctx context.Context, id, expect, to string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.ScrapeJob{}).
		Where("id = ? AND status = ?", id, expect).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) CreateVendorRecord(ctx context.Context, rec *models.VendorJobRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GormStore) VendorRecords(ctx context.Context, jobID string) ([]*models.VendorJobRecord, error) {
	var recs []*models.VendorJobRecord
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id").
		Find(&recs).Error
	return recs, err
}

func (s *GormStore) WriteItems(ctx context.Context, items []*models.ScrapedItem) error {
	if len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(items, 100).Error
	})
}

func (s *GormStore) Items(ctx context.Context, jobID, vendorID string) ([]*models.ScrapedItem, error) {
	var items []*models.ScrapedItem
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND vendor_id = ?", jobID, vendorID).
		Order("id").
		Find(&items).Error
	return items, err
}

func (s *GormStore) Whitelists(ctx context.Context) ([]*models.VendorURLWhitelist, error) {
	var lists []*models.VendorURLWhitelist
	err := s.db.WithContext(ctx).Order("id").Find(&lists).Error
	return lists, err
}

func (s *GormStore) WhitelistByVendor(ctx context.Context, vendorID string) (*models.VendorURLWhitelist, error) {
	var wl models.VendorURLWhitelist
	err := s.db.WithContext(ctx).First(&wl, "vendor_id = ?", vendorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wl, nil
}

func (s *GormStore) OfferByMatchKey(ctx context.Context, key string) (*models.VendorOffer, error) {
	var offer models.VendorOffer
	err := s.db.WithContext(ctx).First(&offer, "match_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (s *GormStore) CreateOffer(ctx context.Context, offer *models.VendorOffer) error {
	return s.db.WithContext(ctx).Create(offer).Error
}

func (s *GormStore) UpdateOffer(ctx context.Context, offer *models.VendorOffer) error {
	return s.db.WithContext(ctx).Save(offer).Error
}

func (s *GormStore) AppendHistory(ctx context.Context, entry *models.OfferPriceHistoryEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormStore) HistoryByOffer(ctx context.Context, offerID uint) ([]*models.OfferPriceHistoryEntry, error) {
	var entries []*models.OfferPriceHistoryEntry
	err := s.db.WithContext(ctx).
		Where("offer_id = ?", offerID).
		Order("id").
		Find(&entries).Error
	return entries, err
}

func (s *GormStore) SelectorSet(ctx context.Context, vendorID string) (*models.SelectorSet, error) {
	var set models.SelectorSet
	err := s.db.WithContext(ctx).First(&set, "vendor_id = ?", vendorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &set, nil
}

// SaveSelectorSet overwrites the vendor's cached selectors. Discovery never
// merges old and new sets, so the write is a wholesale upsert on vendor_id.
func (s *GormStore) SaveSelectorSet(ctx context.Context, set *models.SelectorSet) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "vendor_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"category_urls", "product_urls",
			"link_selector", "link_attr",
			"title_selector", "title_attr",
			"price_selector", "price_attr",
			"size_selector", "size_attr",
			"confidence", "discovered_at", "updated_at",
		}),
	}).Create(set).Error
}
