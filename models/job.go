package models

import "time"

// Job trigger kinds.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Job statuses. A job starts running and is terminal once it leaves that
// state.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// Vendor run statuses.
const (
	VendorSuccess = "success"
	VendorPartial = "partial"
	VendorFailed  = "failed"
)

// Scraped item outcomes.
const (
	ItemStored           = "stored"
	ItemValidationFailed = "validation_failed"
)

// JobCounters aggregates what one run produced. The same shape is used
// job-wide and per vendor.
type JobCounters struct {
	VendorsSucceeded int `json:"vendors_succeeded"`
	VendorsFailed    int `json:"vendors_failed"`
	ProductsScraped  int `json:"products_scraped"`
	ProductsValid    int `json:"products_valid"`
	OffersCreated    int `json:"offers_created"`
	OffersUpdated    int `json:"offers_updated"`
	OffersUnchanged  int `json:"offers_unchanged"`
}

// Add accumulates another counter set into c.
func (c *JobCounters) Add(other JobCounters) {
	c.VendorsSucceeded += other.VendorsSucceeded
	c.VendorsFailed += other.VendorsFailed
	c.ProductsScraped += other.ProductsScraped
	c.ProductsValid += other.ProductsValid
	c.OffersCreated += other.OffersCreated
	c.OffersUpdated += other.OffersUpdated
	c.OffersUnchanged += other.OffersUnchanged
}

// ScrapeJob identifies one orchestration run across all configured vendors.
// It is created and mutated only by the orchestrator.
type ScrapeJob struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	CreatedAt time.Time
	UpdatedAt time.Time

	TriggerKind string `gorm:"type:varchar(16);not null"`
	InitiatedBy string `gorm:"type:varchar(128)"`

	Status      string `gorm:"type:varchar(16);index;not null"`
	StartedAt   time.Time
	CompletedAt *time.Time

	Counters      JobCounters `gorm:"embedded"`
	ErrorMessages []string    `gorm:"serializer:json"`
}

// VendorJobRecord captures the outcome of one vendor within one job. It is
// written once, after the vendor run finishes, and never updated.
type VendorJobRecord struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	JobID      string `gorm:"type:varchar(36);index;not null"`
	VendorID   string `gorm:"type:varchar(64);index;not null"`
	VendorName string

	Status      string `gorm:"type:varchar(16);not null"`
	StartedAt   time.Time
	CompletedAt time.Time

	Counters       JobCounters    `gorm:"embedded"`
	FailureReasons map[string]int `gorm:"serializer:json"`
	Warnings       []string       `gorm:"serializer:json"`
	Errors         []string       `gorm:"serializer:json"`
}

// ScrapedItem is the durable, sampled audit record of one raw scrape
// attempt. Invalid results are always stored; valid ones only up to the
// sample cap.
type ScrapedItem struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	JobID    string `gorm:"type:varchar(36);index;not null"`
	VendorID string `gorm:"type:varchar(64);index;not null"`

	PeptideName string
	ProductURL  string
	RawPrice    string
	RawSize     string
	PriceUSD    float64
	SizeMg      float64

	Status        string `gorm:"type:varchar(32)"`
	FailureReason string
	UpsertAction  string `gorm:"type:varchar(16)"`
	SampleTag     string `gorm:"type:varchar(32)"`

	ScrapedAt time.Time
}
