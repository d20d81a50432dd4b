package models

import "time"

// Validation failure reason codes attached to invalid RawScrapeResults.
const (
	ReasonMissingSize  = "missing size"
	ReasonMissingPrice = "missing price"
)

// RawScrapeResult is the transient, in-memory product of a vendor scraper.
// It is never persisted directly; the item sampler decides which results
// become ScrapedItem records.
type RawScrapeResult struct {
	PeptideName string
	VendorID    string
	ProductURL  string

	RawPrice string
	RawSize  string

	PriceUSD    float64
	SizeMg      float64
	ShippingUSD float64

	ScrapedAt     time.Time
	Valid         bool
	FailureReason string
}

// VendorURLWhitelist is the administrator-authored allow-list for one
// vendor. The pipeline only ever reads these records.
type VendorURLWhitelist struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	VendorID    string   `gorm:"type:varchar(64);uniqueIndex;not null"`
	VendorName  string   `gorm:"not null"`
	AllowedURLs []string `gorm:"serializer:json"`
	LastUpdated time.Time
}

// SelectorSpec locates one piece of page structure by CSS selector, with an
// optional attribute to read instead of text content.
type SelectorSpec struct {
	Selector string `json:"selector"`
	Attr     string `json:"attr,omitempty"`
}

// SelectorSet is the cached scraping strategy discovered for one vendor:
// which whitelisted URLs behave as category pages vs product pages, the
// selectors that locate links and fields, and a confidence score in [0,1].
type SelectorSet struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	VendorID string `gorm:"type:varchar(64);uniqueIndex;not null"`

	CategoryURLs []string `gorm:"serializer:json"`
	ProductURLs  []string `gorm:"serializer:json"`

	ProductLink SelectorSpec `gorm:"embedded;embeddedPrefix:link_"`
	Title       SelectorSpec `gorm:"embedded;embeddedPrefix:title_"`
	Price       SelectorSpec `gorm:"embedded;embeddedPrefix:price_"`
	Size        SelectorSpec `gorm:"embedded;embeddedPrefix:size_"`

	Confidence   float64
	DiscoveredAt time.Time
}
