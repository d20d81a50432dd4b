// Package models defines the persistent and transient data types shared by
// the scraping pipeline.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Pricing tiers. Scraped data is always written at the research tier;
// telehealth and brand tiers belong to other ingestion paths and are never
// touched by this pipeline.
const (
	TierResearch = "research"
)

// Offer source types and verification states.
const (
	SourceScraped = "scraped"

	VerificationUnverified = "unverified"
	VerificationVerified   = "verified"
	VerificationFlagged    = "flagged"
)

// ResearchPricing is the tier-specific pricing block for research-grade
// peptide offers.
type ResearchPricing struct {
	SizeMg      float64 `json:"size_mg"`
	PriceUSD    float64 `json:"price_usd"`
	ShippingUSD float64 `json:"shipping_usd"`
	PricePerMg  float64 `json:"price_per_mg"`
}

// Equal reports whether two pricing blocks carry identical values.
func (p ResearchPricing) Equal(other ResearchPricing) bool {
	return p.SizeMg == other.SizeMg &&
		p.PriceUSD == other.PriceUSD &&
		p.ShippingUSD == other.ShippingUSD &&
		p.PricePerMg == other.PricePerMg
}

// ChangedFields lists the names of pricing fields that differ between p and
// other, in a fixed order.
func (p ResearchPricing) ChangedFields(other ResearchPricing) []string {
	var changed []string
	if p.SizeMg != other.SizeMg {
		changed = append(changed, "size_mg")
	}
	if p.PriceUSD != other.PriceUSD {
		changed = append(changed, "price_usd")
	}
	if p.ShippingUSD != other.ShippingUSD {
		changed = append(changed, "shipping_usd")
	}
	if p.PricePerMg != other.PricePerMg {
		changed = append(changed, "price_per_mg")
	}
	return changed
}

// VendorOffer is the canonical record of "vendor X sells peptide Y at price
// Z". It is created on first sighting and updated in place afterwards; the
// pipeline never deletes offers.
type VendorOffer struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	MatchKey    string `gorm:"type:varchar(191);uniqueIndex;not null"`
	VendorID    string `gorm:"type:varchar(64);index;not null"`
	VendorName  string
	Tier        string `gorm:"type:varchar(32);not null"`
	PeptideName string `gorm:"not null"`
	ProductURL  string

	Pricing ResearchPricing `gorm:"embedded;embeddedPrefix:pricing_"`

	SourceType         string `gorm:"type:varchar(32)"`
	VerificationStatus string `gorm:"type:varchar(32)"`

	BatchID       string `gorm:"type:varchar(36);index"`
	JobID         string `gorm:"type:varchar(36);index"`
	CreatedBy     string `gorm:"type:varchar(128)"`
	FirstSeenAt   time.Time
	LastCheckedAt time.Time
}

// ComputeMatchKey derives the identity under which an offer is upserted:
// vendor, tier, normalized peptide name, and the tier-discriminating size.
func ComputeMatchKey(vendorID, tier, peptideName string, sizeMg float64) string {
	return fmt.Sprintf("%s|%s|%s|%s", vendorID, tier, NormalizeName(peptideName), trimFloat(sizeMg))
}

// MatchKeyFor returns the offer's own match key, recomputed from its fields.
func (o *VendorOffer) MatchKeyFor() string {
	return ComputeMatchKey(o.VendorID, o.Tier, o.PeptideName, o.Pricing.SizeMg)
}

// NormalizeName canonicalizes a peptide name for identity comparison:
// lowercased, whitespace collapsed, unicode dashes unified.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "–", "-")
	name = strings.ReplaceAll(name, "—", "-")
	return strings.Join(strings.Fields(name), " ")
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.3f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// OfferPriceHistoryEntry is an append-only record written exactly when an
// upsert detects a pricing change on an existing offer.
type OfferPriceHistoryEntry struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	OfferID  uint   `gorm:"index;not null"`
	MatchKey string `gorm:"type:varchar(191);index"`

	OldPricing ResearchPricing `gorm:"embedded;embeddedPrefix:old_"`
	NewPricing ResearchPricing `gorm:"embedded;embeddedPrefix:new_"`

	ChangedFields []string `gorm:"serializer:json"`
	PercentChange float64

	BatchID string `gorm:"type:varchar(36)"`
	JobID   string `gorm:"type:varchar(36)"`
}
