// Package pricing validates raw scrape results against research-tier
// business rules and derives the pricing fields persisted on offers.
//
// Research-tier validation is deliberately isolated: it never consults
// telehealth or brand pricing data and never imputes missing values.
package pricing

import (
	"github.com/peptrack/pricewatch/models"
)

// Validate applies the research-tier rules to a raw result and returns it
// with the validity flag and, when invalid, a failure reason set. A result
// is valid only when both a positive size and a positive price were
// extracted.
func Validate(result models.RawScrapeResult) models.RawScrapeResult {
	switch {
	case result.SizeMg <= 0:
		result.Valid = false
		result.FailureReason = models.ReasonMissingSize
	case result.PriceUSD <= 0:
		result.Valid = false
		result.FailureReason = models.ReasonMissingPrice
	default:
		result.Valid = true
		result.FailureReason = ""
	}
	return result
}

// BuildPricing computes the research pricing block. It returns nil unless
// both size and price are positive; callers must treat nil as
// "not persistable as an offer".
func BuildPricing(sizeMg, priceUSD, shippingUSD float64) *models.ResearchPricing {
	if sizeMg <= 0 || priceUSD <= 0 {
		return nil
	}
	if shippingUSD < 0 {
		shippingUSD = 0
	}
	return &models.ResearchPricing{
		SizeMg:      sizeMg,
		PriceUSD:    priceUSD,
		ShippingUSD: shippingUSD,
		PricePerMg:  priceUSD / sizeMg,
	}
}

// BuildOffer converts a validated result into a research-tier offer
// candidate. Returns nil when the result cannot yield a pricing block.
func BuildOffer(result models.RawScrapeResult, vendorName string) *models.VendorOffer {
	block := BuildPricing(result.SizeMg, result.PriceUSD, result.ShippingUSD)
	if block == nil {
		return nil
	}
	offer := &models.VendorOffer{
		VendorID:           result.VendorID,
		VendorName:         vendorName,
		Tier:               models.TierResearch,
		PeptideName:        result.PeptideName,
		ProductURL:         result.ProductURL,
		Pricing:            *block,
		SourceType:         models.SourceScraped,
		VerificationStatus: models.VerificationUnverified,
	}
	offer.MatchKey = offer.MatchKeyFor()
	return offer
}
