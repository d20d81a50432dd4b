package pricing

import (
	"testing"

	"github.com/peptrack/pricewatch/models"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		result     models.RawScrapeResult
		wantValid  bool
		wantReason string
	}{
		{
			name:      "size and price present",
			result:    models.RawScrapeResult{SizeMg: 10, PriceUSD: 49.99},
			wantValid: true,
		},
		{
			name:       "missing size",
			result:     models.RawScrapeResult{SizeMg: 0, PriceUSD: 49.99},
			wantValid:  false,
			wantReason: models.ReasonMissingSize,
		},
		{
			name:       "missing price",
			result:     models.RawScrapeResult{SizeMg: 10, PriceUSD: 0},
			wantValid:  false,
			wantReason: models.ReasonMissingPrice,
		},
		{
			name:       "both missing reports size first",
			result:     models.RawScrapeResult{},
			wantValid:  false,
			wantReason: models.ReasonMissingSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(tt.result)
			if got.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v", got.Valid, tt.wantValid)
			}
			if got.FailureReason != tt.wantReason {
				t.Fatalf("FailureReason = %q, want %q", got.FailureReason, tt.wantReason)
			}
		})
	}
}

func TestBuildPricing(t *testing.T) {
	got := BuildPricing(10, 50, 8)
	if got == nil {
		t.Fatal("BuildPricing(10, 50, 8) = nil, want pricing block")
	}
	if got.PricePerMg != 5 {
		t.Fatalf("PricePerMg = %v, want 5", got.PricePerMg)
	}
	if got.ShippingUSD != 8 {
		t.Fatalf("ShippingUSD = %v, want 8", got.ShippingUSD)
	}

	// A pricing block must never be derived from partial extraction.
	if BuildPricing(0, 50, 0) != nil {
		t.Fatal("BuildPricing with zero size: want nil")
	}
	if BuildPricing(10, 0, 0) != nil {
		t.Fatal("BuildPricing with zero price: want nil")
	}
	if BuildPricing(-5, 50, 0) != nil {
		t.Fatal("BuildPricing with negative size: want nil")
	}

	if got := BuildPricing(10, 50, -3); got == nil || got.ShippingUSD != 0 {
		t.Fatalf("negative shipping should clamp to 0, got %+v", got)
	}
}

func TestBuildOffer(t *testing.T) {
	result := models.RawScrapeResult{
		VendorID:    "vendor-1",
		PeptideName: "BPC-157",
		ProductURL:  "https://vendor1.test/product/bpc-157-10mg",
		SizeMg:      10,
		PriceUSD:    49.99,
	}

	offer := BuildOffer(result, "Vendor One")
	if offer == nil {
		t.Fatal("BuildOffer = nil, want offer")
	}
	if offer.Tier != models.TierResearch {
		t.Fatalf("Tier = %q, want %q", offer.Tier, models.TierResearch)
	}
	if offer.SourceType != models.SourceScraped {
		t.Fatalf("SourceType = %q, want %q", offer.SourceType, models.SourceScraped)
	}
	if offer.VerificationStatus != models.VerificationUnverified {
		t.Fatalf("VerificationStatus = %q, want %q", offer.VerificationStatus, models.VerificationUnverified)
	}
	want := models.ComputeMatchKey("vendor-1", models.TierResearch, "BPC-157", 10)
	if offer.MatchKey != want {
		t.Fatalf("MatchKey = %q, want %q", offer.MatchKey, want)
	}

	if BuildOffer(models.RawScrapeResult{VendorID: "vendor-1", PeptideName: "TB-500", PriceUSD: 40}, "Vendor One") != nil {
		t.Fatal("BuildOffer without size: want nil")
	}
}
