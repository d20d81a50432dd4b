package pipeline

import (
	"github.com/peptrack/pricewatch/models"
)

// RepresentativeSampleTag marks valid items kept under the sampling cap.
const RepresentativeSampleTag = "representative_sample"

// SampleItems applies the cost-controlled audit policy to one vendor's
// results: every invalid result is stored, while valid results are capped
// at the first sampleSize, tagged as a representative sample. The rest are
// dropped to bound storage growth. actions maps product URL to the upsert
// action the corresponding offer received.
func SampleItems(jobID, vendorID string, results []models.RawScrapeResult, actions map[string]string, sampleSize int) []*models.ScrapedItem {
	var items []*models.ScrapedItem
	validKept := 0

	for _, result := range results {
		if result.Valid && validKept >= sampleSize {
			continue
		}

		item := &models.ScrapedItem{
			JobID:       jobID,
			VendorID:    vendorID,
			PeptideName: result.PeptideName,
			ProductURL:  result.ProductURL,
			RawPrice:    result.RawPrice,
			RawSize:     result.RawSize,
			PriceUSD:    result.PriceUSD,
			SizeMg:      result.SizeMg,
			ScrapedAt:   result.ScrapedAt,
		}
		if result.Valid {
			item.Status = models.ItemStored
			item.SampleTag = RepresentativeSampleTag
			item.UpsertAction = actions[result.ProductURL]
			validKept++
		} else {
			item.Status = models.ItemValidationFailed
			item.FailureReason = result.FailureReason
		}
		items = append(items, item)
	}

	return items
}
