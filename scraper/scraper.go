// Package scraper implements the per-vendor scraping strategies: a
// templated fast path for fingerprinted e-commerce platforms and a generic
// heuristic path driven by discovered selectors, plus selector discovery
// with confidence scoring and its cache.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/peptrack/pricewatch/config"
	"github.com/peptrack/pricewatch/fetch"
	"github.com/peptrack/pricewatch/models"
	"github.com/peptrack/pricewatch/parser"
	"github.com/peptrack/pricewatch/store"
)

// LowConfidenceError is the hard failure returned when selector discovery
// cannot reach the minimum confidence threshold for a vendor. The vendor
// run aborts; no scrape is attempted on low-confidence selectors.
type LowConfidenceError struct {
	VendorID   string
	Confidence float64
	Minimum    float64
}

func (e *LowConfidenceError) Error() string {
	return fmt.Sprintf("selector discovery for vendor %s reached confidence %.2f, below minimum %.2f",
		e.VendorID, e.Confidence, e.Minimum)
}

// Strategy produces raw scrape results for one vendor.
type Strategy interface {
	Name() string
	Scrape(ctx context.Context) ([]models.RawScrapeResult, error)
}

// VendorScraper selects and runs the scraping strategy for one vendor. All
// of its fetches go through the whitelist enforcer.
type VendorScraper struct {
	wl       *models.VendorURLWhitelist
	enforcer *fetch.Enforcer
	cfg      *config.Config
	cache    *SelectorCache
	metrics  *Metrics

	warnings []string

	primedURL  string
	primedBody []byte
}

// NewVendorScraper wires a scraper for one vendor. cache is required: the
// strategy is not known until the probe page is fetched, so even vendors
// expected to take the templated path may need selector discovery.
func NewVendorScraper(wl *models.VendorURLWhitelist, enforcer *fetch.Enforcer, cfg *config.Config, cache *SelectorCache, metrics *Metrics) *VendorScraper {
	return &VendorScraper{
		wl:       wl,
		enforcer: enforcer,
		cfg:      cfg,
		cache:    cache,
		metrics:  metrics,
	}
}

// Scrape runs the vendor's strategy and returns de-duplicated raw results
// plus the page-level warnings accumulated along the way. The first-page
// technology probe is mandatory: its failure fails the whole vendor run.
func (s *VendorScraper) Scrape(ctx context.Context) ([]models.RawScrapeResult, []string, error) {
	first := s.wl.AllowedURLs[0]
	body, err := s.enforcer.Fetch(ctx, first)
	if err != nil {
		return nil, s.warnings, fmt.Errorf("technology probe: %w", err)
	}
	s.primedURL = parser.NormalizeURL(first)
	s.primedBody = body

	platform := Detect(body)
	var strategy Strategy
	if platform != PlatformUnknown {
		strategy = newTemplatedStrategy(s, platform)
	} else {
		set, err := s.selectorSet(ctx)
		if err != nil {
			return nil, s.warnings, err
		}
		strategy = newGenericStrategy(s, set)
	}

	slog.Info("strategy selected",
		slog.String("vendor", s.wl.VendorID),
		slog.String("strategy", strategy.Name()),
	)

	results, err := strategy.Scrape(ctx)
	if err != nil {
		return nil, s.warnings, err
	}
	s.metrics.IncItems(len(results))
	return results, s.warnings, nil
}

// selectorSet applies the cache gate: reuse at or above the reuse
// threshold, otherwise rediscover and overwrite the cache; below the
// minimum after rediscovery the vendor fails hard.
func (s *VendorScraper) selectorSet(ctx context.Context) (*models.SelectorSet, error) {
	if s.cache == nil {
		return nil, fmt.Errorf("vendor %s needs selector discovery but no selector cache is configured", s.wl.VendorID)
	}
	cached, err := s.cache.Get(ctx, s.wl.VendorID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load selector cache: %w", err)
	}
	if cached != nil && cached.Confidence >= s.cfg.ReuseConfidence {
		slog.Debug("reusing cached selectors",
			slog.String("vendor", s.wl.VendorID),
			slog.Float64("confidence", cached.Confidence),
		)
		return cached, nil
	}

	set, err := discover(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("selector discovery: %w", err)
	}
	if err := s.cache.Put(ctx, set); err != nil {
		return nil, fmt.Errorf("save selector cache: %w", err)
	}
	if set.Confidence < s.cfg.MinConfidence {
		return nil, &LowConfidenceError{
			VendorID:   s.wl.VendorID,
			Confidence: set.Confidence,
			Minimum:    s.cfg.MinConfidence,
		}
	}
	return set, nil
}

// fetchDoc fetches through the enforcer, consuming the primed probe body
// for the first URL so the probe page is not fetched twice.
func (s *VendorScraper) fetchDoc(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if s.primedBody != nil && parser.NormalizeURL(rawURL) == s.primedURL {
		body := s.primedBody
		s.primedBody = nil
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", rawURL, err)
		}
		return doc, nil
	}
	return s.enforcer.FetchDoc(ctx, rawURL)
}

func (s *VendorScraper) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.warnings = append(s.warnings, msg)
	slog.Warn(msg, slog.String("vendor", s.wl.VendorID))
}

// findFirst returns the first non-empty selection among the candidate
// selectors, or nil.
func findFirst(doc *goquery.Document, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		if sel == "" {
			continue
		}
		found := doc.Find(sel)
		if found.Length() > 0 {
			return found.First()
		}
	}
	return nil
}

func textOf(sel *goquery.Selection) string {
	if sel == nil {
		return ""
	}
	return parser.NormalizeText(sel.Text())
}

// heuristicTitle falls back to the first h1, then the document title.
func heuristicTitle(doc *goquery.Document) string {
	if t := textOf(findFirst(doc, "h1")); t != "" {
		return t
	}
	return textOf(findFirst(doc, "title"))
}

// heuristicPrice scans elements whose class mentions "price" for the first
// parsable amount.
func heuristicPrice(doc *goquery.Document) string {
	var raw string
	doc.Find(`[class*="price"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := parser.NormalizeText(sel.Text())
		if _, ok := parser.ParsePrice(text); ok {
			raw = text
			return false
		}
		return true
	})
	return raw
}

// sizeText returns the text a size was extracted from: the title when it
// carries an "N mg" token, otherwise a regex scan of the page body.
func sizeText(title string, doc *goquery.Document) string {
	if _, ok := parser.ParseSize(title); ok {
		return title
	}
	if doc == nil {
		return ""
	}
	body := parser.NormalizeText(doc.Find("body").Text())
	if _, ok := parser.ParseSize(body); ok {
		return body
	}
	return ""
}

// buildResult assembles a raw result from extracted text. Validation
// happens later in the pricing package; here only parsing is attempted.
func buildResult(vendorID, productURL, title, rawPrice, rawSize string) models.RawScrapeResult {
	result := models.RawScrapeResult{
		PeptideName: parser.StripSize(title),
		VendorID:    vendorID,
		ProductURL:  productURL,
		RawPrice:    rawPrice,
		RawSize:     rawSize,
		ScrapedAt:   time.Now(),
	}
	if price, ok := parser.ParsePrice(rawPrice); ok {
		result.PriceUSD = price
	}
	if size, ok := parser.ParseSize(rawSize); ok {
		result.SizeMg = size
	}
	return result
}
