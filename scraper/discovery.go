package scraper

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/peptrack/pricewatch/models"
	"github.com/peptrack/pricewatch/parser"
)

// Candidate selectors ranked by how specific they are; discovery scores
// them by signal agreement across the vendor's whitelisted pages.
var (
	linkCandidates = []string{
		"li.product a",
		".product a",
		".product-item a",
		"a[href*='/product/']",
		"a[href*='/products/']",
		"a[href*='/shop/']",
		"h2 a",
		"h3 a",
	}
	titleCandidates = []string{
		"h1.product_title",
		"h1.product-title",
		"h1.entry-title",
		"h1",
	}
	priceCandidates = []string{
		"p.price",
		"span.price",
		".product-price",
		".price",
		"[class*='price']",
	}
	sizeCandidates = []string{
		".size",
		"[class*='size']",
		"h1",
	}
)

// categoryLinkThreshold is the minimum number of distinct product links a
// page must yield to be classified as a listing page.
const categoryLinkThreshold = 3

// discover infers a fresh selector set for the vendor from its whitelisted
// pages. It is re-run in full on every invocation; the caller overwrites
// the cache with the outcome regardless of confidence.
func discover(ctx context.Context, s *VendorScraper) (*models.SelectorSet, error) {
	var (
		categoryURLs []string
		productURLs  []string
		samples      []*goquery.Document
		linkVotes    = make(map[string]int)
		checks, hits int
	)

	fetched := 0
	for _, pageURL := range s.wl.AllowedURLs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := s.fetchDoc(ctx, pageURL)
		if err != nil {
			s.warnf("discovery: page %s failed: %v", pageURL, err)
			continue
		}
		fetched++

		selector, count := bestLinkSelector(doc, pageURL)
		checks++
		if count >= categoryLinkThreshold {
			categoryURLs = append(categoryURLs, pageURL)
			linkVotes[selector]++
			hits++
			continue
		}

		productURLs = append(productURLs, pageURL)
		if textOf(findFirst(doc, titleCandidates...)) != "" {
			hits++
		}
		if len(samples) < s.cfg.DiscoverySamplePages {
			samples = append(samples, doc)
		}
	}
	if fetched == 0 {
		return nil, fmt.Errorf("vendor %s: no whitelisted page could be fetched", s.wl.VendorID)
	}

	linkSelector := topVote(linkVotes)
	if linkSelector == "" {
		linkSelector = "a[href*='/product/']"
	}

	titleSelector := pickSelector(samples, titleCandidates, func(text string) bool {
		return text != ""
	}, &checks, &hits)
	priceSelector := pickSelector(samples, priceCandidates, func(text string) bool {
		_, ok := parser.ParsePrice(text)
		return ok
	}, &checks, &hits)
	sizeSelector := pickSelector(samples, sizeCandidates, func(text string) bool {
		_, ok := parser.ParseSize(text)
		return ok
	}, &checks, &hits)

	confidence := 0.0
	if checks > 0 {
		confidence = math.Round(float64(hits)/float64(checks)*100) / 100
	}

	return &models.SelectorSet{
		VendorID:     s.wl.VendorID,
		CategoryURLs: categoryURLs,
		ProductURLs:  productURLs,
		ProductLink:  models.SelectorSpec{Selector: linkSelector, Attr: "href"},
		Title:        models.SelectorSpec{Selector: titleSelector},
		Price:        models.SelectorSpec{Selector: priceSelector},
		Size:         models.SelectorSpec{Selector: sizeSelector},
		Confidence:   confidence,
		DiscoveredAt: time.Now(),
	}, nil
}

// bestLinkSelector returns the candidate that yields the most distinct
// absolute links on the page, and that count.
func bestLinkSelector(doc *goquery.Document, pageURL string) (string, int) {
	bestSelector := ""
	bestCount := 0
	for _, candidate := range linkCandidates {
		distinct := make(map[string]struct{})
		doc.Find(candidate).Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok {
				return
			}
			abs := parser.NormalizeURL(parser.AbsoluteURL(pageURL, href))
			if abs == "" || abs == parser.NormalizeURL(pageURL) {
				return
			}
			distinct[abs] = struct{}{}
		})
		if len(distinct) > bestCount {
			bestCount = len(distinct)
			bestSelector = candidate
		}
	}
	return bestSelector, bestCount
}

// pickSelector scores each candidate by how many sampled product pages it
// extracts an acceptable value from, and records one check (and a hit on
// success) per sample for the confidence tally.
func pickSelector(samples []*goquery.Document, candidates []string, accept func(string) bool, checks, hits *int) string {
	if len(samples) == 0 {
		return ""
	}

	bestSelector := ""
	bestMatches := 0
	for _, candidate := range candidates {
		matches := 0
		for _, doc := range samples {
			if accept(textOf(findFirst(doc, candidate))) {
				matches++
			}
		}
		if matches > bestMatches {
			bestMatches = matches
			bestSelector = candidate
		}
	}

	*checks += len(samples)
	*hits += bestMatches
	return bestSelector
}

func topVote(votes map[string]int) string {
	best := ""
	bestCount := 0
	for _, candidate := range linkCandidates {
		if count := votes[candidate]; count > bestCount {
			bestCount = count
			best = candidate
		}
	}
	return best
}
