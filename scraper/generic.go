package scraper

import (
	"context"

	"github.com/PuerkitoBio/goquery"
	"github.com/peptrack/pricewatch/models"
	"github.com/peptrack/pricewatch/parser"
)

// genericLinkFallbacks locate product links when the discovered selector
// comes up empty.
var genericLinkFallbacks = []string{
	"a[href*='/product/']",
	"a[href*='/products/']",
	"a[href*='/shop/']",
	"a[href*='/item/']",
}

// genericStrategy is the heuristic path driven by a discovered selector
// set, with generic fallbacks when a discovered selector misses.
type genericStrategy struct {
	s   *VendorScraper
	set *models.SelectorSet
}

func newGenericStrategy(s *VendorScraper, set *models.SelectorSet) *genericStrategy {
	return &genericStrategy{s: s, set: set}
}

func (g *genericStrategy) Name() string {
	return "generic"
}

// Scrape walks category pages first, then direct product-page entries,
// de-duplicating by product URL. Discovered links are validated against
// the same-domain predicate; same-domain links outside the whitelist are
// logged and skipped, never fetched.
func (g *genericStrategy) Scrape(ctx context.Context) ([]models.RawScrapeResult, error) {
	var results []models.RawScrapeResult
	seen := make(map[string]struct{})

	for _, categoryURL := range g.set.CategoryURLs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		doc, err := g.s.fetchDoc(ctx, categoryURL)
		if err != nil {
			g.s.warnf("category %s failed: %v", categoryURL, err)
			continue
		}

		links := g.productLinks(doc, categoryURL)
		visited := 0
		for _, link := range links {
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}

			if !g.s.enforcer.IsSameDomain(link) {
				g.s.warnf("product url %s is off-domain, skipped", link)
				continue
			}
			if !g.s.enforcer.IsAllowed(link) {
				g.s.warnf("product url %s not whitelisted, skipped", link)
				continue
			}
			if g.s.cfg.MaxProductPages > 0 && visited >= g.s.cfg.MaxProductPages {
				g.s.warnf("category %s truncated at %d product pages", categoryURL, visited)
				break
			}
			visited++

			if result, ok := g.scrapeProduct(ctx, link); ok {
				results = append(results, result)
			}
		}
	}

	for _, productURL := range g.set.ProductURLs {
		normalized := parser.NormalizeURL(productURL)
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}

		if err := ctx.Err(); err != nil {
			return results, err
		}
		if result, ok := g.scrapeProduct(ctx, productURL); ok {
			results = append(results, result)
		}
	}

	return results, nil
}

// productLinks extracts normalized absolute product links from a category
// page, in discovery order.
func (g *genericStrategy) productLinks(doc *goquery.Document, pageURL string) []string {
	selectors := append([]string{g.set.ProductLink.Selector}, genericLinkFallbacks...)

	var links []string
	dedup := make(map[string]struct{})
	for _, sel := range selectors {
		if sel == "" {
			continue
		}
		doc.Find(sel).Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok {
				return
			}
			abs := parser.NormalizeURL(parser.AbsoluteURL(pageURL, href))
			if abs == "" || abs == parser.NormalizeURL(pageURL) {
				return
			}
			if _, dup := dedup[abs]; dup {
				return
			}
			dedup[abs] = struct{}{}
			links = append(links, abs)
		})
		if len(links) > 0 {
			break
		}
	}
	return links
}

func (g *genericStrategy) scrapeProduct(ctx context.Context, productURL string) (models.RawScrapeResult, bool) {
	doc, err := g.s.fetchDoc(ctx, productURL)
	if err != nil {
		g.s.warnf("product %s failed: %v", productURL, err)
		return models.RawScrapeResult{}, false
	}

	title := textOf(findFirst(doc, g.set.Title.Selector))
	if title == "" {
		title = heuristicTitle(doc)
	}
	if title == "" {
		g.s.warnf("product %s has no title, skipped", productURL)
		return models.RawScrapeResult{}, false
	}

	rawPrice := textOf(findFirst(doc, g.set.Price.Selector))
	if rawPrice == "" {
		rawPrice = heuristicPrice(doc)
	}

	rawSize := textOf(findFirst(doc, g.set.Size.Selector))
	if rawSize == "" {
		rawSize = sizeText(title, doc)
	}

	return buildResult(g.s.wl.VendorID, parser.NormalizeURL(productURL), title, rawPrice, rawSize), true
}
