package scraper

import (
	"context"

	"github.com/PuerkitoBio/goquery"
	"github.com/peptrack/pricewatch/models"
	"github.com/peptrack/pricewatch/parser"
)

// platformTemplate captures the structural conventions of a known
// e-commerce platform.
type platformTemplate struct {
	listItem     string
	listLink     []string
	listTitle    []string
	listPrice    []string
	productTitle []string
	productPrice []string
}

var templates = map[Platform]platformTemplate{
	PlatformWooCommerce: {
		listItem:     "li.product",
		listLink:     []string{"a.woocommerce-LoopProduct-link", "a[href]"},
		listTitle:    []string{"h2.woocommerce-loop-product__title", "h2", "h3"},
		listPrice:    []string{"span.woocommerce-Price-amount", ".price"},
		productTitle: []string{"h1.product_title", "h1.entry-title", "h1"},
		productPrice: []string{"p.price span.woocommerce-Price-amount", "p.price", ".price"},
	},
	PlatformShopify: {
		listItem:     "li.grid__item, .product-card, .grid-product__content",
		listLink:     []string{"a[href*='/products/']", "a[href]"},
		listTitle:    []string{".card__heading", ".product-card__title", ".grid-product__title", "h3", "h2"},
		listPrice:    []string{".price-item--regular", ".price-item", ".price", ".product-card__price"},
		productTitle: []string{"h1.product__title", "h1.product-single__title", "h1"},
		productPrice: []string{".price-item--regular", ".price .price-item", "span.price", ".price"},
	},
}

// templatedStrategy is the fast path for vendors on a fingerprinted
// platform: listing and product pages are walked using platform-specific
// conventions, no selector discovery needed.
type templatedStrategy struct {
	s        *VendorScraper
	platform Platform
	tpl      platformTemplate
}

func newTemplatedStrategy(s *VendorScraper, platform Platform) *templatedStrategy {
	return &templatedStrategy{s: s, platform: platform, tpl: templates[platform]}
}

func (t *templatedStrategy) Name() string {
	return "templated/" + string(t.platform)
}

// Scrape tries each whitelisted URL first as a listing page and, when that
// yields nothing, as a single product page. Results are de-duplicated by
// product URL; a failure on one page is logged and skipped.
func (t *templatedStrategy) Scrape(ctx context.Context) ([]models.RawScrapeResult, error) {
	var results []models.RawScrapeResult
	seen := make(map[string]struct{})

	for _, pageURL := range t.s.wl.AllowedURLs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		doc, err := t.s.fetchDoc(ctx, pageURL)
		if err != nil {
			t.s.warnf("page %s failed: %v", pageURL, err)
			continue
		}

		listed := t.extractListing(doc, pageURL, seen)
		if len(listed) > 0 {
			results = append(results, listed...)
			continue
		}

		if result, ok := t.extractProduct(doc, pageURL, seen); ok {
			results = append(results, result)
		} else {
			t.s.warnf("page %s matched no %s listing or product structure", pageURL, t.platform)
		}
	}

	return results, nil
}

func (t *templatedStrategy) extractListing(doc *goquery.Document, pageURL string, seen map[string]struct{}) []models.RawScrapeResult {
	var out []models.RawScrapeResult

	doc.Find(t.tpl.listItem).Each(func(_ int, card *goquery.Selection) {
		link := firstAttr(card, "href", t.tpl.listLink...)
		productURL := parser.NormalizeURL(parser.AbsoluteURL(pageURL, link))
		if productURL == "" {
			productURL = parser.NormalizeURL(pageURL)
		}
		if _, dup := seen[productURL]; dup {
			if link == "" {
				t.s.warnf("listing card on %s has no product link, collapsed into %s", pageURL, productURL)
			}
			return
		}

		title := firstChildText(card, t.tpl.listTitle...)
		if title == "" {
			return
		}
		rawPrice := firstChildText(card, t.tpl.listPrice...)

		seen[productURL] = struct{}{}
		out = append(out, buildResult(t.s.wl.VendorID, productURL, title, rawPrice, title))
	})

	return out
}

func (t *templatedStrategy) extractProduct(doc *goquery.Document, pageURL string, seen map[string]struct{}) (models.RawScrapeResult, bool) {
	normalized := parser.NormalizeURL(pageURL)
	if _, dup := seen[normalized]; dup {
		return models.RawScrapeResult{}, false
	}

	title := textOf(findFirst(doc, t.tpl.productTitle...))
	if title == "" {
		return models.RawScrapeResult{}, false
	}
	rawPrice := textOf(findFirst(doc, t.tpl.productPrice...))
	rawSize := sizeText(title, doc)

	seen[normalized] = struct{}{}
	return buildResult(t.s.wl.VendorID, normalized, title, rawPrice, rawSize), true
}

func firstChildText(sel *goquery.Selection, selectors ...string) string {
	for _, candidate := range selectors {
		found := sel.Find(candidate)
		if found.Length() > 0 {
			if text := parser.NormalizeText(found.First().Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

func firstAttr(sel *goquery.Selection, attr string, selectors ...string) string {
	for _, candidate := range selectors {
		found := sel.Find(candidate)
		if found.Length() > 0 {
			if value, ok := found.First().Attr(attr); ok && value != "" {
				return value
			}
		}
	}
	return ""
}
