package scraper

import "strings"

// Platform identifies a known e-commerce platform fingerprinted from page
// markup.
type Platform string

const (
	PlatformWooCommerce Platform = "woocommerce"
	PlatformShopify     Platform = "shopify"
	PlatformUnknown     Platform = "unknown"
)

var (
	wooHints = []string{
		"wp-content/plugins/woocommerce",
		"woocommerce-page",
		"woocommerce-js",
		"class=\"woocommerce",
		"woocommerce-loopproduct-link",
		"woocommerce-price-amount",
	}
	shopifyHints = []string{
		"cdn.shopify.com",
		"shopify.theme",
		"shopify-section",
		"/cdn/shop/",
		"data-shopify",
	}
)

// Detect inspects raw page markup for platform fingerprints. It is a pure
// function of the first fetched page and decides which scraping strategy a
// vendor gets.
func Detect(body []byte) Platform {
	markup := strings.ToLower(string(body))
	if containsAny(markup, wooHints) {
		return PlatformWooCommerce
	}
	if containsAny(markup, shopifyHints) {
		return PlatformShopify
	}
	return PlatformUnknown
}

func containsAny(text string, hints []string) bool {
	for _, hint := range hints {
		if strings.Contains(text, hint) {
			return true
		}
	}
	return false
}
