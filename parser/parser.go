// Package parser provides stateless extraction helpers shared by every
// scraping strategy: price, size, and URL normalization.
package parser

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	priceRe = regexp.MustCompile(`(\d{1,3}(?:,\d{3})*(?:\.\d+)?|\d+(?:\.\d+)?)`)
	sizeRe  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(mg|mcg|g)\b`)
	multRe  = regexp.MustCompile(`(?i)(\d+)\s*[x×]\s*(\d+(?:\.\d+)?)\s*(mg|mcg|g)\b`)
)

// NormalizeText collapses whitespace runs and trims the result.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ParsePrice extracts the first monetary amount from raw price text.
// Currency symbols, thousands separators, and "From ..." prefixes are
// tolerated. Returns false when no positive amount is present.
func ParsePrice(text string) (float64, bool) {
	text = NormalizeText(text)
	if text == "" {
		return 0, false
	}
	match := priceRe.FindString(text)
	if match == "" {
		return 0, false
	}
	match = strings.ReplaceAll(match, ",", "")
	value, err := strconv.ParseFloat(match, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

// ParseSize extracts a size in milligrams from raw text. Handles "10mg",
// "10 MG", "250 mcg", "1g", and pack notation like "2 x 5mg". Returns false
// when no positive size is present.
func ParseSize(text string) (float64, bool) {
	text = NormalizeText(text)
	if text == "" {
		return 0, false
	}
	if m := multRe.FindStringSubmatch(text); m != nil {
		count, err1 := strconv.ParseFloat(m[1], 64)
		each, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil {
			mg := count * toMilligrams(each, m[3])
			if mg > 0 {
				return mg, true
			}
		}
	}
	m := sizeRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	mg := toMilligrams(value, m[2])
	if mg <= 0 {
		return 0, false
	}
	return mg, true
}

func toMilligrams(value float64, unit string) float64 {
	switch strings.ToLower(unit) {
	case "mg":
		return value
	case "mcg":
		return value / 1000
	case "g":
		return value * 1000
	default:
		return 0
	}
}

// StripSize removes a trailing size token from a product title, so
// "BPC-157 10mg" and "BPC-157 5mg" share a peptide name.
func StripSize(title string) string {
	cleaned := sizeRe.ReplaceAllString(title, "")
	cleaned = strings.Trim(cleaned, " -–—,()")
	cleaned = NormalizeText(cleaned)
	if cleaned == "" {
		return NormalizeText(title)
	}
	return cleaned
}

// AbsoluteURL resolves href against base. Returns empty string on
// unparsable input.
func AbsoluteURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	h, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return b.ResolveReference(h).String()
}

// NormalizeURL canonicalizes a URL for identity comparison: lowercased
// scheme and host, fragment dropped, trailing slash trimmed.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// Host returns the lowercased host of a URL without any www prefix, the
// registrable-domain approximation used for same-domain checks.
func Host(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
