// Package fetch implements the whitelist enforcer, the single authorized
// egress path for the pipeline. Every outbound request is validated against
// the vendor's administrator-maintained URL allow-list before any network
// I/O happens; no other package performs raw HTTP requests.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/peptrack/pricewatch/config"
	"github.com/peptrack/pricewatch/models"
	"github.com/peptrack/pricewatch/parser"
)

// Recorder receives fetch-level metric events. All methods must be nil-safe
// on the implementing side; the enforcer also tolerates a nil Recorder.
type Recorder interface {
	IncRequest(vendor, phase string)
	ObserveDuration(d time.Duration)
	IncError(label string)
}

// Enforcer gates all outbound fetches for one vendor.
type Enforcer struct {
	vendorID  string
	allowed   map[string]struct{}
	hosts     map[string]struct{}
	delay     time.Duration
	collector *colly.Collector
	recorder  Recorder

	mu         sync.Mutex
	lastBody   []byte
	lastStatus int
}

// NewEnforcer builds an enforcer for one vendor's whitelist. The underlying
// collector runs synchronously; the pipeline fetches one page at a time.
func NewEnforcer(wl *models.VendorURLWhitelist, cfg *config.Config, recorder Recorder) (*Enforcer, error) {
	if wl == nil || len(wl.AllowedURLs) == 0 {
		return nil, fmt.Errorf("vendor %s has no whitelisted urls", vendorIDOf(wl))
	}

	allowed := make(map[string]struct{}, len(wl.AllowedURLs))
	hosts := make(map[string]struct{})
	var domains []string
	for _, raw := range wl.AllowedURLs {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("vendor %s whitelist entry %q is not a valid url", wl.VendorID, raw)
		}
		allowed[parser.NormalizeURL(raw)] = struct{}{}
		host := parser.Host(raw)
		if _, seen := hosts[host]; !seen {
			hosts[host] = struct{}{}
			domains = append(domains, host, "www."+host)
		}
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(domains...),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)

	e := &Enforcer{
		vendorID:  wl.VendorID,
		allowed:   allowed,
		hosts:     hosts,
		delay:     cfg.FetchDelay,
		collector: collector,
		recorder:  recorder,
	}

	collector.OnResponse(func(r *colly.Response) {
		e.mu.Lock()
		e.lastBody = r.Body
		e.lastStatus = r.StatusCode
		e.mu.Unlock()
	})
	collector.OnError(func(r *colly.Response, _ error) {
		if r == nil {
			return
		}
		e.mu.Lock()
		e.lastStatus = r.StatusCode
		e.mu.Unlock()
	})

	return e, nil
}

func vendorIDOf(wl *models.VendorURLWhitelist) string {
	if wl == nil {
		return "unknown"
	}
	return wl.VendorID
}

// WithTransport swaps the HTTP transport, used by tests to inject a mock.
func (e *Enforcer) WithTransport(t http.RoundTripper) {
	e.collector.WithTransport(t)
}

// VendorID returns the vendor this enforcer guards.
func (e *Enforcer) VendorID() string {
	return e.vendorID
}

// AllowedURLs returns the normalized whitelist entries in no particular
// order.
func (e *Enforcer) AllowedURLs() []string {
	out := make([]string, 0, len(e.allowed))
	for u := range e.allowed {
		out = append(out, u)
	}
	return out
}

// IsAllowed reports whether the URL is an exact (normalized) member of the
// vendor's whitelist. Only allowed URLs are ever fetched.
func (e *Enforcer) IsAllowed(raw string) bool {
	_, ok := e.allowed[parser.NormalizeURL(raw)]
	return ok
}

// IsSameDomain reports whether the URL shares a registrable domain with any
// whitelist entry. Discovered product links are validated with this
// predicate; same-domain links outside the whitelist are still declined for
// fetching.
func (e *Enforcer) IsSameDomain(raw string) bool {
	host := parser.Host(raw)
	if host == "" {
		return false
	}
	_, ok := e.hosts[host]
	return ok
}

// Fetch retrieves the body of a whitelisted URL. Non-whitelisted URLs fail
// with ErrAccessDenied before any network I/O. Transport and HTTP failures
// come back classified per the error taxonomy in this package.
func (e *Enforcer) Fetch(ctx context.Context, raw string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !e.IsAllowed(raw) {
		err := ErrAccessDenied{URL: raw}
		if e.recorder != nil {
			e.recorder.IncError(ErrorLabel(err))
		}
		return nil, err
	}

	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.delay):
		}
	}

	e.mu.Lock()
	e.lastBody = nil
	e.lastStatus = 0
	e.mu.Unlock()

	if e.recorder != nil {
		e.recorder.IncRequest(e.vendorID, "fetch")
	}
	start := time.Now()
	err := e.collector.Visit(raw)
	if e.recorder != nil {
		e.recorder.ObserveDuration(time.Since(start))
	}

	e.mu.Lock()
	body := e.lastBody
	status := e.lastStatus
	e.mu.Unlock()

	if err != nil {
		classified := classifyError(err, status)
		if e.recorder != nil {
			e.recorder.IncError(ErrorLabel(classified))
		}
		return nil, fmt.Errorf("fetch %s: %w", raw, classified)
	}
	return body, nil
}

// FetchDoc retrieves a whitelisted URL and parses it into a goquery
// document.
func (e *Enforcer) FetchDoc(ctx context.Context, raw string) (*goquery.Document, error) {
	body, err := e.Fetch(ctx, raw)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", raw, err)
	}
	return doc, nil
}
