package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the pipeline on a dedicated
// registry. It satisfies fetch.Recorder.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	ItemsScraped    prometheus.Counter
	OffersTotal     *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	VendorsFailed   prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_requests_total",
			Help: "Total HTTP requests issued through the whitelist enforcer.",
		},
		[]string{"vendor", "phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricewatch_request_duration_seconds",
			Help:    "HTTP request latency for enforced fetches.",
			Buckets: prometheus.DefBuckets,
		},
	)
	itemsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricewatch_items_scraped_total",
			Help: "Total number of raw scrape results produced.",
		},
	)
	offers := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_offers_total",
			Help: "Offer upsert outcomes by action.",
		},
		[]string{"action"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)
	vendorsFailed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricewatch_vendors_failed_total",
			Help: "Vendor runs that ended in failure.",
		},
	)

	registry.MustRegister(requests, requestDuration, itemsScraped, offers, errorsTotal, vendorsFailed)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		ItemsScraped:    itemsScraped,
		OffersTotal:     offers,
		ErrorsTotal:     errorsTotal,
		VendorsFailed:   vendorsFailed,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(vendor, phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(vendor, phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncItems adds to the raw results counter.
func (m *Metrics) IncItems(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsScraped.Add(float64(n))
}

// IncOffers records upsert outcomes by action label.
func (m *Metrics) IncOffers(action string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OffersTotal.WithLabelValues(action).Add(float64(n))
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncVendorFailed counts one failed vendor run.
func (m *Metrics) IncVendorFailed() {
	if m == nil {
		return
	}
	m.VendorsFailed.Inc()
}
