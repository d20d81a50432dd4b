// Package pipeline contains the job orchestrator: it creates the job
// record, walks the configured vendors one at a time, isolates per-vendor
// failures, applies the audit sampling policy, and finalizes the job.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/peptrack/pricewatch/config"
	"github.com/peptrack/pricewatch/fetch"
	"github.com/peptrack/pricewatch/models"
	"github.com/peptrack/pricewatch/offers"
	"github.com/peptrack/pricewatch/pricing"
	"github.com/peptrack/pricewatch/scraper"
	"github.com/peptrack/pricewatch/store"
)

// Runner coordinates one scrape job end to end. Vendors run strictly
// sequentially; the only shared mutable resource is the offer store.
type Runner struct {
	store   store.Store
	cfg     *config.Config
	metrics *scraper.Metrics
	cache   *scraper.SelectorCache
	engine  *offers.Engine

	transport http.RoundTripper
}

// NewRunner builds an orchestrator over the given persistence port.
func NewRunner(st store.Store, cfg *config.Config, metrics *scraper.Metrics) (*Runner, error) {
	cache, err := scraper.NewSelectorCache(cfg.SelectorCacheSize, st)
	if err != nil {
		return nil, err
	}
	return &Runner{
		store:   st,
		cfg:     cfg,
		metrics: metrics,
		cache:   cache,
		engine:  offers.NewEngine(st),
	}, nil
}

// WithTransport injects an HTTP transport into every enforcer the runner
// creates. Used by tests to mock the network.
func (r *Runner) WithTransport(t http.RoundTripper) {
	r.transport = t
}

// RunJob executes one orchestration run. The returned job reflects its
// final persisted state. Cancellation is cooperative and coarse: the
// persisted job status is polled between vendors only, so a vendor already
// in flight always runs to completion.
func (r *Runner) RunJob(ctx context.Context, trigger, initiator string) (*models.ScrapeJob, error) {
	job := &models.ScrapeJob{
		ID:          uuid.NewString(),
		TriggerKind: trigger,
		InitiatedBy: initiator,
		Status:      models.JobRunning,
		StartedAt:   time.Now(),
	}
	if err := r.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	slog.Info("job started",
		slog.String("job_id", job.ID),
		slog.String("trigger", trigger),
	)

	whitelists, err := r.store.Whitelists(ctx)
	if err != nil {
		job.ErrorMessages = append(job.ErrorMessages, fmt.Sprintf("load whitelists: %v", err))
		return r.finalize(ctx, job, models.JobFailed)
	}
	if len(whitelists) == 0 {
		job.ErrorMessages = append(job.ErrorMessages, "no vendors configured: nothing to scrape")
		return r.finalize(ctx, job, models.JobFailed)
	}

	cancelled := false
	for _, wl := range whitelists {
		if r.cancellationRequested(ctx, job.ID) {
			cancelled = true
			break
		}

		rec := r.runVendor(ctx, job, wl)
		job.Counters.Add(rec.Counters)
		for _, msg := range rec.Errors {
			job.ErrorMessages = append(job.ErrorMessages, fmt.Sprintf("%s: %s", wl.VendorID, msg))
		}
	}

	switch {
	case cancelled:
		return r.finalize(ctx, job, models.JobCancelled)
	case job.Counters.VendorsSucceeded == 0:
		return r.finalize(ctx, job, models.JobFailed)
	default:
		return r.finalize(ctx, job, models.JobCompleted)
	}
}

// cancellationRequested polls the persisted status. An unreadable job is
// treated as not cancelled; the poll is best-effort by design.
func (r *Runner) cancellationRequested(ctx context.Context, jobID string) bool {
	current, err := r.store.JobByID(ctx, jobID)
	if err != nil {
		slog.Warn("cancellation poll failed", slog.String("job_id", jobID), slog.Any("error", err))
		return false
	}
	return current.Status == models.JobCancelled
}

// finalize persists the terminal status. Cancellation is only observed
// between vendors, so a cancel request that lands while the last vendor is
// in flight is overwritten here with completed or failed.
func (r *Runner) finalize(ctx context.Context, job *models.ScrapeJob, status string) (*models.ScrapeJob, error) {
	now := time.Now()
	job.Status = status
	job.CompletedAt = &now
	if err := r.store.UpdateJob(ctx, job); err != nil {
		return job, fmt.Errorf("finalize job %s: %w", job.ID, err)
	}
	slog.Info("job finished",
		slog.String("job_id", job.ID),
		slog.String("status", status),
		slog.Int("vendors_succeeded", job.Counters.VendorsSucceeded),
		slog.Int("vendors_failed", job.Counters.VendorsFailed),
		slog.Int("offers_created", job.Counters.OffersCreated),
		slog.Int("offers_updated", job.Counters.OffersUpdated),
	)
	return job, nil
}

// runVendor executes one vendor's scrape+validate+upsert+log sequence.
// Failures of any kind, panics included, are recorded on the vendor record
// and never abort the surrounding job.
func (r *Runner) runVendor(ctx context.Context, job *models.ScrapeJob, wl *models.VendorURLWhitelist) *models.VendorJobRecord {
	rec := &models.VendorJobRecord{
		JobID:          job.ID,
		VendorID:       wl.VendorID,
		VendorName:     wl.VendorName,
		StartedAt:      time.Now(),
		FailureReasons: make(map[string]int),
	}

	err := func() (err error) {
		defer func() {
			if rv := recover(); rv != nil {
				err = fmt.Errorf("vendor panic: %v", rv)
			}
		}()
		return r.scrapeVendor(ctx, job, wl, rec)
	}()

	rec.CompletedAt = time.Now()
	if err != nil {
		rec.Status = models.VendorFailed
		rec.Errors = append(rec.Errors, err.Error())
		rec.Counters.VendorsFailed = 1
		r.metrics.IncVendorFailed()
		slog.Error("vendor run failed",
			slog.String("job_id", job.ID),
			slog.String("vendor", wl.VendorID),
			slog.Any("error", err),
		)
	} else {
		rec.Counters.VendorsSucceeded = 1
	}

	if cerr := r.store.CreateVendorRecord(ctx, rec); cerr != nil {
		slog.Error("persist vendor record",
			slog.String("job_id", job.ID),
			slog.String("vendor", wl.VendorID),
			slog.Any("error", cerr),
		)
	}
	return rec
}

func (r *Runner) scrapeVendor(ctx context.Context, job *models.ScrapeJob, wl *models.VendorURLWhitelist, rec *models.VendorJobRecord) error {
	results, warnings, err := r.scrapeResults(ctx, wl)
	rec.Warnings = warnings
	if err != nil {
		return err
	}
	rec.Counters.ProductsScraped = len(results)
	if len(results) == 0 {
		return fmt.Errorf("no products extracted from %d whitelisted urls", len(wl.AllowedURLs))
	}

	var candidates []*models.VendorOffer
	urlKeys := make(map[string]string)
	for i, result := range results {
		results[i] = pricing.Validate(result)
		if !results[i].Valid {
			rec.FailureReasons[results[i].FailureReason]++
			continue
		}
		rec.Counters.ProductsValid++
		offer := pricing.BuildOffer(results[i], wl.VendorName)
		if offer == nil {
			continue
		}
		urlKeys[offer.ProductURL] = offer.MatchKey
		candidates = append(candidates, offer)
	}

	batchID := uuid.NewString()
	stats, err := r.engine.Upsert(ctx, candidates, batchID, job.InitiatedBy, job.ID)
	if err != nil {
		return fmt.Errorf("upsert offers: %w", err)
	}
	rec.Counters.OffersCreated = stats.Created
	rec.Counters.OffersUpdated = stats.Updated
	rec.Counters.OffersUnchanged = stats.Unchanged
	r.metrics.IncOffers(offers.ActionCreated, stats.Created)
	r.metrics.IncOffers(offers.ActionUpdated, stats.Updated)
	r.metrics.IncOffers(offers.ActionUnchanged, stats.Unchanged)

	actions := make(map[string]string, len(urlKeys))
	for productURL, key := range urlKeys {
		actions[productURL] = stats.Actions[key]
	}
	items := SampleItems(job.ID, wl.VendorID, results, actions, r.cfg.ValidSampleSize)
	if err := r.store.WriteItems(ctx, items); err != nil {
		return fmt.Errorf("write scraped items: %w", err)
	}

	invalid := rec.Counters.ProductsScraped - rec.Counters.ProductsValid
	if invalid > 0 || len(rec.Warnings) > 0 {
		rec.Status = models.VendorPartial
	} else {
		rec.Status = models.VendorSuccess
	}
	return nil
}

func (r *Runner) scrapeResults(ctx context.Context, wl *models.VendorURLWhitelist) ([]models.RawScrapeResult, []string, error) {
	enforcer, err := fetch.NewEnforcer(wl, r.cfg, r.metrics)
	if err != nil {
		return nil, nil, err
	}
	if r.transport != nil {
		enforcer.WithTransport(r.transport)
	}
	vs := scraper.NewVendorScraper(wl, enforcer, r.cfg, r.cache, r.metrics)
	return vs.Scrape(ctx)
}

// CancelJob requests cooperative cancellation of a running job. It reports
// whether the transition applied; a job that already left the running state
// is not touched.
func (r *Runner) CancelJob(ctx context.Context, jobID string) (bool, error) {
	return r.store.UpdateJobStatusIf(ctx, jobID, models.JobRunning, models.JobCancelled)
}

// VendorTestReport is the outcome of exercising one vendor's scraper in
// isolation, without touching the offer store.
type VendorTestReport struct {
	VendorID     string
	ValidCount   int
	InvalidCount int
	Valid        []models.RawScrapeResult
	Invalid      []models.RawScrapeResult
	Warnings     []string
}

// TestVendor scrapes and validates a single vendor and returns sampled
// valid and invalid results. No offers or items are persisted; only the
// selector cache may be refreshed as a side effect of discovery.
func (r *Runner) TestVendor(ctx context.Context, vendorID string) (*VendorTestReport, error) {
	wl, err := r.store.WhitelistByVendor(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("whitelist for vendor %s: %w", vendorID, err)
	}

	results, warnings, err := r.scrapeResults(ctx, wl)
	if err != nil {
		return nil, err
	}

	report := &VendorTestReport{VendorID: vendorID, Warnings: warnings}
	for _, result := range results {
		result = pricing.Validate(result)
		if result.Valid {
			report.ValidCount++
			if len(report.Valid) < r.cfg.ValidSampleSize {
				report.Valid = append(report.Valid, result)
			}
		} else {
			report.InvalidCount++
			if len(report.Invalid) < r.cfg.ValidSampleSize {
				report.Invalid = append(report.Invalid, result)
			}
		}
	}
	return report, nil
}
