package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/peptrack/pricewatch/config"
	"github.com/peptrack/pricewatch/models"
	"github.com/peptrack/pricewatch/scraper"
	"github.com/peptrack/pricewatch/store"
)

type listedProduct struct {
	name  string
	price string
}

func wooListing(products []listedProduct) string {
	var b strings.Builder
	b.WriteString(`<html><body class="woocommerce"><ul class="products">`)
	for i, p := range products {
		fmt.Fprintf(&b, `<li class="product">
<a class="woocommerce-LoopProduct-link" href="/product/item-%d">
<h2 class="woocommerce-loop-product__title">%s</h2>
<span class="price"><span class="woocommerce-Price-amount">%s</span></span>
</a></li>`, i, p.name, p.price)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

func newTestRunner(t *testing.T, st store.Store) (*Runner, *httpmock.MockTransport) {
	t.Helper()
	runner, err := NewRunner(st, config.DefaultConfig(), scraper.NewMetrics())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	transport := httpmock.NewMockTransport()
	runner.WithTransport(transport)
	return runner, transport
}

func registerPage(transport *httpmock.MockTransport, url, body string) {
	responder := httpmock.NewStringResponder(200, body)
	transport.RegisterResponder("GET", url, responder)
	transport.RegisterResponder("GET", url+"/", responder)
}

func seedVendor(st *store.MemoryStore, vendorID, shopURL string) {
	st.SeedWhitelist(&models.VendorURLWhitelist{
		VendorID:    vendorID,
		VendorName:  strings.ToUpper(vendorID),
		AllowedURLs: []string{shopURL},
	})
}

func TestRunJobCreatesOffersAndRecordsUpdates(t *testing.T) {
	st := store.NewMemoryStore()
	seedVendor(st, "vendor-1", "http://vendor1.test/shop")
	runner, transport := newTestRunner(t, st)
	ctx := context.Background()

	registerPage(transport, "http://vendor1.test/shop", wooListing([]listedProduct{
		{name: "BPC-157 10mg", price: "$49.99"},
		{name: "TB-500 5mg", price: "$39.99"},
	}))

	job, err := runner.RunJob(ctx, models.TriggerScheduled, "scheduler")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if job.Status != models.JobCompleted {
		t.Fatalf("status = %q, want completed", job.Status)
	}
	if job.CompletedAt == nil {
		t.Fatal("CompletedAt not set")
	}
	c := job.Counters
	if c.VendorsSucceeded != 1 || c.ProductsScraped != 2 || c.ProductsValid != 2 || c.OffersCreated != 2 {
		t.Fatalf("counters = %+v, want 1 vendor, 2 scraped, 2 valid, 2 created", c)
	}
	if got := len(st.AllOffers()); got != 2 {
		t.Fatalf("offers = %d, want 2", got)
	}

	records, err := st.VendorRecords(ctx, job.ID)
	if err != nil || len(records) != 1 {
		t.Fatalf("vendor records = %d (%v), want 1", len(records), err)
	}
	if records[0].Status != models.VendorSuccess {
		t.Fatalf("vendor status = %q, want success", records[0].Status)
	}

	items, err := st.Items(ctx, job.ID, "vendor-1")
	if err != nil || len(items) != 2 {
		t.Fatalf("items = %d (%v), want 2", len(items), err)
	}
	for _, item := range items {
		if item.Status != models.ItemStored || item.SampleTag != RepresentativeSampleTag {
			t.Fatalf("item = %+v, want stored with sample tag", item)
		}
		if item.UpsertAction != "created" {
			t.Fatalf("UpsertAction = %q, want created", item.UpsertAction)
		}
	}

	// Second run with one price moved: one update with history, one
	// unchanged, no new offers.
	registerPage(transport, "http://vendor1.test/shop", wooListing([]listedProduct{
		{name: "BPC-157 10mg", price: "$59.99"},
		{name: "TB-500 5mg", price: "$39.99"},
	}))

	second, err := runner.RunJob(ctx, models.TriggerScheduled, "scheduler")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Status != models.JobCompleted {
		t.Fatalf("second status = %q, want completed", second.Status)
	}
	c = second.Counters
	if c.OffersCreated != 0 || c.OffersUpdated != 1 || c.OffersUnchanged != 1 {
		t.Fatalf("second counters = %+v, want 0 created, 1 updated, 1 unchanged", c)
	}
	if got := len(st.AllOffers()); got != 2 {
		t.Fatalf("offers after second run = %d, want still 2", got)
	}

	history := st.AllHistory()
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	if history[0].OldPricing.PriceUSD != 49.99 || history[0].NewPricing.PriceUSD != 59.99 {
		t.Fatalf("history prices = %v -> %v, want 49.99 -> 59.99", history[0].OldPricing.PriceUSD, history[0].NewPricing.PriceUSD)
	}

	actions := make(map[string]int)
	secondItems, _ := st.Items(ctx, second.ID, "vendor-1")
	for _, item := range secondItems {
		actions[item.UpsertAction]++
	}
	if actions["updated"] != 1 || actions["unchanged"] != 1 {
		t.Fatalf("item actions = %v, want 1 updated and 1 unchanged", actions)
	}
}

func TestRunJobStoresInvalidResultsWithoutOffers(t *testing.T) {
	st := store.NewMemoryStore()
	seedVendor(st, "vendor-1", "http://vendor1.test/product/semaglutide")
	runner, transport := newTestRunner(t, st)
	ctx := context.Background()

	// Product page with a price but no size token anywhere.
	registerPage(transport, "http://vendor1.test/product/semaglutide", `<html><body class="woocommerce">
<h1 class="product_title">Semaglutide</h1>
<p class="price">$99.00</p>
</body></html>`)

	job, err := runner.RunJob(ctx, models.TriggerManual, "admin")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Status != models.JobCompleted {
		t.Fatalf("status = %q, want completed", job.Status)
	}
	if job.Counters.ProductsScraped != 1 || job.Counters.ProductsValid != 0 || job.Counters.OffersCreated != 0 {
		t.Fatalf("counters = %+v, want 1 scraped, 0 valid, 0 created", job.Counters)
	}
	if got := len(st.AllOffers()); got != 0 {
		t.Fatalf("offers = %d, want 0", got)
	}

	items, _ := st.Items(ctx, job.ID, "vendor-1")
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].Status != models.ItemValidationFailed || items[0].FailureReason != models.ReasonMissingSize {
		t.Fatalf("item = %+v, want validation_failed with missing size", items[0])
	}

	records, _ := st.VendorRecords(ctx, job.ID)
	if len(records) != 1 || records[0].Status != models.VendorPartial {
		t.Fatalf("vendor record = %+v, want partial", records)
	}
	if records[0].FailureReasons[models.ReasonMissingSize] != 1 {
		t.Fatalf("FailureReasons = %v, want missing size counted once", records[0].FailureReasons)
	}
}

func TestRunJobIsolatesVendorFailures(t *testing.T) {
	st := store.NewMemoryStore()
	seedVendor(st, "vendor-1", "http://vendor1.test/shop")
	seedVendor(st, "vendor-2", "http://vendor2.test/shop")
	runner, transport := newTestRunner(t, st)
	ctx := context.Background()

	// vendor-1's probe 404s; vendor-2 is healthy.
	notFound := httpmock.NewStringResponder(404, "")
	transport.RegisterResponder("GET", "http://vendor1.test/shop", notFound)
	transport.RegisterResponder("GET", "http://vendor1.test/shop/", notFound)
	registerPage(transport, "http://vendor2.test/shop", wooListing([]listedProduct{
		{name: "GHK-Cu 50mg", price: "$65.00"},
	}))

	job, err := runner.RunJob(ctx, models.TriggerScheduled, "scheduler")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Status != models.JobCompleted {
		t.Fatalf("status = %q, one healthy vendor should complete the job", job.Status)
	}
	if job.Counters.VendorsFailed != 1 || job.Counters.VendorsSucceeded != 1 {
		t.Fatalf("counters = %+v, want 1 failed and 1 succeeded", job.Counters)
	}
	if len(job.ErrorMessages) == 0 || !strings.Contains(job.ErrorMessages[0], "vendor-1") {
		t.Fatalf("ErrorMessages = %v, want vendor-1 failure recorded", job.ErrorMessages)
	}

	records, _ := st.VendorRecords(ctx, job.ID)
	if len(records) != 2 {
		t.Fatalf("vendor records = %d, want 2", len(records))
	}
	statuses := map[string]string{}
	for _, rec := range records {
		statuses[rec.VendorID] = rec.Status
	}
	if statuses["vendor-1"] != models.VendorFailed || statuses["vendor-2"] != models.VendorSuccess {
		t.Fatalf("statuses = %v, want vendor-1 failed and vendor-2 success", statuses)
	}
}

func TestRunJobFailsWhenAllVendorsFail(t *testing.T) {
	st := store.NewMemoryStore()
	seedVendor(st, "vendor-1", "http://vendor1.test/shop")
	runner, transport := newTestRunner(t, st)

	notFound := httpmock.NewStringResponder(404, "")
	transport.RegisterResponder("GET", "http://vendor1.test/shop", notFound)
	transport.RegisterResponder("GET", "http://vendor1.test/shop/", notFound)

	job, err := runner.RunJob(context.Background(), models.TriggerScheduled, "scheduler")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Status != models.JobFailed {
		t.Fatalf("status = %q, want failed when zero vendors succeed", job.Status)
	}
}

func TestRunJobFailsWithoutVendors(t *testing.T) {
	st := store.NewMemoryStore()
	runner, _ := newTestRunner(t, st)
	ctx := context.Background()

	job, err := runner.RunJob(ctx, models.TriggerScheduled, "scheduler")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Status != models.JobFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if len(job.ErrorMessages) == 0 {
		t.Fatal("ErrorMessages empty, want a no-vendors explanation")
	}

	records, _ := st.VendorRecords(ctx, job.ID)
	if len(records) != 0 {
		t.Fatalf("vendor records = %d, want 0", len(records))
	}
}

func TestRunJobCapsStoredValidItems(t *testing.T) {
	st := store.NewMemoryStore()
	seedVendor(st, "vendor-1", "http://vendor1.test/shop")
	runner, transport := newTestRunner(t, st)
	ctx := context.Background()

	var products []listedProduct
	for i := 0; i < 12; i++ {
		products = append(products, listedProduct{
			name:  fmt.Sprintf("Peptide-%d 10mg", i),
			price: fmt.Sprintf("$%d.00", 20+i),
		})
	}
	registerPage(transport, "http://vendor1.test/shop", wooListing(products))

	job, err := runner.RunJob(ctx, models.TriggerScheduled, "scheduler")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Counters.OffersCreated != 12 {
		t.Fatalf("OffersCreated = %d, every valid product becomes an offer", job.Counters.OffersCreated)
	}

	items, _ := st.Items(ctx, job.ID, "vendor-1")
	if len(items) != 10 {
		t.Fatalf("items = %d, want the 10-item sample cap", len(items))
	}
	for _, item := range items {
		if item.SampleTag != RepresentativeSampleTag {
			t.Fatalf("item %q missing sample tag", item.PeptideName)
		}
	}
}

// cancelAfterFirstVendor flips the persisted job status to cancelled once
// the first vendor record lands, simulating an operator cancel while the
// job is in flight.
type cancelAfterFirstVendor struct {
	*store.MemoryStore
	flipped bool
}

func (c *cancelAfterFirstVendor) CreateVendorRecord(ctx context.Context, rec *models.VendorJobRecord) error {
	if err := c.MemoryStore.CreateVendorRecord(ctx, rec); err != nil {
		return err
	}
	if !c.flipped {
		c.flipped = true
		if _, err := c.MemoryStore.UpdateJobStatusIf(ctx, rec.JobID, models.JobRunning, models.JobCancelled); err != nil {
			return err
		}
	}
	return nil
}

func TestRunJobHonoursCancellationBetweenVendors(t *testing.T) {
	mem := store.NewMemoryStore()
	seedVendor(mem, "vendor-1", "http://vendor1.test/shop")
	seedVendor(mem, "vendor-2", "http://vendor2.test/shop")
	seedVendor(mem, "vendor-3", "http://vendor3.test/shop")
	st := &cancelAfterFirstVendor{MemoryStore: mem}
	runner, transport := newTestRunner(t, st)
	ctx := context.Background()

	for _, host := range []string{"vendor1", "vendor2", "vendor3"} {
		registerPage(transport, "http://"+host+".test/shop", wooListing([]listedProduct{
			{name: "BPC-157 10mg", price: "$49.99"},
		}))
	}

	job, err := runner.RunJob(ctx, models.TriggerManual, "admin")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Status != models.JobCancelled {
		t.Fatalf("status = %q, want cancelled", job.Status)
	}
	if job.CompletedAt == nil {
		t.Fatal("CompletedAt not set on cancelled job")
	}
	if job.Counters.VendorsSucceeded != 1 {
		t.Fatalf("VendorsSucceeded = %d, only the in-flight vendor finishes", job.Counters.VendorsSucceeded)
	}

	records, _ := mem.VendorRecords(ctx, job.ID)
	if len(records) != 1 || records[0].VendorID != "vendor-1" {
		t.Fatalf("records = %+v, want only vendor-1", records)
	}
}

func TestCancelJobOnlyWhileRunning(t *testing.T) {
	st := store.NewMemoryStore()
	runner, _ := newTestRunner(t, st)
	ctx := context.Background()

	job := &models.ScrapeJob{ID: "job-1", Status: models.JobRunning}
	if err := st.CreateJob(ctx, job); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	applied, err := runner.CancelJob(ctx, "job-1")
	if err != nil || !applied {
		t.Fatalf("CancelJob = (%v, %v), want applied", applied, err)
	}

	applied, err = runner.CancelJob(ctx, "job-1")
	if err != nil || applied {
		t.Fatalf("second CancelJob = (%v, %v), want not applied", applied, err)
	}

	stored, err := st.JobByID(ctx, "job-1")
	if err != nil || stored.Status != models.JobCancelled {
		t.Fatalf("stored status = %q (%v), want cancelled", stored.Status, err)
	}
}

func TestTestVendorDoesNotPersist(t *testing.T) {
	st := store.NewMemoryStore()
	seedVendor(st, "vendor-1", "http://vendor1.test/shop")
	runner, transport := newTestRunner(t, st)
	ctx := context.Background()

	registerPage(transport, "http://vendor1.test/shop", wooListing([]listedProduct{
		{name: "BPC-157 10mg", price: "$49.99"},
		{name: "TB-500 5mg", price: "$39.99"},
	}))

	report, err := runner.TestVendor(ctx, "vendor-1")
	if err != nil {
		t.Fatalf("test vendor: %v", err)
	}
	if report.ValidCount != 2 || report.InvalidCount != 0 {
		t.Fatalf("report = %d valid / %d invalid, want 2/0", report.ValidCount, report.InvalidCount)
	}
	if len(report.Valid) != 2 {
		t.Fatalf("sampled valid = %d, want 2", len(report.Valid))
	}
	if got := len(st.AllOffers()); got != 0 {
		t.Fatalf("offers = %d, vendor test must not persist offers", got)
	}

	if _, err := runner.TestVendor(ctx, "missing-vendor"); err == nil {
		t.Fatal("unknown vendor: want error")
	}
}
