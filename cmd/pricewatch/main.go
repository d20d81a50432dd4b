package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peptrack/pricewatch/config"
	"github.com/peptrack/pricewatch/models"
	"github.com/peptrack/pricewatch/pipeline"
	"github.com/peptrack/pricewatch/scraper"
	"github.com/peptrack/pricewatch/store"
)

func main() {
	defaultCfg := config.DefaultConfig()
	sampleDefault := defaultCfg.ValidSampleSize
	if value, ok, err := config.EnvInt("SCRAPER_SAMPLE_SIZE"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_SAMPLE_SIZE: %v\n", err)
		os.Exit(1)
	} else if ok {
		sampleDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("METRICS_ADDR"); ok {
		metricsDefault = value
	}

	trigger := flag.String("trigger", models.TriggerManual, "Trigger kind recorded on the job: scheduled or manual")
	initiator := flag.String("initiator", "", "Identity recorded as the job initiator (manual runs)")
	cancelJob := flag.String("cancel-job", "", "Cancel the running job with this id and exit")
	testVendor := flag.String("test-vendor", "", "Scrape a single vendor without persisting offers and exit")
	sampleSize := flag.Int("sample-size", sampleDefault, "Valid items persisted per vendor run")
	timeout := flag.Duration("timeout", defaultCfg.Timeout, "Per-request fetch timeout")
	delay := flag.Duration("delay", defaultCfg.FetchDelay, "Delay between fetches")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	cfg.ValidSampleSize = *sampleSize
	cfg.Timeout = *timeout
	cfg.FetchDelay = *delay
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	config.ApplyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	st, err := store.NewGormStore(cfg.MySQLDSN)
	if err != nil {
		slog.Error("opening store", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := scraper.NewMetrics()
	runner, err := pipeline.NewRunner(st, cfg, metrics)
	if err != nil {
		slog.Error("initialising runner", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *cancelJob != "" {
		cancelled, err := runner.CancelJob(ctx, *cancelJob)
		if err != nil {
			slog.Error("cancel job", slog.String("job_id", *cancelJob), slog.Any("error", err))
			os.Exit(1)
		}
		if !cancelled {
			slog.Warn("job was not running", slog.String("job_id", *cancelJob))
			os.Exit(1)
		}
		slog.Info("cancellation requested", slog.String("job_id", *cancelJob))
		return
	}

	if *testVendor != "" {
		report, err := runner.TestVendor(ctx, *testVendor)
		if err != nil {
			slog.Error("vendor test failed", slog.String("vendor", *testVendor), slog.Any("error", err))
			os.Exit(1)
		}
		printVendorTest(report)
		return
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	start := time.Now()
	job, err := runner.RunJob(ctx, *trigger, *initiator)
	if err != nil {
		slog.Error("job run failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(job, time.Since(start))
	if job.Status == models.JobFailed {
		os.Exit(1)
	}
}

func printSummary(job *models.ScrapeJob, duration time.Duration) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Printf("Job %s %s\n", job.ID, job.Status)
	fmt.Printf("  Vendors ok:      %d\n", job.Counters.VendorsSucceeded)
	fmt.Printf("  Vendors failed:  %d\n", job.Counters.VendorsFailed)
	fmt.Printf("  Products:        %d (%d valid)\n", job.Counters.ProductsScraped, job.Counters.ProductsValid)
	fmt.Printf("  Offers created:  %d\n", job.Counters.OffersCreated)
	fmt.Printf("  Offers updated:  %d\n", job.Counters.OffersUpdated)
	fmt.Printf("  Unchanged:       %d\n", job.Counters.OffersUnchanged)
	if len(job.ErrorMessages) > 0 {
		fmt.Printf("  Errors:          %v\n", job.ErrorMessages)
	}
	fmt.Printf("  Duration:        %v\n", duration)
	fmt.Println(separator)
}

func printVendorTest(report *pipeline.VendorTestReport) {
	fmt.Printf("Vendor %s: %d valid, %d invalid\n", report.VendorID, report.ValidCount, report.InvalidCount)
	for _, result := range report.Valid {
		fmt.Printf("  ok   %-30s $%.2f / %.1fmg  %s\n", result.PeptideName, result.PriceUSD, result.SizeMg, result.ProductURL)
	}
	for _, result := range report.Invalid {
		fmt.Printf("  FAIL %-30s (%s)  %s\n", result.PeptideName, result.FailureReason, result.ProductURL)
	}
	for _, warning := range report.Warnings {
		fmt.Printf("  warn %s\n", warning)
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
