// Package offers reconciles scraped offer candidates against the canonical
// offer store: create on first sighting, update in place with a price
// history entry when pricing moved, or refresh bookkeeping when nothing
// changed.
package offers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/peptrack/pricewatch/models"
	"github.com/peptrack/pricewatch/store"
)

// Stats reports what one upsert batch did. Actions records the outcome per
// match key so callers can annotate audit records.
type Stats struct {
	Created        int
	Updated        int
	Unchanged      int
	HistoryCreated int
	Actions        map[string]string
}

// Upsert action labels.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionUnchanged = "unchanged"
)

// Engine performs idempotent, match-key-addressed upserts.
//
// A single job never runs two upserts concurrently, but two overlapping job
// invocations could race on the same offer key. The per-key mutex below
// serializes writers within this process; overlap across processes remains
// unguarded, matching the reference behavior.
type Engine struct {
	store store.Store

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

// NewEngine builds an upsert engine over the given persistence port.
func NewEngine(st store.Store) *Engine {
	return &Engine{
		store: st,
		keys:  make(map[string]*sync.Mutex),
	}
}

// Upsert reconciles a batch of validated offer candidates. Re-running with
// identical input yields zero new history entries and all-unchanged stats.
// The first offer-level persistence error aborts the remaining batch;
// retry and isolation happen one level up, at vendor granularity.
func (e *Engine) Upsert(ctx context.Context, candidates []*models.VendorOffer, batchID, userID, jobID string) (Stats, error) {
	stats := Stats{Actions: make(map[string]string)}
	for _, candidate := range candidates {
		if candidate == nil {
			continue
		}
		if err := e.upsertOne(ctx, candidate, batchID, userID, jobID, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (e *Engine) upsertOne(ctx context.Context, candidate *models.VendorOffer, batchID, userID, jobID string, stats *Stats) error {
	key := candidate.MatchKey
	if key == "" {
		key = candidate.MatchKeyFor()
		candidate.MatchKey = key
	}

	unlock := e.lockKey(key)
	defer unlock()

	now := time.Now()
	existing, err := e.store.OfferByMatchKey(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		candidate.BatchID = batchID
		candidate.JobID = jobID
		candidate.CreatedBy = userID
		candidate.VerificationStatus = models.VerificationUnverified
		candidate.FirstSeenAt = now
		candidate.LastCheckedAt = now
		if err := e.store.CreateOffer(ctx, candidate); err != nil {
			return fmt.Errorf("create offer %s: %w", key, err)
		}
		stats.Created++
		stats.Actions[key] = ActionCreated
		return nil

	case err != nil:
		return fmt.Errorf("lookup offer %s: %w", key, err)
	}

	if existing.Pricing.Equal(candidate.Pricing) {
		existing.BatchID = batchID
		existing.JobID = jobID
		existing.LastCheckedAt = now
		if err := e.store.UpdateOffer(ctx, existing); err != nil {
			return fmt.Errorf("refresh offer %s: %w", key, err)
		}
		stats.Unchanged++
		stats.Actions[key] = ActionUnchanged
		return nil
	}

	entry := &models.OfferPriceHistoryEntry{
		OfferID:       existing.ID,
		MatchKey:      key,
		OldPricing:    existing.Pricing,
		NewPricing:    candidate.Pricing,
		ChangedFields: existing.Pricing.ChangedFields(candidate.Pricing),
		PercentChange: percentChange(existing.Pricing.PriceUSD, candidate.Pricing.PriceUSD),
		BatchID:       batchID,
		JobID:         jobID,
	}
	if err := e.store.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("append history %s: %w", key, err)
	}
	stats.HistoryCreated++

	// Verification status and first-seen provenance survive price moves.
	existing.Pricing = candidate.Pricing
	existing.ProductURL = candidate.ProductURL
	existing.VendorName = candidate.VendorName
	existing.BatchID = batchID
	existing.JobID = jobID
	existing.LastCheckedAt = now
	if err := e.store.UpdateOffer(ctx, existing); err != nil {
		return fmt.Errorf("update offer %s: %w", key, err)
	}
	stats.Updated++
	stats.Actions[key] = ActionUpdated

	slog.Debug("offer price changed",
		slog.String("match_key", key),
		slog.Float64("old_price", entry.OldPricing.PriceUSD),
		slog.Float64("new_price", entry.NewPricing.PriceUSD),
		slog.Float64("pct_change", entry.PercentChange),
	)
	return nil
}

func (e *Engine) lockKey(key string) func() {
	e.mu.Lock()
	m, ok := e.keys[key]
	if !ok {
		m = &sync.Mutex{}
		e.keys[key] = m
	}
	e.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func percentChange(oldPrice, newPrice float64) float64 {
	if oldPrice == 0 {
		return 0
	}
	return (newPrice - oldPrice) / oldPrice * 100
}
