package scraper

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/peptrack/pricewatch/models"
	"github.com/peptrack/pricewatch/store"
)

// SelectorCache layers an in-process LRU over the persisted selector sets
// so repeated runs in one process skip the store read. Writes go through to
// the store; the persisted copy is the source of truth across processes.
type SelectorCache struct {
	lru   *lru.Cache[string, *models.SelectorSet]
	store store.Store
}

// NewSelectorCache builds a cache of the given size over the store.
func NewSelectorCache(size int, st store.Store) (*SelectorCache, error) {
	cache, err := lru.New[string, *models.SelectorSet](size)
	if err != nil {
		return nil, fmt.Errorf("selector lru: %w", err)
	}
	return &SelectorCache{lru: cache, store: st}, nil
}

// Get returns the vendor's cached selector set, or store.ErrNotFound when
// none has been discovered yet.
func (c *SelectorCache) Get(ctx context.Context, vendorID string) (*models.SelectorSet, error) {
	if set, ok := c.lru.Get(vendorID); ok {
		return set, nil
	}
	set, err := c.store.SelectorSet(ctx, vendorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.lru.Add(vendorID, set)
	return set, nil
}

// Put overwrites the vendor's selector set in both layers. Discovery never
// merges old and new selectors.
func (c *SelectorCache) Put(ctx context.Context, set *models.SelectorSet) error {
	if err := c.store.SaveSelectorSet(ctx, set); err != nil {
		return err
	}
	c.lru.Add(set.VendorID, set)
	return nil
}
