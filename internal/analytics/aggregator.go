// Package analytics applies send/open/click/bounce deltas to a campaign's
// counters.
//
// All updates for one campaign are serialized through a per-campaign mutex
// so concurrent recipient sends cannot lose increments; the store applies
// each delta and the rate recomputation in a single transaction.
package analytics

import (
	"context"
	"sync"

	"github.com/luisant/mailcore/internal/store"
)

// Aggregator serializes counter updates per campaign.
type Aggregator struct {
	store store.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(s store.Store) *Aggregator {
	return &Aggregator{store: s, locks: make(map[string]*sync.Mutex)}
}

// ApplySent records n successful sends.
func (a *Aggregator) ApplySent(ctx context.Context, campaignID string, n int) error {
	return a.apply(ctx, campaignID, store.CounterSent, n)
}

// ApplyOpened records n message opens.
func (a *Aggregator) ApplyOpened(ctx context.Context, campaignID string, n int) error {
	return a.apply(ctx, campaignID, store.CounterOpened, n)
}

// ApplyClicked records n link clicks.
func (a *Aggregator) ApplyClicked(ctx context.Context, campaignID string, n int) error {
	return a.apply(ctx, campaignID, store.CounterClicked, n)
}

// ApplyBounced records n bounces.
func (a *Aggregator) ApplyBounced(ctx context.Context, campaignID string, n int) error {
	return a.apply(ctx, campaignID, store.CounterBounced, n)
}

func (a *Aggregator) apply(ctx context.Context, campaignID string, counter store.Counter, n int) error {
	if n == 0 {
		return nil
	}
	mu := a.lockFor(campaignID)
	mu.Lock()
	defer mu.Unlock()
	return a.store.ApplyAnalyticsDelta(ctx, campaignID, counter, n)
}

func (a *Aggregator) lockFor(campaignID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	mu, ok := a.locks[campaignID]
	if !ok {
		mu = &sync.Mutex{}
		a.locks[campaignID] = mu
	}
	return mu
}
