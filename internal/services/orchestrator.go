package services

import (
	"context"
	"errors"
	"log"
	"time"

	"steam-market-scraper/internal/models"
)

// LinkSource is the browser-backed discovery/identity surface. Split from
// the concrete BrowserSession so runs can be exercised without Chrome.
type LinkSource interface {
	DiscoverLinks(ctx context.Context, marketURL string) ([]string, error)
	ResolveItemNameID(ctx context.Context, link string) (string, error)
}

// SnapshotSource fetches everything for one item.
type SnapshotSource interface {
	FetchAll(ctx context.Context, link, appID, itemNameID string) (*Snapshot, error)
}

// DatasetSink is the persistence surface of the pipeline.
type DatasetSink interface {
	MaxPersistedDay(name string) (*time.Time, error)
	Append(item *models.Item, dailies []models.DailyAggregate, orderBook *models.OrderBookSnapshot) error
}

// Orchestrator sequences the pipeline per discovered link: resolve identity,
// fetch snapshot, reconcile history, write. One logical worker, links in
// discovery order; the browser session and proxy cursor are never shared.
type Orchestrator struct {
	links      LinkSource
	snapshots  SnapshotSource
	reconciler *HistoryReconciler
	sink       DatasetSink

	marketURL   string
	retryBudget int

	stats models.RunStats
}

func NewOrchestrator(links LinkSource, snapshots SnapshotSource, reconciler *HistoryReconciler, sink DatasetSink, marketURL string, retryBudget int) *Orchestrator {
	if retryBudget <= 0 {
		retryBudget = 3
	}
	return &Orchestrator{
		links:       links,
		snapshots:   snapshots,
		reconciler:  reconciler,
		sink:        sink,
		marketURL:   marketURL,
		retryBudget: retryBudget,
	}
}

// Run processes every discovered link. A link failing its whole retry
// budget is logged and abandoned; only DiscoveryError and SchemaError abort
// the run. The persisted tables stay valid even after a fatal abort because
// writes land per item.
func (o *Orchestrator) Run(ctx context.Context) (models.RunStats, error) {
	started := time.Now()

	links, err := o.links.DiscoverLinks(ctx, o.marketURL)
	if err != nil {
		return o.stats, err
	}
	log.Printf("[Pipeline] discovered %d item links", len(links))

	for i, link := range links {
		if ctx.Err() != nil {
			return o.stats, ctx.Err()
		}

		if _, err := ParseAppID(link); err != nil {
			log.Printf("[Pipeline] [%d/%d] skipped malformed link %s", i+1, len(links), link)
			o.stats.Skipped++
			continue
		}

		var lastErr error
		succeeded := false
		for attempt := 1; attempt <= o.retryBudget; attempt++ {
			err := o.processLink(ctx, link)
			if err == nil {
				succeeded = true
				break
			}

			var schemaErr *SchemaError
			if errors.As(err, &schemaErr) {
				// Upstream format drift that normalization cannot fix.
				return o.stats, err
			}
			lastErr = err
			log.Printf("[Pipeline] [%d/%d] attempt %d/%d failed for %s: %v", i+1, len(links), attempt, o.retryBudget, link, err)
		}

		if succeeded {
			o.stats.Succeeded++
			log.Printf("[Pipeline] [%d/%d] ✓ %s", i+1, len(links), link)
		} else {
			o.stats.Failed++
			log.Printf("[Pipeline] [%d/%d] ✗ %s abandoned after %d attempts: %v", i+1, len(links), link, o.retryBudget, lastErr)
		}
	}

	o.logSummary(time.Since(started))
	return o.stats, nil
}

func (o *Orchestrator) processLink(ctx context.Context, link string) error {
	appID, err := ParseAppID(link)
	if err != nil {
		return err
	}

	// Identity is resolved once per item per run and reused across all
	// source fetches. An unresolved item_nameid only costs the histogram.
	itemNameID, err := o.links.ResolveItemNameID(ctx, link)
	if err != nil {
		var unresolved *UnresolvedIdentityError
		if !errors.As(err, &unresolved) {
			return err
		}
		log.Printf("[Pipeline] %v, histogram will be skipped", err)
	}

	snap, err := o.snapshots.FetchAll(ctx, link, appID, itemNameID)
	if err != nil {
		return err
	}

	item := composeItem(snap, appID, itemNameID)

	var dailies []models.DailyAggregate
	if len(snap.Ticks) > 0 {
		maxDay, err := o.sink.MaxPersistedDay(item.Name)
		if err != nil {
			return err
		}
		dailies = o.reconciler.Reconcile(item.Name, snap.Ticks, maxDay)
	}

	return o.sink.Append(item, dailies, snap.OrderBook)
}

// composeItem folds the partial snapshot into the run-scoped item record.
func composeItem(snap *Snapshot, appID, itemNameID string) *models.Item {
	item := &models.Item{
		Name:         snap.Details.Name,
		Game:         snap.Details.Game,
		ItemType:     snap.Details.ItemType,
		ItemNameID:   itemNameID,
		AppID:        appID,
		ItemsForSale: snap.Details.ItemsForSale,
		SellPrice:    snap.Details.SellPrice,
		BuyRequests:  snap.Details.BuyRequests,
		BuyPrice:     snap.Details.BuyPrice,
	}
	if snap.Overview != nil {
		item.LowestPrice = snap.Overview.LowestPrice
		item.Volume = snap.Overview.Volume
		item.MedianPrice = snap.Overview.MedianPrice
	}
	return item
}

func (o *Orchestrator) Stats() models.RunStats { return o.stats }

func (o *Orchestrator) logSummary(elapsed time.Duration) {
	log.Printf("[Pipeline] run complete in %v", elapsed.Round(time.Second))
	log.Printf("  ├─ succeeded: %d", o.stats.Succeeded)
	log.Printf("  ├─ skipped:   %d", o.stats.Skipped)
	log.Printf("  └─ failed:    %d", o.stats.Failed)
}
