package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"steam-market-scraper/internal/models"
)

const (
	defaultMarketBase = "https://steamcommunity.com"

	overviewURLFormat  = "%s/market/priceoverview/?appid=%s&currency=1&market_hash_name=%s"
	historyURLFormat   = "%s/market/pricehistory/?appid=%s&market_hash_name=%s"
	histogramURLFormat = "%s/market/itemordershistogram?country=US&language=english&currency=1&item_nameid=%s&two_factor=0"

	// Graphs can run hundreds of levels deep; only the top of the book is
	// interesting.
	orderLevelsKept = 2
)

// DetailSource renders an item page and reads its fixed detail fields.
// Satisfied by BrowserSession.
type DetailSource interface {
	ScrapeDetails(ctx context.Context, link string) (*models.ItemDetails, error)
}

// Snapshot is the partial, run-scoped result of fetching all sources for
// one item. Missing sources are nil; SourceErrors records why.
type Snapshot struct {
	Details      *models.ItemDetails
	Overview     *models.PriceOverview
	Ticks        []models.PriceTick
	OrderBook    *models.OrderBookSnapshot
	SourceErrors map[string]error
}

// SnapshotFetcher retrieves the detail page plus the three price sources
// for an item. Each source is fault-isolated: one failing source never
// aborts the others, and a partial snapshot is still persisted.
type SnapshotFetcher struct {
	client        *Client
	details       DetailSource
	sessionCookie string
	baseURL       string
}

func NewSnapshotFetcher(client *Client, details DetailSource, sessionCookie string) *SnapshotFetcher {
	return &SnapshotFetcher{
		client:        client,
		details:       details,
		sessionCookie: sessionCookie,
		baseURL:       defaultMarketBase,
	}
}

// FetchAll gathers every source for one item. The detail scrape is the one
// load-bearing source: it provides the name every table keys on, so its
// failure fails the link (the orchestrator may retry). Everything else
// degrades to a nil field.
func (f *SnapshotFetcher) FetchAll(ctx context.Context, link, appID, itemNameID string) (*Snapshot, error) {
	details, err := f.details.ScrapeDetails(ctx, link)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Details:      details,
		SourceErrors: make(map[string]error),
	}

	if overview, err := f.FetchOverview(ctx, appID, details.Name); err != nil {
		snap.SourceErrors["overview"] = err
		log.Printf("[Fetcher] overview failed for %q: %v", details.Name, err)
	} else {
		snap.Overview = overview
	}

	if ticks, err := f.FetchHistory(ctx, appID, details.Name); err != nil {
		snap.SourceErrors["history"] = err
		log.Printf("[Fetcher] history failed for %q: %v", details.Name, err)
	} else {
		snap.Ticks = ticks
	}

	if orderBook, err := f.FetchHistogram(ctx, details.Name, itemNameID, link); err != nil {
		snap.SourceErrors["histogram"] = err
		log.Printf("[Fetcher] histogram failed for %q: %v", details.Name, err)
	} else {
		snap.OrderBook = orderBook
	}

	return snap, nil
}

// FetchOverview hits the unauthenticated priceoverview endpoint.
func (f *SnapshotFetcher) FetchOverview(ctx context.Context, appID, name string) (*models.PriceOverview, error) {
	fetchURL := fmt.Sprintf(overviewURLFormat, f.baseURL, appID, EncodeMarketName(name))
	body, err := f.client.Fetch(ctx, fetchURL, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Success     bool   `json:"success"`
		LowestPrice string `json:"lowest_price"`
		Volume      string `json:"volume"`
		MedianPrice string `json:"median_price"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ParseError{Source: "overview", Detail: err.Error()}
	}
	if !payload.Success {
		return nil, &ParseError{Source: "overview", Detail: "endpoint reported success=false"}
	}

	return &models.PriceOverview{
		LowestPrice: payload.LowestPrice,
		Volume:      payload.Volume,
		MedianPrice: payload.MedianPrice,
	}, nil
}

// FetchHistory hits the session-authenticated pricehistory endpoint and
// parses its [timestamp, price, quantity] triples. Ticks with unparseable
// timestamps are dropped individually rather than failing the source.
func (f *SnapshotFetcher) FetchHistory(ctx context.Context, appID, name string) ([]models.PriceTick, error) {
	fetchURL := fmt.Sprintf(historyURLFormat, f.baseURL, appID, EncodeMarketName(name))
	body, err := f.client.Fetch(ctx, fetchURL, f.sessionHeaders())
	if err != nil {
		return nil, err
	}

	var payload struct {
		Success bool                 `json:"success"`
		Prices  [][3]json.RawMessage `json:"prices"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ParseError{Source: "history", Detail: err.Error()}
	}
	if !payload.Success {
		return nil, &ParseError{Source: "history", Detail: "endpoint reported success=false"}
	}

	ticks := make([]models.PriceTick, 0, len(payload.Prices))
	dropped := 0
	for _, raw := range payload.Prices {
		tick, err := parseRawTick(raw)
		if err != nil {
			dropped++
			continue
		}
		ticks = append(ticks, tick)
	}
	if dropped > 0 {
		log.Printf("[Fetcher] dropped %d unparseable ticks for %q", dropped, name)
	}
	return ticks, nil
}

// FetchHistogram hits the session-authenticated order-book endpoint. It is
// skipped entirely when item_nameid was never resolved for this item.
func (f *SnapshotFetcher) FetchHistogram(ctx context.Context, name, itemNameID, link string) (*models.OrderBookSnapshot, error) {
	if itemNameID == "" {
		return nil, &UnresolvedIdentityError{Link: link}
	}

	fetchURL := fmt.Sprintf(histogramURLFormat, f.baseURL, itemNameID)
	body, err := f.client.Fetch(ctx, fetchURL, f.sessionHeaders())
	if err != nil {
		return nil, err
	}

	var payload struct {
		Success        int                 `json:"success"`
		BuyOrderGraph  [][]json.RawMessage `json:"buy_order_graph"`
		SellOrderGraph [][]json.RawMessage `json:"sell_order_graph"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ParseError{Source: "histogram", Detail: err.Error()}
	}
	if payload.Success != 1 {
		return nil, &ParseError{Source: "histogram", Detail: fmt.Sprintf("endpoint reported success=%d", payload.Success)}
	}

	buy, err := parseOrderGraph(payload.BuyOrderGraph)
	if err != nil {
		return nil, &ParseError{Source: "histogram", Detail: "buy graph: " + err.Error()}
	}
	sell, err := parseOrderGraph(payload.SellOrderGraph)
	if err != nil {
		return nil, &ParseError{Source: "histogram", Detail: "sell graph: " + err.Error()}
	}

	return &models.OrderBookSnapshot{
		Name:       name,
		BuyOrders:  buy,
		SellOrders: sell,
	}, nil
}

func (f *SnapshotFetcher) sessionHeaders() map[string]string {
	if f.sessionCookie == "" {
		// Absence degrades the authenticated sources to guaranteed
		// per-item failure instead of a startup error.
		return nil
	}
	return map[string]string{
		"Cookie": "steamLoginSecure=" + f.sessionCookie,
	}
}

// EncodeMarketName applies the endpoint's name encoding: space and
// ampersand only. Other reserved characters are intentionally left alone;
// items whose names carry them are a known gap.
func EncodeMarketName(name string) string {
	name = strings.ReplaceAll(name, " ", "%20")
	return strings.ReplaceAll(name, "&", "%26")
}

// parseRawTick decodes one ["Jan 02 2006 15: +0", price, "qty"] triple.
func parseRawTick(raw [3]json.RawMessage) (models.PriceTick, error) {
	var tick models.PriceTick

	var ts string
	if err := json.Unmarshal(raw[0], &ts); err != nil {
		return tick, err
	}
	when, err := ParseTickTime(ts)
	if err != nil {
		return tick, err
	}

	var price float64
	if err := json.Unmarshal(raw[1], &price); err != nil {
		return tick, err
	}

	var quantityStr string
	if err := json.Unmarshal(raw[2], &quantityStr); err != nil {
		return tick, err
	}
	quantity, err := strconv.Atoi(strings.ReplaceAll(quantityStr, ",", ""))
	if err != nil {
		return tick, err
	}

	tick.Timestamp = when
	tick.Price = price
	tick.Quantity = quantity
	return tick, nil
}

// parseOrderGraph keeps the top levels of a [price, cumulativeQty, label]
// graph. An empty graph is valid: one side of the book can be empty.
func parseOrderGraph(graph [][]json.RawMessage) ([]models.OrderLevel, error) {
	levels := make([]models.OrderLevel, 0, orderLevelsKept)
	for i, entry := range graph {
		if i >= orderLevelsKept {
			break
		}
		if len(entry) < 2 {
			return nil, fmt.Errorf("level %d has %d fields, want at least 2", i, len(entry))
		}
		var price float64
		if err := json.Unmarshal(entry[0], &price); err != nil {
			return nil, fmt.Errorf("level %d price: %w", i, err)
		}
		var quantity int
		if err := json.Unmarshal(entry[1], &quantity); err != nil {
			return nil, fmt.Errorf("level %d quantity: %w", i, err)
		}
		levels = append(levels, models.OrderLevel{Price: price, Quantity: quantity})
	}
	return levels, nil
}
