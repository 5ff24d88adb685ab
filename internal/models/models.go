package models

import "time"

// Item is one marketplace item as observed during a single run. Quoted
// fields keep the raw page/API text (e.g. "$12,345.67", "1,532"); the
// dataset writer normalizes them at persist time.
type Item struct {
	Name       string
	Game       string
	ItemType   string
	ItemNameID string // internal order-book id, empty when unresolved
	AppID      string

	ItemsForSale string
	SellPrice    string
	BuyRequests  string
	BuyPrice     string

	LowestPrice string
	Volume      string
	MedianPrice string
}

// ItemDetails holds the five fixed detail-page fields.
type ItemDetails struct {
	Name         string
	Game         string
	ItemType     string
	ItemsForSale string
	SellPrice    string
	BuyRequests  string
	BuyPrice     string
}

// PriceOverview is the lightweight current-price snapshot from the
// priceoverview endpoint. Values are kept as returned ("$0.03", "1,532").
type PriceOverview struct {
	LowestPrice string
	Volume      string
	MedianPrice string
}

// PriceTick is one historical trade observation, hour resolution.
type PriceTick struct {
	Timestamp time.Time
	Price     float64
	Quantity  int
}

// DailyAggregate is the per-day rollup of ticks for one item. (Name, Day)
// is unique across runs; the daily table is append-only.
type DailyAggregate struct {
	Name         string
	Day          time.Time
	AveragePrice float64
	TotalVolume  int
}

// OrderLevel is one price level of an order-book graph.
type OrderLevel struct {
	Price    float64
	Quantity int
}

// OrderBookSnapshot is the point-in-time buy/sell queue depth for one item.
// No history is retained; every run overwrites nothing and appends one row.
type OrderBookSnapshot struct {
	Name       string
	BuyOrders  []OrderLevel
	SellOrders []OrderLevel
}

// ItemRow is the persisted flattened form of an Item with numeric fields
// normalized. Overview fields are pointers: a partial snapshot without the
// overview source still persists, with those cells empty.
type ItemRow struct {
	Name       string
	Game       string
	ItemType   string
	AppID      string
	ItemNameID string

	ItemsForSale int
	SellPrice    float64
	BuyRequests  int
	BuyPrice     float64

	LowestPrice *float64
	Volume      *int
	MedianPrice *float64
}

// OrderBookRow is the persisted flattened form of an OrderBookSnapshot:
// the top of each side of the book, keyed by field name.
type OrderBookRow struct {
	Name              string
	BuyOrderPrice     float64
	BuyOrderQuantity  int
	SellOrderPrice    float64
	SellOrderQuantity int
}

// RunStats counts per-link outcomes for the run summary.
type RunStats struct {
	Succeeded int
	Skipped   int
	Failed    int
}
