package services

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steam-market-scraper/internal/models"
)

func testItem() *models.Item {
	return &models.Item{
		Name:         "AK-47 | Redline",
		Game:         "Counter-Strike 2",
		ItemType:     "Rifle",
		ItemNameID:   "12345",
		AppID:        "730",
		ItemsForSale: "1,532",
		SellPrice:    "$12.34",
		BuyRequests:  "880",
		BuyPrice:     "$11.90",
		LowestPrice:  "$12.30",
		Volume:       "2,100",
		MedianPrice:  "$12.50",
	}
}

func testOrderBook() *models.OrderBookSnapshot {
	return &models.OrderBookSnapshot{
		Name:       "AK-47 | Redline",
		BuyOrders:  []models.OrderLevel{{Price: 11.90, Quantity: 880}, {Price: 11.85, Quantity: 902}},
		SellOrders: []models.OrderLevel{{Price: 12.34, Quantity: 15}, {Price: 12.35, Quantity: 40}},
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalizeMoneyRoundTrip(t *testing.T) {
	v, err := NormalizeMoney("$12,345.67")
	require.NoError(t, err)
	assert.Equal(t, 12345.67, v)
	assert.Equal(t, "12345.67", FormatMoney(v))
}

func TestNormalizeCount(t *testing.T) {
	v, err := NormalizeCount("1,532")
	require.NoError(t, err)
	assert.Equal(t, 1532, v)

	_, err = NormalizeCount("")
	assert.Error(t, err)
}

func TestAppendWritesAllThreeTables(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDatasetWriter(dir)
	require.NoError(t, err)

	dailies := []models.DailyAggregate{
		{Name: "AK-47 | Redline", Day: day(2024, time.January, 1), AveragePrice: 11.0, TotalVolume: 8},
	}
	require.NoError(t, w.Append(testItem(), dailies, testOrderBook()))

	header, rows, err := LoadTable(filepath.Join(dir, ItemsFile))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Name", header[0])
	assert.Equal(t, "AK-47 | Redline", rows[0][0])
	assert.Equal(t, "1532", rows[0][columnIndex(header, "Items for Sale")])
	assert.Equal(t, "12.34", rows[0][columnIndex(header, "Sell Price")])

	header, rows, err = LoadTable(filepath.Join(dir, DailyFile))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Date", "Name", "Average Price", "Total Volume"}, header)
	assert.Equal(t, []string{"2024-01-01", "AK-47 | Redline", "11.00", "8"}, rows[0])

	header, rows, err = LoadTable(filepath.Join(dir, OrderBookFile))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "11.90", rows[0][columnIndex(header, "Buy Order Price")])
	assert.Equal(t, "880", rows[0][columnIndex(header, "Buy Order Quantity")])
	assert.Equal(t, "12.34", rows[0][columnIndex(header, "Sell Order Price")])
	assert.Equal(t, "15", rows[0][columnIndex(header, "Sell Order Quantity")])
}

func TestAppendGrowsTablesAcrossItems(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDatasetWriter(dir)
	require.NoError(t, err)

	require.NoError(t, w.Append(testItem(), nil, nil))

	second := testItem()
	second.Name = "AWP | Asiimov"
	require.NoError(t, w.Append(second, nil, nil))

	_, rows, err := LoadTable(filepath.Join(dir, ItemsFile))
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestMaxPersistedDay(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDatasetWriter(dir)
	require.NoError(t, err)

	// No daily table yet: first run, no filtering.
	max, err := w.MaxPersistedDay("AK-47 | Redline")
	require.NoError(t, err)
	assert.Nil(t, max)

	dailies := []models.DailyAggregate{
		{Name: "AK-47 | Redline", Day: day(2024, time.January, 1), AveragePrice: 11.0, TotalVolume: 8},
		{Name: "AK-47 | Redline", Day: day(2024, time.January, 3), AveragePrice: 12.0, TotalVolume: 2},
		{Name: "AWP | Asiimov", Day: day(2024, time.February, 9), AveragePrice: 90.0, TotalVolume: 1},
	}
	require.NoError(t, w.Append(testItem(), dailies, nil))

	max, err = w.MaxPersistedDay("AK-47 | Redline")
	require.NoError(t, err)
	require.NotNil(t, max)
	assert.Equal(t, day(2024, time.January, 3), *max)

	// Other items' days do not leak into the filter.
	max, err = w.MaxPersistedDay("AWP | Asiimov")
	require.NoError(t, err)
	require.NotNil(t, max)
	assert.Equal(t, day(2024, time.February, 9), *max)
}

func TestReconcileThenPersistThenReconcileWritesNothing(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDatasetWriter(dir)
	require.NoError(t, err)
	r := NewHistoryReconciler()

	ticks := []models.PriceTick{
		mustTick(t, "Jan 01 2024 09: +0", 10.00, 5),
		mustTick(t, "Jan 01 2024 14: +0", 12.00, 3),
	}

	max, err := w.MaxPersistedDay("key")
	require.NoError(t, err)
	first := r.Reconcile("key", ticks, max)
	require.Len(t, first, 1)
	require.NoError(t, w.Append(testItem(), first, nil))

	max, err = w.MaxPersistedDay("key")
	require.NoError(t, err)
	second := r.Reconcile("key", ticks, max)
	assert.Empty(t, second)

	_, rows, err := LoadTable(filepath.Join(dir, DailyFile))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAppendPartialSnapshotLeavesOverviewCellsEmpty(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDatasetWriter(dir)
	require.NoError(t, err)

	item := testItem()
	item.LowestPrice = ""
	item.Volume = ""
	item.MedianPrice = ""
	require.NoError(t, w.Append(item, nil, nil))

	header, rows, err := LoadTable(filepath.Join(dir, ItemsFile))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0][columnIndex(header, "Lowest Price")])
	assert.Equal(t, "", rows[0][columnIndex(header, "Volume")])
	assert.Equal(t, "", rows[0][columnIndex(header, "Median Price")])

	// No order book for this item: the orderbook table was not started.
	_, _, err = LoadTable(filepath.Join(dir, OrderBookFile))
	assert.Error(t, err)
}

func TestAppendFailsWithSchemaErrorOnUnparseableField(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDatasetWriter(dir)
	require.NoError(t, err)

	item := testItem()
	item.SellPrice = "unavailable"
	err = w.Append(item, nil, nil)

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "Sell Price", schemaErr.Column)
}

func TestAppendSkipsOrderBookWithEmptySide(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDatasetWriter(dir)
	require.NoError(t, err)

	// No open buy orders is a normal market condition, not format drift:
	// the item persists and the orderbook table simply gets no row.
	ob := testOrderBook()
	ob.BuyOrders = nil
	require.NoError(t, w.Append(testItem(), nil, ob))

	_, rows, err := LoadTable(filepath.Join(dir, ItemsFile))
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, _, err = LoadTable(filepath.Join(dir, OrderBookFile))
	assert.True(t, os.IsNotExist(err))

	ob = testOrderBook()
	ob.SellOrders = nil
	require.NoError(t, w.Append(testItem(), nil, ob))
	_, _, err = LoadTable(filepath.Join(dir, OrderBookFile))
	assert.True(t, os.IsNotExist(err))
}

func TestAppendRejectsReorderedHeader(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDatasetWriter(dir)
	require.NoError(t, err)

	// A persisted table whose columns were shuffled would misalign every
	// appended row; that is format drift and must fail loudly.
	reordered := "Game,Name,Item Type,App ID,Item Name ID,Items for Sale,Sell Price,Buy Requests,Buy Price,Lowest Price,Volume,Median Price\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ItemsFile), []byte(reordered), 0o644))

	err = w.Append(testItem(), nil, nil)

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, ItemsFile, schemaErr.Table)
	assert.Equal(t, "Name", schemaErr.Column)
}
