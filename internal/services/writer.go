package services

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"steam-market-scraper/internal/models"
)

const (
	ItemsFile     = "items.csv"
	DailyFile     = "daily.csv"
	OrderBookFile = "orderbook.csv"
)

var (
	itemColumns = []string{
		"Name", "Game", "Item Type", "App ID", "Item Name ID",
		"Items for Sale", "Sell Price", "Buy Requests", "Buy Price",
		"Lowest Price", "Volume", "Median Price",
	}
	dailyColumns     = []string{"Date", "Name", "Average Price", "Total Volume"}
	orderBookColumns = []string{
		"Name",
		"Buy Order Price", "Buy Order Quantity",
		"Sell Order Price", "Sell Order Quantity",
	}
)

// Mirror receives a copy of every persisted row. Implemented by the
// optional MySQL store; mirror failures are logged and never fatal because
// the CSV tables stay canonical.
type Mirror interface {
	SaveItemRow(row *models.ItemRow) error
	SaveDailyRows(rows []models.DailyAggregate) error
	SaveOrderBookRow(row *models.OrderBookRow) error
}

// DatasetWriter normalizes and durably appends per-item results to the
// three growing tables. Every append loads the existing table and rewrites
// it whole: write amplification traded for crash safety, since a crash
// mid-run loses at most the in-flight item. Single-writer only; the
// read-modify-write is not atomic under concurrency.
type DatasetWriter struct {
	dir    string
	mirror Mirror
}

func NewDatasetWriter(dir string) (*DatasetWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &DatasetWriter{dir: dir}, nil
}

func (w *DatasetWriter) SetMirror(m Mirror) { w.mirror = m }

// MaxPersistedDay returns the latest Date persisted for the item in the
// daily table, or nil when the table (or the item) has no history yet.
func (w *DatasetWriter) MaxPersistedDay(name string) (*time.Time, error) {
	path := filepath.Join(w.dir, DailyFile)
	header, rows, err := LoadTable(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dateIdx := columnIndex(header, "Date")
	nameIdx := columnIndex(header, "Name")
	if dateIdx < 0 || nameIdx < 0 {
		return nil, &SchemaError{Table: DailyFile, Column: "Date/Name", Detail: "header missing"}
	}

	var max *time.Time
	for _, row := range rows {
		if len(row) <= dateIdx || len(row) <= nameIdx || row[nameIdx] != name {
			continue
		}
		day, err := time.Parse(dayKeyLayout, row[dateIdx])
		if err != nil {
			return nil, &SchemaError{Table: DailyFile, Column: "Date", Detail: fmt.Sprintf("unparseable date %q", row[dateIdx])}
		}
		if max == nil || day.After(*max) {
			d := day
			max = &d
		}
	}
	return max, nil
}

// Append persists one item's results: one item row, zero or more daily
// rows, and at most one order-book row. Each table is rewritten in full.
func (w *DatasetWriter) Append(item *models.Item, dailies []models.DailyAggregate, orderBook *models.OrderBookSnapshot) error {
	itemRow, err := normalizeItem(item)
	if err != nil {
		return err
	}
	if err := w.appendRows(ItemsFile, itemColumns, [][]string{itemCells(itemRow)}); err != nil {
		return err
	}

	if len(dailies) > 0 {
		dailyRows := make([][]string, 0, len(dailies))
		for _, agg := range dailies {
			dailyRows = append(dailyRows, []string{
				agg.Day.Format(dayKeyLayout),
				agg.Name,
				FormatMoney(agg.AveragePrice),
				strconv.Itoa(agg.TotalVolume),
			})
		}
		if err := w.appendRows(DailyFile, dailyColumns, dailyRows); err != nil {
			return err
		}
	}

	var obRow *models.OrderBookRow
	if orderBook != nil {
		obRow = flattenOrderBook(orderBook)
		if obRow == nil {
			log.Printf("[Writer] order book for %q has an empty side, no row written", item.Name)
		} else if err := w.appendRows(OrderBookFile, orderBookColumns, [][]string{orderBookCells(obRow)}); err != nil {
			return err
		}
	}

	w.mirrorRows(itemRow, dailies, obRow)
	return nil
}

func (w *DatasetWriter) mirrorRows(item *models.ItemRow, dailies []models.DailyAggregate, orderBook *models.OrderBookRow) {
	if w.mirror == nil {
		return
	}
	if err := w.mirror.SaveItemRow(item); err != nil {
		log.Printf("[Writer] mirror item row failed for %q: %v", item.Name, err)
	}
	if len(dailies) > 0 {
		if err := w.mirror.SaveDailyRows(dailies); err != nil {
			log.Printf("[Writer] mirror daily rows failed for %q: %v", item.Name, err)
		}
	}
	if orderBook != nil {
		if err := w.mirror.SaveOrderBookRow(orderBook); err != nil {
			log.Printf("[Writer] mirror order-book row failed for %q: %v", item.Name, err)
		}
	}
}

// appendRows loads a table (or starts it), appends rows, and rewrites the
// whole file.
func (w *DatasetWriter) appendRows(file string, columns []string, newRows [][]string) error {
	path := filepath.Join(w.dir, file)
	header, rows, err := LoadTable(path)
	if os.IsNotExist(err) {
		header, rows = columns, nil
	} else if err != nil {
		return err
	}

	// Cells are written in canonical order, so the persisted header must
	// match it exactly; a reordered table would silently misalign rows.
	for i, col := range columns {
		if i >= len(header) || header[i] != col {
			return &SchemaError{Table: file, Column: col, Detail: "persisted header does not match"}
		}
	}
	if len(header) > len(columns) {
		return &SchemaError{Table: file, Column: header[len(columns)], Detail: "unexpected column in persisted table"}
	}

	rows = append(rows, newRows...)
	return writeTable(path, header, rows)
}

// LoadTable reads a CSV table into its header and rows. Also used by the
// dataset API and the workbook exporter.
func LoadTable(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("table %s is empty", path)
	}
	return records[0], records[1:], nil
}

func writeTable(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rewriting %s: %w", path, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func columnIndex(header []string, name string) int {
	for i, col := range header {
		if col == name {
			return i
		}
	}
	return -1
}

// normalizeItem coerces the quoted page/API fields to numbers. Detail
// fields are required; overview fields are optional (partial snapshot) but
// must parse when present.
func normalizeItem(item *models.Item) (*models.ItemRow, error) {
	row := &models.ItemRow{
		Name:       item.Name,
		Game:       item.Game,
		ItemType:   item.ItemType,
		AppID:      item.AppID,
		ItemNameID: item.ItemNameID,
	}
	if row.Name == "" {
		return nil, &SchemaError{Table: ItemsFile, Column: "Name", Detail: "empty after scrape"}
	}

	var err error
	if row.ItemsForSale, err = NormalizeCount(item.ItemsForSale); err != nil {
		return nil, &SchemaError{Table: ItemsFile, Column: "Items for Sale", Detail: err.Error()}
	}
	if row.SellPrice, err = NormalizeMoney(item.SellPrice); err != nil {
		return nil, &SchemaError{Table: ItemsFile, Column: "Sell Price", Detail: err.Error()}
	}
	if row.BuyRequests, err = NormalizeCount(item.BuyRequests); err != nil {
		return nil, &SchemaError{Table: ItemsFile, Column: "Buy Requests", Detail: err.Error()}
	}
	if row.BuyPrice, err = NormalizeMoney(item.BuyPrice); err != nil {
		return nil, &SchemaError{Table: ItemsFile, Column: "Buy Price", Detail: err.Error()}
	}

	if item.LowestPrice != "" {
		v, err := NormalizeMoney(item.LowestPrice)
		if err != nil {
			return nil, &SchemaError{Table: ItemsFile, Column: "Lowest Price", Detail: err.Error()}
		}
		row.LowestPrice = &v
	}
	if item.Volume != "" {
		v, err := NormalizeCount(item.Volume)
		if err != nil {
			return nil, &SchemaError{Table: ItemsFile, Column: "Volume", Detail: err.Error()}
		}
		row.Volume = &v
	}
	if item.MedianPrice != "" {
		v, err := NormalizeMoney(item.MedianPrice)
		if err != nil {
			return nil, &SchemaError{Table: ItemsFile, Column: "Median Price", Detail: err.Error()}
		}
		row.MedianPrice = &v
	}
	return row, nil
}

// flattenOrderBook splits the graphs into four flat numeric columns, keyed
// by field name rather than position. An empty side is a normal market
// condition (items with no open buy orders are common), so such a snapshot
// produces no row rather than an error.
func flattenOrderBook(ob *models.OrderBookSnapshot) *models.OrderBookRow {
	if len(ob.BuyOrders) == 0 || len(ob.SellOrders) == 0 {
		return nil
	}
	return &models.OrderBookRow{
		Name:              ob.Name,
		BuyOrderPrice:     ob.BuyOrders[0].Price,
		BuyOrderQuantity:  ob.BuyOrders[0].Quantity,
		SellOrderPrice:    ob.SellOrders[0].Price,
		SellOrderQuantity: ob.SellOrders[0].Quantity,
	}
}

func itemCells(row *models.ItemRow) []string {
	return []string{
		row.Name, row.Game, row.ItemType, row.AppID, row.ItemNameID,
		strconv.Itoa(row.ItemsForSale),
		FormatMoney(row.SellPrice),
		strconv.Itoa(row.BuyRequests),
		FormatMoney(row.BuyPrice),
		optionalMoney(row.LowestPrice),
		optionalCount(row.Volume),
		optionalMoney(row.MedianPrice),
	}
}

func orderBookCells(row *models.OrderBookRow) []string {
	return []string{
		row.Name,
		FormatMoney(row.BuyOrderPrice),
		strconv.Itoa(row.BuyOrderQuantity),
		FormatMoney(row.SellOrderPrice),
		strconv.Itoa(row.SellOrderQuantity),
	}
}

func optionalMoney(v *float64) string {
	if v == nil {
		return ""
	}
	return FormatMoney(*v)
}

func optionalCount(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// NormalizeMoney strips the currency symbol and thousands separators:
// "$12,345.67" → 12345.67.
func NormalizeMoney(value string) (float64, error) {
	clean := strings.TrimSpace(value)
	clean = strings.TrimPrefix(clean, "$")
	clean = strings.ReplaceAll(clean, ",", "")
	if clean == "" {
		return 0, fmt.Errorf("empty monetary value")
	}
	return strconv.ParseFloat(clean, 64)
}

// FormatMoney renders with two-decimal precision, the round-trip form of
// NormalizeMoney.
func FormatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// NormalizeCount strips thousands separators: "1,532" → 1532.
func NormalizeCount(value string) (int, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	if clean == "" {
		return 0, fmt.Errorf("empty count value")
	}
	return strconv.Atoi(clean)
}
