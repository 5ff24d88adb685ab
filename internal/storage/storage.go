package storage

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"steam-market-scraper/internal/models"
)

// ItemSnapshotRecord mirrors one items-table row per run.
type ItemSnapshotRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Name       string `gorm:"index;not null"`
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

	CreatedAt time.Time
}

// DailyAggregateRecord mirrors the daily table. The (name, day) unique key
// gives the mirror the same no-duplicate guarantee as the CSV merge.
type DailyAggregateRecord struct {
	ID           uint      `gorm:"primaryKey"`
	Name         string    `gorm:"uniqueIndex:idx_daily_name_day;size:191;not null"`
	Day          time.Time `gorm:"uniqueIndex:idx_daily_name_day;not null"`
	AveragePrice float64
	TotalVolume  int
	CreatedAt    time.Time
}

// OrderBookRecord mirrors the orderbook table, point-in-time per run.
type OrderBookRecord struct {
	ID                uint   `gorm:"primaryKey"`
	Name              string `gorm:"index;not null"`
	BuyOrderPrice     float64
	BuyOrderQuantity  int
	SellOrderPrice    float64
	SellOrderQuantity int
	CreatedAt         time.Time
}

// Store is the optional MySQL mirror behind the dataset writer.
type Store struct {
	db *gorm.DB
}

func Initialize(databaseURL string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&ItemSnapshotRecord{}, &DailyAggregateRecord{}, &OrderBookRecord{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	log.Println("[Storage] mirror database initialized")
	return &Store{db: db}, nil
}

func (s *Store) SaveItemRow(row *models.ItemRow) error {
	record := ItemSnapshotRecord{
		Name:         row.Name,
		Game:         row.Game,
		ItemType:     row.ItemType,
		AppID:        row.AppID,
		ItemNameID:   row.ItemNameID,
		ItemsForSale: row.ItemsForSale,
		SellPrice:    row.SellPrice,
		BuyRequests:  row.BuyRequests,
		BuyPrice:     row.BuyPrice,
		LowestPrice:  row.LowestPrice,
		Volume:       row.Volume,
		MedianPrice:  row.MedianPrice,
	}
	return s.db.Create(&record).Error
}

// SaveDailyRows inserts aggregates, silently dropping (name, day) keys the
// mirror already holds.
func (s *Store) SaveDailyRows(rows []models.DailyAggregate) error {
	records := make([]DailyAggregateRecord, 0, len(rows))
	for _, agg := range rows {
		records = append(records, DailyAggregateRecord{
			Name:         agg.Name,
			Day:          agg.Day,
			AveragePrice: agg.AveragePrice,
			TotalVolume:  agg.TotalVolume,
		})
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&records).Error
}

func (s *Store) SaveOrderBookRow(row *models.OrderBookRow) error {
	record := OrderBookRecord{
		Name:              row.Name,
		BuyOrderPrice:     row.BuyOrderPrice,
		BuyOrderQuantity:  row.BuyOrderQuantity,
		SellOrderPrice:    row.SellOrderPrice,
		SellOrderQuantity: row.SellOrderQuantity,
	}
	return s.db.Create(&record).Error
}
