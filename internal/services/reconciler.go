package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"steam-market-scraper/internal/models"
)

const (
	tickTimeLayout = "Jan 02 2006 15:" // "Dec 21 2014 01: +0" keeps the first 15 chars
	dayKeyLayout   = "2006-01-02"
)

// ParseTickTime parses a price-history timestamp at hour resolution. The
// endpoint appends a timezone stub (" +0") that carries no information.
func ParseTickTime(ts string) (time.Time, error) {
	if len(ts) < len(tickTimeLayout) {
		return time.Time{}, fmt.Errorf("timestamp %q shorter than %q", ts, tickTimeLayout)
	}
	return time.Parse(tickTimeLayout, ts[:len(tickTimeLayout)])
}

// DayOf truncates a tick timestamp to its calendar day in UTC.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// HistoryReconciler merges freshly fetched ticks into day-bucketed
// aggregates, filtering out days already persisted. Re-running with the
// same ticks and the updated max-day yields nothing: no day is written
// twice.
type HistoryReconciler struct{}

func NewHistoryReconciler() *HistoryReconciler {
	return &HistoryReconciler{}
}

// Reconcile groups ticks after persistedMaxDay into per-day aggregates
// (arithmetic mean price, summed quantity), ascending by day. A nil
// persistedMaxDay means first run: nothing is filtered.
func (r *HistoryReconciler) Reconcile(name string, ticks []models.PriceTick, persistedMaxDay *time.Time) []models.DailyAggregate {
	buckets := make(map[time.Time][]models.PriceTick)
	for _, tick := range ticks {
		day := DayOf(tick.Timestamp)
		if persistedMaxDay != nil && !day.After(*persistedMaxDay) {
			continue
		}
		buckets[day] = append(buckets[day], tick)
	}

	days := lo.Keys(buckets)
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	aggregates := make([]models.DailyAggregate, 0, len(days))
	for _, day := range days {
		dayTicks := buckets[day]
		priceSum := lo.SumBy(dayTicks, func(t models.PriceTick) float64 { return t.Price })
		volume := lo.SumBy(dayTicks, func(t models.PriceTick) int { return t.Quantity })
		aggregates = append(aggregates, models.DailyAggregate{
			Name:         name,
			Day:          day,
			AveragePrice: priceSum / float64(len(dayTicks)),
			TotalVolume:  volume,
		})
	}
	return aggregates
}
