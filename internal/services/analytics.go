package services

import (
	"cmp"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"sales-dashboard/internal/models"
)

const (
	magnitudeStep = 1000.0
	finalUnit     = "million"
)

// magnitudeUnits are tried in order while the value is below magnitudeStep.
var magnitudeUnits = []string{"", "thousand"}

// FormatNumber renders value with two decimals and a magnitude word, e.g.
// FormatNumber(1500, "R$") == "R$ 1.50 thousand".
//
// Values still at or above a thousand after the last unit are labelled
// million without further division, so 2e9 renders as "2000.00 million".
func FormatNumber(value float64, prefix string) string {
	for _, unit := range magnitudeUnits {
		if value < magnitudeStep {
			return joinNumber(prefix, value, unit)
		}
		value /= magnitudeStep
	}
	return joinNumber(prefix, value, finalUnit)
}

func joinNumber(prefix string, value float64, unit string) string {
	parts := make([]string, 0, 3)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, strconv.FormatFloat(value, 'f', 2, 64))
	if unit != "" {
		parts = append(parts, unit)
	}
	return strings.Join(parts, " ")
}

// FilterSellers keeps the records sold by one of sellers. An empty selection
// returns records unchanged.
func FilterSellers(records []models.Transaction, sellers []string) []models.Transaction {
	if len(sellers) == 0 {
		return records
	}

	wanted := make(map[string]struct{}, len(sellers))
	for _, s := range sellers {
		wanted[s] = struct{}{}
	}

	out := make([]models.Transaction, 0, len(records))
	for _, tx := range records {
		if _, ok := wanted[tx.Seller]; ok {
			out = append(out, tx)
		}
	}
	return out
}

// DistinctSellers lists seller names in ascending order.
func DistinctSellers(records []models.Transaction) []string {
	seen := make(map[string]struct{})
	for _, tx := range records {
		seen[tx.Seller] = struct{}{}
	}
	if len(seen) == 0 {
		return []string{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Aggregate turns region/year scoped records into one render cycle's tables.
// It applies the seller filter itself so AvailableSellers reflects the scope
// before that filter. It has no side effects.
func Aggregate(records []models.Transaction, filter models.Filter, top int, currencyPrefix string) *models.Dashboard {
	filtered := FilterSellers(records, filter.Sellers)

	var total float64
	for _, tx := range filtered {
		total += tx.Price
	}

	places := placeTotals(filtered)
	months := monthTotals(filtered)
	categories := categoryTotals(filtered)

	return &models.Dashboard{
		Filter:       filter,
		Top:          top,
		TotalRevenue: total,
		TotalSales:   len(filtered),
		Revenue:      FormatNumber(total, currencyPrefix),
		SalesCount:   FormatNumber(float64(len(filtered)), ""),

		RevenueByPlace:    sortByRevenue(places, func(p models.PlaceTotal) float64 { return p.Revenue }),
		SalesByPlace:      sortBySales(places, func(p models.PlaceTotal) int { return p.Sales }),
		RevenueByMonth:    sortByRevenue(months, func(m models.MonthTotal) float64 { return m.Revenue }),
		SalesByMonth:      sortBySales(months, func(m models.MonthTotal) int { return m.Sales }),
		RevenueByCategory: sortByRevenue(categories, func(c models.CategoryTotal) float64 { return c.Revenue }),
		SalesByCategory:   sortBySales(categories, func(c models.CategoryTotal) int { return c.Sales }),
		Sellers:           sellerTotals(filtered),

		AvailableSellers: DistinctSellers(records),
	}
}

type tally struct {
	revenue float64
	sales   int
}

// groupBy sums price and counts records per key. Keys are returned in
// ascending order so that later stable sorts break ties deterministically.
func groupBy[K cmp.Ordered](records []models.Transaction, key func(models.Transaction) K) ([]K, map[K]*tally) {
	groups := make(map[K]*tally)
	for _, tx := range records {
		k := key(tx)
		t, ok := groups[k]
		if !ok {
			t = &tally{}
			groups[k] = t
		}
		t.revenue += tx.Price
		t.sales++
	}
	return slices.Sorted(maps.Keys(groups)), groups
}

type coordinate struct {
	lat, lon float64
}

// placeCoordinates takes each place's coordinates from its first record.
func placeCoordinates(records []models.Transaction) map[string]coordinate {
	coords := make(map[string]coordinate)
	for _, tx := range records {
		if _, ok := coords[tx.Location]; !ok {
			coords[tx.Location] = coordinate{lat: tx.Lat, lon: tx.Lon}
		}
	}
	return coords
}

func placeTotals(records []models.Transaction) []models.PlaceTotal {
	keys, groups := groupBy(records, func(tx models.Transaction) string { return tx.Location })
	coords := placeCoordinates(records)

	rows := make([]models.PlaceTotal, 0, len(keys))
	for _, place := range keys {
		c := coords[place]
		rows = append(rows, models.PlaceTotal{
			Place:   place,
			Lat:     c.lat,
			Lon:     c.lon,
			Revenue: groups[place].revenue,
			Sales:   groups[place].sales,
		})
	}
	return rows
}

// monthKey orders months chronologically: 2023-01 -> 202301.
func monthKey(tx models.Transaction) int {
	return tx.PurchaseDate.Year()*100 + int(tx.PurchaseDate.Month())
}

func monthTotals(records []models.Transaction) []models.MonthTotal {
	keys, groups := groupBy(records, monthKey)

	rows := make([]models.MonthTotal, 0, len(keys))
	for _, k := range keys {
		year, month := k/100, k%100
		rows = append(rows, models.MonthTotal{
			Period:  time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC),
			Year:    year,
			Month:   month,
			Revenue: groups[k].revenue,
			Sales:   groups[k].sales,
		})
	}
	return rows
}

func categoryTotals(records []models.Transaction) []models.CategoryTotal {
	keys, groups := groupBy(records, func(tx models.Transaction) string { return tx.Category })

	rows := make([]models.CategoryTotal, 0, len(keys))
	for _, category := range keys {
		rows = append(rows, models.CategoryTotal{
			Category: category,
			Revenue:  groups[category].revenue,
			Sales:    groups[category].sales,
		})
	}
	return rows
}

// sellerTotals is left in seller name order; the seller views sort it.
func sellerTotals(records []models.Transaction) []models.SellerTotal {
	keys, groups := groupBy(records, func(tx models.Transaction) string { return tx.Seller })

	rows := make([]models.SellerTotal, 0, len(keys))
	for _, seller := range keys {
		rows = append(rows, models.SellerTotal{
			Seller:  seller,
			Revenue: groups[seller].revenue,
			Sales:   groups[seller].sales,
		})
	}
	return rows
}

func sortByRevenue[T any](rows []T, revenue func(T) float64) []T {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b T) int {
		return cmp.Compare(revenue(b), revenue(a))
	})
	return out
}

func sortBySales[T any](rows []T, sales func(T) int) []T {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b T) int {
		return cmp.Compare(sales(b), sales(a))
	})
	return out
}
