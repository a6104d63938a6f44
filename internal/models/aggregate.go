package models

import (
	"cmp"
	"slices"
	"time"
)

// PlaceTotal is one purchase location with its coordinates.
type PlaceTotal struct {
	Place   string  `json:"place"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Revenue float64 `json:"revenue"`
	Sales   int     `json:"sales"`
}

// MonthTotal is one calendar month. Period is the first day of the month in UTC.
type MonthTotal struct {
	Period  time.Time `json:"period"`
	Year    int       `json:"year"`
	Month   int       `json:"month"`
	Revenue float64   `json:"revenue"`
	Sales   int       `json:"sales"`
}

type CategoryTotal struct {
	Category string  `json:"category"`
	Revenue  float64 `json:"revenue"`
	Sales    int     `json:"sales"`
}

type SellerTotal struct {
	Seller  string  `json:"seller"`
	Revenue float64 `json:"revenue"`
	Sales   int     `json:"sales"`
}

// Dashboard is everything one render cycle shows.
type Dashboard struct {
	Filter Filter `json:"filter"`
	Top    int    `json:"top"`

	TotalRevenue float64 `json:"total_revenue"`
	TotalSales   int     `json:"total_sales"`
	Revenue      string  `json:"revenue"`
	SalesCount   string  `json:"sales_count"`

	RevenueByPlace    []PlaceTotal    `json:"revenue_by_place"`
	SalesByPlace      []PlaceTotal    `json:"sales_by_place"`
	RevenueByMonth    []MonthTotal    `json:"revenue_by_month"`
	SalesByMonth      []MonthTotal    `json:"sales_by_month"`
	RevenueByCategory []CategoryTotal `json:"revenue_by_category"`
	SalesByCategory   []CategoryTotal `json:"sales_by_category"`
	Sellers           []SellerTotal   `json:"sellers"`

	// AvailableSellers are the distinct sellers before the seller filter.
	AvailableSellers []string `json:"available_sellers"`
}

// Top returns at most n leading rows of an already sorted table.
func Top[T any](rows []T, n int) []T {
	if n < 0 {
		n = 0
	}
	if len(rows) <= n {
		return rows
	}
	return rows[:n]
}

// Chronological returns a copy of rows ordered by period.
func Chronological(rows []MonthTotal) []MonthTotal {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b MonthTotal) int {
		return a.Period.Compare(b.Period)
	})
	return out
}

// TopSellersByRevenue returns the k sellers with the highest revenue.
func (d *Dashboard) TopSellersByRevenue(k int) []SellerTotal {
	out := slices.Clone(d.Sellers)
	slices.SortStableFunc(out, func(a, b SellerTotal) int {
		return cmp.Compare(b.Revenue, a.Revenue)
	})
	return Top(out, k)
}

// TopSellersBySales returns the k sellers with the most sales.
func (d *Dashboard) TopSellersBySales(k int) []SellerTotal {
	out := slices.Clone(d.Sellers)
	slices.SortStableFunc(out, func(a, b SellerTotal) int {
		return cmp.Compare(b.Sales, a.Sales)
	})
	return Top(out, k)
}
