package models

import (
	"strconv"
	"strings"
	"time"
)

// Transaction is one product sale as returned by the record source.
type Transaction struct {
	Product      string    `json:"product,omitempty"`
	Category     string    `json:"category"`
	Price        float64   `json:"price"`
	PurchaseDate time.Time `json:"purchase_date"`
	Location     string    `json:"location"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	Seller       string    `json:"seller"`
}

// Regions lists the selectable regions. The first entry stands for the whole
// country and scopes nothing.
var Regions = []string{"Brasil", "Centro-Oeste", "Nordeste", "Norte", "Sudeste", "Sul"}

// AllRegions is the display name of the unscoped region.
const AllRegions = "Brasil"

// Filter is the user's current selection. Region and Year scope the fetch;
// Sellers is applied to the fetched records.
type Filter struct {
	Region  string   `json:"region"`
	Year    int      `json:"year,omitempty"`
	Sellers []string `json:"sellers,omitempty"`
}

// SourceQuery renders the region and year scope as record source parameters.
func (f Filter) SourceQuery() SourceQuery {
	q := SourceQuery{}
	if f.Region != "" && !strings.EqualFold(f.Region, AllRegions) {
		q.Region = strings.ToLower(f.Region)
	}
	if f.Year > 0 {
		q.Year = strconv.Itoa(f.Year)
	}
	return q
}

// SourceQuery holds the raw query parameter values; empty means unscoped.
type SourceQuery struct {
	Region string
	Year   string
}

// CanonicalRegion maps any casing of a region name to its display form.
// Empty input and unknown names return false.
func CanonicalRegion(name string) (string, bool) {
	for _, r := range Regions {
		if strings.EqualFold(r, strings.TrimSpace(name)) {
			return r, true
		}
	}
	return "", false
}
