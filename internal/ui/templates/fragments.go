package templates

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/a-h/templ"

	"sales-dashboard/internal/models"
)

// unavailable fills the headline numbers after a failed cycle.
const unavailable = "n/a"

type metricView struct {
	Label string
	Value string
	Help  string
}

type metricsView struct {
	Stale bool
	Items []metricView
}

type optionView struct {
	Name     string
	Selected bool
}

type sellerRow struct {
	Seller string
	Value  string
}

type sellerTablesView struct {
	Stale   bool
	Top     int
	Revenue []sellerRow
	Sales   []sellerRow
}

type bannerView struct {
	Message string
	Details string
}

// Metrics shows the two headline numbers.
func Metrics(d *models.Dashboard) templ.Component {
	return view("metrics", metricsView{Items: metricItems(d.Revenue, d.SalesCount)})
}

// StaleMetrics replaces the headline numbers after a failed cycle so the
// previous filter's totals are not left on screen.
func StaleMetrics() templ.Component {
	return view("metrics", metricsView{Stale: true, Items: metricItems(unavailable, unavailable)})
}

func metricItems(revenue, sales string) []metricView {
	return []metricView{
		{Label: "Revenue", Value: revenue, Help: "Total sales revenue"},
		{Label: "Sales", Value: sales, Help: "Total number of products sold"},
	}
}

// SellerOptions lists the sellers available in the current region/year
// scope, keeping the current selection checked.
func SellerOptions(available, selected []string) templ.Component {
	options := make([]optionView, len(available))
	for i, s := range available {
		options[i] = optionView{Name: s, Selected: slices.Contains(selected, s)}
	}
	return view("seller-options", options)
}

// SellerTables renders the top-K sellers by revenue and by sales.
func SellerTables(d *models.Dashboard, currencyPrefix string) templ.Component {
	v := sellerTablesView{Top: d.Top}
	for _, s := range d.TopSellersByRevenue(d.Top) {
		v.Revenue = append(v.Revenue, sellerRow{Seller: s.Seller, Value: money(currencyPrefix, s.Revenue)})
	}
	for _, s := range d.TopSellersBySales(d.Top) {
		v.Sales = append(v.Sales, sellerRow{Seller: s.Seller, Value: strconv.Itoa(s.Sales)})
	}
	return view("seller-tables", v)
}

// StaleSellerTables empties the seller tables after a failed cycle.
func StaleSellerTables() templ.Component {
	return view("seller-tables", sellerTablesView{Stale: true})
}

func money(prefix string, v float64) string {
	if prefix == "" {
		return fmt.Sprintf("%.2f", v)
	}
	return fmt.Sprintf("%s %.2f", prefix, v)
}

// ErrorBanner shows a failed render cycle. An empty message renders the
// hidden placeholder, which clears a previous error.
func ErrorBanner(message, details string) templ.Component {
	return view("error-banner", bannerView{Message: message, Details: details})
}
