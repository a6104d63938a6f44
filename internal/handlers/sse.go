package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
	"github.com/starfederation/datastar-go/datastar"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/services"
	"sales-dashboard/internal/ui/templates"
)

// maxChartBars is the fixed size of the place and category bar charts.
const maxChartBars = 5

type SSEHandlers struct {
	dashboard *services.Dashboard
	binder    *filterBinder
	logger    *slog.Logger
}

func NewSSEHandlers(dashboard *services.Dashboard, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		dashboard: dashboard,
		binder:    newFilterBinder(dashboard.Settings()),
		logger:    logger,
	}
}

// chartData is the charts signal consumed by window.renderCharts.
type chartData struct {
	RevenueByPlace       []models.PlaceTotal    `json:"revenueByPlace"`
	SalesByPlace         []models.PlaceTotal    `json:"salesByPlace"`
	TopRevenuePlaces     []models.PlaceTotal    `json:"topRevenuePlaces"`
	TopSalesPlaces       []models.PlaceTotal    `json:"topSalesPlaces"`
	Months               []models.MonthTotal    `json:"months"`
	TopRevenueCategories []models.CategoryTotal `json:"topRevenueCategories"`
	TopSalesCategories   []models.CategoryTotal `json:"topSalesCategories"`
	TopSellersRevenue    []models.SellerTotal   `json:"topSellersRevenue"`
	TopSellersSales      []models.SellerTotal   `json:"topSellersSales"`
}

func newChartData(d *models.Dashboard) chartData {
	return chartData{
		RevenueByPlace:       d.RevenueByPlace,
		SalesByPlace:         d.SalesByPlace,
		TopRevenuePlaces:     models.Top(d.RevenueByPlace, maxChartBars),
		TopSalesPlaces:       models.Top(d.SalesByPlace, maxChartBars),
		Months:               models.Chronological(d.RevenueByMonth),
		TopRevenueCategories: models.Top(d.RevenueByCategory, maxChartBars),
		TopSalesCategories:   models.Top(d.SalesByCategory, maxChartBars),
		TopSellersRevenue:    d.TopSellersByRevenue(d.Top),
		TopSellersSales:      d.TopSellersBySales(d.Top),
	}
}

// staleChartData is what the charts signal holds after a failed cycle: every
// series present and empty, so the plots are redrawn blank.
func staleChartData() chartData {
	return chartData{
		RevenueByPlace:       []models.PlaceTotal{},
		SalesByPlace:         []models.PlaceTotal{},
		TopRevenuePlaces:     []models.PlaceTotal{},
		TopSalesPlaces:       []models.PlaceTotal{},
		Months:               []models.MonthTotal{},
		TopRevenueCategories: []models.CategoryTotal{},
		TopSalesCategories:   []models.CategoryTotal{},
		TopSellersRevenue:    []models.SellerTotal{},
		TopSellersSales:      []models.SellerTotal{},
	}
}

// HandleDashboard runs one render cycle for the filter in the request
// signals and patches the page. A failed cycle shows the error banner and
// blanks the numbers, tables and charts of the previous cycle.
func (h *SSEHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := observability.GetRequestID(ctx)

	filter, top, bindErr := h.binder.fromSignals(r)

	sse := datastar.NewSSE(w, r)

	if bindErr != nil {
		h.patchError(ctx, sse, bindErr, requestID)
		return
	}

	dash, err := h.dashboard.Build(ctx, filter, top)
	if err != nil {
		h.patchError(ctx, sse, err, requestID)
		return
	}

	prefix := h.dashboard.Settings().CurrencyPrefix
	h.patch(ctx, sse, requestID, newChartData(dash),
		templates.ErrorBanner("", ""),
		templates.Metrics(dash),
		templates.SellerOptions(dash.AvailableSellers, filter.Sellers),
		templates.SellerTables(dash, prefix),
	)
}

// patch sends the fragments in order and then replaces the charts signal.
func (h *SSEHandlers) patch(ctx context.Context, sse *datastar.ServerSentEventGenerator, requestID string, charts chartData, fragments ...templ.Component) {
	for _, c := range fragments {
		html, err := templates.RenderString(ctx, c)
		if err != nil {
			h.logger.Error("render fragment", "error", err, "request_id", requestID)
			return
		}
		if err := sse.PatchElements(html); err != nil {
			h.logger.Debug("patch elements", "error", err, "request_id", requestID)
			return
		}
	}

	signals, err := json.Marshal(map[string]any{"charts": charts})
	if err != nil {
		h.logger.Error("marshal chart signals", "error", err, "request_id", requestID)
		return
	}
	if err := sse.PatchSignals(signals); err != nil {
		h.logger.Debug("patch signals", "error", err, "request_id", requestID)
	}
}

func (h *SSEHandlers) patchError(ctx context.Context, sse *datastar.ServerSentEventGenerator, err error, requestID string) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.InternalWrap(err, "Could not load sales data")
	}

	level := slog.LevelError
	if appErr.StatusCode < 500 {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, "dashboard cycle failed",
		"error_code", appErr.Code,
		"error", err,
		"request_id", requestID,
	)

	h.patch(ctx, sse, requestID, staleChartData(),
		templates.ErrorBanner(appErr.Message, appErr.Details),
		templates.StaleMetrics(),
		templates.StaleSellerTables(),
	)
}
