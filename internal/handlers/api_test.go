package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/services"
)

type fakeSource struct {
	records []models.Transaction
	err     error
	queries []models.SourceQuery
}

func (f *fakeSource) Fetch(ctx context.Context, q models.SourceQuery) ([]models.Transaction, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRecords() []models.Transaction {
	return []models.Transaction{
		{
			Product:      "Modelagem preditiva",
			Category:     "livros",
			Price:        100,
			PurchaseDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			Location:     "BA",
			Lat:          -13.29,
			Lon:          -41.71,
			Seller:       "Ana",
		},
		{
			Product:      "Iphone 15",
			Category:     "eletronicos",
			Price:        50,
			PurchaseDate: time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
			Location:     "SP",
			Lat:          -22.19,
			Lon:          -48.79,
			Seller:       "Bruno",
		},
	}
}

func newTestDashboard(src *fakeSource) *services.Dashboard {
	return services.NewDashboard(src, config.New().Dashboard, testLogger(), nil)
}

func decodeSuccess(t *testing.T, w *httptest.ResponseRecorder, data any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success response")
	}
	if err := json.Unmarshal(resp.Data, data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *errors.AppError {
	t.Helper()
	var resp errors.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Success || resp.Error == nil {
		t.Fatalf("expected error response, got %+v", resp)
	}
	return resp.Error
}

func TestAPIHandlers_HandleDashboard(t *testing.T) {
	src := &fakeSource{records: testRecords()}
	h := NewAPIHandlers(newTestDashboard(src), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard?regiao=Nordeste&ano=2020&top=3", nil)
	w := httptest.NewRecorder()

	h.HandleDashboard(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q", cc)
	}

	var dash models.Dashboard
	decodeSuccess(t, w, &dash)

	if len(src.queries) != 1 || src.queries[0] != (models.SourceQuery{Region: "nordeste", Year: "2020"}) {
		t.Errorf("source queries = %+v", src.queries)
	}
	if dash.TotalSales != 2 || dash.TotalRevenue != 150 {
		t.Errorf("totals = %v / %d", dash.TotalRevenue, dash.TotalSales)
	}
	if dash.Top != 3 {
		t.Errorf("top = %d, want 3", dash.Top)
	}
	if dash.Filter.Region != "Nordeste" || dash.Filter.Year != 2020 {
		t.Errorf("filter = %+v", dash.Filter)
	}
}

func TestAPIHandlers_HandleDashboard_SellerFilter(t *testing.T) {
	src := &fakeSource{records: testRecords()}
	h := NewAPIHandlers(newTestDashboard(src), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard?vendedor=Bruno", nil)
	w := httptest.NewRecorder()

	h.HandleDashboard(w, req)

	var dash models.Dashboard
	decodeSuccess(t, w, &dash)

	if src.queries[0] != (models.SourceQuery{}) {
		t.Errorf("seller filter must not reach the source, got %+v", src.queries[0])
	}
	if dash.TotalSales != 1 || dash.TotalRevenue != 50 {
		t.Errorf("totals = %v / %d", dash.TotalRevenue, dash.TotalSales)
	}
	if len(dash.AvailableSellers) != 2 {
		t.Errorf("available sellers = %v", dash.AvailableSellers)
	}
}

func TestAPIHandlers_HandleDashboard_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantDetail string
	}{
		{"unknown region", "regiao=Atlantida", "regiao must be one of"},
		{"year not a number", "ano=dois", "ano must be a year"},
		{"year out of range", "ano=1999", "ano must be between 2020 and 2024"},
		{"top out of range", "top=50", "top must be between 2 and 10"},
		{"top not a number", "top=x", "top must be a number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{records: testRecords()}
			h := NewAPIHandlers(newTestDashboard(src), testLogger())

			req := httptest.NewRequest(http.MethodGet, "/api/dashboard?"+tt.query, nil)
			w := httptest.NewRecorder()

			h.HandleDashboard(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
			appErr := decodeError(t, w)
			if appErr.Code != errors.CodeValidation {
				t.Errorf("code = %s", appErr.Code)
			}
			if !strings.Contains(appErr.Details, tt.wantDetail) {
				t.Errorf("details = %q, want %q", appErr.Details, tt.wantDetail)
			}
			if len(src.queries) != 0 {
				t.Errorf("invalid filter must not fetch")
			}
		})
	}
}

func TestAPIHandlers_HandleDashboard_SourceFailure(t *testing.T) {
	src := &fakeSource{err: errors.Upstream("Record source request failed").WithDetails("status 500")}
	h := NewAPIHandlers(newTestDashboard(src), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	w := httptest.NewRecorder()

	h.HandleDashboard(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, w.Code)
	}
	appErr := decodeError(t, w)
	if appErr.Code != errors.CodeUpstream || appErr.Details != "status 500" {
		t.Errorf("unexpected error %+v", appErr)
	}
}

func TestAPIHandlers_HandleRegions(t *testing.T) {
	h := NewAPIHandlers(newTestDashboard(&fakeSource{}), testLogger())

	w := httptest.NewRecorder()
	h.HandleRegions(w, httptest.NewRequest(http.MethodGet, "/api/regions", nil))

	var resp regionsResponse
	decodeSuccess(t, w, &resp)

	if len(resp.Regions) != len(models.Regions) || resp.Regions[0] != models.AllRegions {
		t.Errorf("regions = %v", resp.Regions)
	}
	if resp.MinYear != 2020 || resp.MaxYear != 2024 {
		t.Errorf("years = %d..%d", resp.MinYear, resp.MaxYear)
	}
	if resp.Top.Default != 5 || resp.Top.Min != 2 || resp.Top.Max != 10 {
		t.Errorf("top = %+v", resp.Top)
	}
}

func TestAPIHandlers_HandleHealth(t *testing.T) {
	h := NewAPIHandlers(newTestDashboard(&fakeSource{}), testLogger())

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var health map[string]string
	decodeSuccess(t, w, &health)
	if health["status"] != "healthy" {
		t.Errorf("status = %q", health["status"])
	}
}

func TestAPIHandlers_HandleStats(t *testing.T) {
	src := &fakeSource{records: testRecords()}
	dashboard := newTestDashboard(src)
	h := NewAPIHandlers(dashboard, testLogger())

	if _, err := dashboard.Build(context.Background(), models.Filter{}, 0); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	w := httptest.NewRecorder()
	h.HandleStats(w, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))

	var stats map[string]any
	decodeSuccess(t, w, &stats)

	if stats["builds"] != float64(1) || stats["last_records"] != float64(2) {
		t.Errorf("stats = %v", stats)
	}
}

func TestAPIHandlers_HandleNotFound(t *testing.T) {
	h := NewAPIHandlers(newTestDashboard(&fakeSource{}), testLogger())

	w := httptest.NewRecorder()
	h.HandleNotFound(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if appErr := decodeError(t, w); appErr.Code != errors.CodeNotFound {
		t.Errorf("code = %s", appErr.Code)
	}
}
