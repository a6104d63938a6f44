package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/services"
)

type APIHandlers struct {
	dashboard *services.Dashboard
	binder    *filterBinder
	logger    *slog.Logger
}

func NewAPIHandlers(dashboard *services.Dashboard, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		dashboard: dashboard,
		binder:    newFilterBinder(dashboard.Settings()),
		logger:    logger,
	}
}

// HandleDashboard runs one render cycle and returns every aggregate as JSON.
func (h *APIHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	filter, top, err := h.binder.fromQuery(r)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	dash, err := h.dashboard.Build(r.Context(), filter, top)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	headers := map[string]string{
		"Cache-Control": "no-store",
	}

	errors.WriteSuccessWithHeaders(w, dash, headers)
}

type regionsResponse struct {
	Regions []string `json:"regions"`
	MinYear int      `json:"min_year"`
	MaxYear int      `json:"max_year"`
	Top     struct {
		Default int `json:"default"`
		Min     int `json:"min"`
		Max     int `json:"max"`
	} `json:"top"`
}

// HandleRegions lists the filter choices the dashboard accepts.
func (h *APIHandlers) HandleRegions(w http.ResponseWriter, r *http.Request) {
	cfg := h.dashboard.Settings()

	resp := regionsResponse{
		Regions: models.Regions,
		MinYear: cfg.MinYear,
		MaxYear: cfg.MaxYear,
	}
	resp.Top.Default = cfg.DefaultTop
	resp.Top.Min = cfg.MinTop
	resp.Top.Max = cfg.MaxTop

	headers := map[string]string{
		"Cache-Control": "public, max-age=300",
	}

	errors.WriteSuccessWithHeaders(w, resp, headers)
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {

	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {

	stats := h.dashboard.Stats()

	errors.WriteSuccess(w, stats)
}

// HandleNotFound answers unknown routes with the JSON error envelope.
func (h *APIHandlers) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	err := errors.NotFound("No route for " + r.Method + " " + r.URL.Path)
	errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
}
