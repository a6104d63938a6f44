package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/metrics"
	"sales-dashboard/internal/models"
)

// RecordSource returns the transactions in a region/year scope.
type RecordSource interface {
	Fetch(ctx context.Context, q models.SourceQuery) ([]models.Transaction, error)
}

// Dashboard runs render cycles: one fetch, then the pure aggregation.
// It keeps no records between cycles, only counters for /admin/stats.
type Dashboard struct {
	source  RecordSource
	cfg     config.DashboardConfig
	logger  *slog.Logger
	metrics *metrics.Manager

	builds      atomic.Int64
	failures    atomic.Int64
	lastRecords atomic.Int64
	lastBuilt   atomic.Int64
}

func NewDashboard(source RecordSource, cfg config.DashboardConfig, logger *slog.Logger, m *metrics.Manager) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{
		source:  source,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// Settings exposes the dashboard bounds to the presentation layer.
func (d *Dashboard) Settings() config.DashboardConfig {
	return d.cfg
}

// ClampTop maps a requested top-N onto the configured range; zero selects the default.
func (d *Dashboard) ClampTop(top int) int {
	switch {
	case top == 0:
		return d.cfg.DefaultTop
	case top < d.cfg.MinTop:
		return d.cfg.MinTop
	case top > d.cfg.MaxTop:
		return d.cfg.MaxTop
	default:
		return top
	}
}

// Build fetches the scoped records and aggregates them. A fetch error ends
// the cycle and is returned unchanged.
func (d *Dashboard) Build(ctx context.Context, filter models.Filter, top int) (*models.Dashboard, error) {
	start := time.Now()
	top = d.ClampTop(top)

	records, err := d.source.Fetch(ctx, filter.SourceQuery())
	if err != nil {
		d.failures.Add(1)
		d.metrics.ObserveBuild(metrics.OutcomeFailed, 0)
		return nil, fmt.Errorf("fetch records: %w", err)
	}

	dash := Aggregate(records, filter, top, d.cfg.CurrencyPrefix)

	d.builds.Add(1)
	d.lastRecords.Store(int64(len(records)))
	d.lastBuilt.Store(time.Now().Unix())
	d.metrics.ObserveBuild(metrics.OutcomeOK, dash.TotalSales)

	d.logger.DebugContext(ctx, "dashboard built",
		"region", filter.Region,
		"year", filter.Year,
		"sellers", len(filter.Sellers),
		"records", len(records),
		"filtered", dash.TotalSales,
		"duration", time.Since(start),
	)

	return dash, nil
}

// Stats reports counters for monitoring.
func (d *Dashboard) Stats() map[string]any {
	var lastBuilt any
	if ts := d.lastBuilt.Load(); ts > 0 {
		lastBuilt = time.Unix(ts, 0).UTC()
	}

	return map[string]any{
		"builds":       d.builds.Load(),
		"failures":     d.failures.Load(),
		"last_records": d.lastRecords.Load(),
		"last_built":   lastBuilt,
	}
}
