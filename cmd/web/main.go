package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/metrics"
	"sales-dashboard/internal/middleware"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/server"
	"sales-dashboard/internal/services"
	"sales-dashboard/internal/source"
	"sales-dashboard/internal/ui/templates"
)

const (
	renderTimeout = 10 * time.Second
	cacheMaxAge   = "public, max-age=300"
)

// handleDashboard serves the page shell; data arrives over /sse/dashboard.
func handleDashboard(cfg config.DashboardConfig) http.HandlerFunc {
	page := templates.Page{
		Regions:    models.Regions,
		MinYear:    cfg.MinYear,
		MaxYear:    cfg.MaxYear,
		DefaultTop: cfg.DefaultTop,
		MinTop:     cfg.MinTop,
		MaxTop:     cfg.MaxTop,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		w.Header().Set("Cache-Control", cacheMaxAge)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := templates.Dashboard(page).Render(ctx, w); err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

// newHandler wires the record source, the dashboard service and the
// middleware chain around the routes.
func newHandler(cfg *config.Config, logger *slog.Logger, m *metrics.Manager, src services.RecordSource, rateLimiter *middleware.RateLimiter) http.Handler {
	dashboard := services.NewDashboard(src, cfg.Dashboard, logger, m)

	templateHandlers := &server.TemplateHandlers{
		Dashboard: handleDashboard(cfg.Dashboard),
	}

	srv := server.NewServer(dashboard, m, logger, templateHandlers)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)

	return middlewareChain(srv)
}

func main() {
	// a missing .env is fine; the environment and defaults still apply
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"address", cfg.Address(),
		"source_url", cfg.Source.URL,
		"source_timeout", cfg.Source.Timeout,
		"log_level", cfg.Logger.Level,
	)

	m := metrics.NewManager()
	client := source.NewClient(cfg.Source, logger, m)
	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      newHandler(cfg, logger, m, client, rateLimiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg.Server)

	gracefulServer.RegisterShutdownHook("record source", func(ctx context.Context) error {
		logger.Info("closing record source connections")
		client.Close()
		return nil
	})
	gracefulServer.RegisterShutdownHook("rate limiter", rateLimiter.Stop)

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
