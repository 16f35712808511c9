package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/barbershop-ai-platform/internal/api/router"
	"github.com/wolfman30/barbershop-ai-platform/internal/availability"
	"github.com/wolfman30/barbershop-ai-platform/internal/bookings"
	"github.com/wolfman30/barbershop-ai-platform/internal/catalog"
	appconfig "github.com/wolfman30/barbershop-ai-platform/internal/config"
	"github.com/wolfman30/barbershop-ai-platform/internal/customers"
	"github.com/wolfman30/barbershop-ai-platform/internal/http/handlers"
	"github.com/wolfman30/barbershop-ai-platform/internal/inquiry"
	"github.com/wolfman30/barbershop-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/barbershop-ai-platform/internal/square"
	"github.com/wolfman30/barbershop-ai-platform/pkg/logging"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting barbershop-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.SquareAccessToken == "" {
		logger.Error("SQUARE_ACCESS_TOKEN is required")
		os.Exit(1)
	}

	// Service catalog: built-in unless overridden via configuration.
	cat := catalog.Builtin()
	if cfg.ServiceCatalogJSON != "" {
		loaded, err := catalog.LoadJSON([]byte(cfg.ServiceCatalogJSON))
		if err != nil {
			logger.Error("failed to load service catalog override", "error", err)
			os.Exit(1)
		}
		cat = loaded
		logger.Info("loaded service catalog override", "services", len(cat.ValidNames()))
	}

	toolMetrics := metrics.NewToolMetrics(nil)

	// Square client and engines
	squareClient := square.NewClient(cfg.SquareAccessToken, cfg.SquareBaseURL, logger).
		WithTimeout(cfg.SquareTimeout).
		WithMetrics(toolMetrics)
	resolver := customers.NewResolver(squareClient, logger)
	availabilityEngine := availability.NewEngine(squareClient, cat, cfg.SquareLocationID, logger)
	bookingEngine := bookings.NewEngine(squareClient, cat, cfg.SquareLocationID, logger)

	// Inquiry cache is optional; without Redis every inquiry hits Square.
	var inquiryCache *redis.Client
	if cfg.RedisAddr != "" {
		inquiryCache = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := inquiryCache.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, inquiry cache disabled", "addr", cfg.RedisAddr, "error", err)
			inquiryCache = nil
		}
		cancel()
	}
	inquiryService := inquiry.NewService(squareClient, inquiryCache, cfg.InquiryCacheTTL, cfg.SquareLocationID, logger)

	toolsHandler := handlers.NewToolsHandler(handlers.ToolsHandlerConfig{
		Customers:           resolver,
		Availability:        availabilityEngine,
		Bookings:            bookingEngine,
		Inquiry:             inquiryService,
		DefaultTeamMemberID: cfg.DefaultTeamMemberID,
		Metrics:             toolMetrics,
		Logger:              logger,
	})

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		Tools:              toolsHandler,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: splitOrigins(cfg.CORSOrigins),
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if inquiryCache != nil {
		_ = inquiryCache.Close()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			origins = append(origins, part)
		}
	}
	return origins
}
