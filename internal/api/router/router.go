package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/barbershop-ai-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/barbershop-ai-platform/internal/http/middleware"
	"github.com/wolfman30/barbershop-ai-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Tools              *handlers.ToolsHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitRPS > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	r.Get("/health", cfg.Tools.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	tools := map[string]http.HandlerFunc{
		"getCurrentDateTime":   cfg.Tools.GetCurrentDateTime,
		"getAvailability":      cfg.Tools.GetAvailability,
		"createBooking":        cfg.Tools.CreateBooking,
		"addServicesToBooking": cfg.Tools.AddServicesToBooking,
		"rescheduleBooking":    cfg.Tools.RescheduleBooking,
		"cancelBooking":        cfg.Tools.CancelBooking,
		"lookupBooking":        cfg.Tools.LookupBooking,
		"lookupCustomer":       cfg.Tools.LookupCustomer,
		"generalInquiry":       cfg.Tools.GeneralInquiry,
	}
	r.Route("/tools", func(tr chi.Router) {
		for name, handler := range tools {
			tr.Post("/"+name, handler)
		}
	})
	// Top-level aliases for voice platforms that cannot configure a path
	// prefix on their webhook tools.
	for name, handler := range tools {
		r.Post("/"+name, handler)
	}

	return r
}
