// Package api provides the HTTP API for EcoShield360.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ecoshield360/ecoshield/internal/api/handler"
	"github.com/ecoshield360/ecoshield/internal/api/middleware"
	"github.com/ecoshield360/ecoshield/internal/auth"
	"github.com/ecoshield360/ecoshield/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string

	// TracingOptions are passed to the otelhttp handler.
	TracingOptions []otelhttp.Option

	AuthService *auth.Service
	AirQuality  handler.Acquirer
	Renderer    handler.ReportRenderer
	Registry    *resilience.Registry

	// ReadinessChecks are run by /ops/ready and reported by /ops/status.
	ReadinessChecks map[string]handler.CheckFunc
	MockMode        bool

	// CORSAllowedOrigins enables CORS for the listed origins. Empty disables it.
	CORSAllowedOrigins []string

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "ecoshield-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)                                  // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName, cfg.TracingOptions...)) // Traces and HTTP metrics
	r.Use(middleware.Logger(cfg.Logger))                         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))                       // Panic recovery
	r.Use(chimiddleware.RealIP)                                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)                            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))                 // TLS enforcement behind a proxy
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"Content-Disposition", "X-Request-Id", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Checks:    cfg.ReadinessChecks,
		MockMode:  cfg.MockMode,
	})
	authHandler := handler.NewAuthHandler(cfg.AuthService, cfg.Logger)
	userHandler := handler.NewUserHandler(cfg.AuthService)
	airQualityHandler := handler.NewAirQualityHandler(cfg.AirQuality, cfg.Renderer, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.AuthService)

	// Rate limits per endpoint category
	authRateLimit := middleware.RateLimitByIP(middleware.AuthRateLimit)           // 10 req/min
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min

	r.Route("/api/v1", func(r chi.Router) {
		// Account endpoints (public) - strict rate limiting
		r.Route("/auth", func(r chi.Router) {
			r.Use(authRateLimit)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Get("/verify-email", authHandler.VerifyEmail)
			r.Post("/resend-verification", authHandler.ResendVerification)
		})

		// Air quality endpoints (public) - provider calls and PDF rendering
		r.Route("/air-quality", func(r chi.Router) {
			r.Use(expensiveRateLimit)
			r.Post("/summary", airQualityHandler.Summary)
			r.Post("/report", airQualityHandler.Report)
			r.Post("/report/info", airQualityHandler.ReportInfo)
		})

		// User endpoints (authenticated) - user-based rate limiting
		r.Route("/users", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitByUser(middleware.StandardRateLimit))
			r.Get("/me", userHandler.GetMe)
		})

		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})
	})

	return r
}
