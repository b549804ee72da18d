// Package main provides the entrypoint for the EcoShield360 API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ecoshield360/ecoshield/internal/airquality"
	"github.com/ecoshield360/ecoshield/internal/airquality/cdse"
	"github.com/ecoshield360/ecoshield/internal/airquality/openeo"
	"github.com/ecoshield360/ecoshield/internal/airquality/sentinelsat"
	"github.com/ecoshield360/ecoshield/internal/api"
	"github.com/ecoshield360/ecoshield/internal/api/handler"
	"github.com/ecoshield360/ecoshield/internal/auth"
	"github.com/ecoshield360/ecoshield/internal/config"
	"github.com/ecoshield360/ecoshield/internal/database"
	"github.com/ecoshield360/ecoshield/internal/mail"
	"github.com/ecoshield360/ecoshield/internal/provider/resilience"
	"github.com/ecoshield360/ecoshield/internal/report"
	"github.com/ecoshield360/ecoshield/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "ecoshield-api"

func main() {
	cfg, err := config.Load(os.Getenv("ENV_FILE"))
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := newLogger(cfg.Log, serviceName)
	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.App.Env).
		Msg("starting EcoShield360 API")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("api stopped with error")
	}
	log.Info().Msg("server stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx := context.Background()

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.ConfigFrom(cfg, serviceName, Version))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Storage
	var (
		userRepo  auth.UserRepository
		tokenRepo auth.VerificationTokenRepository
	)
	readiness := map[string]handler.CheckFunc{}
	if cfg.Database.Enabled() {
		dbConfig := database.ConfigFrom(cfg.Database)
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(dbConfig, log); err != nil {
				return err
			}
		}

		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			return err
		}
		defer pool.Close()
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")

		userRepo = auth.NewPostgresUserRepository(pool)
		tokenRepo = auth.NewPostgresVerificationTokenRepository(pool)
		readiness["postgres"] = pool.Ping
	} else {
		log.Warn().Msg("DATABASE_HOST not set - using in-memory repositories")
		userRepo = auth.NewInMemoryUserRepository()
		tokenRepo = auth.NewInMemoryVerificationTokenRepository()
	}

	// Outgoing email
	mailer, closeMailer, err := newMailer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeMailer()

	// Auth
	if cfg.Auth.UsingDevSigningKey {
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.Auth.JWTSigningKey,
		Issuer:     cfg.Auth.JWTIssuer,
		Audience:   cfg.Auth.JWTAudience,
	})
	authService := auth.NewService(auth.ServiceConfig{
		JWTService:            jwtService,
		UserRepo:              userRepo,
		TokenRepo:             tokenRepo,
		Mailer:                mailer,
		Logger:                log,
		PublicBaseURL:         cfg.Auth.PublicBaseURL,
		EnforcePasswordPolicy: cfg.Auth.EnforcePasswordPolicy,
		BcryptCost:            cfg.Auth.BcryptCost,
	})
	log.Info().Msg("auth service initialized")

	// Air quality acquisition
	registry := resilience.NewRegistry()
	aq := cfg.AirQuality
	providers := []airquality.Provider{
		sentinelsat.NewClient(sentinelsat.ClientConfig{
			BaseURL:  aq.SentinelSatURL,
			Username: aq.SentinelSatUsername,
			Password: aq.SentinelSatPassword,
			Timeout:  aq.ProviderTimeout,
			Registry: registry,
		}),
		cdse.NewClient(cdse.ClientConfig{
			BaseURL:  aq.CDSEURL,
			Timeout:  aq.ProviderTimeout,
			Registry: registry,
		}),
		openeo.NewClient(openeo.ClientConfig{
			BaseURL:  aq.OpenEOURL,
			Username: aq.OpenEOUsername,
			Password: aq.OpenEOPassword,
			Timeout:  aq.ProviderTimeout,
			Registry: registry,
		}),
	}

	tierMetrics, err := airquality.NewTierMetrics()
	if err != nil {
		return err
	}
	airQualityService := airquality.NewService(airquality.ServiceConfig{
		Providers:       providers,
		Logger:          log.With().Str("component", "airquality").Logger(),
		Metrics:         tierMetrics,
		ProviderTimeout: aq.ProviderTimeout,
		LookbackDays:    aq.LookbackDays,
		UseMockData:     aq.UseMockData,
	})
	if aq.UseMockData {
		log.Warn().Msg("USE_MOCK_DATA set - satellite providers are skipped")
	}
	log.Info().Int("providers", registry.ProviderCount()).Msg("air quality service initialized")

	renderer := report.NewRenderer(report.Config{
		Logger: log.With().Str("component", "report").Logger(),
	})

	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		AuthService:        authService,
		AirQuality:         airQualityService,
		Renderer:           renderer,
		Registry:           registry,
		ReadinessChecks:    readiness,
		MockMode:           aq.UseMockData,
		CORSAllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		RequireTLS:         cfg.HTTP.RequireTLS,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newMailer picks the delivery path for verification email: Pub/Sub jobs for
// the worker when a project is configured, direct SMTP otherwise. Without
// SMTP settings messages are only logged.
func newMailer(ctx context.Context, cfg *config.Config, log zerolog.Logger) (auth.Mailer, func(), error) {
	noop := func() {}

	if cfg.PubSub.Enabled() {
		publisher, err := mail.NewTopicPublisher(ctx, cfg.PubSub.ProjectID, cfg.PubSub.EmailTopic)
		if err != nil {
			return nil, noop, err
		}
		log.Info().
			Str("project", cfg.PubSub.ProjectID).
			Str("topic", cfg.PubSub.EmailTopic).
			Msg("email jobs published to Pub/Sub")
		closer := func() {
			if err := publisher.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close pubsub publisher")
			}
		}
		return mail.NewPubSubQueue(publisher, log), closer, nil
	}

	if !cfg.Mail.Enabled() {
		log.Warn().Msg("MAIL_HOST not set - verification emails will not be sent")
		return nil, noop, nil
	}

	log.Info().Str("host", cfg.Mail.Host).Msg("email sent directly over SMTP")
	return mail.NewDirectQueue(newSMTPSender(cfg.Mail, log)), noop, nil
}

func newSMTPSender(c config.MailConfig, log zerolog.Logger) *mail.SMTPSender {
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:        c.Host,
		Port:        c.Port,
		Username:    c.Username,
		Password:    c.Password,
		TLSPolicy:   c.TLSPolicy,
		ImplicitTLS: c.ImplicitTLS,
		From:        c.From,
		FromName:    c.FromName,
		Timeout:     c.Timeout,
		Logger:      log.With().Str("component", "smtp").Logger(),
	})
}

func newLogger(c config.LogConfig, service string) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if c.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stdout)
	}

	return log.Level(level).
		With().
		Timestamp().
		Str("service", service).
		Str("version", Version).
		Logger()
}
