// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ecoshield360/ecoshield/internal/validation"
)

// DevSigningKey is used when no JWT signing key is configured outside
// production.
const DevSigningKey = "local-dev-signing-key-change-in-production"

// Config is the complete process configuration. It is built once at startup
// and passed down explicitly.
type Config struct {
	App        AppConfig
	Log        LogConfig
	Telemetry  TelemetryConfig
	HTTP       HTTPConfig
	Database   DatabaseConfig
	Auth       AuthConfig
	Mail       MailConfig
	PubSub     PubSubConfig
	AirQuality AirQualityConfig
}

// AppConfig identifies the deployment.
type AppConfig struct {
	Env  string `validate:"required,oneof=development test staging production"`
	Port int    `validate:"required,min=1,max=65535"`
}

// IsProduction reports whether the app runs in production.
func (a AppConfig) IsProduction() bool { return a.Env == "production" }

// LogConfig controls the root logger.
type LogConfig struct {
	Level  string `validate:"required,oneof=trace debug info warn error fatal panic disabled"`
	Pretty bool
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool
	OTLPEndpoint   string  `validate:"required_if=Enabled true"`
	SampleRatio    float64 `validate:"min=0,max=1"`
	MetricInterval time.Duration
}

// HTTPConfig controls the HTTP server edge.
type HTTPConfig struct {
	ReadTimeout        time.Duration `validate:"gt=0"`
	WriteTimeout       time.Duration `validate:"gt=0"`
	IdleTimeout        time.Duration `validate:"gt=0"`
	CORSAllowedOrigins []string
	RequireTLS         bool
}

// DatabaseConfig holds PostgreSQL settings. An empty Host selects the
// in-memory repositories.
type DatabaseConfig struct {
	Host            string
	Port            int `validate:"min=0,max=65535"`
	User            string
	Password        string
	Name            string
	SSLMode         string `validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns        int    `validate:"min=1"`
	MinConns        int    `validate:"min=0"`
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// Enabled reports whether a database is configured.
func (d DatabaseConfig) Enabled() bool { return d.Host != "" }

// AuthConfig holds account and token settings.
type AuthConfig struct {
	JWTSigningKey         string `validate:"required,min=16"`
	JWTIssuer             string `validate:"required"`
	JWTAudience           string `validate:"required"`
	EnforcePasswordPolicy bool
	BcryptCost            int    `validate:"omitempty,min=4,max=31"`
	PublicBaseURL         string `validate:"required,url"`

	// UsingDevSigningKey is set when DevSigningKey was substituted.
	UsingDevSigningKey bool
}

// MailConfig holds SMTP settings. An empty Host disables delivery.
type MailConfig struct {
	Host        string
	Port        int `validate:"min=0,max=65535"`
	Username    string
	Password    string
	From        string `validate:"omitempty,email"`
	FromName    string
	TLSPolicy   string `validate:"oneof=mandatory opportunistic none"`
	ImplicitTLS bool
	Timeout     time.Duration
}

// Enabled reports whether SMTP delivery is configured.
func (m MailConfig) Enabled() bool { return m.Host != "" }

// PubSubConfig holds job queue settings. An empty ProjectID sends email
// synchronously from the API.
type PubSubConfig struct {
	ProjectID         string
	EmailTopic        string `validate:"required_with=ProjectID"`
	EmailSubscription string
}

// Enabled reports whether Pub/Sub is configured.
func (p PubSubConfig) Enabled() bool { return p.ProjectID != "" }

// AirQualityConfig holds provider pipeline settings.
type AirQualityConfig struct {
	UseMockData     bool
	ProviderTimeout time.Duration `validate:"gt=0"`
	LookbackDays    int           `validate:"min=1,max=30"`

	SentinelSatURL      string `validate:"omitempty,url"`
	SentinelSatUsername string
	SentinelSatPassword string

	CDSEURL string `validate:"omitempty,url"`

	OpenEOURL      string `validate:"omitempty,url"`
	OpenEOUsername string
	OpenEOPassword string
}

// Load reads an optional .env file and the environment into a validated
// Config. envFile may be empty to use ./.env.
func Load(envFile string) (*Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:  strings.ToLower(v.GetString("APP_ENV")),
			Port: v.GetInt("APP_PORT"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Pretty: v.GetBool("LOG_PRETTY"),
		},
		Telemetry: TelemetryConfig{
			Enabled:        v.GetBool("OTEL_ENABLED"),
			OTLPEndpoint:   v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			SampleRatio:    v.GetFloat64("OTEL_TRACES_SAMPLER_ARG"),
			MetricInterval: v.GetDuration("OTEL_METRIC_EXPORT_INTERVAL"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:        v.GetDuration("HTTP_READ_TIMEOUT"),
			WriteTimeout:       v.GetDuration("HTTP_WRITE_TIMEOUT"),
			IdleTimeout:        v.GetDuration("HTTP_IDLE_TIMEOUT"),
			CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			RequireTLS:         v.GetBool("HTTP_REQUIRE_TLS"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("DATABASE_HOST"),
			Port:            v.GetInt("DATABASE_PORT"),
			User:            v.GetString("DATABASE_USER"),
			Password:        v.GetString("DATABASE_PASSWORD"),
			Name:            v.GetString("DATABASE_NAME"),
			SSLMode:         v.GetString("DATABASE_SSL_MODE"),
			MaxConns:        v.GetInt("DB_MAX_CONNS"),
			MinConns:        v.GetInt("DB_MIN_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			AutoMigrate:     v.GetBool("DB_AUTO_MIGRATE"),
		},
		Auth: AuthConfig{
			JWTSigningKey:         v.GetString("JWT_SIGNING_KEY"),
			JWTIssuer:             v.GetString("JWT_ISSUER"),
			JWTAudience:           v.GetString("JWT_AUDIENCE"),
			EnforcePasswordPolicy: v.GetBool("AUTH_ENFORCE_PASSWORD_POLICY"),
			BcryptCost:            v.GetInt("AUTH_BCRYPT_COST"),
			PublicBaseURL:         v.GetString("PUBLIC_BASE_URL"),
		},
		Mail: MailConfig{
			Host:        v.GetString("MAIL_HOST"),
			Port:        v.GetInt("MAIL_PORT"),
			Username:    v.GetString("MAIL_USERNAME"),
			Password:    v.GetString("MAIL_PASSWORD"),
			From:        v.GetString("MAIL_FROM"),
			FromName:    v.GetString("MAIL_FROM_NAME"),
			TLSPolicy:   strings.ToLower(v.GetString("MAIL_TLS_POLICY")),
			ImplicitTLS: v.GetBool("MAIL_IMPLICIT_TLS"),
			Timeout:     v.GetDuration("MAIL_TIMEOUT"),
		},
		PubSub: PubSubConfig{
			ProjectID:         v.GetString("PUBSUB_PROJECT_ID"),
			EmailTopic:        v.GetString("PUBSUB_EMAIL_TOPIC"),
			EmailSubscription: v.GetString("PUBSUB_EMAIL_SUBSCRIPTION"),
		},
		AirQuality: AirQualityConfig{
			UseMockData:         v.GetBool("USE_MOCK_DATA"),
			ProviderTimeout:     v.GetDuration("AIRQUALITY_PROVIDER_TIMEOUT"),
			LookbackDays:        v.GetInt("AIRQUALITY_LOOKBACK_DAYS"),
			SentinelSatURL:      v.GetString("SENTINELSAT_URL"),
			SentinelSatUsername: v.GetString("SENTINELSAT_USERNAME"),
			SentinelSatPassword: v.GetString("SENTINELSAT_PASSWORD"),
			CDSEURL:             v.GetString("CDSE_CATALOGUE_URL"),
			OpenEOURL:           v.GetString("OPENEO_URL"),
			OpenEOUsername:      v.GetString("OPENEO_USERNAME"),
			OpenEOPassword:      v.GetString("OPENEO_PASSWORD"),
		},
	}

	if cfg.Auth.JWTSigningKey == "" && !cfg.App.IsProduction() {
		cfg.Auth.JWTSigningKey = DevSigningKey
		cfg.Auth.UsingDevSigningKey = true
	}

	if err := validation.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_TRACES_SAMPLER_ARG", 1.0)
	v.SetDefault("OTEL_METRIC_EXPORT_INTERVAL", "15s")

	v.SetDefault("HTTP_READ_TIMEOUT", "15s")
	v.SetDefault("HTTP_WRITE_TIMEOUT", "120s")
	v.SetDefault("HTTP_IDLE_TIMEOUT", "60s")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "ecoshield")
	v.SetDefault("DATABASE_NAME", "ecoshield")
	v.SetDefault("DATABASE_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "5m")

	v.SetDefault("JWT_ISSUER", "https://api.ecoshield360.org")
	v.SetDefault("JWT_AUDIENCE", "ecoshield-api")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("MAIL_PORT", 587)
	v.SetDefault("MAIL_FROM_NAME", "EcoShield360")
	v.SetDefault("MAIL_TLS_POLICY", "mandatory")
	v.SetDefault("MAIL_TIMEOUT", "30s")

	v.SetDefault("PUBSUB_EMAIL_TOPIC", "email-jobs")
	v.SetDefault("PUBSUB_EMAIL_SUBSCRIPTION", "email-jobs-worker")

	v.SetDefault("AIRQUALITY_PROVIDER_TIMEOUT", "30s")
	v.SetDefault("AIRQUALITY_LOOKBACK_DAYS", 7)
}

// loadDotEnv loads envFile (or ./.env) into the process environment without
// overriding variables that are already set. A missing default file is not
// an error.
func loadDotEnv(envFile string) error {
	if envFile == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
