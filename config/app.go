package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// App is the full runtime configuration, read from ARENA_* environment variables.
type App struct {
	Listen   string `envconfig:"LISTEN" default:"0.0.0.0"`
	Port     int    `envconfig:"PORT" default:"8080"`
	TimeZone string `envconfig:"TIME_ZONE" default:"UTC"`

	// SiteOrigin is where the front end lives; checkout redirects point back to it.
	SiteOrigin string `envconfig:"SITE_ORIGIN" default:"http://localhost:5173"`

	DBType       string `envconfig:"DB_TYPE" default:"sqlite"`
	DBPath       string `envconfig:"DB_PATH"`
	PostgresHost string `envconfig:"PG_HOST" default:"localhost"`
	PostgresPort int    `envconfig:"PG_PORT" default:"5432"`
	PostgresDB   string `envconfig:"PG_DATABASE" default:"arena"`
	PostgresUser string `envconfig:"PG_USER" default:"arena"`
	PostgresPass string `envconfig:"PG_PASSWORD"`
	PostgresSSL  string `envconfig:"PG_SSLMODE" default:"disable"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL      string `envconfig:"RABBIT_URL"`
	RabbitExchange string `envconfig:"RABBIT_EXCHANGE" default:"arena.events"`

	PaymentProvider     string `envconfig:"PAYMENT_PROVIDER" default:"stripe"`
	PaymentCurrency     string `envconfig:"PAYMENT_CURRENCY" default:"usd"`
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	OmisePublicKey      string `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey      string `envconfig:"OMISE_SECRET_KEY"`
	OmiseSourceType     string `envconfig:"OMISE_SOURCE_TYPE" default:"promptpay"`

	IdentityIssuer     string `envconfig:"IDENTITY_ISSUER"`
	IdentityAudience   string `envconfig:"IDENTITY_AUDIENCE"`
	IdentityCertsURL   string `envconfig:"IDENTITY_CERTS_URL"`
	IdentityHMACSecret string `envconfig:"IDENTITY_HMAC_SECRET"`

	ReconcileCron string `envconfig:"RECONCILE_CRON" default:"@every 10m"`

	OtelEndpoint string `envconfig:"OTEL_ENDPOINT"`
	Environment  string `envconfig:"ENV" default:"dev"`
}

// Load reads the ARENA_* environment into an App. Callers that serve traffic
// must also call Validate; maintenance commands only need the database settings.
func Load() (*App, error) {
	var c App
	if err := envconfig.Process("ARENA", &c); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if c.DBPath == "" {
		c.DBPath = GetDBPath()
	}
	c.SiteOrigin = strings.TrimRight(c.SiteOrigin, "/")
	return &c, nil
}

// Validate checks the settings that would otherwise fail late at request time.
func (c *App) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.IdentityHMACSecret == "" && c.IdentityCertsURL == "" {
		return fmt.Errorf("one of ARENA_IDENTITY_HMAC_SECRET or ARENA_IDENTITY_CERTS_URL is required")
	}
	switch c.PaymentProvider {
	case "stripe":
		if c.StripeSecretKey == "" {
			return fmt.Errorf("ARENA_STRIPE_SECRET_KEY is required for the stripe provider")
		}
	case "omise":
		if c.OmisePublicKey == "" || c.OmiseSecretKey == "" {
			return fmt.Errorf("ARENA_OMISE_PUBLIC_KEY and ARENA_OMISE_SECRET_KEY are required for the omise provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported payment provider: %s", c.PaymentProvider)
	}
	return c.Database().ValidateConfig()
}

// Database returns the storage settings in the shape the database package expects.
func (c *App) Database() *DatabaseConfig {
	return &DatabaseConfig{
		Type:   DatabaseType(c.DBType),
		SQLite: SQLiteConfig{Path: c.DBPath},
		Postgres: PostgresConfig{
			Host:     c.PostgresHost,
			Port:     c.PostgresPort,
			Database: c.PostgresDB,
			Username: c.PostgresUser,
			Password: c.PostgresPass,
			SSLMode:  c.PostgresSSL,
			TimeZone: c.TimeZone,
		},
	}
}
