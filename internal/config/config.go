package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// Config holds every runtime setting for the service. Values come from
// environment variables (optionally via a local .env file) with sane
// development defaults.
type Config struct {
	Environment string
	ServerAddr  string

	// PlanCatalogFile points at an optional YAML/JSON file whose entries
	// override or extend the built-in plan catalog.
	PlanCatalogFile string

	Database DatabaseConfig
	Redis    RedisConfig
	Payment  PaymentConfig
}

type DatabaseConfig struct {
	Driver string // "postgres" or "sqlite"
	DSN    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PaymentConfig selects and configures the active payment provider.
type PaymentConfig struct {
	Provider string // "stripe" or "paypal"

	StripeSecretKey     string
	StripeWebhookSecret string

	PayPalBaseURL   string
	PayPalClientID  string
	PayPalSecret    string
	PayPalWebhookID string
}

var Module = fx.Module("config",
	fx.Provide(Load),
)

func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("database_driver", "sqlite")
	v.SetDefault("database_dsn", "socialdesk.db")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("payment_provider", "stripe")
	v.SetDefault("plan_catalog_file", "")
	v.SetDefault("paypal_base_url", "https://api-m.paypal.com")

	cfg := Config{
		Environment:     strings.TrimSpace(v.GetString("environment")),
		ServerAddr:      strings.TrimSpace(v.GetString("server_addr")),
		PlanCatalogFile: strings.TrimSpace(v.GetString("plan_catalog_file")),
		Database: DatabaseConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString("database_driver"))),
			DSN:    strings.TrimSpace(v.GetString("database_dsn")),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(v.GetString("redis_addr")),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		Payment: PaymentConfig{
			Provider:            strings.ToLower(strings.TrimSpace(v.GetString("payment_provider"))),
			StripeSecretKey:     strings.TrimSpace(v.GetString("stripe_secret_key")),
			StripeWebhookSecret: strings.TrimSpace(v.GetString("stripe_webhook_secret")),
			PayPalBaseURL:       strings.TrimSpace(v.GetString("paypal_base_url")),
			PayPalClientID:      strings.TrimSpace(v.GetString("paypal_client_id")),
			PayPalSecret:        strings.TrimSpace(v.GetString("paypal_secret")),
			PayPalWebhookID:     strings.TrimSpace(v.GetString("paypal_webhook_id")),
		},
	}

	return cfg, nil
}
