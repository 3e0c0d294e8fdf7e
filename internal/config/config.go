package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Stripe     StripeConfig     `mapstructure:"stripe"`
	Storefront StorefrontConfig `mapstructure:"storefront"`
	Vault      VaultConfig      `mapstructure:"vault"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string  `mapstructure:"port"`
	Host           string  `mapstructure:"host"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DSN renders the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

// RedisConfig holds the event bus and report cache configuration.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StripeConfig holds Stripe webhook configuration.
type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// StorefrontConfig holds the OAuth2 client-credentials settings for the
// storefront order API.
type StorefrontConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	TokenURL     string `mapstructure:"token_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	PageSize     int    `mapstructure:"page_size"`
}

// VaultConfig holds the optional Vault secret overlay settings.
type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	SecretPath string `mapstructure:"secret_path"`
}

// AnalyticsConfig holds engine tuning knobs.
type AnalyticsConfig struct {
	ReportCacheTTL time.Duration `mapstructure:"report_cache_ttl"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads configuration from file and environment variables, then
// overlays secrets from Vault when an address is configured.
func Load() error {
	viper.SetDefault("server.port", "8086")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.rate_limit_rps", 20.0)
	viper.SetDefault("server.rate_limit_burst", 40)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "customer_insights")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("storefront.page_size", 100)
	viper.SetDefault("vault.secret_path", "secret/data/customer-insights")
	viper.SetDefault("analytics.report_cache_ttl", 5*time.Minute)
	viper.SetDefault("log.level", "info")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app/config")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.AutomaticEnv()

	bindings := map[string]string{
		"server.port":                "SERVER_PORT",
		"server.host":                "SERVER_HOST",
		"server.rate_limit_rps":      "SERVER_RATE_LIMIT_RPS",
		"server.rate_limit_burst":    "SERVER_RATE_LIMIT_BURST",
		"database.host":              "DATABASE_HOST",
		"database.port":              "DATABASE_PORT",
		"database.name":              "DATABASE_NAME",
		"database.user":              "DATABASE_USER",
		"database.password":          "DATABASE_PASSWORD",
		"database.ssl_mode":          "DATABASE_SSL_MODE",
		"redis.addr":                 "REDIS_ADDR",
		"redis.password":             "REDIS_PASSWORD",
		"redis.db":                   "REDIS_DB",
		"stripe.secret_key":          "STRIPE_SECRET_KEY",
		"stripe.webhook_secret":      "STRIPE_WEBHOOK_SECRET",
		"storefront.base_url":        "STOREFRONT_BASE_URL",
		"storefront.token_url":       "STOREFRONT_TOKEN_URL",
		"storefront.client_id":       "STOREFRONT_CLIENT_ID",
		"storefront.client_secret":   "STOREFRONT_CLIENT_SECRET",
		"storefront.page_size":       "STOREFRONT_PAGE_SIZE",
		"vault.address":              "VAULT_ADDR",
		"vault.token":                "VAULT_TOKEN",
		"vault.secret_path":          "VAULT_SECRET_PATH",
		"analytics.report_cache_ttl": "ANALYTICS_REPORT_CACHE_TTL",
		"log.level":                  "LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if addr := viper.GetString("vault.address"); addr != "" {
		if err := applyVaultOverrides(addr, viper.GetString("vault.token"), viper.GetString("vault.secret_path")); err != nil {
			return fmt.Errorf("failed to overlay vault secrets: %w", err)
		}
	}

	return nil
}

// Get returns the current configuration.
func Get() *Config {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("Failed to unmarshal config: %v", err))
	}
	return &config
}
