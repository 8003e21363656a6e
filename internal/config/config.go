package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"billdesk/internal/models"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string
	// JWKSURL switches token verification from the shared secret to a
	// remote key set.
	JWKSURL string

	Redis   RedisConfig
	Minio   MinioConfig
	Gateway GatewayConfig
	Billing BillingConfig
	SMTP    SMTPConfig
	Queue   QueueConfig
	Company models.CompanyInfo

	EmailOnPayment bool
	JobsEnabled    bool
	LogLevel       string
	LogFormat      string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type GatewayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	Currency      string
	Timeout       time.Duration
}

// Enabled reports whether gateway credentials are configured.
func (g GatewayConfig) Enabled() bool {
	return g.KeyID != "" || g.KeySecret != ""
}

type BillingConfig struct {
	DefaultTaxRate decimal.Decimal
	Location       *time.Location
	CurrencySymbol string
	StorageTimeout time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Timeout  time.Duration
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("could not read .env file")
	}

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWKSURL:     os.Getenv("JWKS_URL"),
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Minio: MinioConfig{
			Endpoint:  getEnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			Bucket:    getEnvOrDefault("INVOICE_BUCKET", "invoices"),
		},
		Gateway: GatewayConfig{
			KeyID:         os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
			WebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
			BaseURL:       getEnvOrDefault("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"),
			Currency:      getEnvOrDefault("PAYMENT_CURRENCY", "INR"),
			Timeout:       getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second),
		},
		Billing: BillingConfig{
			CurrencySymbol: getEnvOrDefault("CURRENCY_SYMBOL", "Rs. "),
			StorageTimeout: getEnvDuration("STORAGE_TIMEOUT", 15*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("EMAIL_FROM"),
			FromName: os.Getenv("EMAIL_FROM_NAME"),
			Timeout:  getEnvDuration("SMTP_TIMEOUT", 30*time.Second),
		},
		Queue:          DefaultQueueConfig(),
		Company:        models.DefaultCompanyInfo(),
		EmailOnPayment: getEnvBool("EMAIL_ON_PAYMENT", false),
		JobsEnabled:    getEnvBool("JOBS_ENABLED", false),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:      getEnvOrDefault("LOG_FORMAT", "text"),
	}

	rate, err := decimal.NewFromString(getEnvOrDefault("TAX_DEFAULT_RATE", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid TAX_DEFAULT_RATE: %w", err)
	}
	cfg.Billing.DefaultTaxRate = rate

	loc, err := time.LoadLocation(getEnvOrDefault("BILL_TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("invalid BILL_TIMEZONE: %w", err)
	}
	cfg.Billing.Location = loc

	if path := os.Getenv("COMPANY_PROFILE"); path != "" {
		profile, err := LoadProfile(path)
		if err != nil {
			return nil, err
		}
		profile.Apply(cfg)
	}
	applyCompanyEnv(&cfg.Company)

	if cfg.SMTP.FromName == "" {
		cfg.SMTP.FromName = cfg.Company.Name
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.Company.Email
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" && c.JWKSURL == "" {
		return fmt.Errorf("one of JWT_SECRET or JWKS_URL is required")
	}
	if c.Gateway.Enabled() && (c.Gateway.KeyID == "" || c.Gateway.KeySecret == "") {
		return fmt.Errorf("both RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required")
	}
	if c.Billing.DefaultTaxRate.IsNegative() || c.Billing.DefaultTaxRate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("TAX_DEFAULT_RATE must be between 0 and 100")
	}
	return nil
}

// SetupLogging configures the global logrus logger.
func (c *Config) SetupLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if strings.EqualFold(c.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func applyCompanyEnv(company *models.CompanyInfo) {
	if v := os.Getenv("COMPANY_NAME"); v != "" {
		company.Name = v
	}
	if v := os.Getenv("COMPANY_ADDRESS"); v != "" {
		company.Address = v
	}
	if v := os.Getenv("COMPANY_PHONE"); v != "" {
		company.Phone = v
	}
	if v := os.Getenv("COMPANY_EMAIL"); v != "" {
		company.Email = v
	}
	if v := os.Getenv("COMPANY_WEBSITE"); v != "" {
		company.Website = v
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		logrus.WithField("key", key).Warn("ignoring non-integer value")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		logrus.WithField("key", key).Warn("ignoring non-boolean value")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		logrus.WithField("key", key).Warn("ignoring invalid duration")
	}
	return defaultValue
}
