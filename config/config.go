package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aura-events/backend/pkg/utils"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	AWS          AWSConfig
	Payment      PaymentConfig
	Registration RegistrationConfig
	Email        EmailConfig
	Captcha      CaptchaConfig
	RabbitMQ     RabbitMQConfig
	Operator     OperatorConfig
}

// PaymentConfig selects the checkout gateway and holds both gateways' credentials.
type PaymentConfig struct {
	Gateway          string // "card", "alt" or "" for free events only
	Currency         string
	TimeoutSec       int
	WebhookTolerance int // seconds

	CardSecretKey     string
	CardWebhookSecret string
	CardAPIBase       string
	CardWebhookURL    string // defaults to PUBLIC_BASE_URL + /webhooks/card

	AltAPIKey        string
	AltWebhookSecret string
	AltAPIBase       string
	AltWebhookURL    string
}

// Timeout returns the outbound checkout call timeout.
func (c PaymentConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

// Tolerance returns the accepted webhook signature age.
func (c PaymentConfig) Tolerance() time.Duration { return time.Duration(c.WebhookTolerance) * time.Second }

// RegistrationConfig holds confirmation link and notification settings.
type RegistrationConfig struct {
	TokenTTLHours int
	PublicBaseURL string // confirmation links point here
	ReturnURL     string // checkout success/cancel redirect
	AdminNotifyTo string // empty disables admin notifications
}

// TokenTTL returns the confirmation token lifetime.
func (c RegistrationConfig) TokenTTL() time.Duration { return time.Duration(c.TokenTTLHours) * time.Hour }

// EmailConfig for SMTP.
type EmailConfig struct {
	FromAddress string
	FromName    string
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
}

// CaptchaConfig enables hCaptcha on public registration when Secret is set.
type CaptchaConfig struct {
	Secret    string
	VerifyURL string
}

// RabbitMQConfig holds the lifecycle event bus settings. Empty URL disables publishing.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// OperatorConfig is the single back-office account.
type OperatorConfig struct {
	Email        string
	PasswordHash string // bcrypt
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/events?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the exports bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ExportsBucket        string
	PresignExpireMinutes int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "events"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "eu-west-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ExportsBucket:        getEnv("AWS_S3_EXPORTS_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Payment: PaymentConfig{
			Gateway:           strings.ToLower(getEnv("PAYMENT_GATEWAY", "")),
			Currency:          strings.ToUpper(getEnv("PAYMENT_CURRENCY", "EUR")),
			TimeoutSec:        getEnvInt("PAYMENT_TIMEOUT_SEC", 20),
			WebhookTolerance:  getEnvInt("PAYMENT_WEBHOOK_TOLERANCE_SEC", 300),
			CardSecretKey:     getEnv("CARD_SECRET_KEY", ""),
			CardWebhookSecret: getEnv("CARD_WEBHOOK_SECRET", ""),
			CardAPIBase:       getEnv("CARD_API_BASE", ""),
			CardWebhookURL:    getEnv("CARD_WEBHOOK_URL", ""),
			AltAPIKey:         getEnv("ALT_API_KEY", ""),
			AltWebhookSecret:  getEnv("ALT_WEBHOOK_SECRET", ""),
			AltAPIBase:        getEnv("ALT_API_BASE", ""),
			AltWebhookURL:     getEnv("ALT_WEBHOOK_URL", ""),
		},
		Registration: RegistrationConfig{
			TokenTTLHours: getEnvInt("REGISTRATION_TOKEN_TTL_HOURS", 48),
			PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
			ReturnURL:     getEnv("CHECKOUT_RETURN_URL", "http://localhost:3000/registration/complete"),
			AdminNotifyTo: getEnv("ADMIN_NOTIFY_EMAIL", ""),
		},
		Email: EmailConfig{
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "noreply@example.com"),
			FromName:    getEnv("EMAIL_FROM_NAME", "Aura Events"),
			SMTPHost:    getEnv("SMTP_HOST", ""),
			SMTPPort:    getEnvInt("SMTP_PORT", 587),
			SMTPUser:    getEnv("SMTP_USER", ""),
			SMTPPass:    getEnv("SMTP_PASS", ""),
		},
		Captcha: CaptchaConfig{
			Secret:    getEnv("HCAPTCHA_SECRET", ""),
			VerifyURL: getEnv("HCAPTCHA_VERIFY_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "registrations"),
		},
		Operator: OperatorConfig{
			Email:        strings.ToLower(getEnv("OPERATOR_EMAIL", "")),
			PasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""),
		},
	}
	if cfg.Payment.CardWebhookURL == "" {
		cfg.Payment.CardWebhookURL = strings.TrimRight(cfg.Registration.PublicBaseURL, "/") + "/webhooks/card"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Payment.Gateway {
	case "", "card", "alt":
	default:
		return fmt.Errorf("PAYMENT_GATEWAY: unknown gateway %q (want card or alt)", c.Payment.Gateway)
	}
	if c.Payment.TimeoutSec <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT_SEC must be positive")
	}
	if c.Payment.WebhookTolerance <= 0 {
		return fmt.Errorf("PAYMENT_WEBHOOK_TOLERANCE_SEC must be positive")
	}
	if c.Registration.TokenTTLHours <= 0 {
		return fmt.Errorf("REGISTRATION_TOKEN_TTL_HOURS must be positive")
	}
	if len(c.Payment.Currency) != 3 {
		return fmt.Errorf("PAYMENT_CURRENCY: %q is not an ISO 4217 code", c.Payment.Currency)
	}
	if c.Operator.PasswordHash != "" && !utils.IsHash(c.Operator.PasswordHash) {
		return fmt.Errorf("OPERATOR_PASSWORD_HASH must be a bcrypt hash")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
