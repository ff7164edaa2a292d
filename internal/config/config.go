// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Log         LogConfig
	Redis       RedisConfig
	RabbitMQ    RabbitMQConfig
	AWS         AWSConfig
	Circle      CircleConfig
	X402        X402Config
	Payment     PaymentConfig
	I18n        I18nConfig
	Worker      WorkerConfig
}

type ServerConfig struct {
	Port         string `env:"SERVER_PORT" envDefault:"8080"`
	Host         string `env:"SERVER_HOST" envDefault:"localhost"`
	PublicURL    string `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`
	ReadTimeout  int    `env:"SERVER_READ_TIMEOUT" envDefault:"15"`
	WriteTimeout int    `env:"SERVER_WRITE_TIMEOUT" envDefault:"60"`
	IdleTimeout  int    `env:"SERVER_IDLE_TIMEOUT" envDefault:"60"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

type DatabaseConfig struct {
	Driver       string `env:"DB_DRIVER" envDefault:"postgres"`
	SQLitePath   string `env:"DB_SQLITE_PATH" envDefault:"paylink.db"`
	Host         string `env:"DB_HOST" envDefault:"localhost"`
	Port         string `env:"DB_PORT" envDefault:"5432"`
	User         string `env:"DB_USER" envDefault:"postgres"`
	Password     string `env:"DB_PASSWORD"`
	Database     string `env:"DB_NAME" envDefault:"paylink"`
	SSLMode      string `env:"DB_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"25"`
	MaxLifetime  int    `env:"DB_MAX_LIFETIME" envDefault:"300"`
	LogLevel     string `env:"DB_LOG_LEVEL" envDefault:"warn"`
}

type JWTConfig struct {
	SecretKey string `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type RabbitMQConfig struct {
	URL      string `env:"RABBITMQ_URL"`
	Exchange string `env:"RABBITMQ_EXCHANGE" envDefault:"purchase_events"`
}

type AWSConfig struct {
	Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Bucket        string `env:"AWS_S3_BUCKET" envDefault:"paylink-drive"`
}

// CircleConfig drives the custodial transfer rail (developer-controlled wallets).
type CircleConfig struct {
	APIKey          string `env:"CIRCLE_API_KEY"`
	BaseURL         string `env:"CIRCLE_API_URL" envDefault:"https://api.circle.com"`
	EntitySecret    string `env:"CIRCLE_ENTITY_SECRET"`
	EntityPublicKey string `env:"CIRCLE_ENTITY_PUBLIC_KEY"`
	Blockchain      string `env:"CIRCLE_BLOCKCHAIN" envDefault:"ARC-TESTNET"`
	TokenAddress    string `env:"ARC_USDC_CONTRACT_ADDRESS"`
	ChainID         string `env:"ARC_CHAIN_ID" envDefault:"5042002"`
}

// X402Config drives the on-chain payment-required rail.
type X402Config struct {
	FacilitatorURL    string `env:"X402_FACILITATOR_URL"`
	FacilitatorAPIKey string `env:"X402_FACILITATOR_API_KEY"`
	PayToAddress      string `env:"X402_PAY_TO_ADDRESS"`
	Network           string `env:"X402_NETWORK" envDefault:"base-sepolia"`
	Asset             string `env:"X402_ASSET"`
	MaxTimeoutSeconds int    `env:"X402_MAX_TIMEOUT_SECONDS" envDefault:"300"`
}

type PaymentConfig struct {
	Currency      string        `env:"PAYMENT_CURRENCY" envDefault:"USDC"`
	TokenDecimals int32         `env:"PAYMENT_TOKEN_DECIMALS" envDefault:"6"`
	RailTimeout   time.Duration `env:"PAYMENT_RAIL_TIMEOUT" envDefault:"20s"`
	ReceiptSecret string        `env:"PAYMENT_RECEIPT_SECRET"`
	ReceiptTTL    time.Duration `env:"PAYMENT_RECEIPT_TTL" envDefault:"24h"`

	// Bounds commission and provisioning after commit; overruns go to the retry queue.
	PostCommitTimeout time.Duration `env:"PAYMENT_POST_COMMIT_TIMEOUT" envDefault:"10s"`
}

type WorkerConfig struct {
	Concurrency   int           `env:"WORKER_CONCURRENCY" envDefault:"10"`
	SweepSchedule string        `env:"WORKER_SWEEP_SCHEDULE" envDefault:"*/10 * * * *"`
	SweepGrace    time.Duration `env:"WORKER_SWEEP_GRACE" envDefault:"10m"`
	SweepBatch    int           `env:"WORKER_SWEEP_BATCH" envDefault:"100"`
}

type I18nConfig struct {
	DefaultLocale string `env:"DEFAULT_LOCALE" envDefault:"en"`
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if config.Payment.ReceiptSecret == "" {
		config.Payment.ReceiptSecret = config.JWT.SecretKey
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Payment.RailTimeout <= 0 {
		return fmt.Errorf("PAYMENT_RAIL_TIMEOUT must be positive")
	}

	if c.Payment.PostCommitTimeout <= 0 {
		return fmt.Errorf("PAYMENT_POST_COMMIT_TIMEOUT must be positive")
	}

	if c.Environment == "production" && (c.Payment.ReceiptSecret == "" || c.Payment.ReceiptSecret == c.JWT.SecretKey) {
		return fmt.Errorf("PAYMENT_RECEIPT_SECRET must be set and differ from JWT_SECRET in production")
	}

	return nil
}

// CustodialRailConfigured reports whether the platform side of the custodial rail is usable.
func (c *CircleConfig) CustodialRailConfigured() bool {
	return c.APIKey != "" && c.TokenAddress != ""
}

func (x *X402Config) Configured() bool {
	return x.FacilitatorURL != "" && x.PayToAddress != ""
}

func (r *RedisConfig) Enabled() bool {
	return r.Addr != ""
}
