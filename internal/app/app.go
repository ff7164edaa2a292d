// internal/app/app.go
package app

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/paylink-backend/internal/config"
	"github.com/javajoker/paylink-backend/internal/services"
	"github.com/javajoker/paylink-backend/internal/worker"
	"github.com/javajoker/paylink-backend/pkg/circle"
	"github.com/javajoker/paylink-backend/pkg/events"
	"github.com/javajoker/paylink-backend/pkg/x402"
)

// Components holds the services shared by the API server and the worker.
type Components struct {
	Registry     *services.RegistryService
	Wallets      *services.UserWalletDirectory
	Ledger       *services.LedgerService
	Commissions  *services.CommissionService
	Provisioning *services.ProvisioningService
	Settlement   *services.SettlementService
	Purchases    *services.PurchaseService
	Scheduler    *worker.Scheduler
	Publisher    events.Publisher

	asynqClient *asynq.Client
}

func ConfigureLogging(cfg config.LogConfig, environment string) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "json" || environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

// Build wires every service from configuration. Optional integrations
// (Circle, x402, S3, Redis, RabbitMQ) are left out when not configured.
func Build(db *gorm.DB, cfg *config.Config) (*Components, error) {
	c := &Components{
		Registry:    services.NewRegistryService(db),
		Wallets:     services.NewWalletDirectory(db),
		Ledger:      services.NewLedgerService(db, cfg.Payment.Currency),
		Commissions: services.NewCommissionService(db),
		Publisher:   events.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange),
	}

	s3Client, err := services.NewS3Client(cfg.AWS)
	if err != nil {
		return nil, err
	}
	c.Provisioning = services.NewProvisioningService(db, c.Registry, s3Client, cfg.AWS.S3Bucket)

	receipts := services.NewReceiptSigner(cfg.Payment.ReceiptSecret, cfg.Payment.ReceiptTTL)

	var custodialClient services.CustodialTransferer
	if cfg.Circle.CustodialRailConfigured() {
		client, err := circle.NewClient(cfg.Circle.BaseURL, cfg.Circle.APIKey, cfg.Circle.EntitySecret, cfg.Circle.EntityPublicKey, cfg.Payment.RailTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create Circle client: %w", err)
		}
		custodialClient = client
	} else {
		logrus.Warn("Custodial transfer rail disabled: CIRCLE_API_KEY or ARC_USDC_CONTRACT_ADDRESS not set")
	}

	var facilitator x402.Facilitator
	if cfg.X402.Configured() {
		facilitator = x402.NewClient(cfg.X402.FacilitatorURL, cfg.X402.FacilitatorAPIKey, cfg.Payment.RailTimeout)
	} else {
		logrus.Warn("On-chain rail disabled: X402_FACILITATOR_URL or X402_PAY_TO_ADDRESS not set")
	}

	c.Settlement = services.NewSettlementService(cfg.Payment.RailTimeout,
		services.NewReceiptRail(receipts),
		services.NewCustodialRail(custodialClient, cfg.Circle, cfg.Payment.TokenDecimals),
		services.NewOnChainRail(facilitator, cfg.X402, cfg.Payment.TokenDecimals, receipts),
	)

	var retries services.RetryScheduler
	if cfg.Redis.Enabled() {
		c.asynqClient = asynq.NewClient(RedisOpt(cfg.Redis))
		c.Scheduler = worker.NewScheduler(c.asynqClient)
		retries = c.Scheduler
	} else {
		logrus.Warn("REDIS_ADDR not set, failed post-commit steps will not be retried")
	}

	c.Purchases = services.NewPurchaseService(
		c.Registry,
		c.Wallets,
		c.Settlement,
		c.Ledger,
		c.Commissions,
		c.Provisioning,
		retries,
		c.Publisher,
		cfg.Payment.PostCommitTimeout,
	)

	return c, nil
}

func (c *Components) Close() {
	c.Publisher.Close()
	if c.asynqClient != nil {
		c.asynqClient.Close()
	}
}
