// internal/worker/server.go
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/paylink-backend/internal/services"
)

type Worker struct {
	ledger      *services.LedgerService
	registry    services.ContentRegistry
	commissions *services.CommissionService
	provisioner services.Provisioner
}

func NewWorker(ledger *services.LedgerService, registry services.ContentRegistry, commissions *services.CommissionService, provisioner services.Provisioner) *Worker {
	return &Worker{
		ledger:      ledger,
		registry:    registry,
		commissions: commissions,
		provisioner: provisioner,
	}
}

func (w *Worker) HandleCommission(ctx context.Context, t *asynq.Task) error {
	var p CommissionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	transaction, err := w.ledger.Get(ctx, p.TransactionID)
	if err != nil {
		return skipIfPermanent(err)
	}

	content, err := w.registry.Get(ctx, transaction.ContentKind, transaction.ContentID)
	if err != nil {
		return skipIfPermanent(err)
	}

	commission, err := w.commissions.Attribute(ctx, transaction, content, p.AffiliateCode)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id": transaction.ID,
		"commission":     commission != nil,
	}).Info("Commission retry processed")
	return nil
}

func (w *Worker) HandleProvision(ctx context.Context, t *asynq.Task) error {
	var p ProvisionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	transaction, err := w.ledger.Get(ctx, p.TransactionID)
	if err != nil {
		return skipIfPermanent(err)
	}

	if _, err := w.provisioner.Provision(ctx, transaction); err != nil {
		return skipIfPermanent(err)
	}

	logrus.WithField("transaction_id", transaction.ID).Info("Provision retry processed")
	return nil
}

// Missing records will not appear on a later attempt.
func skipIfPermanent(err error) error {
	switch {
	case errors.Is(err, services.ErrTransactionNotFound),
		errors.Is(err, services.ErrContentNotFound),
		errors.Is(err, services.ErrProvisionSourceAbsent):
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeCommissionRetry, w.HandleCommission)
	mux.HandleFunc(TypeProvisionRetry, w.HandleProvision)
	return mux
}

func NewServer(redisOpt asynq.RedisClientOpt, concurrency int) *asynq.Server {
	return asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			Logger: logrus.StandardLogger(),
		},
	)
}
