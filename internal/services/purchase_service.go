// internal/services/purchase_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/javajoker/paylink-backend/internal/models"
	"github.com/javajoker/paylink-backend/pkg/events"
	"github.com/javajoker/paylink-backend/pkg/x402"
)

type purchaseState string

const (
	stateInitiated            purchaseState = "INITIATED"
	statePreconditionsChecked purchaseState = "PRECONDITIONS_CHECKED"
	stateSettling             purchaseState = "SETTLING"
	stateSettled              purchaseState = "SETTLED"
	statePaymentRequired      purchaseState = "PAYMENT_REQUIRED"
	stateFailed               purchaseState = "FAILED"
	stateCommitted            purchaseState = "COMMITTED"
	stateCommissionProcessed  purchaseState = "COMMISSION_PROCESSED"
	stateProvisioned          purchaseState = "PROVISIONED"
	stateDone                 purchaseState = "DONE"
)

type PurchaseRequest struct {
	BuyerID       uuid.UUID
	Kind          models.ContentKind
	Ref           string
	AffiliateCode string
	PaymentProof  string
	Receipt       string
	ResourceURL   string
}

type PurchaseResult struct {
	Transaction     *models.Transaction     `json:"transaction"`
	ProvisionedItem *models.ProvisionedItem `json:"provisioned_item"`
	PaymentMetadata models.PaymentMetadata  `json:"payment_metadata"`
	Commission      *models.Commission      `json:"commission"`

	SettleResponse *x402.SettleResponse `json:"-"`
	Receipt        string               `json:"-"`

	affiliateUserID uuid.UUID
}

// PaymentRequiredError carries the x402 challenge the buyer must answer.
type PaymentRequiredError struct {
	Challenge *x402.PaymentRequiredResponse
}

func (e *PaymentRequiredError) Error() string {
	if e.Challenge.Error != "" {
		return "payment required: " + e.Challenge.Error
	}
	return "payment required"
}

// UncommittedSettlementError means money moved but the purchase could not be
// recorded. Receipt, when set, lets the buyer complete it later.
type UncommittedSettlementError struct {
	Receipt string
	Err     error
}

func (e *UncommittedSettlementError) Error() string {
	return fmt.Sprintf("settled payment not recorded: %v", e.Err)
}

func (e *UncommittedSettlementError) Unwrap() error {
	return e.Err
}

// RetryScheduler queues post-commit work that failed inline.
type RetryScheduler interface {
	ScheduleCommission(ctx context.Context, transactionID uuid.UUID, code string) error
	ScheduleProvision(ctx context.Context, transactionID uuid.UUID) error
}

type PurchaseService struct {
	registry    ContentRegistry
	wallets     WalletDirectory
	settlement  *SettlementService
	ledger      *LedgerService
	commissions *CommissionService
	provisioner Provisioner
	retries     RetryScheduler
	publisher   events.Publisher
	now         func() time.Time

	postCommitTimeout time.Duration
}

const defaultPostCommitTimeout = 10 * time.Second

func NewPurchaseService(
	registry ContentRegistry,
	wallets WalletDirectory,
	settlement *SettlementService,
	ledger *LedgerService,
	commissions *CommissionService,
	provisioner Provisioner,
	retries RetryScheduler,
	publisher events.Publisher,
	postCommitTimeout time.Duration,
) *PurchaseService {
	if publisher == nil {
		publisher = events.Fallback{}
	}
	if postCommitTimeout <= 0 {
		postCommitTimeout = defaultPostCommitTimeout
	}
	return &PurchaseService{
		registry:    registry,
		wallets:     wallets,
		settlement:  settlement,
		ledger:      ledger,
		commissions: commissions,
		provisioner: provisioner,
		retries:     retries,
		publisher:   publisher,
		now:         time.Now,

		postCommitTimeout: postCommitTimeout,
	}
}

// Purchase runs one purchase attempt. Preconditions are checked before any
// payment rail is touched. Once the transaction is committed, commission
// and provisioning failures are logged and retried but never undo it.
func (s *PurchaseService) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	logger := logrus.WithFields(logrus.Fields{
		"buyer_id":     req.BuyerID,
		"content_kind": req.Kind,
		"content_ref":  req.Ref,
	})
	logger.WithField("state", stateInitiated).Debug("Purchase started")

	content, err := s.checkPreconditions(ctx, req)
	if err != nil {
		logger.WithError(err).WithField("state", stateFailed).Info("Purchase rejected")
		return nil, err
	}
	logger = logger.WithField("content_id", content.ID)
	logger.WithField("state", statePreconditionsChecked).Debug("Purchase preconditions passed")

	buyer, err := s.wallets.Lookup(ctx, req.BuyerID)
	if err != nil {
		return nil, err
	}
	seller, err := s.wallets.Lookup(ctx, content.SellerID)
	if err != nil {
		// The custodial rail reports the missing payee.
		logger.WithError(err).Warn("Seller wallet lookup failed")
		seller = nil
	}

	logger.WithField("state", stateSettling).Debug("Settling payment")
	outcome, err := s.settlement.Settle(ctx, &SettlementRequest{
		Buyer:        buyer,
		Seller:       seller,
		Content:      content,
		PaymentProof: req.PaymentProof,
		Receipt:      req.Receipt,
		ResourceURL:  req.ResourceURL,
	})
	if err != nil {
		logger.WithError(err).WithField("state", stateFailed).Warn("Settlement failed")
		return nil, err
	}
	if !outcome.Settled() {
		logger.WithField("state", statePaymentRequired).Info("Payment required")
		return nil, &PaymentRequiredError{Challenge: outcome.Challenge}
	}
	logger.WithFields(logrus.Fields{"state": stateSettled, "rail": outcome.Rail}).Info("Payment settled")

	transaction, err := s.ledger.Commit(ctx, CommitRequest{
		BuyerID: buyer.ID,
		Content: content,
		Payment: outcome.Metadata,
	})
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"state":    stateFailed,
			"rail":     outcome.Rail,
			"metadata": outcome.Metadata,
		}).Error("Payment settled but purchase was not recorded")
		return nil, &UncommittedSettlementError{Receipt: outcome.Receipt, Err: err}
	}
	logger = logger.WithField("transaction_id", transaction.ID)
	logger.WithField("state", stateCommitted).Info("Purchase committed")

	result := &PurchaseResult{
		Transaction:     transaction,
		PaymentMetadata: transaction.Payment,
		SettleResponse:  outcome.SettleResponse,
		Receipt:         outcome.Receipt,
	}

	s.afterCommit(context.WithoutCancel(ctx), logger, result, content, req.AffiliateCode)

	logger.WithField("state", stateDone).Debug("Purchase finished")
	return result, nil
}

func (s *PurchaseService) checkPreconditions(ctx context.Context, req PurchaseRequest) (*models.PurchasableContent, error) {
	content, err := s.registry.Resolve(ctx, req.Kind, req.Ref)
	if err != nil {
		return nil, err
	}

	switch {
	case !content.IsActive():
		return nil, ErrContentInactive
	case content.Expired(s.now()):
		return nil, ErrContentExpired
	case content.SellerID == req.BuyerID:
		return nil, ErrSelfPurchase
	}

	purchased, err := s.ledger.HasCompletedPurchase(ctx, req.BuyerID, content.Kind, content.ID)
	if err != nil {
		return nil, err
	}
	if purchased {
		return nil, ErrDuplicatePurchase
	}

	return content, nil
}

// afterCommit runs commission attribution and provisioning side by side.
// Neither can fail the purchase. Both share one deadline; a step cut off by
// it is handed to the retry queue like any other failure. ctx must not be
// tied to the request.
func (s *PurchaseService) afterCommit(ctx context.Context, logger *logrus.Entry, result *PurchaseResult, content *models.PurchasableContent, code string) {
	transaction := result.Transaction
	stepCtx, cancel := context.WithTimeout(ctx, s.postCommitTimeout)
	defer cancel()

	var g errgroup.Group

	g.Go(func() error {
		commission, err := s.commissions.Attribute(stepCtx, transaction, content, code)
		if err != nil {
			logger.WithError(err).WithField("step", "commission").Error("Post-commit step failed")
			s.scheduleRetry(logger, "commission", func() error {
				return s.retries.ScheduleCommission(ctx, transaction.ID, code)
			})
			return nil
		}
		if commission != nil && commission.Affiliate != nil {
			// The affiliate row belongs to another user and is not part of the buyer's view.
			result.affiliateUserID = commission.Affiliate.AffiliateUserID
			commission.Affiliate = nil
		}
		result.Commission = commission
		logger.WithField("state", stateCommissionProcessed).Debug("Commission processed")
		return nil
	})

	g.Go(func() error {
		provisioned, err := s.provisioner.Provision(stepCtx, transaction)
		if err != nil {
			logger.WithError(err).WithField("step", "provision").Error("Post-commit step failed")
			s.scheduleRetry(logger, "provision", func() error {
				return s.retries.ScheduleProvision(ctx, transaction.ID)
			})
			return nil
		}
		result.ProvisionedItem = provisioned
		logger.WithField("state", stateProvisioned).Debug("Item provisioned")
		return nil
	})

	_ = g.Wait()

	s.publish(ctx, logger, result)
}

func (s *PurchaseService) scheduleRetry(logger *logrus.Entry, step string, schedule func() error) {
	if s.retries == nil {
		return
	}
	if err := schedule(); err != nil {
		logger.WithError(err).WithField("step", step).Error("Failed to schedule retry")
	}
}

func (s *PurchaseService) publish(ctx context.Context, logger *logrus.Entry, result *PurchaseResult) {
	transaction := result.Transaction
	now := s.now()

	err := s.publisher.Publish(ctx, events.RoutingKeyPurchaseCompleted, events.PurchaseEvent{
		TransactionID: transaction.ID,
		BuyerID:       transaction.BuyerID,
		SellerID:      transaction.SellerID,
		ContentKind:   string(transaction.ContentKind),
		ContentID:     transaction.ContentID,
		Amount:        transaction.Amount,
		Currency:      transaction.Currency,
		Rail:          string(transaction.Payment.Rail()),
		ReceiptNumber: transaction.ReceiptNumber,
		Timestamp:     now,
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to publish purchase event")
	}

	if c := result.Commission; c != nil {
		err := s.publisher.Publish(ctx, events.RoutingKeyCommissionCreated, events.CommissionEvent{
			CommissionID:    c.ID,
			AffiliateID:     c.AffiliateID,
			AffiliateUserID: result.affiliateUserID,
			TransactionID:   transaction.ID,
			Amount:          c.Amount,
			Timestamp:       now,
		})
		if err != nil {
			logger.WithError(err).Warn("Failed to publish commission event")
		}
	}
}

// Refund records a compensating transaction and announces it.
func (s *PurchaseService) Refund(ctx context.Context, transactionID, adminID uuid.UUID, reason string) (*models.Transaction, error) {
	refund, err := s.ledger.Compensate(ctx, transactionID, adminID, reason)
	if err != nil {
		return nil, err
	}

	err = s.publisher.Publish(ctx, events.RoutingKeyPurchaseRefunded, events.PurchaseEvent{
		TransactionID: refund.ID,
		BuyerID:       refund.BuyerID,
		SellerID:      refund.SellerID,
		ContentKind:   string(refund.ContentKind),
		ContentID:     refund.ContentID,
		Amount:        refund.Amount,
		Currency:      refund.Currency,
		Rail:          string(refund.Payment.Rail()),
		ReceiptNumber: refund.ReceiptNumber,
		Timestamp:     s.now(),
	})
	if err != nil {
		logrus.WithError(err).WithField("refund_id", refund.ID).Warn("Failed to publish refund event")
	}

	return refund, nil
}
