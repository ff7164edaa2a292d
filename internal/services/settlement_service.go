// internal/services/settlement_service.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/paylink-backend/internal/models"
	"github.com/javajoker/paylink-backend/pkg/x402"
)

type RailID string

const (
	RailReceipt   RailID = "settlement-receipt"
	RailCustodial RailID = "custodial-transfer"
	RailOnChain   RailID = "on-chain"
)

// idempotencyNamespace scopes rail idempotency keys to this service.
var idempotencyNamespace = uuid.MustParse("6f1c9a52-3b8e-4d17-9a0c-2e5d8b4f7a61")

// IdempotencyKey is stable for a (buyer, content, rail) triple, so a retried
// purchase reuses the key of the earlier attempt.
func IdempotencyKey(buyerID, contentID uuid.UUID, rail RailID) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(buyerID.String()+"|"+contentID.String()+"|"+string(rail))).String()
}

// BaseUnits converts a token amount to its smallest unit, truncating any excess precision.
func BaseUnits(amount decimal.Decimal, decimals int32) decimal.Decimal {
	return amount.Shift(decimals).Truncate(0)
}

type SettlementRequest struct {
	Buyer   *models.User
	Seller  *models.User
	Content *models.PurchasableContent
	// Raw X-PAYMENT header, if any.
	PaymentProof string
	// Raw X-PAYMENT-RECEIPT header, if any.
	Receipt     string
	ResourceURL string
}

// SettlementOutcome is either a settlement (Metadata set) or a payment
// challenge (Challenge set).
type SettlementOutcome struct {
	Rail      RailID
	Metadata  models.PaymentMetadata
	Challenge *x402.PaymentRequiredResponse
	// Set when the on-chain rail settled during this request.
	SettleResponse *x402.SettleResponse
	Receipt        string
}

func (o *SettlementOutcome) Settled() bool {
	return o != nil && !o.Metadata.IsZero()
}

// Rail is one settlement strategy. Usable must not have side effects.
// Attempt returns a *RailError for failures that should fall through.
type Rail interface {
	ID() RailID
	Usable(req *SettlementRequest) (bool, string)
	Attempt(ctx context.Context, req *SettlementRequest, idempotencyKey string) (*SettlementOutcome, error)
}

type SettlementService struct {
	rails   []Rail
	timeout time.Duration
}

// NewSettlementService tries rails in the given order.
func NewSettlementService(timeout time.Duration, rails ...Rail) *SettlementService {
	return &SettlementService{rails: rails, timeout: timeout}
}

// Settle walks the rails once each and returns on the first settlement or
// payment challenge. When nothing works the result is a *ConfigurationError.
func (s *SettlementService) Settle(ctx context.Context, req *SettlementRequest) (*SettlementOutcome, error) {
	logger := logrus.WithFields(logrus.Fields{
		"buyer_id":    req.Buyer.ID,
		"content_id":  req.Content.ID,
		"resource_id": req.Content.ResourceID(),
	})

	skipped := make(map[string]string)
	var failures []*RailError

	for _, rail := range s.rails {
		if ok, reason := rail.Usable(req); !ok {
			skipped[string(rail.ID())] = reason
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		outcome, err := rail.Attempt(attemptCtx, req, IdempotencyKey(req.Buyer.ID, req.Content.ID, rail.ID()))
		cancel()

		if err == nil {
			outcome.Rail = rail.ID()
			logger.WithField("rail", rail.ID()).WithField("settled", outcome.Settled()).Info("Settlement rail answered")
			return outcome, nil
		}

		var railErr *RailError
		if !errors.As(err, &railErr) {
			return nil, err
		}

		logger.WithError(railErr.Err).WithFields(logrus.Fields{
			"rail": rail.ID(),
			"kind": railErr.Kind,
		}).Warn("Settlement rail failed, falling through")
		failures = append(failures, railErr)
	}

	return nil, classifyFailure(skipped, failures)
}

func classifyFailure(skipped map[string]string, failures []*RailError) *ConfigurationError {
	cfgErr := &ConfigurationError{Skipped: skipped, Failures: failures}

	switch {
	case len(failures) == 0:
		cfgErr.Reason = ReasonNoRailConfigured
	case anyKind(failures, RailErrorInsufficientFunds):
		cfgErr.Reason = ReasonInsufficientFunds
	default:
		cfgErr.Reason = ReasonAllRailsFailed
	}

	return cfgErr
}

func anyKind(failures []*RailError, kind RailErrorKind) bool {
	for _, f := range failures {
		if f.Kind == kind {
			return true
		}
	}
	return false
}
