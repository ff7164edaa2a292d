// internal/services/onchain_rail.go
package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/paylink-backend/internal/config"
	"github.com/javajoker/paylink-backend/internal/models"
	"github.com/javajoker/paylink-backend/internal/utils"
	"github.com/javajoker/paylink-backend/pkg/x402"
)

// OnChainRail implements the x402 payment-required flow: without a proof it
// answers with a challenge, with a proof it verifies and settles through the
// facilitator.
type OnChainRail struct {
	facilitator x402.Facilitator
	cfg         config.X402Config
	decimals    int32
	receipts    *ReceiptSigner
}

func NewOnChainRail(facilitator x402.Facilitator, cfg config.X402Config, decimals int32, receipts *ReceiptSigner) *OnChainRail {
	return &OnChainRail{facilitator: facilitator, cfg: cfg, decimals: decimals, receipts: receipts}
}

func (r *OnChainRail) ID() RailID { return RailOnChain }

func (r *OnChainRail) Usable(req *SettlementRequest) (bool, string) {
	if r.facilitator == nil || !r.cfg.Configured() {
		return false, "payment facilitator is not configured"
	}
	return true, ""
}

// Requirements builds the payment terms for the requested content. The
// seller is paid directly when they have a valid address.
func (r *OnChainRail) Requirements(req *SettlementRequest) x402.PaymentRequirements {
	payTo := r.cfg.PayToAddress
	if req.Seller != nil && utils.IsValidAddress(req.Seller.WalletAddress) {
		payTo = req.Seller.WalletAddress
	}

	return x402.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           r.cfg.Network,
		MaxAmountRequired: BaseUnits(req.Content.Price, r.decimals).String(),
		Resource:          req.ResourceURL,
		Description:       req.Content.Title,
		MimeType:          "application/json",
		PayTo:             payTo,
		MaxTimeoutSeconds: r.cfg.MaxTimeoutSeconds,
		Asset:             r.cfg.Asset,
		Extra: map[string]interface{}{
			"resource_id": req.Content.ResourceID(),
			"price":       req.Content.Price.StringFixed(2),
		},
	}
}

func (r *OnChainRail) challenge(requirements x402.PaymentRequirements, reason string) *SettlementOutcome {
	return &SettlementOutcome{
		Challenge: &x402.PaymentRequiredResponse{
			X402Version: x402.Version,
			Error:       reason,
			Accepts:     []x402.PaymentRequirements{requirements},
		},
	}
}

func (r *OnChainRail) Attempt(ctx context.Context, req *SettlementRequest, idempotencyKey string) (*SettlementOutcome, error) {
	requirements := r.Requirements(req)

	if req.PaymentProof == "" {
		return r.challenge(requirements, "X-PAYMENT header is required"), nil
	}

	payload, err := x402.DecodePaymentHeader(req.PaymentProof)
	if err != nil {
		return r.challenge(requirements, err.Error()), nil
	}

	verification, err := r.facilitator.Verify(ctx, payload, requirements)
	if err != nil {
		return nil, &RailError{Rail: models.PaymentRailOnChainSettled, Kind: RailErrorTransient, Err: err}
	}
	if !verification.IsValid {
		return r.challenge(requirements, verification.InvalidReason), nil
	}

	settled, err := r.facilitator.Settle(ctx, payload, requirements)
	if err != nil {
		return nil, &RailError{Rail: models.PaymentRailOnChainSettled, Kind: RailErrorTransient, Err: err}
	}
	if !settled.Success {
		return r.challenge(requirements, settled.ErrorReason), nil
	}

	payer := settled.Payer
	if payer == "" {
		payer = verification.Payer
	}
	network := settled.Network
	if network == "" {
		network = requirements.Network
	}

	settlement := models.OnChainSettlement{
		TransactionHash: settled.Transaction,
		Network:         network,
		Payer:           payer,
		PayTo:           requirements.PayTo,
		Asset:           requirements.Asset,
		AmountBaseUnits: requirements.MaxAmountRequired,
	}

	outcome := &SettlementOutcome{
		Metadata:       models.NewPaymentMetadata(settlement),
		SettleResponse: settled,
	}

	if r.receipts != nil {
		receipt, err := r.receipts.Issue(req, settlement)
		if err != nil {
			// Settlement stands; the buyer only loses the replay shortcut.
			logrus.WithError(err).WithField("tx_hash", settled.Transaction).Error("Failed to sign settlement receipt")
		} else {
			outcome.Receipt = receipt
		}
	}

	logrus.WithFields(logrus.Fields{
		"idempotency_key": idempotencyKey,
		"tx_hash":         settled.Transaction,
		"network":         network,
		"resource_id":     req.Content.ResourceID(),
	}).Info("x402 payment settled")

	return outcome, nil
}
