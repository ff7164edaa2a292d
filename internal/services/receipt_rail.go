// internal/services/receipt_rail.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/javajoker/paylink-backend/internal/models"
	"github.com/javajoker/paylink-backend/internal/utils"
)

// ReceiptSigner issues and checks settlement receipts. A receipt lets a
// buyer whose on-chain payment settled, but whose purchase was not recorded,
// complete the purchase without paying again.
type ReceiptSigner struct {
	secret []byte
	ttl    time.Duration
}

func NewReceiptSigner(secret string, ttl time.Duration) *ReceiptSigner {
	return &ReceiptSigner{secret: []byte(secret), ttl: ttl}
}

func (s *ReceiptSigner) Issue(req *SettlementRequest, settlement models.OnChainSettlement) (string, error) {
	return utils.SignSettlementReceipt(s.secret, utils.ReceiptClaims{
		Resource:        req.Content.ResourceID(),
		BuyerID:         req.Buyer.ID.String(),
		Amount:          req.Content.Price.StringFixed(2),
		Network:         settlement.Network,
		TransactionHash: settlement.TransactionHash,
		Payer:           settlement.Payer,
		PayTo:           settlement.PayTo,
		Asset:           settlement.Asset,
		AmountBaseUnits: settlement.AmountBaseUnits,
	}, s.ttl)
}

// Verify checks the signature and that the receipt covers this exact
// resource, buyer and price.
func (s *ReceiptSigner) Verify(req *SettlementRequest, token string) (*models.OnChainSettlement, error) {
	claims, err := utils.VerifySettlementReceipt(s.secret, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}

	switch {
	case claims.Resource != req.Content.ResourceID():
		return nil, fmt.Errorf("%w: issued for another resource", ErrInvalidReceipt)
	case claims.BuyerID != req.Buyer.ID.String():
		return nil, fmt.Errorf("%w: issued to another buyer", ErrInvalidReceipt)
	case claims.Amount != req.Content.Price.StringFixed(2):
		return nil, fmt.Errorf("%w: price changed since settlement", ErrInvalidReceipt)
	}

	return &models.OnChainSettlement{
		TransactionHash: claims.TransactionHash,
		Network:         claims.Network,
		Payer:           claims.Payer,
		PayTo:           claims.PayTo,
		Asset:           claims.Asset,
		AmountBaseUnits: claims.AmountBaseUnits,
		FromReceipt:     true,
	}, nil
}

// ReceiptRail accepts a previously issued settlement receipt. An invalid
// receipt is a client error, not a rail failure.
type ReceiptRail struct {
	signer *ReceiptSigner
}

func NewReceiptRail(signer *ReceiptSigner) *ReceiptRail {
	return &ReceiptRail{signer: signer}
}

func (r *ReceiptRail) ID() RailID { return RailReceipt }

func (r *ReceiptRail) Usable(req *SettlementRequest) (bool, string) {
	if req.Receipt == "" {
		return false, "no receipt presented"
	}
	return true, ""
}

func (r *ReceiptRail) Attempt(ctx context.Context, req *SettlementRequest, _ string) (*SettlementOutcome, error) {
	settlement, err := r.signer.Verify(req, req.Receipt)
	if err != nil {
		return nil, err
	}

	return &SettlementOutcome{Metadata: models.NewPaymentMetadata(*settlement)}, nil
}
