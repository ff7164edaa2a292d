// internal/services/custodial_rail.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/javajoker/paylink-backend/internal/config"
	"github.com/javajoker/paylink-backend/internal/models"
	"github.com/javajoker/paylink-backend/internal/utils"
	"github.com/javajoker/paylink-backend/pkg/circle"
)

// CustodialTransferer moves tokens out of a platform-managed wallet.
type CustodialTransferer interface {
	Transfer(ctx context.Context, req circle.TransferRequest) (*circle.Transaction, error)
}

// CustodialRail pays the seller from the buyer's developer-controlled wallet.
type CustodialRail struct {
	client   CustodialTransferer
	circle   config.CircleConfig
	decimals int32
}

// NewCustodialRail accepts a nil client; the rail then reports itself unusable.
func NewCustodialRail(client CustodialTransferer, cfg config.CircleConfig, decimals int32) *CustodialRail {
	return &CustodialRail{client: client, circle: cfg, decimals: decimals}
}

func (r *CustodialRail) ID() RailID { return RailCustodial }

func (r *CustodialRail) Usable(req *SettlementRequest) (bool, string) {
	switch {
	case r.client == nil || !r.circle.CustodialRailConfigured():
		return false, "custodial transfer service is not configured"
	case !req.Buyer.HasCustodialWallet():
		return false, "buyer has no custodial wallet"
	}
	return true, ""
}

func (r *CustodialRail) Attempt(ctx context.Context, req *SettlementRequest, idempotencyKey string) (*SettlementOutcome, error) {
	if req.Seller == nil || !utils.IsValidAddress(req.Seller.WalletAddress) {
		return nil, &RailError{Rail: models.PaymentRailCustodialTransfer, Kind: RailErrorMisconfigured, Err: ErrInvalidSellerAddress}
	}

	baseUnits := BaseUnits(req.Content.Price, r.decimals)
	tx, err := r.client.Transfer(ctx, circle.TransferRequest{
		IdempotencyKey:     idempotencyKey,
		WalletID:           req.Buyer.CircleWalletID,
		DestinationAddress: req.Seller.WalletAddress,
		Amounts:            []string{req.Content.Price.StringFixed(2)},
		TokenAddress:       r.circle.TokenAddress,
		Blockchain:         r.circle.Blockchain,
		RefID:              req.Content.ResourceID(),
	})
	if err != nil {
		return nil, &RailError{Rail: models.PaymentRailCustodialTransfer, Kind: custodialErrorKind(err), Err: err}
	}
	if tx.TxHash == "" {
		return nil, &RailError{
			Rail: models.PaymentRailCustodialTransfer,
			Kind: RailErrorTransient,
			Err:  fmt.Errorf("transfer %s returned no transaction hash", tx.ID),
		}
	}

	return &SettlementOutcome{
		Metadata: models.NewPaymentMetadata(models.CustodialTransfer{
			TransferID:      tx.ID,
			TransactionHash: tx.TxHash,
			Network:         r.circle.Blockchain,
			FromWalletID:    req.Buyer.CircleWalletID,
			ToAddress:       req.Seller.WalletAddress,
			TokenAddress:    r.circle.TokenAddress,
			AmountBaseUnits: baseUnits.String(),
			IdempotencyKey:  idempotencyKey,
		}),
	}, nil
}

func custodialErrorKind(err error) RailErrorKind {
	switch {
	case errors.Is(err, circle.ErrInsufficientFunds):
		return RailErrorInsufficientFunds
	case errors.Is(err, circle.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return RailErrorTransient
	default:
		return RailErrorRejected
	}
}
