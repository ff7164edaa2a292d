package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/paylink-backend/internal/config"
	"github.com/javajoker/paylink-backend/internal/models"
	"github.com/javajoker/paylink-backend/pkg/circle"
	"github.com/javajoker/paylink-backend/pkg/x402"
)

var testCircleConfig = config.CircleConfig{
	APIKey:       "TEST_API_KEY",
	Blockchain:   "ARC-TESTNET",
	TokenAddress: "0x3600000000000000000000000000000000000000",
}

var testX402Config = config.X402Config{
	FacilitatorURL:    "https://facilitator.test",
	PayToAddress:      payToAddress,
	Network:           "base-sepolia",
	Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	MaxTimeoutSeconds: 300,
}

type fakeTransferer struct {
	requests []circle.TransferRequest
	tx       *circle.Transaction
	err      error
}

func (f *fakeTransferer) Transfer(_ context.Context, req circle.TransferRequest) (*circle.Transaction, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}

func TestCustodialRailUsable(t *testing.T) {
	req := newSettlementRequest()

	ok, _ := NewCustodialRail(&fakeTransferer{}, testCircleConfig, 6).Usable(req)
	assert.True(t, ok)

	ok, reason := NewCustodialRail(nil, testCircleConfig, 6).Usable(req)
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	ok, _ = NewCustodialRail(&fakeTransferer{}, config.CircleConfig{APIKey: "key"}, 6).Usable(req)
	assert.False(t, ok)

	req.Buyer.CircleWalletID = ""
	ok, reason = NewCustodialRail(&fakeTransferer{}, testCircleConfig, 6).Usable(req)
	assert.False(t, ok)
	assert.Equal(t, "buyer has no custodial wallet", reason)
}

func TestCustodialRailTransfers(t *testing.T) {
	transferer := &fakeTransferer{tx: &circle.Transaction{ID: "tr-1", State: circle.StateComplete, TxHash: "0xfeed"}}
	rail := NewCustodialRail(transferer, testCircleConfig, 6)
	req := newSettlementRequest()

	outcome, err := rail.Attempt(context.Background(), req, "key-1")
	require.NoError(t, err)
	require.True(t, outcome.Settled())

	require.Len(t, transferer.requests, 1)
	sent := transferer.requests[0]
	assert.Equal(t, "key-1", sent.IdempotencyKey)
	assert.Equal(t, "wallet-buyer", sent.WalletID)
	assert.Equal(t, sellerAddress, sent.DestinationAddress)
	assert.Equal(t, []string{"9.99"}, sent.Amounts)
	assert.Equal(t, testCircleConfig.TokenAddress, sent.TokenAddress)
	assert.Equal(t, req.Content.ResourceID(), sent.RefID)

	details, ok := outcome.Metadata.Details.(models.CustodialTransfer)
	require.True(t, ok)
	assert.Equal(t, "tr-1", details.TransferID)
	assert.Equal(t, "0xfeed", details.TransactionHash)
	assert.Equal(t, "9990000", details.AmountBaseUnits)
	assert.Equal(t, "key-1", details.IdempotencyKey)
	// Custodial retries are covered by the Circle idempotency key, not a receipt.
	assert.Empty(t, outcome.Receipt)
}

func TestCustodialRailFailures(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*SettlementRequest)
		transfer *fakeTransferer
		kind     RailErrorKind
	}{
		{
			name:     "seller without address",
			mutate:   func(r *SettlementRequest) { r.Seller.WalletAddress = "" },
			transfer: &fakeTransferer{},
			kind:     RailErrorMisconfigured,
		},
		{
			name:     "seller missing",
			mutate:   func(r *SettlementRequest) { r.Seller = nil },
			transfer: &fakeTransferer{},
			kind:     RailErrorMisconfigured,
		},
		{
			name:     "insufficient funds",
			transfer: &fakeTransferer{err: fmt.Errorf("%w: balance too low", circle.ErrInsufficientFunds)},
			kind:     RailErrorInsufficientFunds,
		},
		{
			name:     "transfer ended insufficient",
			transfer: &fakeTransferer{err: &circle.TransferFailedError{TransferID: "tr", State: circle.StateFailed, Reason: "INSUFFICIENT_TOKEN"}},
			kind:     RailErrorInsufficientFunds,
		},
		{
			name:     "api unavailable",
			transfer: &fakeTransferer{err: circle.ErrUnavailable},
			kind:     RailErrorTransient,
		},
		{
			name:     "api rejected",
			transfer: &fakeTransferer{err: &circle.APIError{StatusCode: 400, Message: "invalid wallet"}},
			kind:     RailErrorRejected,
		},
		{
			name:     "no transaction hash",
			transfer: &fakeTransferer{tx: &circle.Transaction{ID: "tr-2", State: circle.StateSent}},
			kind:     RailErrorTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newSettlementRequest()
			if tt.mutate != nil {
				tt.mutate(req)
			}

			_, err := NewCustodialRail(tt.transfer, testCircleConfig, 6).Attempt(context.Background(), req, "key")

			var railErr *RailError
			require.True(t, errors.As(err, &railErr))
			assert.Equal(t, tt.kind, railErr.Kind)
		})
	}
}

type fakeFacilitator struct {
	verify    *x402.VerifyResponse
	settle    *x402.SettleResponse
	err       error
	verified  int
	settled   int
	lastTerms x402.PaymentRequirements
}

func (f *fakeFacilitator) Verify(_ context.Context, _ *x402.PaymentPayload, req x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	f.verified++
	f.lastTerms = req
	if f.err != nil {
		return nil, f.err
	}
	return f.verify, nil
}

func (f *fakeFacilitator) Settle(_ context.Context, _ *x402.PaymentPayload, _ x402.PaymentRequirements) (*x402.SettleResponse, error) {
	f.settled++
	return f.settle, nil
}

func paymentHeader(t *testing.T) string {
	t.Helper()
	header, err := x402.EncodePaymentHeader(&x402.PaymentPayload{
		X402Version: x402.Version,
		Scheme:      x402.SchemeExact,
		Network:     "base-sepolia",
		Payload:     json.RawMessage(`{"signature":"0xsig"}`),
	})
	require.NoError(t, err)
	return header
}

func TestOnChainRailUsable(t *testing.T) {
	req := newSettlementRequest()

	ok, _ := NewOnChainRail(&fakeFacilitator{}, testX402Config, 6, nil).Usable(req)
	assert.True(t, ok)

	ok, _ = NewOnChainRail(nil, testX402Config, 6, nil).Usable(req)
	assert.False(t, ok)

	ok, _ = NewOnChainRail(&fakeFacilitator{}, config.X402Config{}, 6, nil).Usable(req)
	assert.False(t, ok)
}

func TestOnChainRailChallengesWithoutProof(t *testing.T) {
	facilitator := &fakeFacilitator{}
	rail := NewOnChainRail(facilitator, testX402Config, 6, nil)
	req := newSettlementRequest()

	outcome, err := rail.Attempt(context.Background(), req, "key")
	require.NoError(t, err)
	assert.False(t, outcome.Settled())
	require.NotNil(t, outcome.Challenge)

	assert.Equal(t, x402.Version, outcome.Challenge.X402Version)
	require.Len(t, outcome.Challenge.Accepts, 1)
	terms := outcome.Challenge.Accepts[0]
	assert.Equal(t, x402.SchemeExact, terms.Scheme)
	assert.Equal(t, "9990000", terms.MaxAmountRequired)
	assert.Equal(t, sellerAddress, terms.PayTo)
	assert.Equal(t, req.ResourceURL, terms.Resource)
	assert.Equal(t, req.Content.ResourceID(), terms.Extra["resource_id"])
	assert.Equal(t, 0, facilitator.verified)
}

func TestOnChainRailPaysPlatformWhenSellerHasNoAddress(t *testing.T) {
	req := newSettlementRequest()
	req.Seller.WalletAddress = "not-an-address"

	terms := NewOnChainRail(&fakeFacilitator{}, testX402Config, 6, nil).Requirements(req)
	assert.Equal(t, payToAddress, terms.PayTo)
}

func TestOnChainRailChallengesMalformedProof(t *testing.T) {
	facilitator := &fakeFacilitator{}
	req := newSettlementRequest()
	req.PaymentProof = "%%%not-base64%%%"

	outcome, err := NewOnChainRail(facilitator, testX402Config, 6, nil).Attempt(context.Background(), req, "key")
	require.NoError(t, err)
	require.NotNil(t, outcome.Challenge)
	assert.Contains(t, outcome.Challenge.Error, "malformed")
	assert.Equal(t, 0, facilitator.verified)
}

func TestOnChainRailChallengesRejectedProof(t *testing.T) {
	facilitator := &fakeFacilitator{verify: &x402.VerifyResponse{IsValid: false, InvalidReason: "insufficient_funds"}}
	req := newSettlementRequest()
	req.PaymentProof = paymentHeader(t)

	outcome, err := NewOnChainRail(facilitator, testX402Config, 6, nil).Attempt(context.Background(), req, "key")
	require.NoError(t, err)
	require.NotNil(t, outcome.Challenge)
	assert.Equal(t, "insufficient_funds", outcome.Challenge.Error)
	assert.Equal(t, 0, facilitator.settled)
}

func TestOnChainRailChallengesFailedSettlement(t *testing.T) {
	facilitator := &fakeFacilitator{
		verify: &x402.VerifyResponse{IsValid: true},
		settle: &x402.SettleResponse{Success: false, ErrorReason: "nonce_used"},
	}
	req := newSettlementRequest()
	req.PaymentProof = paymentHeader(t)

	outcome, err := NewOnChainRail(facilitator, testX402Config, 6, nil).Attempt(context.Background(), req, "key")
	require.NoError(t, err)
	require.NotNil(t, outcome.Challenge)
	assert.Equal(t, "nonce_used", outcome.Challenge.Error)
}

func TestOnChainRailFacilitatorUnavailable(t *testing.T) {
	facilitator := &fakeFacilitator{err: x402.ErrFacilitatorUnavailable}
	req := newSettlementRequest()
	req.PaymentProof = paymentHeader(t)

	_, err := NewOnChainRail(facilitator, testX402Config, 6, nil).Attempt(context.Background(), req, "key")

	var railErr *RailError
	require.True(t, errors.As(err, &railErr))
	assert.Equal(t, RailErrorTransient, railErr.Kind)
	assert.ErrorIs(t, err, x402.ErrFacilitatorUnavailable)
}

func TestOnChainRailSettles(t *testing.T) {
	signer := NewReceiptSigner("receipt-secret", time.Hour)
	facilitator := &fakeFacilitator{
		verify: &x402.VerifyResponse{IsValid: true, Payer: "0x2222222222222222222222222222222222222222"},
		settle: &x402.SettleResponse{Success: true, Transaction: "0xsettled"},
	}
	req := newSettlementRequest()
	req.PaymentProof = paymentHeader(t)

	outcome, err := NewOnChainRail(facilitator, testX402Config, 6, signer).Attempt(context.Background(), req, "key")
	require.NoError(t, err)
	require.True(t, outcome.Settled())
	require.NotNil(t, outcome.SettleResponse)

	details, ok := outcome.Metadata.Details.(models.OnChainSettlement)
	require.True(t, ok)
	assert.Equal(t, "0xsettled", details.TransactionHash)
	assert.Equal(t, "base-sepolia", details.Network)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", details.Payer)
	assert.Equal(t, sellerAddress, details.PayTo)
	assert.Equal(t, "9990000", details.AmountBaseUnits)
	assert.False(t, details.FromReceipt)

	require.NotEmpty(t, outcome.Receipt)
	redeemed, err := signer.Verify(req, outcome.Receipt)
	require.NoError(t, err)
	assert.Equal(t, "0xsettled", redeemed.TransactionHash)
	assert.True(t, redeemed.FromReceipt)
}

func TestReceiptVerification(t *testing.T) {
	signer := NewReceiptSigner("receipt-secret", time.Hour)
	req := newSettlementRequest()
	token, err := signer.Issue(req, models.OnChainSettlement{TransactionHash: "0xabc", Network: "base-sepolia", PayTo: sellerAddress})
	require.NoError(t, err)

	t.Run("other buyer", func(t *testing.T) {
		other := *req
		other.Buyer = &models.User{BaseModel: models.BaseModel{ID: uuid.New()}}
		_, err := signer.Verify(&other, token)
		assert.ErrorIs(t, err, ErrInvalidReceipt)
	})

	t.Run("other content", func(t *testing.T) {
		other := *req
		content := *req.Content
		content.ID = uuid.New()
		other.Content = &content
		_, err := signer.Verify(&other, token)
		assert.ErrorIs(t, err, ErrInvalidReceipt)
	})

	t.Run("price changed", func(t *testing.T) {
		other := *req
		content := *req.Content
		content.Price = content.Price.Add(content.Price)
		other.Content = &content
		_, err := signer.Verify(&other, token)
		assert.ErrorIs(t, err, ErrInvalidReceipt)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewReceiptSigner("other-secret", time.Hour).Verify(req, token)
		assert.ErrorIs(t, err, ErrInvalidReceipt)
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := NewReceiptSigner("receipt-secret", -time.Minute).Issue(req, models.OnChainSettlement{TransactionHash: "0xabc"})
		require.NoError(t, err)
		_, err = signer.Verify(req, expired)
		assert.ErrorIs(t, err, ErrInvalidReceipt)
	})
}

func TestReceiptRail(t *testing.T) {
	signer := NewReceiptSigner("receipt-secret", time.Hour)
	rail := NewReceiptRail(signer)
	req := newSettlementRequest()

	ok, _ := rail.Usable(req)
	assert.False(t, ok)

	token, err := signer.Issue(req, models.OnChainSettlement{TransactionHash: "0xabc", Network: "base-sepolia"})
	require.NoError(t, err)
	req.Receipt = token

	ok, _ = rail.Usable(req)
	assert.True(t, ok)

	outcome, err := rail.Attempt(context.Background(), req, "")
	require.NoError(t, err)
	assert.True(t, outcome.Settled())
	assert.Equal(t, models.PaymentRailOnChainSettled, outcome.Metadata.Rail())

	req.Receipt = "garbage"
	_, err = rail.Attempt(context.Background(), req, "")
	assert.ErrorIs(t, err, ErrInvalidReceipt)

	var railErr *RailError
	assert.False(t, errors.As(err, &railErr))
}
