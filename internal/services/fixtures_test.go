package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/paylink-backend/internal/database"
	"github.com/javajoker/paylink-backend/internal/models"
	"github.com/javajoker/paylink-backend/pkg/x402"
)

const (
	sellerAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	payToAddress  = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	return db
}

func createUser(t *testing.T, db *gorm.DB, walletAddress, circleWalletID string) *models.User {
	t.Helper()

	user := &models.User{
		Email:          uuid.NewString() + "@example.com",
		Name:           "Test User",
		WalletAddress:  walletAddress,
		CircleWalletID: circleWalletID,
		Status:         models.UserStatusActive,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createItem(t *testing.T, db *gorm.DB, ownerID uuid.UUID, storageKey string) *models.Item {
	t.Helper()

	item := &models.Item{
		OwnerID:    ownerID,
		Name:       "report.pdf",
		Type:       "file",
		Size:       2048,
		MimeType:   "application/pdf",
		StorageKey: storageKey,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func createListing(t *testing.T, db *gorm.DB, sellerID uuid.UUID, price string, affiliateEnabled bool) *models.Listing {
	t.Helper()

	item := createItem(t, db, sellerID, "")
	listing := &models.Listing{
		ItemID:           item.ID,
		SellerID:         sellerID,
		Title:            "Quarterly report",
		Price:            decimal.RequireFromString(price),
		Status:           models.ListingStatusActive,
		AffiliateEnabled: affiliateEnabled,
	}
	require.NoError(t, db.Create(listing).Error)
	return listing
}

func createSharedLink(t *testing.T, db *gorm.DB, ownerID uuid.UUID, linkType models.SharedLinkType, price string, expiresAt *time.Time) *models.SharedLink {
	t.Helper()

	item := createItem(t, db, ownerID, "")
	link := &models.SharedLink{
		LinkID:    "lnk" + uuid.NewString()[:8],
		ItemID:    item.ID,
		OwnerID:   ownerID,
		Type:      linkType,
		Title:     "Shared folder",
		Price:     decimal.RequireFromString(price),
		IsActive:  true,
		ExpiresAt: expiresAt,
	}
	require.NoError(t, db.Create(link).Error)
	return link
}

func createAffiliate(t *testing.T, db *gorm.DB, code string, affiliateUserID uuid.UUID, content *models.PurchasableContent, status models.AffiliateStatus) *models.Affiliate {
	t.Helper()

	affiliate := &models.Affiliate{
		Code:            code,
		OwnerID:         content.SellerID,
		AffiliateUserID: affiliateUserID,
		ContentKind:     content.Kind,
		ContentID:       content.ID,
		CommissionRate:  decimal.NewFromInt(models.DefaultCommissionRate),
		Status:          status,
		TotalEarnings:   decimal.Zero,
	}
	require.NoError(t, db.Create(affiliate).Error)
	return affiliate
}

func onChainMetadata(hash string) models.PaymentMetadata {
	return models.NewPaymentMetadata(models.OnChainSettlement{
		TransactionHash: hash,
		Network:         "base-sepolia",
		Payer:           "0x1111111111111111111111111111111111111111",
		PayTo:           sellerAddress,
		AmountBaseUnits: "9990000",
	})
}

// fakeRail is a scripted settlement rail.
type fakeRail struct {
	id      RailID
	usable  bool
	reason  string
	outcome *SettlementOutcome
	err     error
	block   bool

	mu    sync.Mutex
	calls int
	keys  []string
}

func (r *fakeRail) ID() RailID { return r.id }

func (r *fakeRail) Usable(*SettlementRequest) (bool, string) {
	return r.usable, r.reason
}

func (r *fakeRail) Attempt(ctx context.Context, _ *SettlementRequest, key string) (*SettlementOutcome, error) {
	r.mu.Lock()
	r.calls++
	r.keys = append(r.keys, key)
	r.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return nil, &RailError{Rail: models.PaymentRailCustodialTransfer, Kind: RailErrorTransient, Err: ctx.Err()}
	}
	if r.err != nil {
		return nil, r.err
	}

	outcome := *r.outcome
	return &outcome, nil
}

func (r *fakeRail) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func settlingRail(hash string) *fakeRail {
	return &fakeRail{id: RailCustodial, usable: true, outcome: &SettlementOutcome{Metadata: onChainMetadata(hash)}}
}

func challengeRail() *fakeRail {
	return &fakeRail{id: RailOnChain, usable: true, outcome: &SettlementOutcome{
		Challenge: &x402.PaymentRequiredResponse{
			X402Version: x402.Version,
			Error:       "X-PAYMENT header is required",
			Accepts:     []x402.PaymentRequirements{{Scheme: x402.SchemeExact, MaxAmountRequired: "9990000"}},
		},
	}}
}

func failingRail(id RailID, kind RailErrorKind) *fakeRail {
	return &fakeRail{id: id, usable: true, err: &RailError{Rail: models.PaymentRailCustodialTransfer, Kind: kind, Err: errors.New("rail unavailable")}}
}
