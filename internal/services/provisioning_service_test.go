package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/javajoker/paylink-backend/internal/config"
	"github.com/javajoker/paylink-backend/internal/models"
)

type fakeS3 struct {
	s3iface.S3API
	copies []*s3.CopyObjectInput
	err    error
}

func (f *fakeS3) CopyObjectWithContext(_ aws.Context, input *s3.CopyObjectInput, _ ...request.Option) (*s3.CopyObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.copies = append(f.copies, input)
	return &s3.CopyObjectOutput{}, nil
}

type ProvisioningServiceTestSuite struct {
	suite.Suite
	db       *gorm.DB
	ledger   *LedgerService
	registry *RegistryService
	seller   *models.User
	buyer    *models.User
}

func (s *ProvisioningServiceTestSuite) SetupTest() {
	s.db = newTestDB(s.T())
	s.ledger = NewLedgerService(s.db, "USDC")
	s.registry = NewRegistryService(s.db)
	s.seller = createUser(s.T(), s.db, sellerAddress, "")
	s.buyer = createUser(s.T(), s.db, "", "wallet-buyer")
}

func (s *ProvisioningServiceTestSuite) purchase(content *models.PurchasableContent) *models.Transaction {
	transaction, err := s.ledger.Commit(context.Background(), CommitRequest{
		BuyerID: s.buyer.ID,
		Content: content,
		Payment: onChainMetadata("0x" + uuid.NewString()),
	})
	s.Require().NoError(err)
	return transaction
}

func (s *ProvisioningServiceTestSuite) TestProvisionIsIdempotent() {
	svc := NewProvisioningService(s.db, s.registry, nil, "bucket")
	transaction := s.purchase(createListing(s.T(), s.db, s.seller.ID, "9.99", false).Purchasable())
	ctx := context.Background()

	first, err := svc.Provision(ctx, transaction)
	s.Require().NoError(err)
	s.Equal("/Purchased/report.pdf", first.Path)
	s.Equal(transaction.ID, first.TransactionID)
	s.Equal(transaction.ItemID, first.SourceItemID)

	second, err := svc.Provision(ctx, transaction)
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)

	var count int64
	s.db.Model(&models.ProvisionedItem{}).Count(&count)
	s.Equal(int64(1), count)
}

func (s *ProvisioningServiceTestSuite) TestProvisionCopiesStoredObject() {
	storage := &fakeS3{}
	svc := NewProvisioningService(s.db, s.registry, storage, "bucket")

	item := createItem(s.T(), s.db, s.seller.ID, "items/source/report.pdf")
	listing := createListing(s.T(), s.db, s.seller.ID, "9.99", false)
	s.Require().NoError(s.db.Model(listing).Update("item_id", item.ID).Error)
	listing.ItemID = item.ID

	transaction := s.purchase(listing.Purchasable())
	provisioned, err := svc.Provision(context.Background(), transaction)
	s.Require().NoError(err)

	s.Require().Len(storage.copies, 1)
	s.Equal("bucket", aws.StringValue(storage.copies[0].Bucket))
	s.Equal(DestinationKey(s.buyer.ID, item), aws.StringValue(storage.copies[0].Key))
	s.Equal(provisioned.StorageKey, aws.StringValue(storage.copies[0].Key))
}

func (s *ProvisioningServiceTestSuite) TestProvisionStorageFailureLeavesNoRecord() {
	storage := &fakeS3{err: errors.New("access denied")}
	svc := NewProvisioningService(s.db, s.registry, storage, "bucket")

	item := createItem(s.T(), s.db, s.seller.ID, "items/source/report.pdf")
	listing := createListing(s.T(), s.db, s.seller.ID, "9.99", false)
	s.Require().NoError(s.db.Model(listing).Update("item_id", item.ID).Error)
	listing.ItemID = item.ID

	_, err := svc.Provision(context.Background(), s.purchase(listing.Purchasable()))
	s.Error(err)

	var count int64
	s.db.Model(&models.ProvisionedItem{}).Count(&count)
	s.Equal(int64(0), count)
}

func (s *ProvisioningServiceTestSuite) TestProvisionMissingSourceItem() {
	svc := NewProvisioningService(s.db, s.registry, nil, "bucket")
	content := createListing(s.T(), s.db, s.seller.ID, "9.99", false).Purchasable()
	content.ItemID = uuid.New()

	_, err := svc.Provision(context.Background(), s.purchase(content))
	s.ErrorIs(err, ErrProvisionSourceAbsent)
}

func (s *ProvisioningServiceTestSuite) TestUnprovisionedSkipsProvisionedAndRefunded() {
	svc := NewProvisioningService(s.db, s.registry, nil, "bucket")
	ctx := context.Background()

	provisioned := s.purchase(createListing(s.T(), s.db, s.seller.ID, "1.00", false).Purchasable())
	pending := s.purchase(createListing(s.T(), s.db, s.seller.ID, "2.00", false).Purchasable())
	refunded := s.purchase(createListing(s.T(), s.db, s.seller.ID, "3.00", false).Purchasable())

	_, err := svc.Provision(ctx, provisioned)
	s.Require().NoError(err)
	_, err = s.ledger.Compensate(ctx, refunded.ID, uuid.New(), "chargeback")
	s.Require().NoError(err)

	transactions, err := svc.Unprovisioned(ctx, time.Now().Add(time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(transactions, 1)
	s.Equal(pending.ID, transactions[0].ID)

	none, err := svc.Unprovisioned(ctx, time.Now().Add(-time.Hour), 10)
	s.Require().NoError(err)
	s.Empty(none)
}

func TestProvisioningServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ProvisioningServiceTestSuite))
}

func TestDestinationKey(t *testing.T) {
	buyerID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	itemID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	key := DestinationKey(buyerID, &models.Item{BaseModel: models.BaseModel{ID: itemID}, Name: "../../etc/report.pdf"})
	assert.Equal(t, "purchases/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222/report.pdf", key)
}

func TestNewS3ClientWithoutCredentials(t *testing.T) {
	client, err := NewS3Client(config.AWSConfig{Region: "us-east-1"})
	assert.NoError(t, err)
	assert.Nil(t, client)
}
