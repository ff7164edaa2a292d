// internal/services/provisioning_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/paylink-backend/internal/config"
	"github.com/javajoker/paylink-backend/internal/models"
)

// PurchasedFolder is where provisioned copies appear in the buyer's drive.
const PurchasedFolder = "/Purchased"

// Provisioner places a copy of a purchased item in the buyer's storage.
type Provisioner interface {
	Provision(ctx context.Context, transaction *models.Transaction) (*models.ProvisionedItem, error)
}

type ProvisioningService struct {
	db       *gorm.DB
	registry ContentRegistry
	s3Client s3iface.S3API
	bucket   string
}

// NewS3Client returns nil when no AWS credentials are configured; storage
// then runs in local mode and only the drive records are written.
func NewS3Client(cfg config.AWSConfig) (s3iface.S3API, error) {
	if cfg.AccessKeyID == "" {
		return nil, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return s3.New(sess), nil
}

func NewProvisioningService(db *gorm.DB, registry ContentRegistry, s3Client s3iface.S3API, bucket string) *ProvisioningService {
	return &ProvisioningService{
		db:       db,
		registry: registry,
		s3Client: s3Client,
		bucket:   bucket,
	}
}

// DestinationKey is deterministic so a retried copy overwrites rather than duplicates.
func DestinationKey(buyerID uuid.UUID, item *models.Item) string {
	return fmt.Sprintf("purchases/%s/%s/%s", buyerID, item.ID, path.Base(item.Name))
}

// Provision is idempotent per (buyer, source item).
func (s *ProvisioningService) Provision(ctx context.Context, transaction *models.Transaction) (*models.ProvisionedItem, error) {
	if existing, err := s.find(ctx, transaction.BuyerID, transaction.ItemID); err != nil || existing != nil {
		return existing, err
	}

	item, err := s.registry.GetItem(ctx, transaction.ItemID)
	if err != nil {
		return nil, err
	}

	key := DestinationKey(transaction.BuyerID, item)
	if err := s.copyObject(ctx, item, key); err != nil {
		return nil, err
	}

	provisioned := &models.ProvisionedItem{
		BuyerID:       transaction.BuyerID,
		SourceItemID:  item.ID,
		TransactionID: transaction.ID,
		Name:          item.Name,
		Path:          path.Join(PurchasedFolder, item.Name),
		StorageKey:    key,
	}

	if err := s.db.WithContext(ctx).Create(provisioned).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.find(ctx, transaction.BuyerID, transaction.ItemID)
		}
		return nil, fmt.Errorf("failed to record provisioned item: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id": transaction.ID,
		"buyer_id":       transaction.BuyerID,
		"item_id":        item.ID,
		"key":            key,
	}).Info("Purchased item provisioned")

	return provisioned, nil
}

func (s *ProvisioningService) find(ctx context.Context, buyerID, itemID uuid.UUID) (*models.ProvisionedItem, error) {
	var provisioned models.ProvisionedItem
	err := s.db.WithContext(ctx).
		Where("buyer_id = ? AND source_item_id = ?", buyerID, itemID).
		First(&provisioned).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load provisioned item: %w", err)
	}
	return &provisioned, nil
}

func (s *ProvisioningService) copyObject(ctx context.Context, item *models.Item, key string) error {
	if s.s3Client == nil || item.StorageKey == "" {
		logrus.WithField("key", key).Debug("Object copy skipped (local storage mode)")
		return nil
	}

	_, err := s.s3Client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(url.PathEscape(s.bucket + "/" + item.StorageKey)),
		Key:        aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to copy object in S3: %w", err)
	}

	return nil
}

// Unprovisioned returns completed, unrefunded purchases older than cutoff
// that have no provisioned copy yet.
func (s *ProvisioningService) Unprovisioned(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	var transactions []models.Transaction
	err := s.db.WithContext(ctx).
		Table("transactions AS t").
		Select("t.*").
		Joins("LEFT JOIN provisioned_items p ON p.buyer_id = t.buyer_id AND p.source_item_id = t.item_id").
		Where("t.transaction_type = ? AND t.status = ?", models.TransactionTypePurchase, models.TransactionStatusCompleted).
		Where("p.id IS NULL AND t.created_at < ?", cutoff).
		Where("NOT EXISTS (SELECT 1 FROM transactions r WHERE r.parent_transaction_id = t.id)").
		Order("t.created_at ASC").
		Limit(limit).
		Find(&transactions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unprovisioned purchases: %w", err)
	}
	return transactions, nil
}
