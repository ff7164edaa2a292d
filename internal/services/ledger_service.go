// internal/services/ledger_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/paylink-backend/internal/models"
	"github.com/javajoker/paylink-backend/internal/utils"
)

// LedgerService owns the append-only transactions table.
type LedgerService struct {
	db       *gorm.DB
	currency string
}

type CommitRequest struct {
	BuyerID uuid.UUID
	Content *models.PurchasableContent
	Payment models.PaymentMetadata
}

type HistoryFilter struct {
	// Role is "purchases", "sales" or empty for both.
	Role   string                   `form:"role" validate:"omitempty,oneof=purchases sales"`
	Status models.TransactionStatus `form:"status" validate:"omitempty,oneof=pending completed failed refunded"`
}

func NewLedgerService(db *gorm.DB, currency string) *LedgerService {
	return &LedgerService{db: db, currency: currency}
}

// Commit records a completed purchase. The insert is guarded by the partial
// unique index on completed purchases, so of two racing commits for the same
// buyer and content exactly one succeeds.
func (s *LedgerService) Commit(ctx context.Context, req CommitRequest) (*models.Transaction, error) {
	receiptNumber, err := utils.GenerateReceiptNumber(time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to generate receipt number: %w", err)
	}

	transaction := &models.Transaction{
		TransactionType: models.TransactionTypePurchase,
		BuyerID:         req.BuyerID,
		SellerID:        req.Content.SellerID,
		ContentKind:     req.Content.Kind,
		ContentID:       req.Content.ID,
		ItemID:          req.Content.ItemID,
		Amount:          req.Content.Price,
		Currency:        s.currency,
		Status:          models.TransactionStatusCompleted,
		Payment:         req.Payment,
		ReceiptNumber:   receiptNumber,
	}

	if err := s.db.WithContext(ctx).Create(transaction).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicatePurchase
		}
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	return transaction, nil
}

func (s *LedgerService) HasCompletedPurchase(ctx context.Context, buyerID uuid.UUID, kind models.ContentKind, contentID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("buyer_id = ? AND content_kind = ? AND content_id = ?", buyerID, kind, contentID).
		Where("transaction_type = ? AND status = ?", models.TransactionTypePurchase, models.TransactionStatusCompleted).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check existing purchases: %w", err)
	}
	return count > 0, nil
}

func (s *LedgerService) Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var transaction models.Transaction
	err := s.db.WithContext(ctx).Preload("Commission").First(&transaction, "id = ?", id).Error
	if err != nil {
		return nil, notFoundOr(err, ErrTransactionNotFound, "transaction")
	}
	return &transaction, nil
}

// History lists transactions where the user is buyer or seller.
func (s *LedgerService) History(ctx context.Context, userID uuid.UUID, filter HistoryFilter, params utils.PaginationParams) ([]models.Transaction, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Transaction{})

	switch filter.Role {
	case "purchases":
		query = query.Where("buyer_id = ?", userID)
	case "sales":
		query = query.Where("seller_id = ?", userID)
	default:
		query = query.Where("buyer_id = ? OR seller_id = ?", userID, userID)
	}

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	var transactions []models.Transaction
	query = utils.ApplySort(query, params, []string{"created_at", "amount"})
	if err := utils.ApplyPagination(query, params).Preload("Commission").Find(&transactions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}

	return transactions, total, nil
}

// Compensate writes a refund record against a completed purchase. The
// original row is left untouched.
func (s *LedgerService) Compensate(ctx context.Context, transactionID, adminID uuid.UUID, reason string) (*models.Transaction, error) {
	original, err := s.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if original.TransactionType != models.TransactionTypePurchase || original.Status != models.TransactionStatusCompleted {
		return nil, ErrNotRefundable
	}

	receiptNumber, err := utils.GenerateReceiptNumber(time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to generate receipt number: %w", err)
	}

	refund := &models.Transaction{
		TransactionType:     models.TransactionTypeRefund,
		BuyerID:             original.BuyerID,
		SellerID:            original.SellerID,
		ContentKind:         original.ContentKind,
		ContentID:           original.ContentID,
		ItemID:              original.ItemID,
		Amount:              original.Amount,
		Currency:            original.Currency,
		Status:              models.TransactionStatusRefunded,
		Payment:             models.NewPaymentMetadata(models.ManualPayment{RecordedBy: adminID, Reason: reason}),
		ReceiptNumber:       receiptNumber,
		ParentTransactionID: &original.ID,
	}

	if err := s.db.WithContext(ctx).Create(refund).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyRefunded
		}
		return nil, fmt.Errorf("failed to record refund: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id": original.ID,
		"refund_id":      refund.ID,
		"admin_id":       adminID,
	}).Info("Compensating refund recorded")

	return refund, nil
}
