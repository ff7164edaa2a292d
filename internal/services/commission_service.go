// internal/services/commission_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/paylink-backend/internal/database"
	"github.com/javajoker/paylink-backend/internal/models"
	"github.com/javajoker/paylink-backend/internal/utils"
)

const affiliateCodeLength = 8

var hundred = decimal.NewFromInt(100)

type CommissionService struct {
	db *gorm.DB
}

func NewCommissionService(db *gorm.DB) *CommissionService {
	return &CommissionService{db: db}
}

// CalculateCommission returns price * rate / 100 rounded half-up to cents.
func CalculateCommission(price, rate decimal.Decimal) decimal.Decimal {
	return price.Mul(rate).Div(hundred).Round(2)
}

func NormalizeAffiliateCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Attribute credits the affiliate behind code for a committed purchase. It
// returns nil without error when no commission applies. Calling it again for
// the same transaction returns the commission created the first time.
func (s *CommissionService) Attribute(ctx context.Context, transaction *models.Transaction, content *models.PurchasableContent, code string) (*models.Commission, error) {
	code = NormalizeAffiliateCode(code)
	if code == "" || !content.CommissionEligible {
		return nil, nil
	}

	var affiliate models.Affiliate
	err := s.db.WithContext(ctx).
		Where("code = ? AND content_kind = ? AND content_id = ?", code, content.Kind, content.ID).
		First(&affiliate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up affiliate code: %w", err)
	}

	if !affiliate.IsActive() || affiliate.AffiliateUserID == transaction.BuyerID {
		return nil, nil
	}

	commission := &models.Commission{
		AffiliateID:   affiliate.ID,
		TransactionID: transaction.ID,
		Amount:        CalculateCommission(transaction.Amount, affiliate.CommissionRate),
		Rate:          affiliate.CommissionRate,
		Status:        models.CommissionStatusPending,
	}

	err = database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := tx.Create(commission).Error; err != nil {
			return err
		}

		return tx.Model(&models.Affiliate{}).
			Where("id = ?", affiliate.ID).
			UpdateColumns(map[string]interface{}{
				"total_earnings": gorm.Expr("total_earnings + ?", commission.Amount),
				"total_sales":    gorm.Expr("total_sales + ?", 1),
			}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.findByTransaction(ctx, transaction.ID)
		}
		return nil, fmt.Errorf("failed to record commission: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id": transaction.ID,
		"affiliate_id":   affiliate.ID,
		"amount":         commission.Amount.StringFixed(2),
	}).Info("Affiliate commission recorded")

	commission.Affiliate = &affiliate
	return commission, nil
}

func (s *CommissionService) findByTransaction(ctx context.Context, transactionID uuid.UUID) (*models.Commission, error) {
	var commission models.Commission
	err := s.db.WithContext(ctx).Preload("Affiliate").First(&commission, "transaction_id = ?", transactionID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load existing commission: %w", err)
	}
	return &commission, nil
}

// LookupCode resolves a public affiliate code.
func (s *CommissionService) LookupCode(ctx context.Context, code string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := s.db.WithContext(ctx).
		Where("code = ? AND status = ?", NormalizeAffiliateCode(code), models.AffiliateStatusActive).
		First(&affiliate).Error
	if err != nil {
		return nil, notFoundOr(err, ErrAffiliateNotFound, "affiliate")
	}
	return &affiliate, nil
}

// CreateAffiliate enrolls userID as an affiliate of content. Enrolling twice
// returns the existing code.
func (s *CommissionService) CreateAffiliate(ctx context.Context, userID uuid.UUID, content *models.PurchasableContent) (*models.Affiliate, error) {
	if !content.CommissionEligible || !content.IsActive() {
		return nil, ErrAffiliateNotEligible
	}

	var existing models.Affiliate
	err := s.db.WithContext(ctx).
		Where("affiliate_user_id = ? AND content_kind = ? AND content_id = ?", userID, content.Kind, content.ID).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check affiliate enrollment: %w", err)
	}

	// Codes are random; retry the rare collision.
	for attempt := 0; attempt < 3; attempt++ {
		code, err := utils.GenerateAffiliateCode(affiliateCodeLength)
		if err != nil {
			return nil, err
		}

		affiliate := &models.Affiliate{
			Code:            code,
			OwnerID:         content.SellerID,
			AffiliateUserID: userID,
			ContentKind:     content.Kind,
			ContentID:       content.ID,
			CommissionRate:  decimal.NewFromInt(models.DefaultCommissionRate),
			Status:          models.AffiliateStatusActive,
			TotalEarnings:   decimal.Zero,
		}

		err = s.db.WithContext(ctx).Create(affiliate).Error
		if err == nil {
			return affiliate, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("failed to create affiliate: %w", err)
		}
	}

	return nil, errors.New("failed to allocate a unique affiliate code")
}

// ListForAffiliateUser returns commissions earned by the user's codes, newest first.
func (s *CommissionService) ListForAffiliateUser(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.Commission, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Commission{}).
		Joins("JOIN affiliates ON affiliates.id = commissions.affiliate_id").
		Where("affiliates.affiliate_user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count commissions: %w", err)
	}

	var commissions []models.Commission
	err := utils.ApplyPagination(query, params).
		Preload("Affiliate").
		Order("commissions.created_at DESC").
		Find(&commissions).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list commissions: %w", err)
	}

	return commissions, total, nil
}
