// internal/models/affiliate.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultCommissionRate = 10

type Affiliate struct {
	BaseModel
	Code            string          `json:"code" gorm:"uniqueIndex;size:32;not null"`
	OwnerID         uuid.UUID       `json:"owner_id" gorm:"type:uuid;not null;index"`
	AffiliateUserID uuid.UUID       `json:"affiliate_user_id" gorm:"type:uuid;not null;index"`
	ContentKind     ContentKind     `json:"content_kind" gorm:"type:varchar(20);not null"`
	ContentID       uuid.UUID       `json:"content_id" gorm:"type:uuid;not null;index"`
	CommissionRate  decimal.Decimal `json:"commission_rate" gorm:"type:decimal(5,2);not null"`
	Status          AffiliateStatus `json:"status" gorm:"type:varchar(20);default:'active';index"`
	TotalEarnings   decimal.Decimal `json:"total_earnings" gorm:"type:decimal(12,2);not null;default:0"`
	TotalSales      int64           `json:"total_sales" gorm:"not null;default:0"`
}

func (a *Affiliate) IsActive() bool {
	return a.Status == AffiliateStatusActive
}

type Commission struct {
	BaseModel
	AffiliateID   uuid.UUID        `json:"affiliate_id" gorm:"type:uuid;not null;index"`
	TransactionID uuid.UUID        `json:"transaction_id" gorm:"type:uuid;not null;uniqueIndex"`
	Amount        decimal.Decimal  `json:"amount" gorm:"type:decimal(12,2);not null"`
	Rate          decimal.Decimal  `json:"rate" gorm:"type:decimal(5,2);not null"`
	Status        CommissionStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	PaidAt        *time.Time       `json:"paid_at,omitempty"`

	// Relationships
	Affiliate *Affiliate `json:"affiliate,omitempty" gorm:"foreignKey:AffiliateID"`
}
