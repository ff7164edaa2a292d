// internal/models/content.go
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item, Listing and SharedLink are owned by the drive and marketplace services.
// They are mapped here so the registry can read them.

type Item struct {
	BaseModel
	OwnerID    uuid.UUID `json:"owner_id" gorm:"type:uuid;not null;index"`
	Name       string    `json:"name" gorm:"size:255;not null"`
	Type       string    `json:"type" gorm:"size:20;not null;default:'file'"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type" gorm:"size:127"`
	StorageKey string    `json:"-" gorm:"size:512"`
}

type Listing struct {
	BaseModel
	ItemID           uuid.UUID       `json:"item_id" gorm:"type:uuid;not null;index"`
	SellerID         uuid.UUID       `json:"seller_id" gorm:"type:uuid;not null;index"`
	Title            string          `json:"title" gorm:"size:255;not null"`
	Description      string          `json:"description" gorm:"type:text"`
	Price            decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	Status           ListingStatus   `json:"status" gorm:"type:varchar(20);default:'active';index"`
	AffiliateEnabled bool            `json:"affiliate_enabled" gorm:"default:false"`
}

type SharedLink struct {
	BaseModel
	LinkID           string          `json:"link_id" gorm:"uniqueIndex;size:64;not null"`
	ItemID           uuid.UUID       `json:"item_id" gorm:"type:uuid;not null;index"`
	OwnerID          uuid.UUID       `json:"owner_id" gorm:"type:uuid;not null;index"`
	Type             SharedLinkType  `json:"type" gorm:"type:varchar(20);not null"`
	Title            string          `json:"title" gorm:"size:255;not null"`
	Price            decimal.Decimal `json:"price" gorm:"type:decimal(12,2)"`
	IsActive         bool            `json:"is_active" gorm:"default:true"`
	ExpiresAt        *time.Time      `json:"expires_at"`
	AffiliateEnabled bool            `json:"affiliate_enabled" gorm:"default:false"`
}

// PurchasableContent is the registry's normalized view of anything that can be bought.
type PurchasableContent struct {
	Kind               ContentKind     `json:"kind"`
	ID                 uuid.UUID       `json:"id"`
	Slug               string          `json:"slug,omitempty"`
	SellerID           uuid.UUID       `json:"seller_id"`
	ItemID             uuid.UUID       `json:"item_id"`
	Title              string          `json:"title"`
	Price              decimal.Decimal `json:"price"`
	Status             ContentStatus   `json:"status"`
	ExpiresAt          *time.Time      `json:"expires_at,omitempty"`
	CommissionEligible bool            `json:"commission_eligible"`
}

func (c *PurchasableContent) IsActive() bool {
	return c.Status == ContentStatusActive
}

func (c *PurchasableContent) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// ResourceID identifies the content in payment challenges and receipts.
func (c *PurchasableContent) ResourceID() string {
	return fmt.Sprintf("%s:%s", c.Kind, c.ID)
}

func (l *Listing) Purchasable() *PurchasableContent {
	status := ContentStatusInactive
	if l.Status == ListingStatusActive {
		status = ContentStatusActive
	}

	return &PurchasableContent{
		Kind:               ContentKindListing,
		ID:                 l.ID,
		SellerID:           l.SellerID,
		ItemID:             l.ItemID,
		Title:              l.Title,
		Price:              l.Price,
		Status:             status,
		CommissionEligible: l.AffiliateEnabled,
	}
}

func (s *SharedLink) Purchasable() *PurchasableContent {
	status := ContentStatusInactive
	if s.IsActive {
		status = ContentStatusActive
	}

	return &PurchasableContent{
		Kind:               ContentKindSharedLink,
		ID:                 s.ID,
		Slug:               s.LinkID,
		SellerID:           s.OwnerID,
		ItemID:             s.ItemID,
		Title:              s.Title,
		Price:              s.Price,
		Status:             status,
		ExpiresAt:          s.ExpiresAt,
		CommissionEligible: s.AffiliateEnabled,
	}
}
