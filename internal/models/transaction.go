// internal/models/transaction.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction rows are written once and never updated. Corrections are new
// rows pointing at the original through ParentTransactionID.
type Transaction struct {
	ID                  uuid.UUID         `json:"id" gorm:"type:uuid;primary_key"`
	TransactionType     TransactionType   `json:"transaction_type" gorm:"type:varchar(20);not null;index"`
	BuyerID             uuid.UUID         `json:"buyer_id" gorm:"type:uuid;not null;index"`
	SellerID            uuid.UUID         `json:"seller_id" gorm:"type:uuid;not null;index"`
	ContentKind         ContentKind       `json:"content_kind" gorm:"type:varchar(20);not null"`
	ContentID           uuid.UUID         `json:"content_id" gorm:"type:uuid;not null;index"`
	ItemID              uuid.UUID         `json:"item_id" gorm:"type:uuid;not null"`
	Amount              decimal.Decimal   `json:"amount" gorm:"type:decimal(12,2);not null"`
	Currency            string            `json:"currency" gorm:"size:10;not null;default:'USDC'"`
	Status              TransactionStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	Payment             PaymentMetadata   `json:"payment_metadata" gorm:"type:jsonb"`
	ReceiptNumber       string            `json:"receipt_number" gorm:"size:40;not null;index"`
	ParentTransactionID *uuid.UUID        `json:"parent_transaction_id,omitempty" gorm:"type:uuid;index"`
	CreatedAt           time.Time         `json:"created_at"`

	// Relationships
	Commission *Commission `json:"commission,omitempty" gorm:"foreignKey:TransactionID"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t *Transaction) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableTransaction
}
