// internal/models/provisioned_item.go
package models

import (
	"github.com/google/uuid"
)

// ProvisionedItem records the buyer's copy of a purchased item. The unique
// (buyer, source item) pair makes provisioning safe to retry.
type ProvisionedItem struct {
	BaseModel
	BuyerID       uuid.UUID `json:"buyer_id" gorm:"type:uuid;not null;uniqueIndex:idx_provisioned_buyer_item"`
	SourceItemID  uuid.UUID `json:"source_item_id" gorm:"type:uuid;not null;uniqueIndex:idx_provisioned_buyer_item"`
	TransactionID uuid.UUID `json:"transaction_id" gorm:"type:uuid;not null;index"`
	Name          string    `json:"name" gorm:"size:255;not null"`
	Path          string    `json:"path" gorm:"size:512;not null"`
	StorageKey    string    `json:"-" gorm:"size:512"`
}
