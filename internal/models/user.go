// internal/models/user.go
package models

// User is owned by the account service; this core only reads the wallet fields.
type User struct {
	BaseModel
	Email          string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	Name           string     `json:"name" gorm:"size:255"`
	WalletAddress  string     `json:"wallet_address" gorm:"size:42"`
	CircleWalletID string     `json:"-" gorm:"size:64"`
	Status         UserStatus `json:"status" gorm:"type:varchar(20);default:'active'"`
}

func (u *User) HasCustodialWallet() bool {
	return u.CircleWalletID != ""
}
