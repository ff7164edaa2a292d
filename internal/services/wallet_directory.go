// internal/services/wallet_directory.go
package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/paylink-backend/internal/models"
)

// WalletDirectory exposes the wallet fields of platform users.
type WalletDirectory interface {
	Lookup(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

type UserWalletDirectory struct {
	db *gorm.DB
}

func NewWalletDirectory(db *gorm.DB) *UserWalletDirectory {
	return &UserWalletDirectory{db: db}
}

func (d *UserWalletDirectory) Lookup(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).
		Select("id", "email", "name", "wallet_address", "circle_wallet_id", "status").
		First(&user, "id = ?", userID).Error
	if err != nil {
		return nil, notFoundOr(err, ErrUserNotFound, "user")
	}
	return &user, nil
}
