// internal/services/registry_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/paylink-backend/internal/models"
)

// ContentRegistry resolves purchasable content. Listings are addressed by id,
// shared links by their public link id.
type ContentRegistry interface {
	Resolve(ctx context.Context, kind models.ContentKind, ref string) (*models.PurchasableContent, error)
	Get(ctx context.Context, kind models.ContentKind, id uuid.UUID) (*models.PurchasableContent, error)
	GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error)
}

type RegistryService struct {
	db *gorm.DB
}

func NewRegistryService(db *gorm.DB) *RegistryService {
	return &RegistryService{db: db}
}

func (s *RegistryService) Resolve(ctx context.Context, kind models.ContentKind, ref string) (*models.PurchasableContent, error) {
	switch kind {
	case models.ContentKindListing:
		id, err := uuid.Parse(ref)
		if err != nil {
			return nil, ErrContentNotFound
		}
		return s.Get(ctx, kind, id)
	case models.ContentKindSharedLink:
		return s.findSharedLink(ctx, "link_id = ?", ref)
	default:
		return nil, ErrContentNotFound
	}
}

func (s *RegistryService) Get(ctx context.Context, kind models.ContentKind, id uuid.UUID) (*models.PurchasableContent, error) {
	switch kind {
	case models.ContentKindListing:
		var listing models.Listing
		if err := s.db.WithContext(ctx).First(&listing, "id = ?", id).Error; err != nil {
			return nil, notFoundOr(err, ErrContentNotFound, "listing")
		}
		return listing.Purchasable(), nil
	case models.ContentKindSharedLink:
		return s.findSharedLink(ctx, "id = ?", id)
	default:
		return nil, ErrContentNotFound
	}
}

func (s *RegistryService) findSharedLink(ctx context.Context, query string, arg interface{}) (*models.PurchasableContent, error) {
	var link models.SharedLink
	if err := s.db.WithContext(ctx).Where(query, arg).First(&link).Error; err != nil {
		return nil, notFoundOr(err, ErrContentNotFound, "shared link")
	}

	// Public links are free to open and cannot be bought.
	if link.Type != models.SharedLinkTypeMonetized {
		return nil, ErrContentNotFound
	}

	return link.Purchasable(), nil
}

func (s *RegistryService) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	var item models.Item
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, ErrProvisionSourceAbsent, "item")
	}
	return &item, nil
}

func notFoundOr(err, notFound error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
