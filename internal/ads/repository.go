package ads

import (
	"context"
	"errors"
	"fmt"

	"classifieds-marketplace/internal/models"

	"gorm.io/gorm"
)

// Repository reads single ads with their subtype
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID returns the ad unless it is deleted. Inactive or unapproved ads are
// only returned to their owner.
func (r *Repository) FindByID(ctx context.Context, id, viewerID string) (*models.Ad, error) {
	var ad models.Ad
	err := r.db.WithContext(ctx).
		Preload("Property").
		Preload("Vehicle").
		Preload("CommercialVehicle").
		Where("id = ? AND is_deleted = ?", id, false).
		Take(&ad).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ad %s: %w", id, err)
	}

	if !ad.IsVisible() && (viewerID == "" || viewerID != ad.OwnerID) {
		return nil, ErrNotFound
	}
	return &ad, nil
}

// IncrementViewCount bumps the counter without touching updated_at
func (r *Repository) IncrementViewCount(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Model(&models.Ad{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error
	if err != nil {
		return fmt.Errorf("failed to increment view count: %w", err)
	}
	return nil
}
