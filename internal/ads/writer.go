package ads

import (
	"context"
	"fmt"

	"classifieds-marketplace/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Writer persists an ad and its single subtype record as one unit
type Writer struct {
	db *gorm.DB
}

func NewWriter(db *gorm.DB) *Writer {
	return &Writer{db: db}
}

// Create inserts the ad and its subtype in one transaction. Either both rows
// commit or neither does; a failure is returned as *TransactionError.
func (w *Writer) Create(ctx context.Context, ad *models.Ad, sub models.Subtype) error {
	if sub == nil || sub.Kind() != ad.Category.SubtypeKind() {
		return fmt.Errorf("subtype does not match category %s", ad.Category)
	}
	if ad.ID == "" {
		ad.ID = uuid.NewString()
	}
	sub.AttachTo(ad.ID)

	logger := log.With().Str("component", "ad_writer").Str("ad_id", ad.ID).Str("category", string(ad.Category)).Logger()
	logger.Debug().Msg("writing")

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// associations are written explicitly below
		if err := tx.Omit(clause.Associations).Create(ad).Error; err != nil {
			return &TransactionError{Op: "insert ad", Err: err}
		}
		if err := tx.Create(sub).Error; err != nil {
			return &TransactionError{Op: "insert " + string(sub.Kind()) + " details", Err: err}
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("aborted")
		if _, ok := err.(*TransactionError); ok {
			return err
		}
		return &TransactionError{Op: "commit", Err: err}
	}

	attach(ad, sub)
	logger.Info().Msg("committed")
	return nil
}

// attach sets the association field so the in-memory ad mirrors what was stored
func attach(ad *models.Ad, sub models.Subtype) {
	switch st := sub.(type) {
	case *models.PropertyDetails:
		ad.Property = st
	case *models.VehicleDetails:
		ad.Vehicle = st
	case *models.CommercialVehicleDetails:
		ad.CommercialVehicle = st
	}
}
