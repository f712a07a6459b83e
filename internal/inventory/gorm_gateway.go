package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classifieds-marketplace/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// GormGateway reads inventory reference tables through gorm
type GormGateway struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewGormGateway(db *gorm.DB, timeout time.Duration) *GormGateway {
	return &GormGateway{db: db, timeout: timeout}
}

type check struct {
	field string
	id    string
	find  func(ctx context.Context, id string) (bool, error)
}

// AssertReferencesValid runs all lookups concurrently, then reports the first
// invalid field in precedence order so the result does not depend on timing.
func (g *GormGateway) AssertReferencesValid(ctx context.Context, refs References) error {
	if refs.ManufacturerID == "" {
		return &InvalidReferenceError{Field: FieldManufacturerID}
	}
	if refs.ModelID == "" {
		return &InvalidReferenceError{Field: FieldModelID}
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	checks := []check{
		{FieldManufacturerID, refs.ManufacturerID, g.exists(&models.Manufacturer{}, "")},
		{FieldModelID, refs.ModelID, g.exists(&models.VehicleModel{}, "manufacturer_id = ?", refs.ManufacturerID)},
		{FieldVariantID, refs.VariantID, g.exists(&models.Variant{}, "model_id = ?", refs.ModelID)},
		{FieldTransmissionID, refs.TransmissionID, g.exists(&models.Transmission{}, "")},
		{FieldFuelTypeID, refs.FuelTypeID, g.exists(&models.FuelType{}, "")},
	}

	valid := make([]bool, len(checks))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, c := range checks {
		if c.id == "" {
			valid[i] = true
			continue
		}
		i, c := i, c
		eg.Go(func() error {
			ok, err := c.find(egCtx, c.id)
			if err != nil {
				return fmt.Errorf("%w: %s lookup: %v", ErrUnavailable, c.field, err)
			}
			valid[i] = ok
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for i, c := range checks {
		if !valid[i] {
			return &InvalidReferenceError{Field: c.field}
		}
	}
	return nil
}

// exists builds a lookup that checks the id, scoped by an optional parent condition
func (g *GormGateway) exists(model interface{}, scope string, scopeArgs ...interface{}) func(context.Context, string) (bool, error) {
	return func(ctx context.Context, id string) (bool, error) {
		var count int64
		q := g.db.WithContext(ctx).Model(model).Where("id = ?", id)
		if scope != "" {
			q = q.Where(scope, scopeArgs...)
		}
		if err := q.Count(&count).Error; err != nil {
			return false, err
		}
		return count > 0, nil
	}
}

// ResolveDisplayName returns the model name; lookup failures count as absent
func (g *GormGateway) ResolveDisplayName(ctx context.Context, modelID string) (string, bool) {
	if modelID == "" {
		return "", false
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	name, err := g.name(ctx, &models.VehicleModel{}, modelID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().Err(err).Str("component", "inventory").Str("model_id", modelID).Msg("model name lookup failed")
		}
		return "", false
	}
	return name, name != ""
}

// ResolveNames resolves every non-empty reference concurrently. Failures leave the name empty.
func (g *GormGateway) ResolveNames(ctx context.Context, refs References) Names {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	var names Names
	targets := []struct {
		id    string
		model interface{}
		dst   *string
	}{
		{refs.ManufacturerID, &models.Manufacturer{}, &names.Manufacturer},
		{refs.ModelID, &models.VehicleModel{}, &names.Model},
		{refs.VariantID, &models.Variant{}, &names.Variant},
		{refs.TransmissionID, &models.Transmission{}, &names.Transmission},
		{refs.FuelTypeID, &models.FuelType{}, &names.FuelType},
	}

	var eg errgroup.Group
	for _, t := range targets {
		if t.id == "" {
			continue
		}
		t := t
		eg.Go(func() error {
			name, err := g.name(ctx, t.model, t.id)
			if err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					log.Warn().Err(err).Str("component", "inventory").Str("id", t.id).Msg("name lookup failed")
				}
				return nil
			}
			*t.dst = name
			return nil
		})
	}
	_ = eg.Wait()
	return names
}

func (g *GormGateway) name(ctx context.Context, model interface{}, id string) (string, error) {
	var names []string
	err := g.db.WithContext(ctx).Model(model).Where("id = ?", id).Limit(1).Pluck("name", &names).Error
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", gorm.ErrRecordNotFound
	}
	return names[0], nil
}

func (g *GormGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}
