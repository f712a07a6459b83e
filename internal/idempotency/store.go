package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classifieds-marketplace/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRequestInProgress is returned when another request holds an unexpired claim on the key
var ErrRequestInProgress = errors.New("request with this idempotency key is in progress")

// Store maps idempotency keys to the first response produced under them
type Store interface {
	// Get returns the stored response for an unexpired, completed key
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores the response; later Gets within ttl return exactly these bytes
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Claim reserves the key for the caller. When the key already completed the
	// stored response is returned instead; an unexpired claim by someone else
	// yields ErrRequestInProgress.
	Claim(ctx context.Context, key string, lease time.Duration) (*ClaimResult, error)
	// Release drops an in-progress claim so the key can be retried
	Release(ctx context.Context, key string) error
	PurgeExpired(ctx context.Context) (int64, error)
}

// ClaimResult is the outcome of Claim
type ClaimResult struct {
	Claimed  bool
	Response []byte
}

// GormStore keeps idempotency records in the idempotency_records table
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source, for tests
func (s *GormStore) WithClock(now func() time.Time) *GormStore {
	s.now = now
	return s
}

func (s *GormStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var rec models.IdempotencyRecord
	err := s.db.WithContext(ctx).
		Where("idempotency_key = ? AND status = ? AND expires_at > ?", key, models.IdempotencyStatusCompleted, s.now()).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read idempotency record: %w", err)
	}
	return []byte(rec.Response), true, nil
}

func (s *GormStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now()
	rec := models.IdempotencyRecord{
		Key:         key,
		Status:      models.IdempotencyStatusCompleted,
		Response:    datatypes.JSON(value),
		ExpiresAt:   now.Add(ttl),
		CompletedAt: &now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "response", "expires_at", "completed_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}
	return nil
}

func (s *GormStore) Claim(ctx context.Context, key string, lease time.Duration) (*ClaimResult, error) {
	now := s.now()
	db := s.db.WithContext(ctx)

	// expired records no longer guard their key
	if err := db.Where("idempotency_key = ? AND expires_at <= ?", key, now).
		Delete(&models.IdempotencyRecord{}).Error; err != nil {
		return nil, fmt.Errorf("failed to clear expired idempotency record: %w", err)
	}

	rec := models.IdempotencyRecord{
		Key:       key,
		Status:    models.IdempotencyStatusInProgress,
		ExpiresAt: now.Add(lease),
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to claim idempotency key: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return &ClaimResult{Claimed: true}, nil
	}

	var existing models.IdempotencyRecord
	if err := db.Where("idempotency_key = ?", key).Take(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// claimant released between our insert and read
			return nil, ErrRequestInProgress
		}
		return nil, fmt.Errorf("failed to read idempotency record: %w", err)
	}
	if existing.Status == models.IdempotencyStatusCompleted && !existing.IsExpired(now) {
		return &ClaimResult{Response: []byte(existing.Response)}, nil
	}
	return nil, ErrRequestInProgress
}

func (s *GormStore) Release(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).
		Where("idempotency_key = ? AND status = ?", key, models.IdempotencyStatusInProgress).
		Delete(&models.IdempotencyRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// PurgeExpired deletes every record past its expiry
func (s *GormStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&models.IdempotencyRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge idempotency records: %w", res.Error)
	}
	return res.RowsAffected, nil
}
