package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"classifieds-marketplace/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Store is the durable event queue written after an ad commits.
// Consumers drive events pending -> processing -> completed | failed.
type Store interface {
	Enqueue(ctx context.Context, eventName, aggregateID string, payload interface{}) (*models.OutboxEvent, error)
	ClaimPending(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error) error
	Requeue(ctx context.Context, maxRetries int) (int64, error)
	RecoverStuck(ctx context.Context, olderThan time.Duration) (int64, error)
	CountTerminal(ctx context.Context, olderThan time.Duration) (int64, error)
	PurgeTerminal(ctx context.Context, olderThan time.Duration) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Stats summarises the queue for the admin endpoint
type Stats struct {
	Pending       int64      `json:"pending"`
	Processing    int64      `json:"processing"`
	Completed     int64      `json:"completed"`
	Failed        int64      `json:"failed"`
	OldestPending *time.Time `json:"oldestPending,omitempty"`
}

// GormStore keeps events in the outbox_events table
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

// Enqueue appends a pending event
func (s *GormStore) Enqueue(ctx context.Context, eventName, aggregateID string, payload interface{}) (*models.OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", eventName, err)
	}

	now := s.now()
	event := &models.OutboxEvent{
		ID:          uuid.NewString(),
		EventName:   eventName,
		AggregateID: aggregateID,
		Payload:     datatypes.JSON(data),
		Status:      models.OutboxStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", eventName, err)
	}
	return event, nil
}

// ClaimPending moves up to limit due events to processing and returns them.
// Each row is claimed with a status guard so two consumers never share an event.
func (s *GormStore) ClaimPending(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	now := s.now()
	db := s.db.WithContext(ctx)

	var candidates []models.OutboxEvent
	err := db.Where("status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)", models.OutboxStatusPending, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending events: %w", err)
	}

	claimed := make([]models.OutboxEvent, 0, len(candidates))
	for _, ev := range candidates {
		res := db.Model(&models.OutboxEvent{}).
			Where("id = ? AND status = ?", ev.ID, models.OutboxStatusPending).
			Updates(map[string]interface{}{
				"status":     models.OutboxStatusProcessing,
				"updated_at": now,
			})
		if res.Error != nil {
			return claimed, fmt.Errorf("failed to claim event %s: %w", ev.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			ev.Status = models.OutboxStatusProcessing
			ev.UpdatedAt = now
			claimed = append(claimed, ev)
		}
	}
	return claimed, nil
}

// MarkCompleted finishes a processing event
func (s *GormStore) MarkCompleted(ctx context.Context, id string) error {
	now := s.now()
	return s.transition(ctx, id, map[string]interface{}{
		"status":       models.OutboxStatusCompleted,
		"processed_at": now,
		"updated_at":   now,
		"last_error":   "",
	})
}

// MarkFailed records the failure, bumps the retry count and schedules the next attempt
func (s *GormStore) MarkFailed(ctx context.Context, id string, cause error) error {
	var ev models.OutboxEvent
	if err := s.db.WithContext(ctx).Select("retry_count").Where("id = ?", id).Take(&ev).Error; err != nil {
		return fmt.Errorf("failed to load event %s: %w", id, err)
	}

	now := s.now()
	next := now.Add(models.GetNextRetryDelay(ev.RetryCount))
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.transition(ctx, id, map[string]interface{}{
		"status":          models.OutboxStatusFailed,
		"retry_count":     gorm.Expr("retry_count + 1"),
		"last_error":      msg,
		"next_attempt_at": next,
		"processed_at":    now,
		"updated_at":      now,
	})
}

func (s *GormStore) transition(ctx context.Context, id string, updates map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ? AND status = ?", id, models.OutboxStatusProcessing).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update event %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("event %s is not processing", id)
	}
	return nil
}

// Requeue returns due failed events with retries left to pending
func (s *GormStore) Requeue(ctx context.Context, maxRetries int) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("status = ? AND retry_count < ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)",
			models.OutboxStatusFailed, maxRetries, s.now()).
		Updates(map[string]interface{}{
			"status":       models.OutboxStatusPending,
			"processed_at": nil,
			"updated_at":   s.now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to requeue events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RecoverStuck returns events left in processing by a crashed consumer to pending
func (s *GormStore) RecoverStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("status = ? AND updated_at < ?", models.OutboxStatusProcessing, now.Add(-olderThan)).
		Updates(map[string]interface{}{
			"status":     models.OutboxStatusPending,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to recover stuck events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) terminalOlderThan(ctx context.Context, olderThan time.Duration) *gorm.DB {
	cutoff := s.now().Add(-olderThan)
	return s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]models.OutboxStatus{models.OutboxStatusCompleted, models.OutboxStatusFailed}, cutoff)
}

// CountTerminal counts events PurgeTerminal would delete
func (s *GormStore) CountTerminal(ctx context.Context, olderThan time.Duration) (int64, error) {
	var count int64
	if err := s.terminalOlderThan(ctx, olderThan).Model(&models.OutboxEvent{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count terminal events: %w", err)
	}
	return count, nil
}

// PurgeTerminal deletes completed and failed events untouched for olderThan.
// Pending and processing events are never deleted.
func (s *GormStore) PurgeTerminal(ctx context.Context, olderThan time.Duration) (int64, error) {
	res := s.terminalOlderThan(ctx, olderThan).Delete(&models.OutboxEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge terminal events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

type statusCount struct {
	Status models.OutboxStatus
	Count  int64
}

func (s *GormStore) Stats(ctx context.Context) (*Stats, error) {
	var rows []statusCount
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.OutboxEvent{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load outbox stats: %w", err)
	}

	stats := &Stats{}
	for _, r := range rows {
		switch r.Status {
		case models.OutboxStatusPending:
			stats.Pending = r.Count
		case models.OutboxStatusProcessing:
			stats.Processing = r.Count
		case models.OutboxStatusCompleted:
			stats.Completed = r.Count
		case models.OutboxStatusFailed:
			stats.Failed = r.Count
		}
	}

	if stats.Pending > 0 {
		var oldest models.OutboxEvent
		err := db.Select("created_at").Where("status = ?", models.OutboxStatusPending).
			Order("created_at ASC").Take(&oldest).Error
		if err == nil {
			stats.OldestPending = &oldest.CreatedAt
		}
	}
	return stats, nil
}
