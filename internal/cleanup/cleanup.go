package cleanup

import (
	"context"
	"fmt"
	"time"

	"classifieds-marketplace/internal/idempotency"
	"classifieds-marketplace/internal/outbox"

	"github.com/rs/zerolog/log"
)

// Service physically deletes terminal outbox events and expired idempotency records
type Service struct {
	outbox outbox.Store
	idem   idempotency.Store
}

// NewService creates a new cleanup service
func NewService(events outbox.Store, idem idempotency.Store) *Service {
	return &Service{outbox: events, idem: idem}
}

// CleanupConfig holds configuration for cleanup operations
type CleanupConfig struct {
	RetentionDays    int   // Days to keep completed/failed events before deletion
	MaxDeletionCount int64 // Abort when more events than this would be deleted
	DryRun           bool  // Count only, delete nothing
}

// DefaultCleanupConfig returns default configuration
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		RetentionDays:    7,
		MaxDeletionCount: 100000,
	}
}

// CleanupResult holds the result of a cleanup operation
type CleanupResult struct {
	TargetCount        int64     `json:"target_count"`
	DeletedEvents      int64     `json:"deleted_events"`
	DeletedIdempotency int64     `json:"deleted_idempotency_records"`
	DryRun             bool      `json:"dry_run"`
	ExecutedAt         time.Time `json:"executed_at"`
	Errors             []string  `json:"errors,omitempty"`
}

// Run purges terminal events older than the retention window and expired
// idempotency records. Pending and processing events are never touched.
func (s *Service) Run(ctx context.Context, cfg CleanupConfig) (*CleanupResult, error) {
	if cfg.RetentionDays < 1 {
		return nil, fmt.Errorf("retention must be at least one day, got %d", cfg.RetentionDays)
	}
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	logger := log.With().Str("component", "cleanup").Bool("dry_run", cfg.DryRun).Logger()

	result := &CleanupResult{
		DryRun:     cfg.DryRun,
		ExecutedAt: time.Now().UTC(),
	}

	target, err := s.outbox.CountTerminal(ctx, retention)
	if err != nil {
		return nil, err
	}
	result.TargetCount = target

	if cfg.MaxDeletionCount > 0 && target > cfg.MaxDeletionCount {
		return nil, fmt.Errorf("safety check failed: %d events exceed max deletion limit of %d",
			target, cfg.MaxDeletionCount)
	}

	if cfg.DryRun {
		logger.Info().Int64("target", target).Int("retention_days", cfg.RetentionDays).Msg("would purge terminal events")
		return result, nil
	}

	if target > 0 {
		deleted, err := s.outbox.PurgeTerminal(ctx, retention)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			logger.Error().Err(err).Msg("outbox purge failed")
		}
		result.DeletedEvents = deleted
	}

	purged, err := s.idem.PurgeExpired(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		logger.Error().Err(err).Msg("idempotency purge failed")
	}
	result.DeletedIdempotency = purged

	logger.Info().
		Int64("deleted_events", result.DeletedEvents).
		Int64("deleted_idempotency", result.DeletedIdempotency).
		Int("errors", len(result.Errors)).
		Msg("cleanup completed")
	return result, nil
}
