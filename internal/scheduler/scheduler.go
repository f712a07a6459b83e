package scheduler

import (
	"context"
	"fmt"
	"time"

	"classifieds-marketplace/internal/cleanup"
	"classifieds-marketplace/internal/config"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler runs the daily maintenance sweep
type Scheduler struct {
	cron      *cron.Cron
	cleanup   *cleanup.Service
	config    *config.Config
	isRunning bool
}

// NewScheduler creates a new scheduler
func NewScheduler(svc *cleanup.Service, cfg *config.Config) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		cleanup: svc,
		config:  cfg,
	}
}

// Start registers the daily sweep and starts cron
func (s *Scheduler) Start() error {
	if !s.config.Cleanup.Enabled {
		log.Info().Str("component", "scheduler").Msg("daily cleanup is disabled in configuration")
		return nil
	}

	cronSpec := s.parseDailyRunTime(s.config.Cleanup.DailyRun)

	_, err := s.cron.AddFunc(cronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := s.RunNow(ctx, false); err != nil {
			log.Error().Err(err).Str("component", "scheduler").Msg("daily cleanup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}

	s.cron.Start()
	s.isRunning = true
	log.Info().Str("component", "scheduler").
		Str("daily_run", s.config.Cleanup.DailyRun).
		Str("cron", cronSpec).
		Msg("started")

	return nil
}

// Stop stops the scheduler and waits for a running sweep
func (s *Scheduler) Stop() {
	if s.isRunning {
		<-s.cron.Stop().Done()
		s.isRunning = false
		log.Info().Str("component", "scheduler").Msg("stopped")
	}
}

// RunNow executes the sweep immediately (manual trigger)
func (s *Scheduler) RunNow(ctx context.Context, dryRun bool) (*cleanup.CleanupResult, error) {
	cfg := cleanup.DefaultCleanupConfig()
	if s.config.Outbox.RetentionDays > 0 {
		cfg.RetentionDays = s.config.Outbox.RetentionDays
	}
	cfg.DryRun = dryRun
	return s.cleanup.Run(ctx, cfg)
}

// parseDailyRunTime converts HH:MM format to cron specification
// Example: "03:00" -> "0 3 * * *"
func (s *Scheduler) parseDailyRunTime(timeStr string) string {
	var hour, minute int
	n, _ := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute)
	if n == 2 && hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}

	log.Warn().Str("component", "scheduler").Str("value", timeStr).Msg("failed to parse daily run time, using 03:00")
	return "0 3 * * *"
}
