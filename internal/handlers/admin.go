package handlers

import (
	"errors"
	"net/http"

	"classifieds-marketplace/internal/ads"
	"classifieds-marketplace/internal/cleanup"
	"classifieds-marketplace/internal/ratelimit"
	"classifieds-marketplace/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// AdminHandler serves the maintenance endpoints
type AdminHandler struct {
	relay         *scheduler.OutboxRelay
	cleanup       *cleanup.Service
	svc           *ads.Service
	limiter       *ratelimit.KeyedLimiter
	retentionDays int
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(relay *scheduler.OutboxRelay, cleanupSvc *cleanup.Service, svc *ads.Service, limiter *ratelimit.KeyedLimiter, retentionDays int) *AdminHandler {
	return &AdminHandler{
		relay:         relay,
		cleanup:       cleanupSvc,
		svc:           svc,
		limiter:       limiter,
		retentionDays: retentionDays,
	}
}

// GetOutboxStats returns outbox counts by status and the relay state
func (h *AdminHandler) GetOutboxStats(c *gin.Context) {
	stats, err := h.relay.GetQueueStats(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("component", "admin").Msg("failed to load outbox stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// RunCleanup purges old terminal outbox events and expired idempotency records
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	var req struct {
		RetentionDays    int   `json:"retention_days"`
		MaxDeletionCount int64 `json:"max_deletion_count"`
		DryRun           bool  `json:"dry_run"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	config := cleanup.DefaultCleanupConfig()
	if h.retentionDays > 0 {
		config.RetentionDays = h.retentionDays
	}
	if req.RetentionDays > 0 {
		config.RetentionDays = req.RetentionDays
	}
	if req.MaxDeletionCount > 0 {
		config.MaxDeletionCount = req.MaxDeletionCount
	}
	config.DryRun = req.DryRun

	log.Info().Str("component", "admin").
		Int("retention_days", config.RetentionDays).
		Bool("dry_run", config.DryRun).
		Msg("running cleanup")

	result, err := h.cleanup.Run(c.Request.Context(), config)
	if err != nil {
		log.Error().Err(err).Str("component", "admin").Msg("cleanup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// InvalidateAdCache drops every cached detail view of one ad
func (h *AdminHandler) InvalidateAdCache(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.InvalidateAd(c.Request.Context(), id); err != nil {
		if errors.Is(err, ads.ErrInvalidID) {
			writeError(c, err)
			return
		}
		log.Error().Err(err).Str("component", "admin").Str("ad_id", id).Msg("cache invalidation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invalidated": id})
}

// GetRateLimitStats returns the create limiter state
func (h *AdminHandler) GetRateLimitStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.limiter.GetStats())
}
