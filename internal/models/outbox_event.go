package models

import (
	"time"

	"gorm.io/datatypes"
)

// OutboxEvent is a post-commit event waiting for a downstream consumer.
// Consumers move it pending -> processing -> completed|failed; rows are only
// purged once terminal.
type OutboxEvent struct {
	ID            string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	EventName     string         `gorm:"type:varchar(100);not null;index" json:"eventName"`
	AggregateID   string         `gorm:"type:varchar(36);not null;index" json:"aggregateId"`
	Payload       datatypes.JSON `json:"payload"`
	Status        OutboxStatus   `gorm:"type:varchar(20);not null;index:idx_outbox_status_created" json:"status"`
	RetryCount    int            `gorm:"not null" json:"retryCount"`
	LastError     string         `gorm:"type:text" json:"lastError,omitempty"`
	NextAttemptAt *time.Time     `gorm:"index" json:"nextAttemptAt,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;index:idx_outbox_status_created,priority:2" json:"createdAt"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	ProcessedAt   *time.Time     `gorm:"index" json:"processedAt,omitempty"`
}

// TableName specifies the table name for GORM
func (OutboxEvent) TableName() string {
	return "outbox_events"
}

// OutboxStatus is the consumer-owned state of an event
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// IsTerminal reports whether the event may be purged
func (s OutboxStatus) IsTerminal() bool {
	return s == OutboxStatusCompleted || s == OutboxStatusFailed
}

// EventAdCreated is emitted once per committed ad
const EventAdCreated = "ad.created"

// GetNextRetryDelay calculates exponential backoff for retries
func GetNextRetryDelay(attempts int) time.Duration {
	// 1min, 5min, 15min, 1h, 4h
	delays := []time.Duration{
		1 * time.Minute,
		5 * time.Minute,
		15 * time.Minute,
		1 * time.Hour,
		4 * time.Hour,
	}

	if attempts < 0 {
		attempts = 0
	}
	if attempts >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[attempts]
}

// AdCreatedPayload is the body of an ad.created event
type AdCreatedPayload struct {
	AdID      string    `json:"adId"`
	Category  Category  `json:"category"`
	OwnerID   string    `json:"ownerId"`
	OwnerType OwnerType `json:"ownerType"`
}
