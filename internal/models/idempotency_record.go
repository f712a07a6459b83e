package models

import (
	"time"

	"gorm.io/datatypes"
)

// IdempotencyRecord maps a client-supplied key to the first response produced under it
type IdempotencyRecord struct {
	Key         string         `gorm:"column:idempotency_key;type:varchar(128);primaryKey" json:"key"`
	Status      string         `gorm:"type:varchar(20);not null" json:"status"`
	Response    datatypes.JSON `gorm:"type:text" json:"response,omitempty"`
	ExpiresAt   time.Time      `gorm:"not null;index" json:"expiresAt"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// TableName specifies the table name
func (IdempotencyRecord) TableName() string {
	return "idempotency_records"
}

const (
	IdempotencyStatusInProgress = "in_progress"
	IdempotencyStatusCompleted  = "completed"
)

// IsExpired reports whether the record no longer guards its key
func (r *IdempotencyRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
