// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency records the message produced by a client-keyed submission,
// keyed by (user_id, key). A retried sendMessage carrying the same client
// message id is answered from this record instead of persisting again.
type Idempotency struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	UserID    int64     `gorm:"not null;uniqueIndex:ux_user_key,priority:1"`
	Key       string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_key,priority:2"`
	MessageID int64     `gorm:"not null"`
	RoomID    int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
