package model

import "time"

// AuthAudit is one authentication event.
type AuthAudit struct {
	ID         int64     `gorm:"primaryKey"`
	UserID     string    `gorm:"size:36;index"`
	Identifier string    `gorm:"size:128"`
	Event      string    `gorm:"size:32;index"`
	Reason     string    `gorm:"size:64"`
	TraceID    string    `gorm:"size:64;index"`
	IP         string    `gorm:"size:45"`
	CreatedAt  time.Time `gorm:"index"`
}
