package model

import "time"

// User is a dashboard operator account.
type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string `gorm:"size:64;uniqueIndex;not null"`
	Email        string `gorm:"size:128;index"`
	DisplayName  string `gorm:"size:128"`
	PasswordHash string `gorm:"size:255;not null"`
	Role         string `gorm:"size:32;not null"`
	Locked       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
