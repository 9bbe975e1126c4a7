package models

import "time"

// User represents a registered user in the system.
type User struct {
	ID           uint      `gorm:"primaryKey"`
	Username     string    `gorm:"size:50;uniqueIndex;not null"`
	Email        string    `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	IsActive     bool      `gorm:"not null;default:true"`
	IsOnline     bool      `gorm:"not null;default:false;index"`
	IsStaff      bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"not null"`
	LastSeen     time.Time `gorm:"not null"`

	// Every user owns exactly one player record, created together with the user.
	Player *Player `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
