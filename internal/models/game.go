package models

import "time"

// Game is one round played by a lobby. A lobby accumulates games over time.
type Game struct {
	ID          uint      `gorm:"primaryKey"`
	LobbyID     uint      `gorm:"not null;index"`
	CurrentTurn int       `gorm:"not null;default:0"`
	IsFinished  bool      `gorm:"not null;default:false"`
	WinnerID    *uint     `gorm:"index"`
	CreatedAt   time.Time `gorm:"not null;index"`

	Winner       *User             `gorm:"foreignKey:WinnerID;constraint:OnDelete:SET NULL"`
	Participants []GameParticipant `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`
}

// GameParticipant records a lobby member present when the game started.
// The primary key is a composite of (GameID, UserID).
type GameParticipant struct {
	GameID uint `gorm:"primaryKey"`
	UserID uint `gorm:"primaryKey"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
