package models

import "time"

// Player is the per-user membership record. A nil LobbyID means the
// player is not currently in a lobby.
type Player struct {
	ID       uint      `gorm:"primaryKey"`
	UserID   uint      `gorm:"not null;uniqueIndex"`
	LobbyID  *uint     `gorm:"index"`
	IsReady  bool      `gorm:"not null;default:false"`
	JoinedAt time.Time `gorm:"not null"`

	User *User `gorm:"foreignKey:UserID"`
}

// InLobby reports whether the player currently references a lobby.
func (p *Player) InLobby() bool {
	return p.LobbyID != nil
}

// InLobbyID reports whether the player is a member of the given lobby.
func (p *Player) InLobbyID(lobbyID uint) bool {
	return p.LobbyID != nil && *p.LobbyID == lobbyID
}
