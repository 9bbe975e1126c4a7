package models

import "time"

// Lobby represents a pre-game waiting room with bounded capacity.
type Lobby struct {
	ID             uint      `gorm:"primaryKey"`
	Name           string    `gorm:"size:100;not null"`
	CreatorID      uint      `gorm:"not null;index"`
	MaxPlayers     int       `gorm:"not null;default:2;check:chk_lobbies_max_players,max_players >= 1"`
	CurrentPlayers int       `gorm:"not null;default:0;check:chk_lobbies_current_players,current_players >= 0 AND current_players <= max_players"`
	IsActive       bool      `gorm:"not null;default:true;index"`
	IsGameStarted  bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"not null;index"`

	Creator *User    `gorm:"foreignKey:CreatorID;constraint:OnDelete:CASCADE"`
	Players []Player `gorm:"foreignKey:LobbyID;constraint:OnDelete:SET NULL"`
	Games   []Game   `gorm:"foreignKey:LobbyID;constraint:OnDelete:CASCADE"`
}

// IsFull reports whether every slot is taken.
func (l *Lobby) IsFull() bool {
	return l.CurrentPlayers >= l.MaxPlayers
}

// Joinable reports whether new members may enter the lobby.
func (l *Lobby) Joinable() bool {
	return l.IsActive && !l.IsGameStarted
}
