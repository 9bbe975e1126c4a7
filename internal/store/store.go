// Package store provides the entity store for users, players, lobbies and games.
package store

import (
	"context"
	"time"

	"gamelobby/backend/internal/models"
)

// LobbyFilter narrows ListLobbies.
type LobbyFilter struct {
	ActiveOnly bool
	// IdleOnly drops lobbies with a game in progress.
	IdleOnly bool
	// JoinableOnly keeps lobbies that are active, not in a game and have a free slot.
	JoinableOnly bool
	Offset       int
	Limit        int
}

// Occupancy pairs a lobby with the number of players that reference it.
type Occupancy struct {
	Lobby   models.Lobby
	Members int64
}

// Store is the set of atomic primitives the lobby engine relies on.
//
// Conditional updates report whether a row matched their predicate; a false
// result with a nil error means the predicate did not hold at write time.
type Store interface {
	// Transaction runs fn as one atomic unit. The Store passed to fn is bound
	// to the transaction; returning an error rolls everything back.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	CreateUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id uint) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByLogin(ctx context.Context, login string) (*models.User, error)
	UpdatePresence(ctx context.Context, userID uint, online bool, seen time.Time) (bool, error)
	MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteUser(ctx context.Context, id uint) error

	CreatePlayer(ctx context.Context, player *models.Player) error
	FindPlayerByUserID(ctx context.Context, userID uint) (*models.Player, error)
	ListPlayersByLobby(ctx context.Context, lobbyID uint) ([]models.Player, error)
	AssignPlayerLobby(ctx context.Context, userID, lobbyID uint, at time.Time) (bool, error)
	ReleasePlayerLobby(ctx context.Context, userID, lobbyID uint, at time.Time) (bool, error)
	SetPlayerReady(ctx context.Context, userID, lobbyID uint, ready bool) (bool, error)

	CreateLobby(ctx context.Context, lobby *models.Lobby) error
	FindLobbyByID(ctx context.Context, id uint) (*models.Lobby, error)
	FindLobbyWithPlayers(ctx context.Context, id uint) (*models.Lobby, error)
	ListLobbies(ctx context.Context, filter LobbyFilter) ([]models.Lobby, int64, error)
	ListLobbyIDsByCreator(ctx context.Context, creatorID uint) ([]uint, error)
	LobbyOccupancy(ctx context.Context) ([]Occupancy, error)
	IncrementLobbyPlayers(ctx context.Context, id uint) (bool, error)
	DecrementLobbyPlayers(ctx context.Context, id uint) (bool, error)
	SetLobbyCreator(ctx context.Context, id, creatorID uint) (bool, error)
	DeactivateLobby(ctx context.Context, id uint) (bool, error)
	SetLobbyGameStarted(ctx context.Context, id uint, started bool) (bool, error)
	DeleteLobby(ctx context.Context, id uint) error

	CreateGame(ctx context.Context, game *models.Game, participantIDs []uint) error
	FindGameByID(ctx context.Context, id uint) (*models.Game, error)
	ListGamesByLobby(ctx context.Context, lobbyID uint) ([]models.Game, error)
	IsGameParticipant(ctx context.Context, gameID, userID uint) (bool, error)
	AdvanceGameTurn(ctx context.Context, id uint) (bool, error)
	FinishGame(ctx context.Context, id uint, winnerID *uint) (bool, error)
}
