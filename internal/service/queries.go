package service

import (
	"context"
	"errors"
	"fmt"

	"gamelobby/backend/internal/models"
	"gamelobby/backend/internal/store"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// ListLobbiesParams pages through lobbies. Page starts at 1.
type ListLobbiesParams struct {
	Page     int
	Limit    int
	OpenOnly bool
}

// Consistency rules reported by CheckConsistency.
const (
	RuleOccupancyCount = "occupancy_count"
	RuleCapacity       = "capacity"
	RuleCreatorMember  = "creator_member"
)

// Violation is a broken invariant found by CheckConsistency.
type Violation struct {
	LobbyID uint   `json:"lobby_id"`
	Rule    string `json:"rule"`
	Detail  string `json:"detail"`
}

// GetLobby returns a lobby with its creator and members.
func (s *Service) GetLobby(ctx context.Context, lobbyID uint) (*models.Lobby, error) {
	lobby, err := s.store.FindLobbyWithPlayers(ctx, lobbyID)
	if err != nil {
		return nil, notFound(err, "lobby", lobbyID)
	}
	return lobby, nil
}

// GetPlayer returns the player record of userID.
func (s *Service) GetPlayer(ctx context.Context, userID uint) (*models.Player, error) {
	player, err := s.store.FindPlayerByUserID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user", userID)
	}
	return player, nil
}

// Normalize clamps the page to at least 1 and the limit to 1..100.
func (p ListLobbiesParams) Normalize() ListLobbiesParams {
	p.Page = max(p.Page, 1)
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	p.Limit = min(p.Limit, maxPageLimit)
	return p
}

// ListActiveLobbies returns one page of active lobbies without a running
// game, newest first, and the total number of matching lobbies.
func (s *Service) ListActiveLobbies(ctx context.Context, params ListLobbiesParams) ([]models.Lobby, int64, error) {
	params = params.Normalize()
	return s.store.ListLobbies(ctx, store.LobbyFilter{
		ActiveOnly:   true,
		IdleOnly:     true,
		JoinableOnly: params.OpenOnly,
		Offset:       (params.Page - 1) * params.Limit,
		Limit:        params.Limit,
	})
}

// GetGame returns a game with its participants.
func (s *Service) GetGame(ctx context.Context, gameID uint) (*models.Game, error) {
	game, err := s.store.FindGameByID(ctx, gameID)
	if err != nil {
		return nil, notFound(err, "game", gameID)
	}
	return game, nil
}

// ListLobbyGames returns the games played in a lobby, newest first.
func (s *Service) ListLobbyGames(ctx context.Context, lobbyID uint) ([]models.Game, error) {
	if _, err := s.store.FindLobbyByID(ctx, lobbyID); err != nil {
		return nil, notFound(err, "lobby", lobbyID)
	}
	return s.store.ListGamesByLobby(ctx, lobbyID)
}

// CheckConsistency compares the occupancy counters with actual membership
// and returns every broken rule. An empty result means the store is
// consistent.
func (s *Service) CheckConsistency(ctx context.Context) ([]Violation, error) {
	var violations []Violation

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		violations = violations[:0]

		occupancy, err := tx.LobbyOccupancy(ctx)
		if err != nil {
			return err
		}

		for _, o := range occupancy {
			lobby := o.Lobby
			if int64(lobby.CurrentPlayers) != o.Members {
				violations = append(violations, Violation{
					LobbyID: lobby.ID,
					Rule:    RuleOccupancyCount,
					Detail:  fmt.Sprintf("current_players is %d but %d players reference the lobby", lobby.CurrentPlayers, o.Members),
				})
			}
			if lobby.CurrentPlayers < 0 || lobby.CurrentPlayers > lobby.MaxPlayers {
				violations = append(violations, Violation{
					LobbyID: lobby.ID,
					Rule:    RuleCapacity,
					Detail:  fmt.Sprintf("current_players %d outside 0..%d", lobby.CurrentPlayers, lobby.MaxPlayers),
				})
			}
			if !lobby.IsActive || o.Members == 0 {
				continue
			}

			creator, err := tx.FindPlayerByUserID(ctx, lobby.CreatorID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if creator == nil || !creator.InLobbyID(lobby.ID) {
				violations = append(violations, Violation{
					LobbyID: lobby.ID,
					Rule:    RuleCreatorMember,
					Detail:  fmt.Sprintf("creator %d is not a member", lobby.CreatorID),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return violations, nil
}
