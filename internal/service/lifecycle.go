package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"gamelobby/backend/internal/lock"
	"gamelobby/backend/internal/models"
	"gamelobby/backend/internal/store"
)

// FinishOption adjusts FinishGame.
type FinishOption func(*finishOptions)

type finishOptions struct {
	allowRefinish bool
}

// AllowRefinish makes finishing an already finished game a no-op that
// returns the stored game instead of failing with GameFinished.
func AllowRefinish() FinishOption {
	return func(o *finishOptions) { o.allowRefinish = true }
}

// StartGame moves an idle lobby into a new game once enough members are
// present and all of them are ready.
func (s *Service) StartGame(ctx context.Context, lobbyID uint) (game *models.Game, err error) {
	defer func(start time.Time) { s.observe("start_game", start, err) }(time.Now())

	release, err := lock.Acquire(ctx, s.locker, lock.LobbyKey(lobbyID))
	if err != nil {
		return nil, err
	}
	defer release()

	var participants []uint
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		lobby, err := tx.FindLobbyByID(ctx, lobbyID)
		if err != nil {
			return notFound(err, "lobby", lobbyID)
		}
		if lobby.IsGameStarted {
			return &Error{Kind: KindAlreadyStarted, Message: "game already started", LobbyID: lobbyID}
		}

		members, err := tx.ListPlayersByLobby(ctx, lobbyID)
		if err != nil {
			return err
		}

		ready := 0
		participants = make([]uint, 0, len(members))
		for _, member := range members {
			if member.IsReady {
				ready++
			}
			participants = append(participants, member.UserID)
		}

		if len(members) < s.cfg.MinPlayersToStart || ready < len(members) {
			return &Error{
				Kind: KindNotEnoughPlayers,
				Message: fmt.Sprintf("%d of %d members ready, at least %d ready members required",
					ready, len(members), s.cfg.MinPlayersToStart),
				LobbyID: lobbyID,
				Current: ready,
				Limit:   max(s.cfg.MinPlayersToStart, len(members)),
			}
		}

		started, err := tx.SetLobbyGameStarted(ctx, lobbyID, true)
		if err != nil {
			return err
		}
		if !started {
			return &Error{Kind: KindAlreadyStarted, Message: "game already started", LobbyID: lobbyID}
		}

		created := &models.Game{LobbyID: lobbyID, CreatedAt: s.timestamp()}
		if err := tx.CreateGame(ctx, created, participants); err != nil {
			return err
		}

		game, err = tx.FindGameByID(ctx, created.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("lobby %d started game %d with %d players", lobbyID, game.ID, len(participants))
	s.publish(event{lobbyID, EventGameStarted, map[string]any{
		"lobby_id":     lobbyID,
		"game_id":      game.ID,
		"participants": participants,
	}})
	return game, nil
}

// AdvanceTurn increments the turn counter of an unfinished game.
func (s *Service) AdvanceTurn(ctx context.Context, gameID uint) (game *models.Game, err error) {
	defer func(start time.Time) { s.observe("advance_turn", start, err) }(time.Now())

	advanced, err := s.store.AdvanceGameTurn(ctx, gameID)
	if err != nil {
		return nil, err
	}

	game, err = s.store.FindGameByID(ctx, gameID)
	if err != nil {
		return nil, notFound(err, "game", gameID)
	}
	if !advanced {
		return nil, gameFinished(game)
	}

	s.publish(event{game.LobbyID, EventTurnAdvanced, map[string]any{
		"lobby_id":     game.LobbyID,
		"game_id":      game.ID,
		"current_turn": game.CurrentTurn,
	}})
	return game, nil
}

// FinishGame ends a game, records the winner and returns the lobby to idle
// so a new round can start.
//
// The winner must be one of the members snapshotted when the game started.
// A member who has left since then still qualifies. A user who was in the
// lobby only before StartGame, or joined after it, is rejected with
// WinnerNotParticipant.
func (s *Service) FinishGame(ctx context.Context, gameID uint, winnerID *uint, opts ...FinishOption) (game *models.Game, err error) {
	defer func(start time.Time) { s.observe("finish_game", start, err) }(time.Now())

	var o finishOptions
	for _, opt := range opts {
		opt(&o)
	}

	existing, err := s.store.FindGameByID(ctx, gameID)
	if err != nil {
		return nil, notFound(err, "game", gameID)
	}
	lobbyID := existing.LobbyID

	release, err := lock.Acquire(ctx, s.locker, lock.LobbyKey(lobbyID))
	if err != nil {
		return nil, err
	}
	defer release()

	var refinished bool
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		current, err := tx.FindGameByID(ctx, gameID)
		if err != nil {
			return notFound(err, "game", gameID)
		}
		if current.IsFinished {
			if o.allowRefinish {
				game, refinished = current, true
				return nil
			}
			return gameFinished(current)
		}

		if winnerID != nil {
			participant, err := tx.IsGameParticipant(ctx, gameID, *winnerID)
			if err != nil {
				return err
			}
			if !participant {
				return &Error{
					Kind:    KindWinnerNotParticipant,
					Message: "winner did not take part in the game",
					LobbyID: lobbyID,
					GameID:  gameID,
					UserID:  *winnerID,
				}
			}
		}

		finished, err := tx.FinishGame(ctx, gameID, winnerID)
		if err != nil {
			return err
		}
		if !finished {
			return gameFinished(current)
		}

		if _, err := tx.SetLobbyGameStarted(ctx, lobbyID, false); err != nil {
			return err
		}

		game, err = tx.FindGameByID(ctx, gameID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if refinished {
		return game, nil
	}

	log.Printf("game %d in lobby %d finished", gameID, lobbyID)
	s.publish(event{lobbyID, EventGameFinished, map[string]any{
		"lobby_id":  lobbyID,
		"game_id":   gameID,
		"winner_id": winnerID,
	}})
	return game, nil
}

func gameFinished(game *models.Game) error {
	return &Error{Kind: KindGameFinished, Message: "game is already finished", GameID: game.ID, LobbyID: game.LobbyID}
}
