package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gamelobby/backend/internal/lock"
	"gamelobby/backend/internal/models"
	"gamelobby/backend/internal/store"
)

// CreateLobby creates a lobby owned by creatorID and makes the creator its
// first member in the same transaction.
func (s *Service) CreateLobby(ctx context.Context, creatorID uint, name string, maxPlayers int) (lobby *models.Lobby, err error) {
	defer func(start time.Time) { s.observe("create_lobby", start, err) }(time.Now())

	name = strings.TrimSpace(name)
	if err := s.validateLobby(name, maxPlayers); err != nil {
		return nil, err
	}

	release, err := lock.Acquire(ctx, s.locker, lock.UserKey(creatorID))
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		user, err := tx.FindUserByID(ctx, creatorID)
		if err != nil {
			return notFound(err, "user", creatorID)
		}
		if err := s.checkEligible(user); err != nil {
			return err
		}

		player, err := tx.FindPlayerByUserID(ctx, creatorID)
		if err != nil {
			return notFound(err, "player", creatorID)
		}
		if player.InLobby() {
			return alreadyInLobby(creatorID, *player.LobbyID)
		}

		now := s.timestamp()
		lobby = &models.Lobby{
			Name:           name,
			CreatorID:      creatorID,
			MaxPlayers:     maxPlayers,
			CurrentPlayers: 1,
			IsActive:       true,
			CreatedAt:      now,
		}
		if err := tx.CreateLobby(ctx, lobby); err != nil {
			return err
		}

		assigned, err := tx.AssignPlayerLobby(ctx, creatorID, lobby.ID, now)
		if err != nil {
			return err
		}
		if !assigned {
			return &Error{Kind: KindAlreadyInLobby, Message: "user is already in a lobby", UserID: creatorID}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("lobby %d created by user %d (max %d players)", lobby.ID, creatorID, maxPlayers)
	s.publish(event{lobby.ID, EventLobbyCreated, map[string]any{
		"lobby_id":    lobby.ID,
		"creator_id":  creatorID,
		"name":        lobby.Name,
		"max_players": lobby.MaxPlayers,
	}})
	return lobby, nil
}

// JoinLobby adds userID to lobbyID. Exactly one of several concurrent
// callers racing for the last slot succeeds; the others get LobbyFull.
func (s *Service) JoinLobby(ctx context.Context, userID, lobbyID uint) (player *models.Player, err error) {
	defer func(start time.Time) { s.observe("join_lobby", start, err) }(time.Now())

	release, err := lock.Acquire(ctx, s.locker, lock.UserKey(userID), lock.LobbyKey(lobbyID))
	if err != nil {
		return nil, err
	}
	defer release()

	var current int
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		user, err := tx.FindUserByID(ctx, userID)
		if err != nil {
			return notFound(err, "user", userID)
		}
		if err := s.checkEligible(user); err != nil {
			return err
		}

		p, err := tx.FindPlayerByUserID(ctx, userID)
		if err != nil {
			return notFound(err, "player", userID)
		}
		if p.InLobby() {
			return alreadyInLobby(userID, *p.LobbyID)
		}

		lobby, err := tx.FindLobbyByID(ctx, lobbyID)
		if err != nil {
			return notFound(err, "lobby", lobbyID)
		}
		if err := joinRejection(lobby); err != nil {
			return err
		}

		taken, err := tx.IncrementLobbyPlayers(ctx, lobbyID)
		if err != nil {
			return err
		}
		if !taken {
			// The predicate failed at write time; report the state that caused it.
			fresh, err := tx.FindLobbyByID(ctx, lobbyID)
			if err != nil {
				return notFound(err, "lobby", lobbyID)
			}
			if err := joinRejection(fresh); err != nil {
				return err
			}
			return fullError(fresh)
		}

		now := s.timestamp()
		assigned, err := tx.AssignPlayerLobby(ctx, userID, lobbyID, now)
		if err != nil {
			return err
		}
		if !assigned {
			return &Error{Kind: KindAlreadyInLobby, Message: "user is already in a lobby", UserID: userID}
		}

		current = lobby.CurrentPlayers + 1
		player, err = tx.FindPlayerByUserID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(event{lobbyID, EventPlayerJoined, map[string]any{
		"lobby_id":        lobbyID,
		"user_id":         userID,
		"current_players": current,
	}})
	return player, nil
}

// LeaveLobby removes userID from its lobby. A creator must hand over the
// role first unless it is the last member, in which case the lobby is
// deactivated.
func (s *Service) LeaveLobby(ctx context.Context, userID uint) (err error) {
	defer func(start time.Time) { s.observe("leave_lobby", start, err) }(time.Now())

	lobbyID, release, err := s.lockMembership(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	var remaining int
	var deactivated bool
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		player, err := tx.FindPlayerByUserID(ctx, userID)
		if err != nil {
			return notFound(err, "player", userID)
		}
		if !player.InLobbyID(lobbyID) {
			return notInLobby(userID)
		}

		lobby, err := tx.FindLobbyByID(ctx, lobbyID)
		if err != nil {
			return notFound(err, "lobby", lobbyID)
		}
		if lobby.CreatorID == userID && lobby.CurrentPlayers > 1 {
			return &Error{
				Kind:    KindCreatorMustTransferFirst,
				Message: "creator must transfer the lobby before leaving",
				LobbyID: lobbyID,
				UserID:  userID,
				Current: lobby.CurrentPlayers,
				Limit:   lobby.MaxPlayers,
			}
		}

		released, err := tx.ReleasePlayerLobby(ctx, userID, lobbyID, s.timestamp())
		if err != nil {
			return err
		}
		if !released {
			return notInLobby(userID)
		}

		decremented, err := tx.DecrementLobbyPlayers(ctx, lobbyID)
		if err != nil {
			return err
		}
		if !decremented {
			return fmt.Errorf("lobby %d occupancy is already zero with user %d still a member", lobbyID, userID)
		}

		remaining = lobby.CurrentPlayers - 1
		if remaining == 0 {
			if deactivated, err = tx.DeactivateLobby(ctx, lobbyID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	events := []event{{lobbyID, EventPlayerLeft, map[string]any{
		"lobby_id":        lobbyID,
		"user_id":         userID,
		"current_players": remaining,
	}}}
	if deactivated {
		log.Printf("lobby %d deactivated after its last member left", lobbyID)
		events = append(events, event{lobbyID, EventLobbyDeactivated, map[string]any{"lobby_id": lobbyID}})
	}
	s.publish(events...)
	return nil
}

// TransferCreator hands the creator role of lobbyID to a current member.
// The previous creator stays in the lobby as a regular member.
func (s *Service) TransferCreator(ctx context.Context, lobbyID, newCreatorID uint) (err error) {
	defer func(start time.Time) { s.observe("transfer_creator", start, err) }(time.Now())

	release, err := lock.Acquire(ctx, s.locker, lock.LobbyKey(lobbyID))
	if err != nil {
		return err
	}
	defer release()

	var previous uint
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		lobby, err := tx.FindLobbyByID(ctx, lobbyID)
		if err != nil {
			return notFound(err, "lobby", lobbyID)
		}
		previous = lobby.CreatorID

		player, err := tx.FindPlayerByUserID(ctx, newCreatorID)
		if err != nil {
			return notFound(err, "user", newCreatorID)
		}
		if !player.InLobbyID(lobbyID) {
			return &Error{
				Kind:    KindNotInLobby,
				Message: "new creator is not a member of the lobby",
				LobbyID: lobbyID,
				UserID:  newCreatorID,
			}
		}
		if lobby.CreatorID == newCreatorID {
			return nil
		}

		updated, err := tx.SetLobbyCreator(ctx, lobbyID, newCreatorID)
		if err != nil {
			return err
		}
		if !updated {
			return notFound(store.ErrNotFound, "lobby", lobbyID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if previous == newCreatorID {
		return nil
	}

	log.Printf("lobby %d creator transferred from user %d to user %d", lobbyID, previous, newCreatorID)
	s.publish(event{lobbyID, EventCreatorTransferred, map[string]any{
		"lobby_id":    lobbyID,
		"previous_id": previous,
		"creator_id":  newCreatorID,
	}})
	return nil
}

// SetReady sets the readiness flag of userID in its current lobby.
func (s *Service) SetReady(ctx context.Context, userID uint, ready bool) (err error) {
	defer func(start time.Time) { s.observe("set_ready", start, err) }(time.Now())

	lobbyID, release, err := s.lockMembership(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	updated, err := s.store.SetPlayerReady(ctx, userID, lobbyID, ready)
	if err != nil {
		return err
	}
	if !updated {
		return notInLobby(userID)
	}

	s.publish(event{lobbyID, EventPlayerReady, map[string]any{
		"lobby_id": lobbyID,
		"user_id":  userID,
		"is_ready": ready,
	}})
	return nil
}

// DeleteLobby destroys a lobby: members are released and its games removed.
func (s *Service) DeleteLobby(ctx context.Context, lobbyID uint) (err error) {
	defer func(start time.Time) { s.observe("delete_lobby", start, err) }(time.Now())

	release, err := lock.Acquire(ctx, s.locker, lock.LobbyKey(lobbyID))
	if err != nil {
		return err
	}
	defer release()

	if err := s.store.DeleteLobby(ctx, lobbyID); err != nil {
		return notFound(err, "lobby", lobbyID)
	}

	log.Printf("lobby %d deleted", lobbyID)
	s.publish(event{lobbyID, EventLobbyDeleted, map[string]any{"lobby_id": lobbyID}})
	return nil
}

// RequireCreator fails with NotCreator unless userID created lobbyID.
func (s *Service) RequireCreator(ctx context.Context, lobbyID, userID uint) error {
	lobby, err := s.store.FindLobbyByID(ctx, lobbyID)
	if err != nil {
		return notFound(err, "lobby", lobbyID)
	}
	if lobby.CreatorID != userID {
		return &Error{Kind: KindNotCreator, Message: "only the lobby creator can do this", LobbyID: lobbyID, UserID: userID}
	}
	return nil
}

// lockMembership takes the user lock, finds the user's lobby and takes its
// lock too. The lobby reference is re-read by callers inside their
// transaction.
func (s *Service) lockMembership(ctx context.Context, userID uint) (uint, func(), error) {
	releaseUser, err := lock.Acquire(ctx, s.locker, lock.UserKey(userID))
	if err != nil {
		return 0, nil, err
	}

	player, err := s.store.FindPlayerByUserID(ctx, userID)
	if err != nil {
		releaseUser()
		return 0, nil, notFound(err, "user", userID)
	}
	if !player.InLobby() {
		releaseUser()
		return 0, nil, notInLobby(userID)
	}
	lobbyID := *player.LobbyID

	releaseLobby, err := lock.Acquire(ctx, s.locker, lock.LobbyKey(lobbyID))
	if err != nil {
		releaseUser()
		return 0, nil, err
	}

	return lobbyID, func() {
		releaseLobby()
		releaseUser()
	}, nil
}

func (s *Service) validateLobby(name string, maxPlayers int) error {
	if name == "" {
		return &Error{Kind: KindInvalidArgument, Message: "lobby name is required"}
	}
	if len([]rune(name)) > maxLobbyNameLength {
		return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf("lobby name must be at most %d characters", maxLobbyNameLength)}
	}
	if maxPlayers < 1 || maxPlayers > s.cfg.MaxLobbySize {
		return &Error{
			Kind:    KindInvalidArgument,
			Message: fmt.Sprintf("max players must be between 1 and %d", s.cfg.MaxLobbySize),
			Current: maxPlayers,
			Limit:   s.cfg.MaxLobbySize,
		}
	}
	return nil
}

// joinRejection explains why a lobby does not accept new members, or
// returns nil when it does.
func joinRejection(lobby *models.Lobby) error {
	switch {
	case !lobby.IsActive:
		return &Error{Kind: KindLobbyNotJoinable, Message: "lobby is not active", LobbyID: lobby.ID}
	case lobby.IsGameStarted:
		return &Error{Kind: KindLobbyNotJoinable, Message: "game already started", LobbyID: lobby.ID}
	case lobby.IsFull():
		return fullError(lobby)
	}
	return nil
}

func fullError(lobby *models.Lobby) error {
	return &Error{
		Kind:    KindLobbyFull,
		Message: "lobby is full",
		LobbyID: lobby.ID,
		Current: lobby.CurrentPlayers,
		Limit:   lobby.MaxPlayers,
	}
}

func alreadyInLobby(userID, lobbyID uint) error {
	return &Error{Kind: KindAlreadyInLobby, Message: "user is already in a lobby", UserID: userID, LobbyID: lobbyID}
}

func notInLobby(userID uint) error {
	return &Error{Kind: KindNotInLobby, Message: "user is not in a lobby", UserID: userID}
}
