package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"sort"
	"strings"
	"time"

	"gamelobby/backend/internal/lock"
	"gamelobby/backend/internal/models"
	"gamelobby/backend/internal/store"

	"golang.org/x/crypto/bcrypt"
)

const (
	maxUsernameLength = 50
	maxEmailLength    = 100
	minPasswordLength = 8
)

// RegisterUser creates a user and its player record in one transaction.
func (s *Service) RegisterUser(ctx context.Context, username, email, password string) (user *models.User, err error) {
	defer func(start time.Time) { s.observe("register_user", start, err) }(time.Now())

	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateRegistration(username, email, password); err != nil {
		return nil, err
	}

	if _, err := s.store.FindUserByUsername(ctx, username); err == nil {
		return nil, &Error{Kind: KindConstraintViolation, Message: "username already exists"}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if _, err := s.store.FindUserByEmail(ctx, email); err == nil {
		return nil, &Error{Kind: KindConstraintViolation, Message: "email already exists"}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.timestamp()
	user = &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		IsActive:     true,
		CreatedAt:    now,
		LastSeen:     now,
	}

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		return tx.CreatePlayer(ctx, &models.Player{UserID: user.ID, JoinedAt: now})
	})
	if errors.Is(err, store.ErrDuplicateKey) {
		// Lost a race with a concurrent registration.
		return nil, &Error{Kind: KindConstraintViolation, Message: "username or email already exists"}
	}
	if err != nil {
		return nil, err
	}

	log.Printf("user %d registered as %q", user.ID, user.Username)
	return user, nil
}

// Authenticate checks a username or email against the stored password hash.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	user, err := s.store.FindUserByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, store.ErrNotFound) {
		return nil, &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
	}
	if !user.IsActive {
		return nil, &Error{Kind: KindUserNotEligible, Message: "user is inactive", UserID: user.ID}
	}
	return user, nil
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user", userID)
	}
	return user, nil
}

// errLockSetChanged reports that a lobby touched by DeleteUser was not
// among the lobbies locked for it.
var errLockSetChanged = errors.New("lobby lock set changed")

// deleteUserAttempts bounds how often DeleteUser re-reads the lobbies it
// must lock.
const deleteUserAttempts = 3

// DeleteUser removes a user. Its player goes with it, lobbies it created
// are deleted, a lobby it merely joined loses a member, and games it won
// keep no winner.
func (s *Service) DeleteUser(ctx context.Context, userID uint) (err error) {
	defer func(start time.Time) { s.observe("delete_user", start, err) }(time.Now())

	releaseUser, err := lock.Acquire(ctx, s.locker, lock.UserKey(userID))
	if err != nil {
		return err
	}
	defer releaseUser()

	for attempt := 1; ; attempt++ {
		lobbyIDs, err := s.userLobbyIDs(ctx, userID)
		if err != nil {
			return err
		}

		err = s.deleteUserLocked(ctx, userID, lobbyIDs)
		if !errors.Is(err, errLockSetChanged) {
			return err
		}
		if attempt == deleteUserAttempts {
			return &store.OpError{Op: "delete user", Err: err}
		}
		log.Printf("user %d lobbies changed while locking, retrying delete", userID)
	}
}

// userLobbyIDs lists, in ascending order, the lobbies the user created and
// the lobby it is a member of.
func (s *Service) userLobbyIDs(ctx context.Context, userID uint) ([]uint, error) {
	player, err := s.store.FindPlayerByUserID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user", userID)
	}
	created, err := s.store.ListLobbyIDsByCreator(ctx, userID)
	if err != nil {
		return nil, err
	}

	lobbyIDs := append([]uint(nil), created...)
	if player.InLobby() {
		lobbyIDs = append(lobbyIDs, *player.LobbyID)
	}
	sort.Slice(lobbyIDs, func(i, j int) bool { return lobbyIDs[i] < lobbyIDs[j] })
	return lobbyIDs, nil
}

// deleteUserLocked runs the delete holding the locks of lobbyIDs. The user
// lock must already be held.
func (s *Service) deleteUserLocked(ctx context.Context, userID uint, lobbyIDs []uint) error {
	keys := make([]string, 0, len(lobbyIDs))
	locked := make(map[uint]bool, len(lobbyIDs))
	for _, id := range lobbyIDs {
		keys = append(keys, lock.LobbyKey(id))
		locked[id] = true
	}
	release, err := lock.Acquire(ctx, s.locker, keys...)
	if err != nil {
		return err
	}
	defer release()

	var events []event
	var created []uint
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		events = events[:0]

		player, err := tx.FindPlayerByUserID(ctx, userID)
		if err != nil {
			return notFound(err, "user", userID)
		}
		created, err = tx.ListLobbyIDsByCreator(ctx, userID)
		if err != nil {
			return err
		}
		owned := make(map[uint]bool, len(created))
		for _, id := range created {
			if !locked[id] {
				return errLockSetChanged
			}
			owned[id] = true
		}

		if player.InLobby() && !owned[*player.LobbyID] {
			lobbyID := *player.LobbyID
			if !locked[lobbyID] {
				return errLockSetChanged
			}
			if _, err := tx.ReleasePlayerLobby(ctx, userID, lobbyID, s.timestamp()); err != nil {
				return err
			}
			if _, err := tx.DecrementLobbyPlayers(ctx, lobbyID); err != nil {
				return err
			}
			events = append(events, event{lobbyID, EventPlayerLeft, map[string]any{"lobby_id": lobbyID, "user_id": userID}})
		}

		for _, id := range created {
			if err := tx.DeleteLobby(ctx, id); err != nil {
				return err
			}
			events = append(events, event{id, EventLobbyDeleted, map[string]any{"lobby_id": id}})
		}

		return tx.DeleteUser(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, errLockSetChanged) {
			return err
		}
		return notFound(err, "user", userID)
	}

	log.Printf("user %d deleted along with %d created lobbies", userID, len(created))
	s.publish(events...)
	return nil
}

func validateRegistration(username, email, password string) error {
	switch {
	case username == "":
		return &Error{Kind: KindInvalidArgument, Message: "username is required"}
	case len([]rune(username)) > maxUsernameLength:
		return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf("username must be at most %d characters", maxUsernameLength)}
	case len(email) > maxEmailLength:
		return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf("email must be at most %d characters", maxEmailLength)}
	case len(password) < minPasswordLength:
		return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf("password must be at least %d characters", minPasswordLength)}
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return &Error{Kind: KindInvalidArgument, Message: "email is invalid"}
	}
	return nil
}
