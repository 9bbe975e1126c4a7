package service

import (
	"errors"
	"fmt"
	"strings"

	"gamelobby/backend/internal/store"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindAlreadyInLobby           Kind = "ALREADY_IN_LOBBY"
	KindNotInLobby               Kind = "NOT_IN_LOBBY"
	KindLobbyFull                Kind = "LOBBY_FULL"
	KindLobbyNotJoinable         Kind = "LOBBY_NOT_JOINABLE"
	KindCreatorMustTransferFirst Kind = "CREATOR_MUST_TRANSFER_FIRST"
	KindNotEnoughPlayers         Kind = "NOT_ENOUGH_PLAYERS"
	KindAlreadyStarted           Kind = "ALREADY_STARTED"
	KindGameFinished             Kind = "GAME_FINISHED"
	KindNotFound                 Kind = "NOT_FOUND"
	KindConstraintViolation      Kind = "CONSTRAINT_VIOLATION"

	KindInvalidArgument      Kind = "INVALID_ARGUMENT"
	KindUserNotEligible      Kind = "USER_NOT_ELIGIBLE"
	KindNotCreator           Kind = "NOT_CREATOR"
	KindWinnerNotParticipant Kind = "WINNER_NOT_PARTICIPANT"
	KindInvalidCredentials   Kind = "INVALID_CREDENTIALS"
)

// Error is an expected, caller-recoverable failure of a lobby operation.
// It carries the identifiers and counts needed to render a useful message.
type Error struct {
	Kind    Kind
	Message string
	LobbyID uint
	UserID  uint
	GameID  uint
	Current int
	Limit   int
}

func (e *Error) Error() string {
	parts := []string{string(e.Kind)}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	var ctx []string
	if e.LobbyID != 0 {
		ctx = append(ctx, fmt.Sprintf("lobby=%d", e.LobbyID))
	}
	if e.UserID != 0 {
		ctx = append(ctx, fmt.Sprintf("user=%d", e.UserID))
	}
	if e.GameID != 0 {
		ctx = append(ctx, fmt.Sprintf("game=%d", e.GameID))
	}
	if e.Limit != 0 {
		ctx = append(ctx, fmt.Sprintf("current=%d limit=%d", e.Current, e.Limit))
	}
	if len(ctx) > 0 {
		parts = append(parts, strings.Join(ctx, " "))
	}

	return strings.Join(parts, ": ")
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrLobbyFull)
// works regardless of the attached context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrAlreadyInLobby           = &Error{Kind: KindAlreadyInLobby}
	ErrNotInLobby               = &Error{Kind: KindNotInLobby}
	ErrLobbyFull                = &Error{Kind: KindLobbyFull}
	ErrLobbyNotJoinable         = &Error{Kind: KindLobbyNotJoinable}
	ErrCreatorMustTransferFirst = &Error{Kind: KindCreatorMustTransferFirst}
	ErrNotEnoughPlayers         = &Error{Kind: KindNotEnoughPlayers}
	ErrAlreadyStarted           = &Error{Kind: KindAlreadyStarted}
	ErrGameFinished             = &Error{Kind: KindGameFinished}
	ErrNotFound                 = &Error{Kind: KindNotFound}
	ErrConstraintViolation      = &Error{Kind: KindConstraintViolation}
	ErrInvalidArgument          = &Error{Kind: KindInvalidArgument}
	ErrUserNotEligible          = &Error{Kind: KindUserNotEligible}
	ErrNotCreator               = &Error{Kind: KindNotCreator}
	ErrWinnerNotParticipant     = &Error{Kind: KindWinnerNotParticipant}
	ErrInvalidCredentials       = &Error{Kind: KindInvalidCredentials}
)

// KindOf returns the kind of a service error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// notFound converts store.ErrNotFound into a NotFound service error and
// passes every other error through untouched.
func notFound(err error, entity string, id uint) error {
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	e := &Error{Kind: KindNotFound, Message: entity + " not found"}
	switch entity {
	case "lobby":
		e.LobbyID = id
	case "game":
		e.GameID = id
	default:
		e.UserID = id
	}
	return e
}
