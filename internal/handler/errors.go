package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"gamelobby/backend/internal/service"
	"gamelobby/backend/internal/store"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a generic error response.
type ErrorResponse struct {
	Error   string         `json:"error" example:"lobby is full"`
	Code    string         `json:"code" example:"LOBBY_FULL"`
	Details map[string]any `json:"details,omitempty"`
}

var kindStatus = map[service.Kind]int{
	service.KindInvalidArgument:          http.StatusBadRequest,
	service.KindWinnerNotParticipant:     http.StatusBadRequest,
	service.KindInvalidCredentials:       http.StatusUnauthorized,
	service.KindNotCreator:               http.StatusForbidden,
	service.KindUserNotEligible:          http.StatusForbidden,
	service.KindNotFound:                 http.StatusNotFound,
	service.KindAlreadyInLobby:           http.StatusConflict,
	service.KindNotInLobby:               http.StatusConflict,
	service.KindLobbyFull:                http.StatusConflict,
	service.KindLobbyNotJoinable:         http.StatusConflict,
	service.KindCreatorMustTransferFirst: http.StatusConflict,
	service.KindNotEnoughPlayers:         http.StatusConflict,
	service.KindAlreadyStarted:           http.StatusConflict,
	service.KindGameFinished:             http.StatusConflict,
	service.KindConstraintViolation:      http.StatusConflict,
}

// respondError writes err as an ErrorResponse with the matching status.
func respondError(c *gin.Context, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		status, ok := kindStatus[svcErr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		c.JSON(status, ErrorResponse{
			Error:   svcErr.Message,
			Code:    string(svcErr.Kind),
			Details: errorDetails(svcErr),
		})
		return
	}

	switch {
	case errors.Is(err, store.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		log.Printf("request %s %s unavailable: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Service temporarily unavailable, try again", Code: "UNAVAILABLE"})
	default:
		log.Printf("request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Code: "INTERNAL"})
	}
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Code: string(service.KindInvalidArgument)})
}

func errorDetails(e *service.Error) map[string]any {
	details := make(map[string]any)
	if e.LobbyID != 0 {
		details["lobby_id"] = e.LobbyID
	}
	if e.UserID != 0 {
		details["user_id"] = e.UserID
	}
	if e.GameID != 0 {
		details["game_id"] = e.GameID
	}
	if e.Limit != 0 {
		details["current"] = e.Current
		details["limit"] = e.Limit
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// parseID reads a positive numeric path parameter, answering 400 otherwise.
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondBadRequest(c, "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}
