package handler

import (
	"net/http"
	"time"

	"gamelobby/backend/internal/models"
	"gamelobby/backend/internal/service"

	"github.com/gin-gonic/gin"
)

// region --- DTOs ---

type FinishGameInput struct {
	WinnerID *uint `json:"winner_id"`
	// AllowRefinish turns finishing an already finished game into a no-op.
	AllowRefinish bool `json:"allow_refinish"`
}

type GameResponse struct {
	ID           uint      `json:"id"`
	LobbyID      uint      `json:"lobby_id"`
	CurrentTurn  int       `json:"current_turn"`
	IsFinished   bool      `json:"is_finished"`
	WinnerID     *uint     `json:"winner_id"`
	Participants []uint    `json:"participants,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func newGameResponse(game *models.Game) GameResponse {
	response := GameResponse{
		ID:          game.ID,
		LobbyID:     game.LobbyID,
		CurrentTurn: game.CurrentTurn,
		IsFinished:  game.IsFinished,
		WinnerID:    game.WinnerID,
		CreatedAt:   game.CreatedAt,
	}
	for _, p := range game.Participants {
		response.Participants = append(response.Participants, p.UserID)
	}
	return response
}

// endregion

// GameHandler serves the game lifecycle endpoints.
type GameHandler struct {
	svc *service.Service
}

// NewGameHandler creates a new GameHandler instance.
func NewGameHandler(svc *service.Service) *GameHandler {
	return &GameHandler{svc: svc}
}

// GetGameByID godoc
// @Summary      Get a game by ID
// @Tags         games
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Game ID"
// @Success      200 {object} GameResponse
// @Failure      404 {object} ErrorResponse "Game not found"
// @Router       /games/{id} [get]
func (h *GameHandler) GetGameByID(c *gin.Context) {
	gameID, ok := parseID(c, "id")
	if !ok {
		return
	}

	game, err := h.svc.GetGame(c.Request.Context(), gameID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newGameResponse(game))
}

// AdvanceTurn godoc
// @Summary      Advance the turn
// @Description  Increments the turn counter of a running game. Lobby creator only.
// @Tags         games
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Game ID"
// @Success      200 {object} GameResponse
// @Failure      403 {object} ErrorResponse "Not the lobby creator"
// @Failure      409 {object} ErrorResponse "Game already finished"
// @Router       /games/{id}/turn [post]
func (h *GameHandler) AdvanceTurn(c *gin.Context) {
	gameID, ok := h.authorize(c)
	if !ok {
		return
	}

	game, err := h.svc.AdvanceTurn(c.Request.Context(), gameID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newGameResponse(game))
}

// FinishGame godoc
// @Summary      Finish a game
// @Description  Finishes a game with an optional winner, who must have taken part. Lobby creator only.
// @Tags         games
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path int             true  "Game ID"
// @Param        input body FinishGameInput false "Result"
// @Success      200 {object} GameResponse
// @Failure      400 {object} ErrorResponse "Winner did not take part"
// @Failure      403 {object} ErrorResponse "Not the lobby creator"
// @Failure      409 {object} ErrorResponse "Game already finished"
// @Router       /games/{id}/finish [post]
func (h *GameHandler) FinishGame(c *gin.Context) {
	gameID, ok := h.authorize(c)
	if !ok {
		return
	}

	var input FinishGameInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBadRequest(c, err.Error())
			return
		}
	}

	var opts []service.FinishOption
	if input.AllowRefinish {
		opts = append(opts, service.AllowRefinish())
	}

	game, err := h.svc.FinishGame(c.Request.Context(), gameID, input.WinnerID, opts...)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newGameResponse(game))
}

// authorize resolves the game from the path and checks that the caller
// created its lobby.
func (h *GameHandler) authorize(c *gin.Context) (uint, bool) {
	userID, ok := currentUser(c)
	if !ok {
		return 0, false
	}
	gameID, ok := parseID(c, "id")
	if !ok {
		return 0, false
	}

	ctx := c.Request.Context()
	game, err := h.svc.GetGame(ctx, gameID)
	if err != nil {
		respondError(c, err)
		return 0, false
	}
	if err := h.svc.RequireCreator(ctx, game.LobbyID, userID); err != nil {
		respondError(c, err)
		return 0, false
	}
	return gameID, true
}
