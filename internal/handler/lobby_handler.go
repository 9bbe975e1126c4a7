package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"gamelobby/backend/internal/hub"
	"gamelobby/backend/internal/models"
	"gamelobby/backend/internal/service"

	"github.com/gin-gonic/gin"
)

// keepAliveInterval spaces SSE comments that keep idle proxies from
// closing the stream.
const keepAliveInterval = 25 * time.Second

// region --- DTOs ---

type LobbyInput struct {
	Name       string `json:"name" binding:"required,max=100" example:"Friday night"`
	MaxPlayers int    `json:"max_players" binding:"required,min=1" example:"4"`
}

type ReadyInput struct {
	Ready *bool `json:"ready" binding:"required"`
}

type TransferInput struct {
	UserID uint `json:"user_id" binding:"required"`
}

type PlayerResponse struct {
	User     PublicUserResponse `json:"user"`
	IsReady  bool               `json:"is_ready"`
	JoinedAt time.Time          `json:"joined_at"`
}

type LobbyResponse struct {
	ID             uint               `json:"id"`
	Name           string             `json:"name"`
	MaxPlayers     int                `json:"max_players"`
	CurrentPlayers int                `json:"current_players"`
	IsActive       bool               `json:"is_active"`
	IsGameStarted  bool               `json:"is_game_started"`
	CreatedAt      time.Time          `json:"created_at"`
	Creator        PublicUserResponse `json:"creator"`
	Players        []PlayerResponse   `json:"players,omitempty"`
}

func newLobbyResponse(lobby *models.Lobby) LobbyResponse {
	response := LobbyResponse{
		ID:             lobby.ID,
		Name:           lobby.Name,
		MaxPlayers:     lobby.MaxPlayers,
		CurrentPlayers: lobby.CurrentPlayers,
		IsActive:       lobby.IsActive,
		IsGameStarted:  lobby.IsGameStarted,
		CreatedAt:      lobby.CreatedAt,
		Creator:        PublicUserResponse{ID: lobby.CreatorID},
	}
	if lobby.Creator != nil {
		response.Creator = buildPublicUserResponse(lobby.Creator)
	}

	for _, player := range lobby.Players {
		user := PublicUserResponse{ID: player.UserID}
		if player.User != nil {
			user = buildPublicUserResponse(player.User)
		}
		response.Players = append(response.Players, PlayerResponse{
			User:     user,
			IsReady:  player.IsReady,
			JoinedAt: player.JoinedAt,
		})
	}

	return response
}

// endregion

// LobbyHandler serves the lobby membership and lifecycle endpoints.
type LobbyHandler struct {
	svc    *service.Service
	events *hub.Hub
}

// NewLobbyHandler creates a new LobbyHandler instance.
func NewLobbyHandler(svc *service.Service, events *hub.Hub) *LobbyHandler {
	return &LobbyHandler{svc: svc, events: events}
}

// CreateLobby godoc
// @Summary      Create a new lobby
// @Description  Creates a new lobby, making the caller its creator and first member.
// @Tags         lobbies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body LobbyInput true "Lobby Info"
// @Success      201  {object}  LobbyResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse "User is already in a lobby"
// @Router       /lobbies [post]
func (h *LobbyHandler) CreateLobby(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var input LobbyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	lobby, err := h.svc.CreateLobby(c.Request.Context(), userID, input.Name, input.MaxPlayers)
	if err != nil {
		respondError(c, err)
		return
	}

	h.respondLobby(c, http.StatusCreated, lobby.ID)
}

// SearchLobbies godoc
// @Summary      Search for lobbies
// @Description  Gets a paginated list of active lobbies without a running game, newest first.
// @Tags         lobbies
// @Produce      json
// @Security     BearerAuth
// @Param        page      query int  false "Page number" default(1)
// @Param        limit     query int  false "Items per page" default(10)
// @Param        open_only query bool false "Only lobbies with a free slot"
// @Success      200 {object} PaginatedResponse[LobbyResponse]
// @Router       /lobbies [get]
func (h *LobbyHandler) SearchLobbies(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	openOnly, _ := strconv.ParseBool(c.DefaultQuery("open_only", "false"))

	params := service.ListLobbiesParams{Page: page, Limit: limit, OpenOnly: openOnly}.Normalize()
	lobbies, total, err := h.svc.ListActiveLobbies(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]LobbyResponse, 0, len(lobbies))
	for i := range lobbies {
		response = append(response, newLobbyResponse(&lobbies[i]))
	}

	c.JSON(http.StatusOK, NewPaginatedResponse(response, total, params.Page, params.Limit))
}

// GetLobbyByID godoc
// @Summary      Get a lobby by ID
// @Description  Gets full details for a single lobby, including its members.
// @Tags         lobbies
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Lobby ID"
// @Success      200 {object} LobbyResponse
// @Failure      404 {object} ErrorResponse "Lobby not found"
// @Router       /lobbies/{id} [get]
func (h *LobbyHandler) GetLobbyByID(c *gin.Context) {
	lobbyID, ok := parseID(c, "id")
	if !ok {
		return
	}
	h.respondLobby(c, http.StatusOK, lobbyID)
}

// JoinLobby godoc
// @Summary      Join a lobby
// @Description  Joins a lobby if it is active, idle and not full, and the caller is not in another lobby.
// @Tags         lobbies
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Lobby ID"
// @Success      200 {object} LobbyResponse
// @Failure      403 {object} ErrorResponse "User is not eligible"
// @Failure      404 {object} ErrorResponse "Lobby not found"
// @Failure      409 {object} ErrorResponse "Lobby is full, not joinable, or user is in another lobby"
// @Router       /lobbies/{id}/join [post]
func (h *LobbyHandler) JoinLobby(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	lobbyID, ok := parseID(c, "id")
	if !ok {
		return
	}

	if _, err := h.svc.JoinLobby(c.Request.Context(), userID, lobbyID); err != nil {
		respondError(c, err)
		return
	}

	h.respondLobby(c, http.StatusOK, lobbyID)
}

// LeaveLobby godoc
// @Summary      Leave current lobby
// @Description  Leaves the caller's lobby. A creator must transfer the lobby first unless they are the last member.
// @Tags         lobbies
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} map[string]string "{"message": "Left lobby successfully"}"
// @Failure      409 {object} ErrorResponse "Not in a lobby, or creator must transfer first"
// @Router       /lobbies/leave [post]
func (h *LobbyHandler) LeaveLobby(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.svc.LeaveLobby(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Left lobby successfully"})
}

// SetReady godoc
// @Summary      Set readiness
// @Tags         lobbies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body ReadyInput true "Readiness"
// @Success      200 {object} map[string]bool "{"ready": true}"
// @Failure      409 {object} ErrorResponse "Not in a lobby"
// @Router       /lobbies/ready [post]
func (h *LobbyHandler) SetReady(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var input ReadyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	if err := h.svc.SetReady(c.Request.Context(), userID, *input.Ready); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ready": *input.Ready})
}

// TransferCreator godoc
// @Summary      Transfer lobby ownership
// @Description  Hands the creator role to another member. Creator only.
// @Tags         lobbies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path int           true "Lobby ID"
// @Param        input body TransferInput true "New creator"
// @Success      200 {object} LobbyResponse
// @Failure      403 {object} ErrorResponse "Not the lobby creator"
// @Failure      409 {object} ErrorResponse "New creator is not a member"
// @Router       /lobbies/{id}/transfer [post]
func (h *LobbyHandler) TransferCreator(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	lobbyID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var input TransferInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.svc.RequireCreator(ctx, lobbyID, userID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.svc.TransferCreator(ctx, lobbyID, input.UserID); err != nil {
		respondError(c, err)
		return
	}

	h.respondLobby(c, http.StatusOK, lobbyID)
}

// StartGame godoc
// @Summary      Start a game
// @Description  Starts a new game once enough members are present and all are ready. Creator only.
// @Tags         lobbies
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Lobby ID"
// @Success      201 {object} GameResponse
// @Failure      403 {object} ErrorResponse "Not the lobby creator"
// @Failure      409 {object} ErrorResponse "Not enough ready players, or already started"
// @Router       /lobbies/{id}/start [post]
func (h *LobbyHandler) StartGame(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	lobbyID, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.svc.RequireCreator(ctx, lobbyID, userID); err != nil {
		respondError(c, err)
		return
	}

	game, err := h.svc.StartGame(ctx, lobbyID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newGameResponse(game))
}

// GetLobbyGames godoc
// @Summary      List a lobby's games
// @Description  Lists every game played in the lobby, newest first.
// @Tags         lobbies
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Lobby ID"
// @Success      200 {array} GameResponse
// @Failure      404 {object} ErrorResponse "Lobby not found"
// @Router       /lobbies/{id}/games [get]
func (h *LobbyHandler) GetLobbyGames(c *gin.Context) {
	lobbyID, ok := parseID(c, "id")
	if !ok {
		return
	}

	games, err := h.svc.ListLobbyGames(c.Request.Context(), lobbyID)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]GameResponse, 0, len(games))
	for i := range games {
		response = append(response, newGameResponse(&games[i]))
	}
	c.JSON(http.StatusOK, response)
}

// StreamEvents godoc
// @Summary      Stream lobby events
// @Description  Server-sent events for membership, readiness and game changes in the lobby.
// @Tags         lobbies
// @Produce      text/event-stream
// @Security     BearerAuth
// @Param        id path int true "Lobby ID"
// @Success      200 {object} hub.Event
// @Failure      404 {object} ErrorResponse "Lobby not found"
// @Router       /lobbies/{id}/events [get]
func (h *LobbyHandler) StreamEvents(c *gin.Context) {
	lobbyID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if _, err := h.svc.GetLobby(c.Request.Context(), lobbyID); err != nil {
		respondError(c, err)
		return
	}

	client := hub.NewClient()
	h.events.Subscribe(lobbyID, client)
	defer h.events.Unsubscribe(lobbyID, client)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client:
			if !ok {
				return false
			}
			c.SSEvent("message", string(msg))
			return true
		case <-keepAlive.C:
			_, err := io.WriteString(w, ": keep-alive\n\n")
			return err == nil
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *LobbyHandler) respondLobby(c *gin.Context, status int, lobbyID uint) {
	lobby, err := h.svc.GetLobby(c.Request.Context(), lobbyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, newLobbyResponse(lobby))
}
