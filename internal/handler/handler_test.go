package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"gamelobby/backend/internal/auth"
	"gamelobby/backend/internal/database"
	"gamelobby/backend/internal/hub"
	"gamelobby/backend/internal/lock"
	"gamelobby/backend/internal/models"
	"gamelobby/backend/internal/service"
	"gamelobby/backend/internal/store"
	"gamelobby/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "handler-test-secret"

// =============================================================================
// Test Helpers
// =============================================================================

type testServer struct {
	router *gin.Engine
	svc    *service.Service
	events *hub.Hub
	db     *gorm.DB
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := database.Connect("sqlite://"+filepath.Join(t.TempDir(), "handler.db"), database.Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	events := hub.NewHub()
	t.Cleanup(events.Close)

	svc := service.New(store.NewGormStore(db), lock.NewLocalLocker(), service.Config{MinPlayersToStart: 2, MaxLobbySize: 8},
		service.WithPublisher(events))

	users := NewUserHandler(svc, testSecret, time.Hour)
	presence := NewPresenceHandler(svc)
	lobbies := NewLobbyHandler(svc, events)
	games := NewGameHandler(svc)
	admin := NewAdminHandler(svc)

	router := gin.New()
	api := router.Group("/api/v1")
	api.POST("/auth/register", users.Register)
	api.POST("/auth/login", users.Login)
	api.GET("/lobbies", lobbies.SearchLobbies)
	api.GET("/lobbies/:id", lobbies.GetLobbyByID)
	api.GET("/lobbies/:id/events", lobbies.StreamEvents)
	api.GET("/lobbies/:id/games", lobbies.GetLobbyGames)
	api.GET("/games/:id", games.GetGameByID)

	protected := api.Group("")
	protected.Use(auth.AuthMiddleware(testSecret))
	protected.GET("/users/me", users.GetMe)
	protected.POST("/presence/online", presence.Online)
	protected.POST("/presence/offline", presence.Offline)
	protected.POST("/presence/heartbeat", presence.Heartbeat)
	protected.POST("/lobbies", lobbies.CreateLobby)
	protected.POST("/lobbies/leave", lobbies.LeaveLobby)
	protected.POST("/lobbies/ready", lobbies.SetReady)
	protected.POST("/lobbies/:id/join", lobbies.JoinLobby)
	protected.POST("/lobbies/:id/transfer", lobbies.TransferCreator)
	protected.POST("/lobbies/:id/start", lobbies.StartGame)
	protected.POST("/games/:id/turn", games.AdvanceTurn)
	protected.POST("/games/:id/finish", games.FinishGame)

	adminRoutes := api.Group("/admin")
	adminRoutes.Use(auth.AuthMiddleware(testSecret), auth.AdminMiddleware(svc))
	adminRoutes.GET("/consistency", admin.CheckConsistency)
	adminRoutes.DELETE("/lobbies/:id", admin.DeleteLobby)
	adminRoutes.DELETE("/users/:id", admin.DeleteUser)

	return &testServer{router: router, svc: svc, events: events, db: db}
}

// register creates a user through the service and returns its ID and a token.
func (s *testServer) register(t *testing.T, name string) (uint, string) {
	t.Helper()
	user, err := s.svc.RegisterUser(context.Background(), name, name+"@example.com", "password123")
	require.NoError(t, err)
	token, err := jwt.GenerateToken(testSecret, user.ID, time.Hour)
	require.NoError(t, err)
	return user.ID, token
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, code, resp.Code)
	return resp
}

func lobbyPath(id uint, suffix string) string {
	return "/api/v1/lobbies/" + strconv.FormatUint(uint64(id), 10) + suffix
}

func gamePath(id uint, suffix string) string {
	return "/api/v1/games/" + strconv.FormatUint(uint64(id), 10) + suffix
}

func (s *testServer) createLobby(t *testing.T, token, name string, maxPlayers int) LobbyResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/lobbies", token, LobbyInput{Name: name, MaxPlayers: maxPlayers})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[LobbyResponse](t, w)
}

func ready(value bool) ReadyInput {
	return ReadyInput{Ready: &value}
}

// =============================================================================
// Auth Handler Tests
// =============================================================================

func TestRegister_ReturnsToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/auth/register", "", RegisterInput{
		Username: "alice", Email: "alice@example.com", Password: "password123",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[TokenResponse](t, w)
	userID, err := jwt.ParseToken(testSecret, resp.Token)
	require.NoError(t, err)

	me := s.do(t, http.MethodGet, "/api/v1/users/me", resp.Token, nil)
	require.Equal(t, http.StatusOK, me.Code)
	profile := decode[PrivateUserResponse](t, me)
	assert.Equal(t, userID, profile.ID)
	assert.Equal(t, "alice", profile.Username)
	assert.Nil(t, profile.LobbyID)
}

func TestRegister_Duplicate(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice")

	w := s.do(t, http.MethodPost, "/api/v1/auth/register", "", RegisterInput{
		Username: "alice", Email: "other@example.com", Password: "password123",
	})

	assertErrorCode(t, w, http.StatusConflict, "CONSTRAINT_VIOLATION")
}

func TestRegister_InvalidBody(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": "alice"})

	assertErrorCode(t, w, http.StatusBadRequest, "INVALID_ARGUMENT")
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice")

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginInput{Login: "alice@example.com", Password: "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode[TokenResponse](t, w).Token)

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginInput{Login: "alice", Password: "wrong-password"})
	assertErrorCode(t, w, http.StatusUnauthorized, "INVALID_CREDENTIALS")
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/lobbies", "", LobbyInput{Name: "x", MaxPlayers: 2})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/users/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// =============================================================================
// Presence Handler Tests
// =============================================================================

func TestPresence(t *testing.T) {
	s := newTestServer(t)
	_, token := s.register(t, "alice")

	w := s.do(t, http.MethodPost, "/api/v1/presence/online", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, decode[PrivateUserResponse](t, s.do(t, http.MethodGet, "/api/v1/users/me", token, nil)).IsOnline)

	w = s.do(t, http.MethodPost, "/api/v1/presence/offline", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, decode[PrivateUserResponse](t, s.do(t, http.MethodGet, "/api/v1/users/me", token, nil)).IsOnline)

	w = s.do(t, http.MethodPost, "/api/v1/presence/heartbeat", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPresence_UnknownUser(t *testing.T) {
	s := newTestServer(t)
	token, err := jwt.GenerateToken(testSecret, 999, time.Hour)
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/api/v1/presence/online", token, nil)

	assertErrorCode(t, w, http.StatusNotFound, "NOT_FOUND")
}

// =============================================================================
// Lobby Handler Tests
// =============================================================================

func TestCreateLobby(t *testing.T) {
	s := newTestServer(t)
	aliceID, token := s.register(t, "alice")

	lobby := s.createLobby(t, token, "Friday night", 4)

	assert.Equal(t, "Friday night", lobby.Name)
	assert.Equal(t, 1, lobby.CurrentPlayers)
	assert.True(t, lobby.IsActive)
	assert.Equal(t, aliceID, lobby.Creator.ID)
	assert.Equal(t, "alice", lobby.Creator.Username)
	require.Len(t, lobby.Players, 1)
	assert.Equal(t, aliceID, lobby.Players[0].User.ID)

	me := decode[PrivateUserResponse](t, s.do(t, http.MethodGet, "/api/v1/users/me", token, nil))
	require.NotNil(t, me.LobbyID)
	assert.Equal(t, lobby.ID, *me.LobbyID)
}

func TestCreateLobby_Validation(t *testing.T) {
	s := newTestServer(t)
	_, token := s.register(t, "alice")

	w := s.do(t, http.MethodPost, "/api/v1/lobbies", token, LobbyInput{Name: "too big", MaxPlayers: 50})
	assertErrorCode(t, w, http.StatusBadRequest, "INVALID_ARGUMENT")

	w = s.do(t, http.MethodPost, "/api/v1/lobbies", token, gin.H{"max_players": 2})
	assertErrorCode(t, w, http.StatusBadRequest, "INVALID_ARGUMENT")
}

func TestCreateLobby_AlreadyInLobby(t *testing.T) {
	s := newTestServer(t)
	_, token := s.register(t, "alice")
	s.createLobby(t, token, "first", 2)

	w := s.do(t, http.MethodPost, "/api/v1/lobbies", token, LobbyInput{Name: "second", MaxPlayers: 2})

	assertErrorCode(t, w, http.StatusConflict, "ALREADY_IN_LOBBY")
}

func TestJoinLobby_Full(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.register(t, "alice")
	_, bob := s.register(t, "bob")
	_, carol := s.register(t, "carol")
	lobby := s.createLobby(t, alice, "duo", 2)

	w := s.do(t, http.MethodPost, lobbyPath(lobby.ID, "/join"), bob, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, decode[LobbyResponse](t, w).CurrentPlayers)

	w = s.do(t, http.MethodPost, lobbyPath(lobby.ID, "/join"), carol, nil)
	resp := assertErrorCode(t, w, http.StatusConflict, "LOBBY_FULL")
	assert.EqualValues(t, 2, resp.Details["current"])
	assert.EqualValues(t, 2, resp.Details["limit"])
	assert.EqualValues(t, lobby.ID, resp.Details["lobby_id"])
}

func TestJoinLobby_NotFoundAndBadID(t *testing.T) {
	s := newTestServer(t)
	_, token := s.register(t, "alice")

	w := s.do(t, http.MethodPost, lobbyPath(42, "/join"), token, nil)
	assertErrorCode(t, w, http.StatusNotFound, "NOT_FOUND")

	w = s.do(t, http.MethodPost, "/api/v1/lobbies/abc/join", token, nil)
	assertErrorCode(t, w, http.StatusBadRequest, "INVALID_ARGUMENT")
}

func TestLeaveLobby_CreatorMustTransfer(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.register(t, "alice")
	bobID, bob := s.register(t, "bob")
	lobby := s.createLobby(t, alice, "duo", 2)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, lobbyPath(lobby.ID, "/join"), bob, nil).Code)

	w := s.do(t, http.MethodPost, "/api/v1/lobbies/leave", alice, nil)
	assertErrorCode(t, w, http.StatusConflict, "CREATOR_MUST_TRANSFER_FIRST")

	// Only the creator may transfer.
	w = s.do(t, http.MethodPost, lobbyPath(lobby.ID, "/transfer"), bob, TransferInput{UserID: bobID})
	assertErrorCode(t, w, http.StatusForbidden, "NOT_CREATOR")

	w = s.do(t, http.MethodPost, lobbyPath(lobby.ID, "/transfer"), alice, TransferInput{UserID: bobID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, bobID, decode[LobbyResponse](t, w).Creator.ID)

	w = s.do(t, http.MethodPost, "/api/v1/lobbies/leave", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/lobbies/leave", alice, nil)
	assertErrorCode(t, w, http.StatusConflict, "NOT_IN_LOBBY")

	got := decode[LobbyResponse](t, s.do(t, http.MethodGet, lobbyPath(lobby.ID, ""), "", nil))
	assert.Equal(t, 1, got.CurrentPlayers)
}

func TestSearchLobbies(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.register(t, "alice")
	_, bob := s.register(t, "bob")
	_, carol := s.register(t, "carol")
	s.createLobby(t, alice, "full", 1)
	s.createLobby(t, bob, "open", 3)

	w := s.do(t, http.MethodGet, "/api/v1/lobbies?page=1&limit=1", carol, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[PaginatedResponse[LobbyResponse]](t, w)
	assert.Equal(t, int64(2), page.Meta.TotalItems)
	assert.Equal(t, 2, page.Meta.TotalPages)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "open", page.Data[0].Name)

	w = s.do(t, http.MethodGet, "/api/v1/lobbies?open_only=true", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[PaginatedResponse[LobbyResponse]](t, w)
	assert.Equal(t, int64(1), page.Meta.TotalItems)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "open", page.Data[0].Name)
	assert.Equal(t, 10, page.Meta.PageSize)
}

func TestSetReady_RequiresBody(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.register(t, "alice")

	w := s.do(t, http.MethodPost, "/api/v1/lobbies/ready", alice, gin.H{})
	assertErrorCode(t, w, http.StatusBadRequest, "INVALID_ARGUMENT")

	w = s.do(t, http.MethodPost, "/api/v1/lobbies/ready", alice, ready(true))
	assertErrorCode(t, w, http.StatusConflict, "NOT_IN_LOBBY")
}

// =============================================================================
// Game Handler Tests
// =============================================================================

func TestGameRound(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.register(t, "alice")
	bobID, bob := s.register(t, "bob")
	lobby := s.createLobby(t, alice, "duo", 2)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, lobbyPath(lobby.ID, "/join"), bob, nil).Code)

	w := s.do(t, http.MethodPost, lobbyPath(lobby.ID, "/start"), bob, nil)
	assertErrorCode(t, w, http.StatusForbidden, "NOT_CREATOR")

	w = s.do(t, http.MethodPost, lobbyPath(lobby.ID, "/start"), alice, nil)
	assertErrorCode(t, w, http.StatusConflict, "NOT_ENOUGH_PLAYERS")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/lobbies/ready", alice, ready(true)).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/lobbies/ready", bob, ready(true)).Code)

	w = s.do(t, http.MethodPost, lobbyPath(lobby.ID, "/start"), alice, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	game := decode[GameResponse](t, w)
	assert.Equal(t, lobby.ID, game.LobbyID)
	assert.Equal(t, 0, game.CurrentTurn)
	assert.Len(t, game.Participants, 2)

	w = s.do(t, http.MethodPost, lobbyPath(lobby.ID, "/start"), alice, nil)
	assertErrorCode(t, w, http.StatusConflict, "ALREADY_STARTED")

	w = s.do(t, http.MethodPost, gamePath(game.ID, "/turn"), bob, nil)
	assertErrorCode(t, w, http.StatusForbidden, "NOT_CREATOR")

	w = s.do(t, http.MethodPost, gamePath(game.ID, "/turn"), alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[GameResponse](t, w).CurrentTurn)

	stranger := uint(9999)
	w = s.do(t, http.MethodPost, gamePath(game.ID, "/finish"), alice, FinishGameInput{WinnerID: &stranger})
	assertErrorCode(t, w, http.StatusBadRequest, "WINNER_NOT_PARTICIPANT")

	w = s.do(t, http.MethodPost, gamePath(game.ID, "/finish"), alice, FinishGameInput{WinnerID: &bobID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	finished := decode[GameResponse](t, w)
	assert.True(t, finished.IsFinished)
	require.NotNil(t, finished.WinnerID)
	assert.Equal(t, bobID, *finished.WinnerID)

	w = s.do(t, http.MethodPost, gamePath(game.ID, "/finish"), alice, nil)
	assertErrorCode(t, w, http.StatusConflict, "GAME_FINISHED")

	w = s.do(t, http.MethodPost, gamePath(game.ID, "/finish"), alice, FinishGameInput{AllowRefinish: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, bobID, *decode[GameResponse](t, w).WinnerID)

	w = s.do(t, http.MethodPost, gamePath(game.ID, "/turn"), alice, nil)
	assertErrorCode(t, w, http.StatusConflict, "GAME_FINISHED")

	w = s.do(t, http.MethodGet, lobbyPath(lobby.ID, "/games"), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	games := decode[[]GameResponse](t, w)
	require.Len(t, games, 1)
	assert.Equal(t, game.ID, games[0].ID)

	w = s.do(t, http.MethodGet, gamePath(game.ID, ""), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[GameResponse](t, w).IsFinished)

	got := decode[LobbyResponse](t, s.do(t, http.MethodGet, lobbyPath(lobby.ID, ""), "", nil))
	assert.False(t, got.IsGameStarted)
}

func TestGetGame_NotFound(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, gamePath(7, ""), "", nil)

	assertErrorCode(t, w, http.StatusNotFound, "NOT_FOUND")
}

// =============================================================================
// Admin Handler Tests
// =============================================================================

func TestAdmin_RequiresStaff(t *testing.T) {
	s := newTestServer(t)
	_, token := s.register(t, "alice")

	w := s.do(t, http.MethodGet, "/api/v1/admin/consistency", token, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmin_ConsistencyAndDeletes(t *testing.T) {
	s := newTestServer(t)
	adminID, adminToken := s.register(t, "admin")
	require.NoError(t, s.db.Model(&models.User{}).Where("id = ?", adminID).Update("is_staff", true).Error)

	_, alice := s.register(t, "alice")
	bobID, bob := s.register(t, "bob")
	lobby := s.createLobby(t, alice, "trio", 3)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, lobbyPath(lobby.ID, "/join"), bob, nil).Code)

	w := s.do(t, http.MethodGet, "/api/v1/admin/consistency", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[ConsistencyResponse](t, w)
	assert.True(t, report.Consistent)
	assert.Empty(t, report.Violations)

	require.NoError(t, s.db.Model(&models.Lobby{}).Where("id = ?", lobby.ID).Update("current_players", 3).Error)
	report = decode[ConsistencyResponse](t, s.do(t, http.MethodGet, "/api/v1/admin/consistency", adminToken, nil))
	assert.False(t, report.Consistent)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, service.RuleOccupancyCount, report.Violations[0].Rule)
	require.NoError(t, s.db.Model(&models.Lobby{}).Where("id = ?", lobby.ID).Update("current_players", 2).Error)

	w = s.do(t, http.MethodDelete, "/api/v1/admin/users/"+strconv.FormatUint(uint64(bobID), 10), adminToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	got := decode[LobbyResponse](t, s.do(t, http.MethodGet, lobbyPath(lobby.ID, ""), "", nil))
	assert.Equal(t, 1, got.CurrentPlayers)

	w = s.do(t, http.MethodDelete, "/api/v1/admin/lobbies/"+strconv.FormatUint(uint64(lobby.ID), 10), adminToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodGet, lobbyPath(lobby.ID, ""), "", nil)
	assertErrorCode(t, w, http.StatusNotFound, "NOT_FOUND")

	me := decode[PrivateUserResponse](t, s.do(t, http.MethodGet, "/api/v1/users/me", alice, nil))
	assert.Nil(t, me.LobbyID)
}

// =============================================================================
// Event Stream Tests
// =============================================================================

func TestStreamEvents_UnknownLobby(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, lobbyPath(5, "/events"), "", nil)

	assertErrorCode(t, w, http.StatusNotFound, "NOT_FOUND")
}

func TestStreamEvents_DeliversLobbyEvents(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.register(t, "alice")
	bobID, bob := s.register(t, "bob")
	lobby := s.createLobby(t, alice, "duo", 2)

	server := httptest.NewServer(s.router)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+lobbyPath(lobby.ID, "/events"), nil)
		resp, err := http.DefaultClient.Do(req)
		done <- result{resp, err}
	}()

	require.Eventually(t, func() bool { return s.events.Subscribers(lobby.ID) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, lobbyPath(lobby.ID, "/join"), bob, nil).Code)

	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not start")
	}
	require.NoError(t, res.err)
	defer res.resp.Body.Close()
	assert.Contains(t, res.resp.Header.Get("Content-Type"), "text/event-stream")

	data, err := readEventData(res.resp)
	require.NoError(t, err)

	var event struct {
		Type    string         `json:"type"`
		LobbyID uint           `json:"lobby_id"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &event))
	assert.Equal(t, service.EventPlayerJoined, event.Type)
	assert.Equal(t, lobby.ID, event.LobbyID)
	assert.EqualValues(t, bobID, event.Payload["user_id"])

	cancel()
	assert.Eventually(t, func() bool { return s.events.Subscribers(lobby.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func readEventData(resp *http.Response) (string, error) {
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data:")), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errors.New("stream ended without data")
}

// =============================================================================
// Error Mapping Tests
// =============================================================================

func TestRespondError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"domain kind", &service.Error{Kind: service.KindLobbyFull, Message: "lobby is full"}, http.StatusConflict, "LOBBY_FULL"},
		{"not creator", &service.Error{Kind: service.KindNotCreator, Message: "nope"}, http.StatusForbidden, "NOT_CREATOR"},
		{"store unavailable", &store.OpError{Op: "join", Err: errors.New("connection reset")}, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), `"code":"`+tt.code+`"`)
		})
	}
}

func TestNewPaginatedResponse(t *testing.T) {
	resp := NewPaginatedResponse([]int{1, 2}, 21, 3, 10)

	assert.Equal(t, 3, resp.Meta.TotalPages)
	assert.Equal(t, 3, resp.Meta.CurrentPage)
	assert.Equal(t, 10, resp.Meta.PageSize)
	assert.Equal(t, []int{1, 2}, resp.Data)
}
