package handler

import (
	"net/http"
	"time"

	"gamelobby/backend/internal/auth"
	"gamelobby/backend/internal/models"
	"gamelobby/backend/internal/service"
	"gamelobby/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// region --- DTOs ---

// RegisterInput defines the structure for user registration.
type RegisterInput struct {
	Username string `json:"username" binding:"required,max=50" example:"testuser"`
	Email    string `json:"email" binding:"required,email" example:"test@example.com"`
	Password string `json:"password" binding:"required,min=8" example:"password123"`
}

// LoginInput defines the structure for user login.
type LoginInput struct {
	Login    string `json:"login" binding:"required" example:"testuser"`
	Password string `json:"password" binding:"required" example:"password123"`
}

// TokenResponse carries a freshly issued bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// PublicUserResponse defines the structure for a user's public profile.
type PublicUserResponse struct {
	ID       uint      `json:"id" example:"1"`
	Username string    `json:"username" example:"testuser"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

// PrivateUserResponse defines the structure for the authenticated user's own profile.
type PrivateUserResponse struct {
	ID        uint      `json:"id" example:"1"`
	Username  string    `json:"username" example:"testuser"`
	Email     string    `json:"email" example:"test@example.com"`
	IsOnline  bool      `json:"is_online"`
	IsStaff   bool      `json:"is_staff"`
	LobbyID   *uint     `json:"lobby_id"`
	IsReady   bool      `json:"is_ready"`
	CreatedAt time.Time `json:"created_at"`
}

func buildPublicUserResponse(user *models.User) PublicUserResponse {
	if user == nil {
		return PublicUserResponse{}
	}
	return PublicUserResponse{
		ID:       user.ID,
		Username: user.Username,
		IsOnline: user.IsOnline,
		LastSeen: user.LastSeen,
	}
}

// endregion

// UserHandler serves registration, login and the caller's profile.
type UserHandler struct {
	svc       *service.Service
	jwtSecret string
	jwtTTL    time.Duration
}

// NewUserHandler creates a new UserHandler instance.
func NewUserHandler(svc *service.Service, jwtSecret string, jwtTTL time.Duration) *UserHandler {
	return &UserHandler{svc: svc, jwtSecret: jwtSecret, jwtTTL: jwtTTL}
}

// region --- Auth Handlers ---

// Register godoc
// @Summary      Register a new user
// @Description  Creates a new user with its player record and returns an authentication token.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body RegisterInput true "Registration Info"
// @Success      201  {object}  TokenResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse "Username or email already exists"
// @Failure      500  {object}  ErrorResponse
// @Router       /auth/register [post]
func (h *UserHandler) Register(c *gin.Context) {
	var input RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	user, err := h.svc.RegisterUser(c.Request.Context(), input.Username, input.Email, input.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	h.respondToken(c, http.StatusCreated, user.ID)
}

// Login godoc
// @Summary      Log in a user
// @Description  Authenticates a user with username/email and password, and returns a new token.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body LoginInput true "Login Info"
// @Success      200  {object}  TokenResponse
// @Failure      400  {object}  ErrorResponse "Invalid input"
// @Failure      401  {object}  ErrorResponse "Invalid credentials"
// @Failure      403  {object}  ErrorResponse "Inactive user"
// @Router       /auth/login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	user, err := h.svc.Authenticate(c.Request.Context(), input.Login, input.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	h.respondToken(c, http.StatusOK, user.ID)
}

func (h *UserHandler) respondToken(c *gin.Context, status int, userID uint) {
	token, err := jwt.GenerateToken(h.jwtSecret, userID, h.jwtTTL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, TokenResponse{Token: token})
}

// endregion

// region --- Profile Handlers ---

// GetMe godoc
// @Summary      Get my profile
// @Description  Returns the authenticated user's profile and lobby membership.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  PrivateUserResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /users/me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := h.svc.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	player, err := h.svc.GetPlayer(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, PrivateUserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		IsOnline:  user.IsOnline,
		IsStaff:   user.IsStaff,
		LobbyID:   player.LobbyID,
		IsReady:   player.IsReady,
		CreatedAt: user.CreatedAt,
	})
}

// endregion

// currentUser returns the authenticated user ID or answers 401.
func currentUser(c *gin.Context) (uint, bool) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "User not authenticated", Code: "UNAUTHORIZED"})
		return 0, false
	}
	return userID, true
}
