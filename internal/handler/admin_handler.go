package handler

import (
	"net/http"

	"gamelobby/backend/internal/service"

	"github.com/gin-gonic/gin"
)

// ConsistencyResponse lists every broken occupancy rule.
type ConsistencyResponse struct {
	Consistent bool                `json:"consistent"`
	Violations []service.Violation `json:"violations"`
}

// AdminHandler serves staff-only maintenance endpoints.
type AdminHandler struct {
	svc *service.Service
}

// NewAdminHandler creates a new AdminHandler instance.
func NewAdminHandler(svc *service.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// CheckConsistency godoc
// @Summary      Audit lobby occupancy
// @Description  Compares occupancy counters with actual membership and lists every mismatch.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} ConsistencyResponse
// @Failure      403 {object} ErrorResponse
// @Router       /admin/consistency [get]
func (h *AdminHandler) CheckConsistency(c *gin.Context) {
	violations, err := h.svc.CheckConsistency(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if violations == nil {
		violations = []service.Violation{}
	}

	c.JSON(http.StatusOK, ConsistencyResponse{Consistent: len(violations) == 0, Violations: violations})
}

// DeleteLobby godoc
// @Summary      Delete a lobby
// @Description  Releases every member and removes the lobby with its games.
// @Tags         admin
// @Security     BearerAuth
// @Param        id path int true "Lobby ID"
// @Success      204
// @Failure      404 {object} ErrorResponse
// @Router       /admin/lobbies/{id} [delete]
func (h *AdminHandler) DeleteLobby(c *gin.Context) {
	lobbyID, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteLobby(c.Request.Context(), lobbyID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteUser godoc
// @Summary      Delete a user
// @Description  Removes the user and its player, deletes lobbies it created and leaves any other lobby.
// @Tags         admin
// @Security     BearerAuth
// @Param        id path int true "User ID"
// @Success      204
// @Failure      404 {object} ErrorResponse
// @Router       /admin/users/{id} [delete]
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	userID, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteUser(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
