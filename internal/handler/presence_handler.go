package handler

import (
	"context"
	"net/http"

	"gamelobby/backend/internal/service"

	"github.com/gin-gonic/gin"
)

// PresenceHandler lets clients report their connection state.
type PresenceHandler struct {
	svc *service.Service
}

// NewPresenceHandler creates a new PresenceHandler instance.
func NewPresenceHandler(svc *service.Service) *PresenceHandler {
	return &PresenceHandler{svc: svc}
}

// Online godoc
// @Summary      Mark me online
// @Tags         presence
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /presence/online [post]
func (h *PresenceHandler) Online(c *gin.Context) {
	h.update(c, h.svc.MarkOnline)
}

// Offline godoc
// @Summary      Mark me offline
// @Description  Lobby membership is kept; leave the lobby explicitly if needed.
// @Tags         presence
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /presence/offline [post]
func (h *PresenceHandler) Offline(c *gin.Context) {
	h.update(c, h.svc.MarkOffline)
}

// Heartbeat godoc
// @Summary      Keep me online
// @Description  Refreshes last-seen so the presence sweeper does not mark the user offline.
// @Tags         presence
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  ErrorResponse
// @Router       /presence/heartbeat [post]
func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	h.update(c, h.svc.Heartbeat)
}

func (h *PresenceHandler) update(c *gin.Context, fn func(context.Context, uint) error) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
