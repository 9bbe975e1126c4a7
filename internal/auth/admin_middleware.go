package auth

import (
	"context"
	"net/http"

	"gamelobby/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// UserFinder loads the authenticated user.
type UserFinder interface {
	GetUser(ctx context.Context, userID uint) (*models.User, error)
}

// AdminMiddleware creates a gin middleware that only lets staff users through.
// It must be used AFTER the standard AuthMiddleware.
func AdminMiddleware(users UserFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := UserID(c)
		if !exists {
			// This should not happen if AuthMiddleware is used before it
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated", "code": "UNAUTHORIZED"})
			return
		}

		user, err := users.GetUser(c.Request.Context(), userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authenticated user not found", "code": "UNAUTHORIZED"})
			return
		}

		if !user.IsStaff || !user.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Staff access required", "code": "FORBIDDEN"})
			return
		}

		c.Next()
	}
}
