package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"moradia/api/internal/config"
	"moradia/api/internal/models"
	"moradia/api/internal/repository"
	"moradia/api/internal/security"
)

const currentUserKey = "current_user"

// Auth verifies the bearer token and loads the actor. The token only
// establishes identity; role and ownership are re-checked per operation.
func Auth(cfg *config.AppConfig, users *repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"mensagem": "Token não fornecido."})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := security.ParseToken(tokenStr, cfg.Security.JWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"mensagem": "Token inválido ou expirado."})
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"mensagem": "Token inválido ou expirado."})
			return
		}

		c.Set(currentUserKey, user)

		c.Next()
	}
}

// OptionalAuth loads the actor when a valid bearer token is present and
// proceeds anonymously otherwise. Used on public browse routes that
// decorate responses for authenticated callers.
func OptionalAuth(cfg *config.AppConfig, users *repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.Next()
			return
		}

		claims, err := security.ParseToken(strings.TrimPrefix(authHeader, "Bearer "), cfg.Security.JWTSecret)
		if err != nil {
			c.Next()
			return
		}

		if user, err := users.GetByID(c.Request.Context(), claims.UserID); err == nil {
			c.Set(currentUserKey, user)
		}

		c.Next()
	}
}

// CurrentUser returns the authenticated actor placed by Auth.
func CurrentUser(c *gin.Context) (models.User, bool) {
	userVal, exists := c.Get(currentUserKey)
	if !exists {
		return models.User{}, false
	}
	user, ok := userVal.(models.User)
	return user, ok
}
