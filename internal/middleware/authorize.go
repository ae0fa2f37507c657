package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"moradia/api/internal/models"
)

// RequireRoles gates a route to the given roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	roleSet := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"mensagem": "Token não fornecido."})
			return
		}

		if _, ok := roleSet[user.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"mensagem": "Você não tem permissão para acessar este recurso."})
			return
		}

		c.Next()
	}
}
