package middleware

import (
	"github.com/gin-gonic/gin"

	"storefront_back_end/internal/apperr"
	"storefront_back_end/internal/models"
)

// RequireRole vérifie que le jeton porte le rôle demandé. À placer après
// AuthRequired.
func RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			abortWith(c, apperr.New(apperr.Unauthorized, "Token manquant"))
			return
		}
		if !claims.HasRole(role) {
			abortWith(c, apperr.New(apperr.Forbidden, "Accès refusé"))
			return
		}
		c.Next()
	}
}

// RequireAdmin vérifie que l'utilisateur a le rôle Admin.
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin)
}

// IsAdmin indique si la requête courante est celle d'un administrateur.
func IsAdmin(c *gin.Context) bool {
	claims := Claims(c)
	return claims != nil && claims.HasRole(models.RoleAdmin)
}
