package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"storefront_back_end/internal/apperr"
	"storefront_back_end/internal/auth"
)

// Clés posées dans le contexte gin par AuthRequired.
const (
	KeyUserID   = "user_id"
	KeyUsername = "username"
	KeyClaims   = "claims"
)

// AuthRequired exige un jeton d'accès valide dans l'en-tête Authorization.
func AuthRequired(tokens *auth.TokenManager) gin.HandlerFunc {
	return authenticate(tokens, bearerToken)
}

// AuthRequiredWS accepte en plus le paramètre access_token, pour les
// navigateurs qui ne posent pas d'en-tête sur une ouverture de websocket.
// Réservé à la route /cart/ws.
func AuthRequiredWS(tokens *auth.TokenManager) gin.HandlerFunc {
	return authenticate(tokens, socketToken)
}

func authenticate(tokens *auth.TokenManager, extract func(*gin.Context) (string, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := extract(c)
		if err != nil {
			abortWith(c, err)
			return
		}

		claims, err := tokens.Authorize(tokenString)
		if err != nil {
			abortWith(c, err)
			return
		}

		c.Set(KeyUserID, claims.UserID())
		c.Set(KeyUsername, claims.UserInfo.Username)
		c.Set(KeyClaims, claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", apperr.New(apperr.Unauthorized, "Token manquant")
	}

	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", apperr.New(apperr.Unauthorized, "Format Authorization invalide")
	}
	return parts[1], nil
}

func socketToken(c *gin.Context) (string, error) {
	if c.GetHeader("Authorization") == "" {
		if q := c.Query("access_token"); q != "" {
			return q, nil
		}
	}
	return bearerToken(c)
}

// Claims retourne les claims posés par AuthRequired, nil hors route protégée.
func Claims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(KeyClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

func abortWith(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"message": apperr.Message(err)})
}

// OptionalAuth pose les claims si un jeton valide est présent, sans jamais
// refuser la requête.
func OptionalAuth(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, err := bearerToken(c); err == nil {
			if claims, err := tokens.Authorize(tokenString); err == nil {
				c.Set(KeyUserID, claims.UserID())
				c.Set(KeyUsername, claims.UserInfo.Username)
				c.Set(KeyClaims, claims)
			}
		}
		c.Next()
	}
}
