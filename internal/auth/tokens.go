package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"storefront_back_end/internal/apperr"
	"storefront_back_end/internal/models"
)

// UserInfo est la partie applicative du jeton d'accès.
type UserInfo struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// Claims du jeton d'accès. Subject porte l'id utilisateur.
type Claims struct {
	UserInfo UserInfo `json:"UserInfo"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string {
	return c.Subject
}

func (c *Claims) Roles() models.Roles {
	out := make(models.Roles, 0, len(c.UserInfo.Roles))
	for _, r := range c.UserInfo.Roles {
		if role, ok := models.ParseRole(r); ok {
			out = append(out, role)
		}
	}
	return out
}

func (c *Claims) HasRole(role models.Role) bool {
	return c.Roles().Has(role)
}

// RefreshClaims du jeton de rafraîchissement, signé avec un secret distinct.
type RefreshClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (m *TokenManager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

func (m *TokenManager) IssueAccess(u *models.User) (string, error) {
	now := m.now()
	claims := Claims{
		UserInfo: UserInfo{Username: u.Username, Roles: u.Roles.Strings()},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
}

func (m *TokenManager) IssueRefresh(u *models.User) (string, *RefreshClaims, error) {
	now := m.now()
	claims := &RefreshClaims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.refreshSecret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func (m *TokenManager) ParseAccess(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := m.parse(tokenString, claims, m.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *TokenManager) ParseRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenString, claims, m.refreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *TokenManager) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	if tokenString == "" {
		return apperr.New(apperr.Unauthorized, "Token manquant")
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("méthode de signature inattendue: %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return apperr.Wrap(apperr.Unauthorized, err, "Token expiré")
		}
		return apperr.Wrap(apperr.Unauthorized, err, "Token invalide")
	}
	if !token.Valid {
		return apperr.New(apperr.Unauthorized, "Token invalide")
	}
	return nil
}

// Authorize valide un jeton d'accès et vérifie qu'il porte chacun des rôles
// demandés. Aucun effet de bord.
func (m *TokenManager) Authorize(tokenString string, required ...models.Role) (*Claims, error) {
	claims, err := m.ParseAccess(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.UserID() == "" {
		return nil, apperr.New(apperr.Unauthorized, "Token invalide")
	}
	for _, role := range required {
		if !claims.HasRole(role) {
			return nil, apperr.New(apperr.Forbidden, "Accès refusé")
		}
	}
	return claims, nil
}
