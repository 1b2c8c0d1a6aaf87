package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"storefront_back_end/internal/apperr"
	"storefront_back_end/internal/auth"
	"storefront_back_end/internal/middleware"
)

const refreshCookie = "jwt"

// LoginRecorder compte les connexions par résultat.
type LoginRecorder interface {
	Login(success bool)
}

type AuthHandler struct {
	auth         *auth.Service
	logins       LoginRecorder
	cookieSecure bool
}

func NewAuthHandler(svc *auth.Service, logins LoginRecorder, cookieSecure bool) *AuthHandler {
	return &AuthHandler{auth: svc, logins: logins, cookieSecure: cookieSecure}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var input credentials
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Nom d'utilisateur et mot de passe requis")
		return
	}

	user, err := h.auth.Register(c.Request.Context(), input.Username, input.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Set(middleware.KeyAuditResourceID, user.ID)
	c.JSON(http.StatusCreated, gin.H{
		"message": "Utilisateur " + user.Username + " créé",
		"user":    user,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var input credentials
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Nom d'utilisateur et mot de passe requis")
		return
	}

	res, err := h.auth.Login(c.Request.Context(), input.Username, input.Password)
	if h.logins != nil && !apperr.IsKind(err, apperr.InvalidInput) {
		h.logins.Login(err == nil)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.Set(middleware.KeyUserID, res.User.ID)
	c.Set(middleware.KeyUsername, res.User.Username)
	h.setRefreshCookie(c, res.RefreshToken, int(res.RefreshTTL.Seconds()))
	c.JSON(http.StatusOK, gin.H{
		"accessToken": res.AccessToken,
		"user":        res.User,
	})
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	token, err := c.Cookie(refreshCookie)
	if err != nil || token == "" {
		respondError(c, apperr.New(apperr.Unauthorized, "Token manquant"))
		return
	}

	access, user, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": access, "user": user})
}

// Logout révoque le jeton présenté et efface le cookie, même sans cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	if token, err := c.Cookie(refreshCookie); err == nil && token != "" {
		if err := h.auth.Logout(c.Request.Context(), token); err != nil {
			logrus.WithError(err).Warn("⚠️ Révocation du refresh token impossible")
		}
	}
	h.setRefreshCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	if h.cookieSecure {
		c.SetSameSite(http.SameSiteNoneMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}
	c.SetCookie(refreshCookie, value, maxAge, "/auth", "", h.cookieSecure, true)
}
