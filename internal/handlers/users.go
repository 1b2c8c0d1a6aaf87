package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront_back_end/internal/auth"
)

// UserHandler regroupe l'administration des comptes.
type UserHandler struct {
	auth *auth.Service
}

func NewUserHandler(svc *auth.Service) *UserHandler {
	return &UserHandler{auth: svc}
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.auth.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *UserHandler) SetRoles(c *gin.Context) {
	var input struct {
		Roles []string `json:"roles"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "roles est obligatoire")
		return
	}

	user, err := h.auth.SetRoles(c.Request.Context(), c.Param("id"), input.Roles)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) SetActive(c *gin.Context) {
	var input struct {
		Active *bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.Active == nil {
		badRequest(c, "active est obligatoire")
		return
	}

	user, err := h.auth.SetActive(c.Request.Context(), c.Param("id"), *input.Active)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
