package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront_back_end/internal/cart"
	"storefront_back_end/internal/middleware"
	"storefront_back_end/internal/models"
)

type CartHandler struct {
	cart *cart.Service
}

func NewCartHandler(svc *cart.Service) *CartHandler {
	return &CartHandler{cart: svc}
}

func cartView(c *models.Cart) gin.H {
	return gin.H{
		"items": c.Items,
		"total": c.Total(),
		"count": c.Count(),
	}
}

func (h *CartHandler) Get(c *gin.Context) {
	current, err := h.cart.Get(c.Request.Context(), c.GetString(middleware.KeyUserID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartView(current))
}

func (h *CartHandler) Add(c *gin.Context) {
	var input struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Corps de requête invalide")
		return
	}

	updated, err := h.cart.Add(c.Request.Context(), c.GetString(middleware.KeyUserID), input.ProductID, input.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartView(updated))
}

func (h *CartHandler) Update(c *gin.Context) {
	var input struct {
		ProductID string `json:"productId"`
		Delta     int    `json:"delta"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.ProductID == "" {
		badRequest(c, "productId est obligatoire")
		return
	}

	updated, err := h.cart.SetQuantity(c.Request.Context(), c.GetString(middleware.KeyUserID), input.ProductID, input.Delta)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartView(updated))
}

func (h *CartHandler) Remove(c *gin.Context) {
	var input struct {
		ProductID string `json:"productId"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.ProductID == "" {
		badRequest(c, "productId est obligatoire")
		return
	}

	updated, err := h.cart.Remove(c.Request.Context(), c.GetString(middleware.KeyUserID), input.ProductID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartView(updated))
}

func (h *CartHandler) Clear(c *gin.Context) {
	updated, err := h.cart.Clear(c.Request.Context(), c.GetString(middleware.KeyUserID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartView(updated))
}

func (h *CartHandler) Checkout(c *gin.Context) {
	order, err := h.cart.Checkout(c.Request.Context(), c.GetString(middleware.KeyUserID))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Set(middleware.KeyAuditResourceID, order.ID)
	c.JSON(http.StatusCreated, gin.H{
		"message": fmt.Sprintf("Commande #%d créée", order.Ticket),
		"order":   order,
	})
}
