package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"storefront_back_end/internal/apperr"
	"storefront_back_end/internal/middleware"
	"storefront_back_end/internal/models"
	"storefront_back_end/internal/orders"
)

type OrderHandler struct {
	orders *orders.Service
}

func NewOrderHandler(svc *orders.Service) *OrderHandler {
	return &OrderHandler{orders: svc}
}

// List retourne les commandes de l'utilisateur. Un administrateur reçoit
// toutes les commandes avec le nom du client, sauf avec ?mine=true.
func (h *OrderHandler) List(c *gin.Context) {
	if middleware.IsAdmin(c) && c.Query("mine") != "true" {
		list, err := h.orders.ListAllWithUsers(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
		return
	}

	list, err := h.orders.ListForUser(c.Request.Context(), c.GetString(middleware.KeyUserID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("id"), c.GetString(middleware.KeyUserID), middleware.IsAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// QRCode encode la référence de la commande en PNG.
func (h *OrderHandler) QRCode(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("id"), c.GetString(middleware.KeyUserID), middleware.IsAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}

	payload := fmt.Sprintf("ORDER:%d:%s", order.Ticket, order.ID)
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		respondError(c, apperr.Wrap(apperr.Internal, err, "génération du QR code"))
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

type orderInput struct {
	ID        string            `json:"id"`
	User      string            `json:"user"`
	Products  []models.LineItem `json:"products"`
	Completed *bool             `json:"completed"`
}

// Create passe une commande pour l'utilisateur courant. Seul un
// administrateur peut la passer pour un autre utilisateur.
func (h *OrderHandler) Create(c *gin.Context) {
	var input orderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Corps de requête invalide")
		return
	}

	self := c.GetString(middleware.KeyUserID)
	userID := input.User
	if userID == "" {
		userID = self
	}
	if userID != self && !middleware.IsAdmin(c) {
		respondError(c, apperr.New(apperr.Forbidden, "Accès refusé"))
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), userID, input.Products)
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

func (h *OrderHandler) Update(c *gin.Context) {
	var input orderInput
	if err := c.ShouldBindJSON(&input); err != nil || input.ID == "" {
		badRequest(c, "L'id de la commande est obligatoire")
		return
	}
	c.Set(middleware.KeyAuditResourceID, input.ID)

	order, err := h.orders.UpdateOrder(c.Request.Context(), input.ID, orders.UpdatePatch{
		UserID:    input.User,
		Items:     input.Products,
		Completed: input.Completed,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Commande #%d mise à jour", order.Ticket),
		"order":   order,
	})
}

func (h *OrderHandler) SetStatus(c *gin.Context) {
	var input struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.ID == "" {
		badRequest(c, "L'id de la commande est obligatoire")
		return
	}
	c.Set(middleware.KeyAuditResourceID, input.ID)

	order, err := h.orders.SetStatus(c.Request.Context(), input.ID, input.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Commande #%d : %s", order.Ticket, order.Status),
		"order":   order,
	})
}

func (h *OrderHandler) Delete(c *gin.Context) {
	var input struct {
		ID string `json:"id"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.ID == "" {
		badRequest(c, "L'id de la commande est obligatoire")
		return
	}
	c.Set(middleware.KeyAuditResourceID, input.ID)

	if err := h.orders.Delete(c.Request.Context(), input.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Commande " + input.ID + " supprimée"})
}
