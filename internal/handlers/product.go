package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront_back_end/internal/catalog"
	"storefront_back_end/internal/middleware"
	"storefront_back_end/internal/services"
)

const maxImageSize = 5 << 20

// ImageUploader stocke une image et retourne son URL publique.
type ImageUploader interface {
	Upload(ctx context.Context, contentType string, r io.Reader, size int64) (string, error)
}

type ProductHandler struct {
	catalog *catalog.Service
	images  ImageUploader
}

// NewProductHandler accepte images nil : l'upload répond alors 503.
func NewProductHandler(svc *catalog.Service, images ImageUploader) *ProductHandler {
	return &ProductHandler{catalog: svc, images: images}
}

func (h *ProductHandler) ListPublic(c *gin.Context) {
	products, err := h.catalog.ListAvailable(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *ProductHandler) ListAll(c *gin.Context) {
	products, err := h.catalog.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *ProductHandler) Get(c *gin.Context) {
	product, err := h.catalog.Get(c.Request.Context(), c.Param("id"), middleware.IsAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) Search(c *gin.Context) {
	products, err := h.catalog.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *ProductHandler) Create(c *gin.Context) {
	var input catalog.CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Corps de requête invalide")
		return
	}

	product, err := h.catalog.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Set(middleware.KeyAuditResourceID, product.ID)
	c.JSON(http.StatusCreated, gin.H{
		"message": "Produit " + product.Name + " créé",
		"product": product,
	})
}

func (h *ProductHandler) Update(c *gin.Context) {
	var input catalog.UpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Corps de requête invalide")
		return
	}
	c.Set(middleware.KeyAuditResourceID, input.ID)

	product, err := h.catalog.Update(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Produit " + product.Name + " mis à jour",
		"product": product,
	})
}

func (h *ProductHandler) Delete(c *gin.Context) {
	var input struct {
		ID string `json:"id"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.ID == "" {
		badRequest(c, "L'id du produit est obligatoire")
		return
	}
	c.Set(middleware.KeyAuditResourceID, input.ID)

	if err := h.catalog.Delete(c.Request.Context(), input.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Produit " + input.ID + " supprimé"})
}

// UploadImage reçoit le champ multipart "image" et le dépose dans le bucket.
func (h *ProductHandler) UploadImage(c *gin.Context) {
	if h.images == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Stockage d'images indisponible"})
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "Champ image manquant")
		return
	}
	if file.Size > maxImageSize {
		badRequest(c, "Image trop volumineuse (5 Mo max)")
		return
	}
	contentType := file.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	if _, ok := services.ImageExtension(contentType); !ok {
		badRequest(c, "Type d'image non supporté")
		return
	}

	src, err := file.Open()
	if err != nil {
		badRequest(c, "Image illisible")
		return
	}
	defer src.Close()

	url, err := h.images.Upload(c.Request.Context(), contentType, src, file.Size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"imageUrl": url})
}
