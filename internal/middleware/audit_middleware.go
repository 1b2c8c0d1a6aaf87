package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront_back_end/internal/audit"
	"storefront_back_end/internal/models"
)

// KeyAuditResourceID permet au handler de désigner la ressource touchée
// quand l'id n'est pas dans le chemin.
const KeyAuditResourceID = "audit_resource_id"

// AuditCriticalActions enregistre l'action après traitement, en succès
// pour un statut 2xx et en échec sinon.
func AuditCriticalActions(recorder audit.Recorder, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		resourceID := c.Param("id")
		if resourceID == "" {
			resourceID = c.GetString(KeyAuditResourceID)
		}

		status := c.Writer.Status()
		entry := models.AuditLog{
			UserID:     c.GetString(KeyUserID),
			Username:   c.GetString(KeyUsername),
			Action:     action,
			Resource:   resource,
			ResourceID: resourceID,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
			Success:    status >= 200 && status < 300,
		}
		if !entry.Success {
			entry.ErrorMsg = http.StatusText(status)
		}
		recorder.Record(c.Request.Context(), entry)
	}
}
