package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront_back_end/internal/audit"
	"storefront_back_end/internal/auth"
	"storefront_back_end/internal/cache"
	"storefront_back_end/internal/handlers"
	"storefront_back_end/internal/middleware"
)

// Deps regroupe ce dont le routeur a besoin. Metrics peut être nil.
type Deps struct {
	Tokens     *auth.TokenManager
	LoginGuard cache.LoginGuard
	Audit      audit.Recorder
	Metrics    http.Handler

	Auth     *handlers.AuthHandler
	Products *handlers.ProductHandler
	Orders   *handlers.OrderHandler
	Cart     *handlers.CartHandler
	CartWS   *handlers.CartSocket
	Users    *handlers.UserHandler
	Health   *handlers.HealthHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	authed := middleware.AuthRequired(d.Tokens)
	admin := middleware.RequireAdmin()
	audited := func(action, resource string) gin.HandlerFunc {
		return middleware.AuditCriticalActions(d.Audit, action, resource)
	}

	r.GET("/health", d.Health.Health)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	// Auth
	a := r.Group("/auth")
	a.POST("", middleware.LoginRateLimit(d.LoginGuard), audited(audit.ActionLogin, audit.ResourceUser), d.Auth.Login)
	a.POST("/register", audited(audit.ActionRegister, audit.ResourceUser), d.Auth.Register)
	a.GET("/refresh", d.Auth.Refresh)
	a.POST("/logout", audited(audit.ActionLogout, audit.ResourceUser), d.Auth.Logout)

	// Produits
	p := r.Group("/products")
	p.GET("/public", d.Products.ListPublic)
	p.GET("/search", d.Products.Search)
	p.GET("/:id", middleware.OptionalAuth(d.Tokens), d.Products.Get)
	p.GET("", authed, admin, d.Products.ListAll)
	p.POST("", authed, admin, audited(audit.ActionProductCreate, audit.ResourceProduct), d.Products.Create)
	p.PATCH("", authed, admin, audited(audit.ActionProductUpdate, audit.ResourceProduct), d.Products.Update)
	p.DELETE("", authed, admin, audited(audit.ActionProductDelete, audit.ResourceProduct), d.Products.Delete)
	p.POST("/images", authed, admin, audited(audit.ActionProductImage, audit.ResourceProduct), d.Products.UploadImage)

	// Commandes
	o := r.Group("/orders", authed)
	o.GET("", d.Orders.List)
	o.GET("/:id", d.Orders.Get)
	o.GET("/:id/qrcode", d.Orders.QRCode)
	o.POST("", audited(audit.ActionOrderCreate, audit.ResourceOrder), d.Orders.Create)
	o.PATCH("", admin, audited(audit.ActionOrderUpdate, audit.ResourceOrder), d.Orders.Update)
	o.PATCH("/status", admin, audited(audit.ActionOrderStatus, audit.ResourceOrder), d.Orders.SetStatus)
	o.DELETE("", admin, audited(audit.ActionOrderDelete, audit.ResourceOrder), d.Orders.Delete)

	// Panier
	c := r.Group("/cart", authed)
	c.GET("", d.Cart.Get)
	c.POST("", d.Cart.Add)
	c.PATCH("", d.Cart.Update)
	c.DELETE("", d.Cart.Remove)
	c.DELETE("/clear", d.Cart.Clear)
	c.POST("/checkout", audited(audit.ActionCartCheckout, audit.ResourceCart), d.Cart.Checkout)
	r.GET("/cart/ws", middleware.AuthRequiredWS(d.Tokens), d.CartWS.Serve)

	// Administration des comptes
	u := r.Group("/users", authed, admin)
	u.GET("", d.Users.List)
	u.PATCH("/:id/roles", audited(audit.ActionUserRoles, audit.ResourceUser), d.Users.SetRoles)
	u.PATCH("/:id/active", audited(audit.ActionUserActive, audit.ResourceUser), d.Users.SetActive)
}
