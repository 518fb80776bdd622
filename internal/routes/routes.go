package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storefront_back_end/internal/config"
	"storefront_back_end/internal/handlers"
	"storefront_back_end/internal/logger"
	"storefront_back_end/internal/metrics"
	"storefront_back_end/internal/middleware"
)

// Deps regroupe ce dont les routes ont besoin
type Deps struct {
	Config  *config.Config
	Log     *zap.Logger
	Handler *handlers.Handler
	Redis   *redis.Client // rate limit ; nil le désactive
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(d.Log))
	r.Use(metrics.Middleware(d.Config.ServiceName))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     d.Config.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	h := d.Handler

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	{
		api.GET("/products", h.ListProducts)
		api.GET("/products/:id", h.GetProduct)

		api.POST("/orders",
			middleware.CheckoutRateLimit(d.Redis, d.Config.Ledger.CheckoutLimit, d.Config.Ledger.CheckoutWindow),
			h.CreateOrder)
		api.GET("/orders/:id", h.GetOrder)

		api.POST("/webhooks/stripe", h.StripeWebhook)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired([]byte(d.Config.JWTSecret)), middleware.RequireAdmin)
	{
		admin.GET("/orders", h.ListOrders)
		admin.PATCH("/orders/:id/status", h.UpdateOrderStatus)
		admin.GET("/stats", h.Stats)

		admin.POST("/products", h.CreateProduct)
		admin.PATCH("/products/:id", h.UpdateProduct)
		admin.DELETE("/products/:id", h.DeleteProduct)
		admin.GET("/products/:id/movements", h.ProductMovements)

		admin.GET("/archives/*key", h.ArchiveLink)
	}
}
