package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"rigshare/internal/infra/config"
	"rigshare/internal/infra/obs"
)

type Handlers struct {
	Auth           *AuthHandler
	Listing        *ListingHandler
	Availability   *AvailabilityHandler
	Booking        *BookingHandler
	Checkout       *CheckoutHandler
	Settlement     *SettlementHandler
	Offer          *OfferHandler
	Payout         *PayoutHandler
	Webhook        *WebhookHandler
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter builds the engine without binding an address.
func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.AccessLog())
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	if obsMW.Metrics != nil {
		router.GET("/metrics", obsMW.Metrics.Handler())
	}

	api := router.Group("/api/v1")
	if h.Auth != nil {
		api.POST("/auth/register", h.Auth.Register)
		api.POST("/auth/login", h.Auth.Login)
		api.POST("/auth/logout", h.Auth.Logout)
		api.GET("/auth/me", h.Auth.Me)
	}
	if h.Listing != nil {
		api.GET("/listings/:id", h.Listing.Get)

		hostGroup := api.Group("/host/listings")
		hostGroup.GET("", h.Listing.HostList)
		hostGroup.POST("", h.Listing.Create)
		hostGroup.PUT("/:id/schedule", h.Listing.UpdateSchedule)
		hostGroup.PUT("/:id/sale", h.Listing.UpdateSale)
		hostGroup.POST("/:id/archive", h.Listing.Archive)
		hostGroup.POST("/:id/activate", h.Listing.Activate)
		hostGroup.POST("/:id/blackouts", h.Listing.Block)
		hostGroup.DELETE("/:id/blackouts/:date", h.Listing.Unblock)
	}
	if h.Availability != nil {
		api.GET("/listings/:id/availability", h.Availability.Day)
		api.GET("/listings/:id/calendar", h.Availability.Calendar)
		api.GET("/listings/:id/quote", h.Availability.Quote)
	}
	if h.Booking != nil {
		api.POST("/bookings", h.Booking.Create)
		api.GET("/bookings", h.Booking.List)
		api.POST("/bookings/:id/approve", h.Booking.Approve)
		api.POST("/bookings/:id/complete", h.Booking.Complete)
		api.POST("/bookings/:id/cancel", h.Booking.Cancel)
	}
	if h.Checkout != nil {
		api.POST("/checkout", h.Checkout.Build)
		api.POST("/checkout/confirm", h.Checkout.Confirm)
	}
	if h.Settlement != nil {
		api.GET("/settlements/:id", h.Settlement.Get)
		api.POST("/settlements/:id/dispute", h.Settlement.Dispute)
		api.POST("/settlements/:id/confirm-receipt", h.Settlement.ConfirmReceipt)
		api.POST("/admin/settlements/:id/resolve", h.Settlement.Resolve)
	}
	if h.Offer != nil {
		api.POST("/offers", h.Offer.Make)
		api.GET("/offers", h.Offer.List)
		api.GET("/offers/:id", h.Offer.Get)
		api.POST("/offers/:id/respond", h.Offer.Respond)
	}
	if h.Payout != nil {
		api.POST("/payouts/onboarding", h.Payout.StartOnboarding)
	}
	if h.Webhook != nil {
		router.POST("/webhooks/payments", h.Webhook.Payments)
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			obs.RequestIDHeader,
		},
		MaxAge: 12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOrigins = nil
		cfg.AllowAllOrigins = true
	}
	return cfg
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
