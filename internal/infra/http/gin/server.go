package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"zedflip/internal/infra/config"
	"zedflip/internal/infra/obs"
)

type ChatHTTP interface {
	List(c *gin.Context)
	Unread(c *gin.Context)
	Get(c *gin.Context)
	Start(c *gin.Context)
	Send(c *gin.Context)
	MarkRead(c *gin.Context)
}

type ListingHTTP interface {
	Search(c *gin.Context)
	Featured(c *gin.Context)
	Get(c *gin.Context)
	Create(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	MarkSold(c *gin.Context)
	UploadImages(c *gin.Context)
	SellerProfile(c *gin.Context)
	SellerListings(c *gin.Context)
}

type AdminHTTP interface {
	Stats(c *gin.Context)
	ListUsers(c *gin.Context)
	ListListings(c *gin.Context)
	ToggleBan(c *gin.Context)
	ToggleFeatured(c *gin.Context)
	ListConversations(c *gin.Context)
	SetConversationActive(c *gin.Context)
}

type SocketHTTP interface {
	Connect(c *gin.Context)
}

type Handlers struct {
	Chat           ChatHTTP
	Listing        ListingHTTP
	Auth           AuthHTTP
	Admin          AdminHTTP
	Socket         SocketHTTP
	AuthMiddleware gin.HandlerFunc
	Metrics        http.Handler
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

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
	if h.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.Metrics))
	}

	api := router.Group("/api/v1")
	if h.Auth != nil {
		api.POST("/auth/register", h.Auth.Register)
		api.POST("/auth/login", h.Auth.Login)
		api.POST("/auth/logout", h.Auth.Logout)
		api.GET("/auth/me", h.Auth.Me)
		api.POST("/auth/verify-email", h.Auth.VerifyEmail)
		api.POST("/auth/resend-verification", h.Auth.ResendVerification)
		api.PUT("/auth/password", h.Auth.ChangePassword)
		api.PUT("/users/profile", h.Auth.UpdateProfile)
	}
	if h.Chat != nil {
		conversations := api.Group("/conversations")
		conversations.GET("", h.Chat.List)
		conversations.GET("/unread", h.Chat.Unread)
		conversations.POST("", h.Chat.Start)
		conversations.GET("/:id", h.Chat.Get)
		conversations.POST("/:id/messages", h.Chat.Send)
		conversations.POST("/:id/read", h.Chat.MarkRead)
	}
	if h.Listing != nil {
		listings := api.Group("/listings")
		listings.GET("", h.Listing.Search)
		listings.GET("/featured", h.Listing.Featured)
		listings.GET("/:id", h.Listing.Get)
		listings.POST("", h.Listing.Create)
		listings.PUT("/:id", h.Listing.Update)
		listings.DELETE("/:id", h.Listing.Delete)
		listings.PUT("/:id/sold", h.Listing.MarkSold)
		listings.POST("/:id/images", h.Listing.UploadImages)
		api.GET("/users/:id", h.Listing.SellerProfile)
		api.GET("/users/:id/listings", h.Listing.SellerListings)
	}
	if h.Admin != nil {
		admin := api.Group("/admin", RequireAdmin)
		admin.GET("/stats", h.Admin.Stats)
		admin.GET("/users", h.Admin.ListUsers)
		admin.PUT("/users/:id/ban", h.Admin.ToggleBan)
		admin.GET("/listings", h.Admin.ListListings)
		admin.PUT("/listings/:id/featured", h.Admin.ToggleFeatured)
		admin.GET("/conversations", h.Admin.ListConversations)
		admin.PUT("/conversations/:id/active", h.Admin.SetConversationActive)
	}
	if h.Socket != nil {
		api.GET("/socket", h.Socket.Connect)
	}
	router.NoRoute(func(c *gin.Context) {
		respondStatus(c, http.StatusNotFound, "Route not found")
	})
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{"Content-Length", "Content-Type", obs.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug", "dev", "local":
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
