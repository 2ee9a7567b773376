package server

import (
	"context"
	"net/http"
	"time"

	"billcore/internal/auth"
	"billcore/internal/billplz"
	"billcore/internal/config"
	"billcore/internal/email"
	"billcore/internal/payment"
	"billcore/internal/subscription"
	"billcore/internal/user"
	"billcore/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Server struct {
	router *gin.Engine
	http   *http.Server
	db     *sqlx.DB
	config *config.Config
}

func New(db *sqlx.DB, cfg *config.Config, emailService *email.Service) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLoggingMiddleware())
	router.Use(corsMiddleware())
	router.Use(MetricsMiddleware())

	gateway := billplz.New(billplz.Config{
		APIKey:        cfg.Billplz.APIKey,
		CollectionID:  cfg.Billplz.CollectionID,
		XSignatureKey: cfg.Billplz.XSignatureKey,
		Sandbox:       cfg.Billplz.Sandbox,
	})

	userHandler := user.NewHandler(db, cfg.JWTSecret)
	walletHandler := wallet.NewHandler(db)
	subscriptionHandler := subscription.NewHandler(db)
	paymentHandler := payment.NewHandler(db, gateway, emailService, cfg.BackendURL, cfg.FrontendURL)

	public := router.Group("/auth")
	public.Use(RateLimitMiddleware(5, 10))
	{
		public.POST("/register", userHandler.Register)
		public.POST("/login", userHandler.Login)
		public.POST("/refresh", userHandler.Refresh)
	}

	// gateway retries aggressively; bound it but never starve legitimate replays
	router.POST("/payment/billplz/callback", RateLimitMiddleware(30, 60), paymentHandler.Callback)

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", userHandler.GetMe)

		protected.GET("/wallet/balance", walletHandler.GetBalance)
		protected.GET("/wallet/transactions", walletHandler.ListTransactions)
		protected.POST("/wallet/charge", walletHandler.Charge)
		protected.POST("/wallet/topup", paymentHandler.TopUp)

		protected.GET("/subscriptions/plans", subscriptionHandler.ListPlans)
		protected.GET("/subscriptions", subscriptionHandler.ListMy)
		protected.POST("/subscriptions/purchase", paymentHandler.PurchaseSubscription)
		protected.POST("/subscriptions/:subID/cancel", subscriptionHandler.Cancel)
	}

	adminMiddleware := auth.RequireRole("admin")
	admin := router.Group("/admin")
	admin.Use(authMiddleware, adminMiddleware)
	{
		admin.POST("/wallet/credit", walletHandler.AdminCredit)
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())

	return &Server{
		router: router,
		db:     db,
		config: cfg,
	}
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{
		Addr:              ":" + port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
