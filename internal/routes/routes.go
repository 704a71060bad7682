// Package routes defines the API routing configuration.
// It sets up all HTTP routes and their corresponding handlers,
// including middleware and authentication requirements.
package routes

import (
	"zone4/internal/config"
	"zone4/internal/handlers"
	"zone4/internal/middleware"
	"zone4/internal/models"
	"zone4/internal/repositories"
	"zone4/internal/services/auth"
	"zone4/internal/services/dispute"
	"zone4/internal/services/ledger"
	"zone4/internal/services/notification"
	"zone4/internal/services/payment"
	"zone4/internal/services/rates"
	"zone4/internal/services/review"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// SetupRoutes configures all application routes.
// It groups routes by functionality and applies appropriate middleware.
func SetupRoutes(app *fiber.App, db *gorm.DB) {
	// Initialize repositories
	userRepo := repositories.NewUserRepository(db, repositories.CacheService)
	agentRepo := repositories.NewAgentRepository(db)
	txRepo := repositories.NewTransactionRepository(db)
	disputeRepo := repositories.NewDisputeRepository(db)
	rateOfferRepo := repositories.NewRateOfferRepository(db)
	reviewRepo := repositories.NewReviewRepository(db)

	// Initialize services in dependency order
	authService := auth.NewService(userRepo, agentRepo)
	ratesService := rates.NewService(rateOfferRepo, repositories.CacheService)

	// Single-process deployments can skip Redis pub/sub for events.
	var publisher interface {
		notification.Publisher
		notification.Subscriber
	} = notification.NewService(repositories.CacheService.Client())
	if config.GetEnv("EVENTS_TRANSPORT", "redis") == "inprocess" {
		publisher = notification.NewBroker()
	}

	var gateway ledger.EscrowGateway = payment.NewNoopGateway()
	if key := config.GetEnv("STRIPE_SECRET_KEY", ""); key != "" {
		gateway = payment.NewStripeGateway(key)
	}

	ledgerService := ledger.NewService(
		txRepo,
		ratesService,
		gateway,
		agentRepo,
		publisher,
		ledger.NewPrometheusCollector(),
	)
	disputeService := dispute.NewService(db, disputeRepo, ledgerService, publisher)
	reviewService := review.NewService(db, reviewRepo, agentRepo, ledgerService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	transactionHandler := handlers.NewTransactionHandler(ledgerService)
	disputeHandler := handlers.NewDisputeHandler(disputeService)
	rateHandler := handlers.NewRateOfferHandler(ratesService)
	reviewHandler := handlers.NewReviewHandler(reviewService)
	eventsHandler := handlers.NewEventsHandler(ledgerService, publisher)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to Zone4 API",
			"version": "1.0.0",
			"docs":    "/api",
		})
	})
	app.Get("/health", handlers.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Public endpoints (no auth required)
	api := app.Group("/api")
	api.Post("/register", authHandler.Register)
	api.Post("/login", authHandler.Login)
	api.Post("/refresh", authHandler.Refresh)
	api.Get("/offers", rateHandler.ListActiveOffers)
	api.Get("/agents/:id/reviews", reviewHandler.ListAgentReviews)

	// Protected routes with auth middleware
	authMiddleware := middleware.NewAuthMiddleware(userRepo)
	protected := api.Group("/", authMiddleware.Handler)

	protected.Post("/logout", authHandler.Logout)
	protected.Post("/change-password", authHandler.ChangePassword)

	// Transaction lifecycle
	tx := protected.Group("/transactions")
	tx.Post("/", middleware.RequirePermission(models.PermissionTransactionWrite), transactionHandler.CreateTransaction)
	tx.Get("/", middleware.RequirePermission(models.PermissionTransactionRead), transactionHandler.ListTransactions)
	tx.Get("/:id", middleware.RequirePermission(models.PermissionTransactionRead), transactionHandler.GetTransaction)
	tx.Post("/:id/confirm-transfer", middleware.RequireRole(models.RoleAgent), transactionHandler.ConfirmTransfer)
	tx.Post("/:id/confirm-receipt", middleware.RequireRole(models.RoleCustomer), transactionHandler.ConfirmReceipt)
	tx.Post("/:id/cancel", transactionHandler.CancelTransaction)
	tx.Get("/:id/events", eventsHandler.StreamTransactionEvents)
	tx.Get("/:id/disputes", middleware.RequirePermission(models.PermissionTransactionRead), disputeHandler.ListTransactionDisputes)

	// Dispute register
	disputes := protected.Group("/disputes")
	disputes.Post("/", middleware.RequirePermission(models.PermissionDisputeWrite), disputeHandler.FileDispute)
	disputes.Get("/:id", disputeHandler.GetDispute)

	// Agent rate offers
	offers := protected.Group("/offers")
	offers.Post("/", middleware.RequirePermission(models.PermissionOfferWrite), rateHandler.PublishOffer)
	offers.Get("/mine", middleware.RequirePermission(models.PermissionOfferWrite), rateHandler.ListMyOffers)
	offers.Put("/:id", middleware.RequirePermission(models.PermissionOfferWrite), rateHandler.UpdateOffer)
	offers.Patch("/:id/active", middleware.RequirePermission(models.PermissionOfferWrite), rateHandler.SetOfferActive)

	// Reviews
	protected.Post("/reviews", middleware.RequirePermission(models.PermissionReviewWrite), reviewHandler.SubmitReview)

	// Admin dispute queue
	admin := protected.Group("/admin", middleware.AdminAuthMiddleware)
	admin.Get("/disputes", disputeHandler.ListOpenDisputes)
	admin.Post("/disputes/:id/advance", disputeHandler.AdvanceDispute)
}
